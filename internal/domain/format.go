package domain

// FormatKind classifies a selectable format option
type FormatKind string

const (
	KindVideo    FormatKind = "video"    // video ladder entry, capped at Height
	KindAudio    FormatKind = "audio"    // MP3 conversion at AudioBitrateKbps
	KindOriginal FormatKind = "original" // backend's best stream, no filtering
)

// FormatOption represents one downloadable rendition the user can pick
type FormatOption struct {
	ID               string     `json:"id"`
	Label            string     `json:"label"`
	Kind             FormatKind `json:"kind"`
	Height           int        `json:"height,omitempty"`             // video only
	AudioBitrateKbps int        `json:"audio_bitrate_kbps,omitempty"` // audio only
}

// MediaMetadata is the immutable result of one analyze call
type MediaMetadata struct {
	Title             string         `json:"title"`
	SourceURL         string         `json:"source_url"`
	Thumbnail         string         `json:"thumbnail,omitempty"`
	DurationSeconds   int            `json:"duration_seconds"`
	IsPlaylist        bool           `json:"is_playlist"`
	PlaylistItemCount int            `json:"playlist_item_count,omitempty"`
	Formats           []FormatOption `json:"formats"`
}

// FormatByID returns the catalog entry with the given id, or nil
func (m *MediaMetadata) FormatByID(id string) *FormatOption {
	for i := range m.Formats {
		if m.Formats[i].ID == id {
			return &m.Formats[i]
		}
	}
	return nil
}

// FormatByLabel returns the catalog entry with the given label, or nil.
// Labels are unique within a catalog, so this is a safe lookup key for
// resuming from a history entry that only recorded the label.
func (m *MediaMetadata) FormatByLabel(label string) *FormatOption {
	for i := range m.Formats {
		if m.Formats[i].Label == label {
			return &m.Formats[i]
		}
	}
	return nil
}

// ValidateFormat checks that an option came out of a catalog build
func ValidateFormat(f FormatOption) bool {
	switch f.Kind {
	case KindVideo:
		return f.Height > 0
	case KindAudio:
		return f.AudioBitrateKbps > 0
	case KindOriginal:
		return true
	}
	return false
}
