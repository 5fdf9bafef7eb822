package domain

import "context"

// RawFormat is one entry of the backend's reported format ladder
type RawFormat struct {
	ID     string
	Ext    string
	Height int
}

// RawEntry is one item of a flat playlist listing
type RawEntry struct {
	URL   string
	Title string
}

// RawInfo is the normalized shape of the backend's probe output.
// The backend's native payload is loosely typed; the adapter validates it
// into this structure at the boundary so nothing downstream touches raw maps.
type RawInfo struct {
	Type       string // "playlist" for playlists, anything else is a single item
	Title      string
	Thumbnail  string
	Duration   int
	WebpageURL string
	Ext        string
	Formats    []RawFormat
	Entries    []RawEntry
}

// IsPlaylist reports whether the probe resolved to a playlist
func (r *RawInfo) IsPlaylist() bool {
	return r.Type == "playlist"
}

// RawProgress is one progress tick as reported by the backend.
// Numeric fields are 0 when the backend did not supply them; the string
// fallbacks carry the backend's own preformatted rendering when present.
type RawProgress struct {
	Status             string  // "downloading" or "finished"
	DownloadedBytes    int64   //
	TotalBytes         int64   //
	TotalBytesEstimate int64   //
	PercentString      string  // e.g. " 42.0%"
	Speed              float64 // bytes/sec
	SpeedString        string  //
	ETASeconds         int     // -1 when unknown
	ETAString          string  //
	PlaylistIndex      int     //
	PlaylistCount      int     //
}

// TransferOptions describes one transfer request built from a FormatOption
type TransferOptions struct {
	FormatFilter   string // backend format selector, empty for best quality
	OutputTemplate string // naming template including the output directory
	MergeFormat    string // target container when merging video+audio
	ExtractAudio   bool   // transcode to audio only
	AudioCodec     string //
	AudioBitrate   int    // kbps
	UserAgent      string //
}

// TransferResult is returned on successful transfer. The backend reports the
// concrete paths it wrote so callers never have to guess from the filesystem.
type TransferResult struct {
	OutputPaths []string
}

// ProgressFunc receives raw progress ticks during a transfer. Returning a
// non-nil error makes the backend abort the transfer and surface that error
// from Transfer; this is the cooperative cancellation hook.
type ProgressFunc func(raw RawProgress) error

// ExtractionBackend resolves URLs to media and performs transfers.
// Both calls may block for long periods and must be invoked from a worker,
// never from a context that has to stay responsive.
type ExtractionBackend interface {
	// Probe fetches metadata for a URL. With flat=true it returns a cheap
	// shallow listing (playlist type, title, entry URLs) without per-item
	// detail; with flat=false it returns full metadata and a format ladder.
	Probe(ctx context.Context, url string, flat bool) (*RawInfo, error)

	// Transfer performs the fetch/mux/transcode described by opts, invoking
	// onProgress for every tick the underlying tool reports.
	Transfer(ctx context.Context, url string, opts TransferOptions, onProgress ProgressFunc) (*TransferResult, error)
}
