package domain

import (
	"fmt"
	"sort"
	"strings"
)

// minVideoHeight is the lowest rung of the video ladder worth offering
const minVideoHeight = 144

var audioExtensions = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"aac":  true,
	"flac": true,
	"m4a":  true,
	"ogg":  true,
	"opus": true,
}

// BuildCatalog turns a raw probe result into the user-selectable format set.
// Pure function of the raw info, no I/O. The output is never empty for a
// successful probe and labels are unique by construction.
func BuildCatalog(info *RawInfo) []FormatOption {
	catalog := buildVideoLadder(info.Formats)

	if len(catalog) > 0 {
		catalog = append(catalog,
			FormatOption{ID: "audio-mp3-320", Label: "MP3 High (320kbps)", Kind: KindAudio, AudioBitrateKbps: 320},
			FormatOption{ID: "audio-mp3-192", Label: "MP3 Medium (192kbps)", Kind: KindAudio, AudioBitrateKbps: 192},
			FormatOption{ID: "audio-mp3-128", Label: "MP3 Low (128kbps)", Kind: KindAudio, AudioBitrateKbps: 128},
		)
		return catalog
	}

	// No enumerable video ladder: a direct file link or a generic source.
	// Classify by extension and offer the original stream as-is.
	isAudio := audioExtensions[strings.ToLower(info.Ext)]

	typeLabel := "Video"
	if isAudio {
		typeLabel = "Audio"
	}

	catalog = append(catalog, FormatOption{
		ID:    "original",
		Label: fmt.Sprintf("Original %s (Best Quality)", typeLabel),
		Kind:  KindOriginal,
	})

	if !isAudio {
		catalog = append(catalog, FormatOption{
			ID:               "audio-mp3-320",
			Label:            "Convert to MP3 (320kbps)",
			Kind:             KindAudio,
			AudioBitrateKbps: 320,
		})
	}

	return catalog
}

// buildVideoLadder keeps one format per distinct height, best first
func buildVideoLadder(formats []RawFormat) []FormatOption {
	sorted := make([]RawFormat, len(formats))
	copy(sorted, formats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Height > sorted[j].Height
	})

	var ladder []FormatOption
	seen := make(map[int]bool)

	for _, f := range sorted {
		if f.Height < minVideoHeight {
			continue
		}
		if seen[f.Height] {
			continue
		}
		seen[f.Height] = true

		ladder = append(ladder, FormatOption{
			ID:     fmt.Sprintf("video-%d", f.Height),
			Label:  fmt.Sprintf("%dp (MP4)", f.Height),
			Kind:   KindVideo,
			Height: f.Height,
		})
	}

	return ladder
}
