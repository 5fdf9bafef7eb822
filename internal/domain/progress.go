package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ProgressEvent is one normalized progress tick delivered to the shell.
// Fraction is not guaranteed to be monotonic: the backend resets it across
// playlist items, so consumers must treat it as latest-known, not cumulative.
type ProgressEvent struct {
	Message  string  `json:"message"`
	Fraction float64 `json:"fraction"`
}

// ProgressSink receives normalized events in the order the backend raised
// them. It may be called from a worker goroutine; marshaling back to a
// UI-safe context is the consumer's responsibility.
type ProgressSink func(event ProgressEvent)

// Normalizer converts raw backend progress ticks into ProgressEvents.
// It keeps the last known fraction so ticks without any usable completion
// figure repeat the previous value instead of jumping to zero.
type Normalizer struct {
	control      *Control
	lastFraction float64
}

// NewNormalizer creates a normalizer bound to one job's control token
func NewNormalizer(control *Control) *Normalizer {
	return &Normalizer{control: control}
}

// Normalize translates one raw tick. It re-checks the cancel/pause flags
// before any translation and returns the abort signal when one is set, which
// the caller must hand back to the backend to stop the transfer. ok=false
// means the tick produced no event; malformed ticks are swallowed that way
// and never abort the job.
func (n *Normalizer) Normalize(raw RawProgress) (event ProgressEvent, ok bool, err error) {
	if abortErr := n.control.Err(); abortErr != nil {
		return ProgressEvent{}, false, abortErr
	}

	switch raw.Status {
	case "downloading":
		fraction, known := n.fraction(raw)
		if !known {
			return ProgressEvent{}, false, nil
		}
		n.lastFraction = fraction

		prefix := ""
		if raw.PlaylistIndex > 0 && raw.PlaylistCount > 0 {
			prefix = fmt.Sprintf("[%d/%d] ", raw.PlaylistIndex, raw.PlaylistCount)
		}

		message := fmt.Sprintf("%sDownloading: %.1f%% | Speed: %s | ETA: %s",
			prefix, fraction*100, formatSpeed(raw), formatETA(raw))

		return ProgressEvent{Message: message, Fraction: fraction}, true, nil

	case "finished":
		// This item's transfer is done; post-processing may still follow
		n.lastFraction = 0.99
		return ProgressEvent{Message: "Processing/Converting...", Fraction: 0.99}, true, nil
	}

	return ProgressEvent{}, false, nil
}

// Done returns the terminal event for a fully successful job
func (n *Normalizer) Done() ProgressEvent {
	n.lastFraction = 1.0
	return ProgressEvent{Message: "All downloads finished!", Fraction: 1.0}
}

// fraction computes completion from byte counts when a total is known,
// falling back to the backend's percent string, then to the last known
// value. known=false only when the percent string is present but garbage.
func (n *Normalizer) fraction(raw RawProgress) (float64, bool) {
	total := raw.TotalBytes
	if total == 0 {
		total = raw.TotalBytesEstimate
	}
	if total > 0 {
		return float64(raw.DownloadedBytes) / float64(total), true
	}

	p := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw.PercentString), "%"))
	if p == "" {
		return n.lastFraction, true
	}
	value, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0, false
	}
	return value / 100, true
}

func formatSpeed(raw RawProgress) string {
	if raw.Speed > 0 {
		return fmt.Sprintf("%.1f MB/s", raw.Speed/1024/1024)
	}
	if raw.SpeedString != "" {
		return raw.SpeedString
	}
	return "N/A"
}

func formatETA(raw RawProgress) string {
	if raw.ETASeconds >= 0 {
		return fmt.Sprintf("%ds", raw.ETASeconds)
	}
	if raw.ETAString != "" {
		return raw.ETAString
	}
	return "N/A"
}
