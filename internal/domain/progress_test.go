package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func downloadingTick() RawProgress {
	return RawProgress{
		Status:          "downloading",
		DownloadedBytes: 50,
		TotalBytes:      200,
		ETASeconds:      -1,
	}
}

func TestNormalize_FractionFromByteCounts(t *testing.T) {
	n := NewNormalizer(NewControl())

	event, ok, err := n.Normalize(downloadingTick())

	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.25, event.Fraction, 0.001)
	assert.Equal(t, "Downloading: 25.0% | Speed: N/A | ETA: N/A", event.Message)
}

func TestNormalize_FractionFromEstimate(t *testing.T) {
	n := NewNormalizer(NewControl())

	event, ok, err := n.Normalize(RawProgress{
		Status:             "downloading",
		DownloadedBytes:    30,
		TotalBytesEstimate: 300,
		ETASeconds:         -1,
	})

	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.1, event.Fraction, 0.001)
}

func TestNormalize_FractionFromPercentString(t *testing.T) {
	n := NewNormalizer(NewControl())

	event, ok, err := n.Normalize(RawProgress{
		Status:        "downloading",
		PercentString: " 42.0% ",
		ETASeconds:    -1,
	})

	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.42, event.Fraction, 0.001)
}

func TestNormalize_KeepsLastKnownFraction(t *testing.T) {
	n := NewNormalizer(NewControl())

	_, _, err := n.Normalize(downloadingTick())
	require.NoError(t, err)

	// tick with no usable completion figure repeats the previous fraction
	event, ok, err := n.Normalize(RawProgress{Status: "downloading", ETASeconds: -1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.25, event.Fraction, 0.001)
}

func TestNormalize_MalformedPercentSwallowed(t *testing.T) {
	n := NewNormalizer(NewControl())

	_, ok, err := n.Normalize(RawProgress{
		Status:        "downloading",
		PercentString: "garbage",
		ETASeconds:    -1,
	})

	require.NoError(t, err)
	assert.False(t, ok, "malformed tick must be dropped, not escalated")
}

func TestNormalize_PlaylistPrefix(t *testing.T) {
	n := NewNormalizer(NewControl())

	tick := downloadingTick()
	tick.PlaylistIndex = 3
	tick.PlaylistCount = 12

	event, ok, err := n.Normalize(tick)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[3/12] Downloading: 25.0% | Speed: N/A | ETA: N/A", event.Message)
}

func TestNormalize_SpeedAndETAFormatting(t *testing.T) {
	n := NewNormalizer(NewControl())

	tick := downloadingTick()
	tick.Speed = 2.5 * 1024 * 1024
	tick.ETASeconds = 42

	event, ok, err := n.Normalize(tick)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Downloading: 25.0% | Speed: 2.5 MB/s | ETA: 42s", event.Message)
}

func TestNormalize_StringFallbacks(t *testing.T) {
	n := NewNormalizer(NewControl())

	tick := downloadingTick()
	tick.SpeedString = "1.2MiB/s"
	tick.ETAString = "00:30"

	event, ok, err := n.Normalize(tick)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, event.Message, "Speed: 1.2MiB/s")
	assert.Contains(t, event.Message, "ETA: 00:30")
}

func TestNormalize_FinishedTick(t *testing.T) {
	n := NewNormalizer(NewControl())

	event, ok, err := n.Normalize(RawProgress{Status: "finished"})

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Processing/Converting...", event.Message)
	assert.Equal(t, 0.99, event.Fraction)
}

func TestNormalize_UnknownStatusIgnored(t *testing.T) {
	n := NewNormalizer(NewControl())

	_, ok, err := n.Normalize(RawProgress{Status: "postprocessing"})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNormalize_CancelFlagAborts(t *testing.T) {
	control := NewControl()
	n := NewNormalizer(control)

	control.Cancel()
	_, ok, err := n.Normalize(downloadingTick())

	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, ok)
}

func TestNormalize_PauseFlagAborts(t *testing.T) {
	control := NewControl()
	n := NewNormalizer(control)

	control.Pause()
	_, ok, err := n.Normalize(downloadingTick())

	assert.ErrorIs(t, err, ErrPaused)
	assert.False(t, ok)
}

func TestNormalize_PauseWinsOverCancel(t *testing.T) {
	control := NewControl()
	n := NewNormalizer(control)

	control.Cancel()
	control.Pause()
	_, _, err := n.Normalize(downloadingTick())

	assert.ErrorIs(t, err, ErrPaused)
}

func TestNormalizer_Done(t *testing.T) {
	n := NewNormalizer(NewControl())

	event := n.Done()

	assert.Equal(t, "All downloads finished!", event.Message)
	assert.Equal(t, 1.0, event.Fraction)
}
