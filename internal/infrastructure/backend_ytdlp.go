package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// progressPrefix marks machine-readable progress lines on yt-dlp's stdout.
// Everything else on stdout is a printed output path.
const progressPrefix = "MG"

// progressTemplate makes yt-dlp emit one parseable line per progress tick.
// Missing fields render as "NA".
const progressTemplate = progressPrefix +
	"|%(progress.status)s" +
	"|%(progress.downloaded_bytes)s" +
	"|%(progress.total_bytes)s" +
	"|%(progress.total_bytes_estimate)s" +
	"|%(progress._percent_str)s" +
	"|%(progress.speed)s" +
	"|%(progress._speed_str)s" +
	"|%(progress.eta)s" +
	"|%(progress._eta_str)s" +
	"|%(info.playlist_index)s" +
	"|%(info.n_entries)s"

const progressFieldCount = 12

// YTDLPBackend implements ExtractionBackend by shelling out to yt-dlp.
// exec.Command passes args directly to the process, no shell quoting needed;
// ShellEscapeCommand is used for log display only.
type YTDLPBackend struct {
	binary string
	logger *zap.Logger
}

// NewYTDLPBackend creates a backend using the given yt-dlp binary
func NewYTDLPBackend(binary string, logger *zap.Logger) *YTDLPBackend {
	return &YTDLPBackend{binary: binary, logger: logger}
}

// ytdlpProbe mirrors the fields of yt-dlp's -J output this engine reads.
// yt-dlp reports heights and durations as nullable floats; everything is
// validated into domain.RawInfo here so nothing downstream sees raw shapes.
type ytdlpProbe struct {
	Type       string        `json:"_type"`
	Title      string        `json:"title"`
	Thumbnail  string        `json:"thumbnail"`
	Duration   float64       `json:"duration"`
	WebpageURL string        `json:"webpage_url"`
	Ext        string        `json:"ext"`
	Formats    []ytdlpFormat `json:"formats"`
	Entries    []ytdlpEntry  `json:"entries"`
}

type ytdlpFormat struct {
	ID     string   `json:"format_id"`
	Ext    string   `json:"ext"`
	Height *float64 `json:"height"`
}

type ytdlpEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Probe fetches metadata for a URL via yt-dlp -J
func (b *YTDLPBackend) Probe(ctx context.Context, url string, flat bool) (*domain.RawInfo, error) {
	args := []string{"-J", "--no-warnings"}
	if flat {
		args = append(args, "--flat-playlist")
	}
	args = append(args, url)

	b.logger.Debug("Probing URL", zap.String("cmd", ShellEscapeCommand(b.binary, args...)))

	cmd := exec.CommandContext(ctx, b.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("probe failed: %s", probeFailureMessage(stderr.String(), err))
	}

	var probe ytdlpProbe
	if err := json.Unmarshal(stdout.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("probe returned unparseable metadata: %w", err)
	}

	return probe.toRawInfo(), nil
}

func (p *ytdlpProbe) toRawInfo() *domain.RawInfo {
	info := &domain.RawInfo{
		Type:       p.Type,
		Title:      p.Title,
		Thumbnail:  p.Thumbnail,
		Duration:   int(p.Duration),
		WebpageURL: p.WebpageURL,
		Ext:        p.Ext,
	}
	for _, f := range p.Formats {
		height := 0
		if f.Height != nil {
			height = int(*f.Height)
		}
		info.Formats = append(info.Formats, domain.RawFormat{ID: f.ID, Ext: f.Ext, Height: height})
	}
	for _, e := range p.Entries {
		info.Entries = append(info.Entries, domain.RawEntry{URL: e.URL, Title: e.Title})
	}
	return info
}

// Transfer runs the actual download, streaming progress ticks to onProgress.
// When onProgress returns an error the process is killed and that error is
// returned unchanged, so cancel/pause signals round-trip intact.
func (b *YTDLPBackend) Transfer(ctx context.Context, url string, opts domain.TransferOptions, onProgress domain.ProgressFunc) (*domain.TransferResult, error) {
	args := transferArgs(url, opts)

	b.logger.Debug("Starting transfer", zap.String("cmd", ShellEscapeCommand(b.binary, args...)))

	cmd := exec.CommandContext(ctx, b.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &domain.TransferError{Message: err.Error(), Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &domain.TransferError{Message: fmt.Sprintf("failed to start %s: %v", b.binary, err), Err: err}
	}

	var abortErr error
	var outputPaths []string

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if raw, ok := parseProgressLine(line); ok {
			if abortErr != nil {
				continue // draining output after kill
			}
			if perr := onProgress(raw); perr != nil {
				abortErr = perr
				_ = cmd.Process.Kill()
			}
			continue
		}

		// --print after_move:filepath emits the concrete path of every
		// file yt-dlp wrote, one per line
		outputPaths = append(outputPaths, line)
	}

	waitErr := cmd.Wait()

	if abortErr != nil {
		return nil, abortErr
	}
	if waitErr != nil {
		return nil, &domain.TransferError{
			Message: probeFailureMessage(stderr.String(), waitErr),
			Err:     waitErr,
		}
	}

	return &domain.TransferResult{OutputPaths: outputPaths}, nil
}

// transferArgs assembles the yt-dlp command line for one transfer
func transferArgs(url string, opts domain.TransferOptions) []string {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--newline",
		"--progress",
		"--progress-template", "download:" + progressTemplate,
		"--print", "after_move:filepath",
		"--no-simulate",
		"-o", opts.OutputTemplate,
	}

	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	if opts.FormatFilter != "" {
		args = append(args, "-f", opts.FormatFilter)
	}
	if opts.MergeFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeFormat)
	}
	if opts.ExtractAudio {
		args = append(args, "-x", "--audio-format", opts.AudioCodec)
		if opts.AudioBitrate > 0 {
			args = append(args, "--audio-quality", strconv.Itoa(opts.AudioBitrate)+"K")
		}
	}

	return append(args, url)
}

// parseProgressLine decodes one progress-template line into a RawProgress.
// ok=false for anything that is not a progress line.
func parseProgressLine(line string) (domain.RawProgress, bool) {
	if !strings.HasPrefix(line, progressPrefix+"|") {
		return domain.RawProgress{}, false
	}
	parts := strings.Split(line, "|")
	if len(parts) != progressFieldCount {
		return domain.RawProgress{}, false
	}

	return domain.RawProgress{
		Status:             parts[1],
		DownloadedBytes:    parseCount(parts[2]),
		TotalBytes:         parseCount(parts[3]),
		TotalBytesEstimate: parseCount(parts[4]),
		PercentString:      cleanField(parts[5]),
		Speed:              parseRate(parts[6]),
		SpeedString:        cleanField(parts[7]),
		ETASeconds:         parseETA(parts[8]),
		ETAString:          cleanField(parts[9]),
		PlaylistIndex:      int(parseCount(parts[10])),
		PlaylistCount:      int(parseCount(parts[11])),
	}, true
}

// cleanField maps yt-dlp's "NA" placeholder to an absent value
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

// parseCount reads a byte or item count; yt-dlp may render them as floats
func parseCount(s string) int64 {
	s = cleanField(s)
	if s == "" {
		return 0
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(value)
}

func parseRate(s string) float64 {
	s = cleanField(s)
	if s == "" {
		return 0
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return value
}

func parseETA(s string) int {
	s = cleanField(s)
	if s == "" {
		return -1
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return -1
	}
	return int(value)
}

// probeFailureMessage prefers yt-dlp's own ERROR line over the exit status
func probeFailureMessage(stderr string, err error) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return strings.TrimPrefix(line, "ERROR: ")
		}
	}
	return err.Error()
}
