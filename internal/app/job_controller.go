package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// Notifier receives terminal job events, typically a desktop notification
// service. It may be nil.
type Notifier interface {
	NotifyJobStarted(title string)
	NotifyJobFinished(title string)
	NotifyJobFailed(title string, err error)
}

// JobController owns the download job lifecycle: it drives the extraction
// backend, applies cooperative cancel/pause through a per-job control token,
// emits normalized progress, and reconciles the outcome into history.
// At most one job is active per controller instance.
type JobController struct {
	backend  domain.ExtractionBackend
	history  domain.HistoryRepository
	notifier Notifier
	config   *domain.DownloadConfig
	logger   *zap.Logger

	mu          sync.Mutex
	state       domain.JobState
	control     *domain.Control
	metadata    *domain.MediaMetadata
	analyzedURL string
}

// NewJobController creates a job controller
func NewJobController(
	backend domain.ExtractionBackend,
	history domain.HistoryRepository,
	notifier Notifier,
	config *domain.DownloadConfig,
	logger *zap.Logger,
) *JobController {
	return &JobController{
		backend:  backend,
		history:  history,
		notifier: notifier,
		config:   config,
		logger:   logger,
		state:    domain.StateIdle,
	}
}

// State returns the controller's current lifecycle state
func (c *JobController) State() domain.JobState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Metadata returns the result of the most recent successful Analyze, or nil
func (c *JobController) Metadata() *domain.MediaMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

// MetadataFor returns the last analysis result when it covers the given URL,
// or nil. The backend may canonicalize the source URL during analysis
// (short links, tracking params), so both the URL the caller analyzed and
// the canonical form the backend reported match.
func (c *JobController) MetadataFor(url string) *domain.MediaMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metadata == nil {
		return nil
	}
	if url == c.analyzedURL || url == c.metadata.SourceURL {
		return c.metadata
	}
	return nil
}

// Analyze probes a URL and builds the selectable format catalog. It blocks
// on backend I/O and must be called from a worker goroutine. Any backend
// failure surfaces as *domain.AnalysisError with no partial metadata.
func (c *JobController) Analyze(ctx context.Context, url string) (*domain.MediaMetadata, error) {
	if strings.TrimSpace(url) == "" {
		return nil, &domain.AnalysisError{Message: "URL must not be empty"}
	}

	c.mu.Lock()
	if c.state == domain.StateAnalyzing || c.state == domain.StateDownloading {
		c.mu.Unlock()
		return nil, fmt.Errorf("another job is active (state: %s)", c.state)
	}
	prev := c.state
	c.state = domain.StateAnalyzing
	c.mu.Unlock()

	c.logger.Info("Analyzing URL", zap.String("url", url))
	metadata, err := c.analyze(ctx, url)

	c.mu.Lock()
	if err != nil {
		c.state = prev
	} else {
		c.state = domain.StateReady
		c.metadata = metadata
		c.analyzedURL = url
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Analysis failed", zap.String("url", url), zap.Error(err))
		return nil, err
	}

	c.logger.Info("Analysis complete",
		zap.String("title", metadata.Title),
		zap.Bool("is_playlist", metadata.IsPlaylist),
		zap.Int("formats", len(metadata.Formats)))
	return metadata, nil
}

func (c *JobController) analyze(ctx context.Context, url string) (*domain.MediaMetadata, error) {
	// Flat probe first: cheap playlist detection without per-item lookups
	info, err := c.backend.Probe(ctx, url, true)
	if err != nil {
		return nil, &domain.AnalysisError{Message: err.Error(), Err: err}
	}

	if info.IsPlaylist() {
		metadata := &domain.MediaMetadata{
			Title:             valueOr(info.Title, "Unknown Playlist"),
			SourceURL:         url,
			IsPlaylist:        true,
			PlaylistItemCount: len(info.Entries),
		}

		// Deep-probe only the first item for the catalog and thumbnail;
		// probing every entry would cost one network round trip each.
		first := &domain.RawInfo{}
		if len(info.Entries) > 0 {
			first, err = c.backend.Probe(ctx, info.Entries[0].URL, false)
			if err != nil {
				return nil, &domain.AnalysisError{Message: err.Error(), Err: err}
			}
			metadata.Thumbnail = first.Thumbnail
		}
		metadata.Formats = domain.BuildCatalog(first)
		return metadata, nil
	}

	return &domain.MediaMetadata{
		Title:           valueOr(info.Title, "Unknown Title"),
		SourceURL:       valueOr(info.WebpageURL, url),
		Thumbnail:       info.Thumbnail,
		DurationSeconds: info.Duration,
		Formats:         domain.BuildCatalog(info),
	}, nil
}

// Run executes one download job to completion. It blocks for the whole
// transfer and must be called from a worker goroutine; progress events are
// delivered in order to sink, possibly on a different goroutine than the
// caller's. Exactly one history status transition happens per call, at
// termination. An error return means the run was rejected before any
// history entry was created.
func (c *JobController) Run(ctx context.Context, url string, format domain.FormatOption, outputDir, titleHint string, sink domain.ProgressSink) (domain.JobOutcome, error) {
	if !domain.ValidateFormat(format) {
		return domain.JobOutcome{}, fmt.Errorf("invalid format option: %q", format.ID)
	}
	if outputDir == "" {
		outputDir = c.config.OutputDir
	}

	c.mu.Lock()
	if c.state == domain.StateAnalyzing || c.state == domain.StateDownloading {
		c.mu.Unlock()
		return domain.JobOutcome{}, fmt.Errorf("another job is active (state: %s)", c.state)
	}
	control := domain.NewControl()
	c.control = control
	c.state = domain.StateDownloading
	thumbnail := ""
	if c.metadata != nil && (c.metadata.SourceURL == url || c.analyzedURL == url) {
		thumbnail = c.metadata.Thumbnail
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.control = nil
		c.state = domain.StateReady
		c.mu.Unlock()
	}()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return domain.JobOutcome{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	entry := domain.NewHistoryEntry(valueOr(titleHint, "Unknown"), url, format.Label, outputDir, thumbnail)
	if err := c.history.Create(entry); err != nil {
		if !errors.Is(err, domain.ErrHistoryPersist) {
			return domain.JobOutcome{}, fmt.Errorf("failed to create history entry: %w", err)
		}
		// In-memory state stays authoritative for the session
		c.logger.Warn("History entry not persisted", zap.String("id", entry.ID), zap.Error(err))
	}

	runID := uuid.New().String()
	c.logger.Info("Starting download",
		zap.String("run_id", runID),
		zap.String("entry_id", entry.ID),
		zap.String("url", url),
		zap.String("format", format.ID))

	if c.notifier != nil {
		c.notifier.NotifyJobStarted(entry.Title)
	}

	normalizer := domain.NewNormalizer(control)
	result, err := c.backend.Transfer(ctx, url, c.buildTransferOptions(format, url, outputDir), func(raw domain.RawProgress) error {
		event, ok, perr := normalizer.Normalize(raw)
		if perr != nil {
			return perr // abort signal, stops the transfer
		}
		if ok && sink != nil {
			sink(event)
		}
		return nil
	})

	outcome := c.reconcile(entry, control, result, err, normalizer, sink)

	c.logger.Info("Download terminated",
		zap.String("run_id", runID),
		zap.String("entry_id", entry.ID),
		zap.String("outcome", string(outcome.Status)),
		zap.String("message", outcome.Message))

	return outcome, nil
}

// reconcile maps the transfer result onto the terminal outcome and applies
// the single history status transition for this run.
func (c *JobController) reconcile(entry *domain.HistoryEntry, control *domain.Control, result *domain.TransferResult, transferErr error, normalizer *domain.Normalizer, sink domain.ProgressSink) domain.JobOutcome {
	outcome := domain.JobOutcome{EntryID: entry.ID}

	switch {
	case transferErr == nil:
		outcome.Status = domain.OutcomeFinished
		if result != nil {
			outcome.OutputPaths = result.OutputPaths
		}
	case control.Paused():
		outcome.Status = domain.OutcomePaused
		outcome.Message = "Download Paused."
	case control.Cancelled():
		outcome.Status = domain.OutcomeCancelled
		outcome.Message = "Download Cancelled."
	default:
		outcome.Status = domain.OutcomeError
		outcome.Message = transferErr.Error()
	}

	updated, err := c.history.UpdateStatus(entry.ID, outcome.HistoryStatus())
	if err != nil {
		c.logger.Warn("History status not persisted", zap.String("id", entry.ID), zap.Error(err))
	} else if !updated {
		c.logger.Warn("History entry vanished before terminal update", zap.String("id", entry.ID))
	}

	switch outcome.Status {
	case domain.OutcomeFinished:
		if sink != nil {
			sink(normalizer.Done())
		}
		if c.notifier != nil {
			c.notifier.NotifyJobFinished(entry.Title)
		}
	case domain.OutcomeError:
		if c.notifier != nil {
			c.notifier.NotifyJobFailed(entry.Title, transferErr)
		}
	}

	return outcome
}

// Cancel flags the active job for cancellation. Cooperative: it takes effect
// at the next progress tick the backend reports. No-op when idle.
func (c *JobController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.control == nil {
		c.logger.Debug("Cancel requested with no active job")
		return
	}
	c.control.Cancel()
	c.logger.Info("Cancel requested")
}

// Pause flags the active job for pause. The transfer is aborted like a
// cancel but the history entry records Paused; resuming re-runs the job from
// scratch. No-op when idle.
func (c *JobController) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.control == nil {
		c.logger.Debug("Pause requested with no active job")
		return
	}
	c.control.Pause()
	c.logger.Info("Pause requested")
}

// ResumeFrom starts a fresh job from a terminal history entry: a new
// analyze of the same URL followed by a run with the matching format. The
// old entry keeps its terminal status; the new run gets a new entry.
func (c *JobController) ResumeFrom(ctx context.Context, entry *domain.HistoryEntry, sink domain.ProgressSink) (domain.JobOutcome, error) {
	metadata, err := c.Analyze(ctx, entry.URL)
	if err != nil {
		return domain.JobOutcome{}, err
	}

	format := metadata.FormatByLabel(entry.FormatLabel)
	if format == nil {
		// Catalog may have shifted since the original run; fall back to
		// the best available option rather than refusing to resume.
		c.logger.Warn("Original format no longer offered, using best available",
			zap.String("format_label", entry.FormatLabel))
		format = &metadata.Formats[0]
	}

	return c.Run(ctx, entry.URL, *format, entry.OutputPath, metadata.Title, sink)
}

// buildTransferOptions maps a format selection onto backend transfer options
func (c *JobController) buildTransferOptions(format domain.FormatOption, url, outputDir string) domain.TransferOptions {
	opts := domain.TransferOptions{UserAgent: c.config.UserAgent}

	// Playlist items get a position prefix so their filenames cannot collide
	template := "%(title)s.%(ext)s"
	if isPlaylistURL(url) {
		template = "%(playlist_index)s - %(title)s.%(ext)s"
	}
	opts.OutputTemplate = filepath.Join(outputDir, template)

	switch format.Kind {
	case domain.KindVideo:
		opts.FormatFilter = fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]/best", format.Height, format.Height)
		opts.MergeFormat = "mp4"
	case domain.KindAudio:
		opts.FormatFilter = "bestaudio/best"
		opts.ExtractAudio = true
		opts.AudioCodec = "mp3"
		opts.AudioBitrate = format.AudioBitrateKbps
	case domain.KindOriginal:
		// backend's best-quality stream, no filtering
	}

	return opts
}

func isPlaylistURL(url string) bool {
	return strings.Contains(url, "playlist") || strings.Contains(url, "list=")
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
