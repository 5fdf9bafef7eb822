package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// fakeBackend implements domain.ExtractionBackend for testing
type fakeBackend struct {
	mu        sync.Mutex
	probe     func(url string, flat bool) (*domain.RawInfo, error)
	transfer  func(url string, opts domain.TransferOptions, onProgress domain.ProgressFunc) (*domain.TransferResult, error)
	lastOpts  domain.TransferOptions
	probeURLs []string
}

func (b *fakeBackend) Probe(ctx context.Context, url string, flat bool) (*domain.RawInfo, error) {
	b.mu.Lock()
	b.probeURLs = append(b.probeURLs, url)
	b.mu.Unlock()
	return b.probe(url, flat)
}

func (b *fakeBackend) Transfer(ctx context.Context, url string, opts domain.TransferOptions, onProgress domain.ProgressFunc) (*domain.TransferResult, error) {
	b.mu.Lock()
	b.lastOpts = opts
	b.mu.Unlock()
	return b.transfer(url, opts, onProgress)
}

// mockHistoryRepo implements domain.HistoryRepository for testing
type mockHistoryRepo struct {
	mu          sync.Mutex
	entries     []*domain.HistoryEntry
	transitions map[string][]domain.HistoryStatus
}

func newMockHistoryRepo() *mockHistoryRepo {
	return &mockHistoryRepo{transitions: make(map[string][]domain.HistoryStatus)}
}

func (m *mockHistoryRepo) Create(entry *domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]*domain.HistoryEntry{entry}, m.entries...)
	return nil
}

func (m *mockHistoryRepo) UpdateStatus(id string, status domain.HistoryStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = status
			m.transitions[id] = append(m.transitions[id], status)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockHistoryRepo) FindByID(id string) (*domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (m *mockHistoryRepo) List() ([]*domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.HistoryEntry(nil), m.entries...), nil
}

func (m *mockHistoryRepo) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

func (m *mockHistoryRepo) Close() error { return nil }

func singleVideoInfo() *domain.RawInfo {
	return &domain.RawInfo{
		Title:      "Test Clip",
		Thumbnail:  "https://example.com/thumb.jpg",
		Duration:   120,
		WebpageURL: "https://example.com/v/1",
		Ext:        "mp4",
		Formats: []domain.RawFormat{
			{ID: "f1", Ext: "mp4", Height: 1080},
			{ID: "f2", Ext: "mp4", Height: 720},
		},
	}
}

func steadyTransfer(ticks int) func(string, domain.TransferOptions, domain.ProgressFunc) (*domain.TransferResult, error) {
	return func(url string, opts domain.TransferOptions, onProgress domain.ProgressFunc) (*domain.TransferResult, error) {
		for i := 1; i <= ticks; i++ {
			tick := domain.RawProgress{
				Status:          "downloading",
				DownloadedBytes: int64(i),
				TotalBytes:      int64(ticks),
				ETASeconds:      -1,
			}
			if err := onProgress(tick); err != nil {
				return nil, err
			}
		}
		if err := onProgress(domain.RawProgress{Status: "finished"}); err != nil {
			return nil, err
		}
		return &domain.TransferResult{OutputPaths: []string{"/tmp/out/Test Clip.mp4"}}, nil
	}
}

func newTestController(t *testing.T, backend *fakeBackend, repo *mockHistoryRepo) *JobController {
	t.Helper()
	config := &domain.DownloadConfig{
		OutputDir:   t.TempDir(),
		YTDLPBinary: "yt-dlp",
		UserAgent:   "test-agent",
	}
	return NewJobController(backend, repo, nil, config, zap.NewNop())
}

func TestAnalyze_SingleItem(t *testing.T) {
	backend := &fakeBackend{
		probe: func(url string, flat bool) (*domain.RawInfo, error) {
			assert.True(t, flat, "first probe must be flat")
			return singleVideoInfo(), nil
		},
	}
	c := newTestController(t, backend, newMockHistoryRepo())

	metadata, err := c.Analyze(context.Background(), "https://example.com/v/1")

	require.NoError(t, err)
	assert.Equal(t, "Test Clip", metadata.Title)
	assert.Equal(t, "https://example.com/v/1", metadata.SourceURL)
	assert.Equal(t, 120, metadata.DurationSeconds)
	assert.False(t, metadata.IsPlaylist)
	assert.Equal(t, "video-1080", metadata.Formats[0].ID)
	assert.Len(t, backend.probeURLs, 1, "single items need exactly one probe")
	assert.Equal(t, domain.StateReady, c.State())
}

func TestAnalyze_PlaylistDeepProbesFirstItemOnly(t *testing.T) {
	backend := &fakeBackend{}
	backend.probe = func(url string, flat bool) (*domain.RawInfo, error) {
		if flat {
			return &domain.RawInfo{
				Type:  "playlist",
				Title: "My Mix",
				Entries: []domain.RawEntry{
					{URL: "https://example.com/v/1", Title: "one"},
					{URL: "https://example.com/v/2", Title: "two"},
					{URL: "https://example.com/v/3", Title: "three"},
				},
			}, nil
		}
		assert.Equal(t, "https://example.com/v/1", url, "only the first entry is deep-probed")
		return singleVideoInfo(), nil
	}
	c := newTestController(t, backend, newMockHistoryRepo())

	metadata, err := c.Analyze(context.Background(), "https://example.com/playlist?list=abc")

	require.NoError(t, err)
	assert.True(t, metadata.IsPlaylist)
	assert.Equal(t, "My Mix", metadata.Title)
	assert.Equal(t, 3, metadata.PlaylistItemCount)
	assert.Equal(t, "https://example.com/thumb.jpg", metadata.Thumbnail)
	assert.NotEmpty(t, metadata.Formats)
	assert.Len(t, backend.probeURLs, 2)
}

func TestMetadataFor_MatchesInputAndCanonicalURL(t *testing.T) {
	// Backends rewrite short links to their canonical page URL; the caller
	// still holds the short form and both must resolve to the analysis.
	backend := &fakeBackend{
		probe: func(url string, flat bool) (*domain.RawInfo, error) {
			info := singleVideoInfo()
			info.WebpageURL = "https://example.com/watch?v=abc"
			return info, nil
		},
	}
	c := newTestController(t, backend, newMockHistoryRepo())

	metadata, err := c.Analyze(context.Background(), "https://ex.am/abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/watch?v=abc", metadata.SourceURL)

	assert.NotNil(t, c.MetadataFor("https://ex.am/abc"))
	assert.NotNil(t, c.MetadataFor("https://example.com/watch?v=abc"))
	assert.Nil(t, c.MetadataFor("https://example.com/watch?v=other"))
}

func TestMetadataFor_NoAnalysis(t *testing.T) {
	c := newTestController(t, &fakeBackend{}, newMockHistoryRepo())
	assert.Nil(t, c.MetadataFor("https://example.com/v"))
}

func TestAnalyze_EmptyURL(t *testing.T) {
	c := newTestController(t, &fakeBackend{}, newMockHistoryRepo())

	_, err := c.Analyze(context.Background(), "  ")

	var analysisErr *domain.AnalysisError
	require.ErrorAs(t, err, &analysisErr)
}

func TestAnalyze_BackendFailure(t *testing.T) {
	backend := &fakeBackend{
		probe: func(url string, flat bool) (*domain.RawInfo, error) {
			return nil, errors.New("unsupported site")
		},
	}
	repo := newMockHistoryRepo()
	c := newTestController(t, backend, repo)

	metadata, err := c.Analyze(context.Background(), "https://example.com/bad")

	var analysisErr *domain.AnalysisError
	require.ErrorAs(t, err, &analysisErr)
	assert.Contains(t, analysisErr.Message, "unsupported site")
	assert.Nil(t, metadata, "no partial metadata on error")
	assert.Empty(t, repo.entries, "analysis failures create no history")
	assert.Equal(t, domain.StateIdle, c.State())
}

func TestRun_Finished(t *testing.T) {
	backend := &fakeBackend{
		probe:    func(url string, flat bool) (*domain.RawInfo, error) { return singleVideoInfo(), nil },
		transfer: steadyTransfer(4),
	}
	repo := newMockHistoryRepo()
	c := newTestController(t, backend, repo)

	var events []domain.ProgressEvent
	format := domain.FormatOption{ID: "audio-mp3-320", Label: "MP3 High (320kbps)", Kind: domain.KindAudio, AudioBitrateKbps: 320}

	outcome, err := c.Run(context.Background(), "https://example.com/v/1", format, "", "Test Clip", func(e domain.ProgressEvent) {
		events = append(events, e)
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFinished, outcome.Status)
	assert.Equal(t, []string{"/tmp/out/Test Clip.mp4"}, outcome.OutputPaths)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	assert.Equal(t, domain.StatusFinished, entry.Status)
	assert.Equal(t, "MP3 High (320kbps)", entry.FormatLabel)
	assert.Equal(t, []domain.HistoryStatus{domain.StatusFinished}, repo.transitions[entry.ID],
		"exactly one status transition per run")

	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.Equal(t, 1.0, final.Fraction)
	assert.Equal(t, "All downloads finished!", final.Message)
}

func TestRun_BuildsAudioTransferOptions(t *testing.T) {
	backend := &fakeBackend{transfer: steadyTransfer(1)}
	c := newTestController(t, backend, newMockHistoryRepo())

	format := domain.FormatOption{ID: "audio-mp3-192", Label: "MP3 Medium (192kbps)", Kind: domain.KindAudio, AudioBitrateKbps: 192}
	_, err := c.Run(context.Background(), "https://example.com/v/1", format, "", "t", nil)
	require.NoError(t, err)

	opts := backend.lastOpts
	assert.Equal(t, "bestaudio/best", opts.FormatFilter)
	assert.True(t, opts.ExtractAudio)
	assert.Equal(t, "mp3", opts.AudioCodec)
	assert.Equal(t, 192, opts.AudioBitrate)
	assert.Equal(t, "test-agent", opts.UserAgent)
	assert.True(t, strings.HasSuffix(opts.OutputTemplate, "%(title)s.%(ext)s"))
	assert.NotContains(t, opts.OutputTemplate, "playlist_index")
}

func TestRun_BuildsVideoTransferOptions(t *testing.T) {
	backend := &fakeBackend{transfer: steadyTransfer(1)}
	c := newTestController(t, backend, newMockHistoryRepo())

	format := domain.FormatOption{ID: "video-720", Label: "720p (MP4)", Kind: domain.KindVideo, Height: 720}
	_, err := c.Run(context.Background(), "https://example.com/watch?v=1&list=abc", format, "", "t", nil)
	require.NoError(t, err)

	opts := backend.lastOpts
	assert.Equal(t, "bestvideo[height<=720]+bestaudio/best[height<=720]/best", opts.FormatFilter)
	assert.Equal(t, "mp4", opts.MergeFormat)
	assert.False(t, opts.ExtractAudio)
	assert.Contains(t, opts.OutputTemplate, "%(playlist_index)s - %(title)s.%(ext)s",
		"playlist URLs get a position prefix")
}

func TestRun_BuildsOriginalTransferOptions(t *testing.T) {
	backend := &fakeBackend{transfer: steadyTransfer(1)}
	c := newTestController(t, backend, newMockHistoryRepo())

	format := domain.FormatOption{ID: "original", Label: "Original Video (Best Quality)", Kind: domain.KindOriginal}
	_, err := c.Run(context.Background(), "https://example.com/file.mp4", format, "", "t", nil)
	require.NoError(t, err)

	assert.Empty(t, backend.lastOpts.FormatFilter, "original means no filtering")
	assert.False(t, backend.lastOpts.ExtractAudio)
}

func TestRun_CancelledMidTransfer(t *testing.T) {
	backend := &fakeBackend{transfer: steadyTransfer(100)}
	repo := newMockHistoryRepo()
	c := newTestController(t, backend, repo)

	format := domain.FormatOption{ID: "original", Label: "Original Video (Best Quality)", Kind: domain.KindOriginal}
	ticks := 0
	outcome, err := c.Run(context.Background(), "https://example.com/v/1", format, "", "t", func(e domain.ProgressEvent) {
		ticks++
		if ticks == 2 {
			c.Cancel()
		}
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCancelled, outcome.Status)
	assert.Equal(t, domain.StatusCancelled, repo.entries[0].Status)
	assert.Less(t, ticks, 100, "cancel takes effect at the next tick")
}

func TestRun_PausedThenResumed(t *testing.T) {
	backend := &fakeBackend{
		probe:    func(url string, flat bool) (*domain.RawInfo, error) { return singleVideoInfo(), nil },
		transfer: steadyTransfer(100),
	}
	repo := newMockHistoryRepo()
	c := newTestController(t, backend, repo)

	format := domain.FormatOption{ID: "video-1080", Label: "1080p (MP4)", Kind: domain.KindVideo, Height: 1080}
	outcome, err := c.Run(context.Background(), "https://example.com/v/1", format, "", "Test Clip", func(e domain.ProgressEvent) {
		c.Pause()
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePaused, outcome.Status)

	paused, err := repo.FindByID(outcome.EntryID)
	require.NoError(t, err)
	require.NotNil(t, paused)
	assert.Equal(t, domain.StatusPaused, paused.Status)

	// Resume runs a fresh job with a new entry; the paused one stays put
	backend.transfer = steadyTransfer(3)
	resumed, err := c.ResumeFrom(context.Background(), paused, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFinished, resumed.Status)
	assert.NotEqual(t, paused.ID, resumed.EntryID)
	assert.Len(t, repo.entries, 2)
	assert.Equal(t, domain.StatusPaused, paused.Status, "old entry keeps its terminal state")

	fresh, err := repo.FindByID(resumed.EntryID)
	require.NoError(t, err)
	assert.Equal(t, paused.URL, fresh.URL)
	assert.Equal(t, paused.FormatLabel, fresh.FormatLabel)
}

func TestRun_TransferError(t *testing.T) {
	backend := &fakeBackend{
		transfer: func(url string, opts domain.TransferOptions, onProgress domain.ProgressFunc) (*domain.TransferResult, error) {
			return nil, &domain.TransferError{Message: "HTTP Error 403"}
		},
	}
	repo := newMockHistoryRepo()
	c := newTestController(t, backend, repo)

	format := domain.FormatOption{ID: "original", Label: "Original Video (Best Quality)", Kind: domain.KindOriginal}
	outcome, err := c.Run(context.Background(), "https://example.com/v/1", format, "", "t", nil)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeError, outcome.Status)
	assert.Contains(t, outcome.Message, "HTTP Error 403")
	assert.Equal(t, domain.StatusError, repo.entries[0].Status)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		transfer: func(url string, opts domain.TransferOptions, onProgress domain.ProgressFunc) (*domain.TransferResult, error) {
			<-release
			return &domain.TransferResult{}, nil
		},
	}
	repo := newMockHistoryRepo()
	c := newTestController(t, backend, repo)

	format := domain.FormatOption{ID: "original", Label: "Original Video (Best Quality)", Kind: domain.KindOriginal}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Run(context.Background(), "https://example.com/v/1", format, "", "t", nil)
		assert.NoError(t, err)
	}()

	// wait for the first run to hold the downloading state
	require.Eventually(t, func() bool {
		return c.State() == domain.StateDownloading
	}, time.Second, time.Millisecond)

	_, err := c.Run(context.Background(), "https://example.com/v/2", format, "", "t", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another job is active")
	assert.Len(t, repo.entries, 1, "rejected run creates no history entry")

	close(release)
	<-done
}

func TestRun_InvalidFormatRejected(t *testing.T) {
	repo := newMockHistoryRepo()
	c := newTestController(t, &fakeBackend{}, repo)

	_, err := c.Run(context.Background(), "https://example.com/v/1", domain.FormatOption{ID: "bogus"}, "", "t", nil)

	require.Error(t, err)
	assert.Empty(t, repo.entries)
}

func TestCancelAndPause_NoActiveJob(t *testing.T) {
	c := newTestController(t, &fakeBackend{}, newMockHistoryRepo())

	// harmless no-ops
	c.Cancel()
	c.Pause()
	assert.Equal(t, domain.StateIdle, c.State())
}
