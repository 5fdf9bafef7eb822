package infrastructure

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

func setupSQLiteStore(t *testing.T) *SQLiteHistoryStore {
	t.Helper()
	store, err := NewSQLiteHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteHistoryStore_CreateAndFind(t *testing.T) {
	store := setupSQLiteStore(t)

	entry := domain.NewHistoryEntry("Video", "https://example.com/v", "1080p (MP4)", "/tmp/out", "")
	require.NoError(t, store.Create(entry))

	found, err := store.FindByID(entry.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Video", found.Title)
	assert.Equal(t, domain.StatusDownloading, found.Status)

	missing, err := store.FindByID("0")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteHistoryStore_ListOrder(t *testing.T) {
	store := setupSQLiteStore(t)

	first := domain.NewHistoryEntry("First", "https://example.com/1", "720p (MP4)", "/tmp/out", "")
	second := domain.NewHistoryEntry("Second", "https://example.com/2", "720p (MP4)", "/tmp/out", "")
	require.NoError(t, store.Create(first))
	require.NoError(t, store.Create(second))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Second", entries[0].Title)
	assert.Equal(t, "First", entries[1].Title)
}

func TestSQLiteHistoryStore_UpdateStatus(t *testing.T) {
	store := setupSQLiteStore(t)

	entry := domain.NewHistoryEntry("Video", "https://example.com/v", "720p (MP4)", "/tmp/out", "")
	require.NoError(t, store.Create(entry))

	updated, err := store.UpdateStatus(entry.ID, domain.StatusPaused)
	require.NoError(t, err)
	assert.True(t, updated)

	found, err := store.FindByID(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, found.Status)

	_, err = store.UpdateStatus(entry.ID, domain.StatusFinished)
	assert.Error(t, err)

	updated, err = store.UpdateStatus("0", domain.StatusFinished)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestSQLiteHistoryStore_Clear(t *testing.T) {
	store := setupSQLiteStore(t)

	require.NoError(t, store.Create(domain.NewHistoryEntry("A", "https://example.com/a", "720p (MP4)", "/tmp/out", "")))
	require.NoError(t, store.Clear())

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
