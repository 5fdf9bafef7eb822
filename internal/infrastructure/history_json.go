package infrastructure

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// JSONHistoryStore implements HistoryRepository on a single JSON file.
// The file holds entries most-recent-first as pretty-printed JSON so it
// stays human-diffable; unknown fields survive a read untouched by being
// ignored, absent fields take their zero defaults. The in-memory list is
// authoritative for the session: a failed durable write is reported via
// ErrHistoryPersist but never loses state.
type JSONHistoryStore struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	entries []*domain.HistoryEntry
}

// NewJSONHistoryStore opens (or starts) the history file at path.
// A missing file means an empty history; an unreadable one is reported.
func NewJSONHistoryStore(path string, logger *zap.Logger) (*JSONHistoryStore, error) {
	store := &JSONHistoryStore{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	if err := json.Unmarshal(data, &store.entries); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}

	return store, nil
}

// Create prepends the entry and persists. The entry is tracked in memory
// even when the durable write fails.
func (s *JSONHistoryStore) Create(entry *domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]*domain.HistoryEntry{entry}, s.entries...)
	return s.persist()
}

// UpdateStatus applies a terminal transition to the entry with the given id
func (s *JSONHistoryStore) UpdateStatus(id string, status domain.HistoryStatus) (bool, error) {
	if !domain.ValidHistoryStatus(status) {
		return false, fmt.Errorf("unknown history status: %s", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.ID != id {
			continue
		}
		if !entry.CanTransitionTo(status) {
			return false, fmt.Errorf("illegal status transition: %s -> %s", entry.Status, status)
		}
		entry.Status = status
		return true, s.persist()
	}
	return false, nil
}

// FindByID returns the entry with the given id, or nil
func (s *JSONHistoryStore) FindByID(id string) (*domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, nil
}

// List returns a snapshot of all entries, most recent first
func (s *JSONHistoryStore) List() ([]*domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*domain.HistoryEntry(nil), s.entries...), nil
}

// Clear removes all entries
func (s *JSONHistoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return s.persist()
}

// Close is a no-op; the file is rewritten on every mutation
func (s *JSONHistoryStore) Close() error { return nil }

// persist rewrites the history file. Callers hold the write lock.
func (s *JSONHistoryStore) persist() error {
	data, err := json.MarshalIndent(s.entries, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrHistoryPersist, err)
	}
	if s.entries == nil {
		data = []byte("[]")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrHistoryPersist, err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		if s.logger != nil {
			s.logger.Warn("Failed to write history file", zap.String("path", s.path), zap.Error(err))
		}
		return fmt.Errorf("%w: %v", domain.ErrHistoryPersist, err)
	}
	return nil
}
