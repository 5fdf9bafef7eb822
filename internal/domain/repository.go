package domain

// HistoryRepository defines the interface for job history persistence.
// Implementations own the durable copy and are the single writer to it;
// List may be called concurrently and must return a consistent snapshot.
type HistoryRepository interface {
	// Create persists a new entry and prepends it so List stays
	// most-recent-first. A durable-write failure is reported wrapped in
	// ErrHistoryPersist but the entry is still tracked in memory where
	// the implementation keeps one.
	Create(entry *HistoryEntry) error

	// UpdateStatus applies a terminal status transition. Returns false if
	// the id is unknown; rejects backward or repeated transitions.
	UpdateStatus(id string, status HistoryStatus) (bool, error)

	// FindByID returns the entry with the given id, or nil
	FindByID(id string) (*HistoryEntry, error)

	// List returns all entries, most recent first
	List() ([]*HistoryEntry, error)

	// Clear removes all entries
	Clear() error

	// Close releases any underlying resources
	Close() error
}
