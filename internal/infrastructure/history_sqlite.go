package infrastructure

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// SQLiteHistoryStore implements HistoryRepository using SQLite. It honors
// the same contract as the JSON store and exists for installations that
// prefer a queryable database over a flat file.
type SQLiteHistoryStore struct {
	db *gorm.DB
}

// NewSQLiteHistoryStore opens the history database at dbPath
func NewSQLiteHistoryStore(dbPath string) (*SQLiteHistoryStore, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteHistoryStore{db: db}, nil
}

// Create persists a new entry
func (s *SQLiteHistoryStore) Create(entry *domain.HistoryEntry) error {
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("%w: %v", domain.ErrHistoryPersist, err)
	}
	return nil
}

// UpdateStatus applies a terminal transition to the entry with the given id
func (s *SQLiteHistoryStore) UpdateStatus(id string, status domain.HistoryStatus) (bool, error) {
	if !domain.ValidHistoryStatus(status) {
		return false, fmt.Errorf("unknown history status: %s", status)
	}

	entry, err := s.FindByID(id)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	if !entry.CanTransitionTo(status) {
		return false, fmt.Errorf("illegal status transition: %s -> %s", entry.Status, status)
	}

	err = s.db.Model(&domain.HistoryEntry{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrHistoryPersist, err)
	}
	return true, nil
}

// FindByID returns the entry with the given id, or nil
func (s *SQLiteHistoryStore) FindByID(id string) (*domain.HistoryEntry, error) {
	var entry domain.HistoryEntry
	err := s.db.First(&entry, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// List returns all entries, most recent first. The id is derived from the
// creation instant, so ordering by it matches creation order exactly.
func (s *SQLiteHistoryStore) List() ([]*domain.HistoryEntry, error) {
	var entries []*domain.HistoryEntry
	err := s.db.Order("id DESC").Find(&entries).Error
	return entries, err
}

// Clear removes all entries
func (s *SQLiteHistoryStore) Clear() error {
	return s.db.Where("1 = 1").Delete(&domain.HistoryEntry{}).Error
}

// Close closes the database connection
func (s *SQLiteHistoryStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
