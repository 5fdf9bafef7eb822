package domain

import (
	"strconv"
	"sync/atomic"
	"time"
)

// HistoryStatus represents the recorded state of a history entry
type HistoryStatus string

const (
	StatusDownloading HistoryStatus = "Downloading"
	StatusFinished    HistoryStatus = "Finished"
	StatusCancelled   HistoryStatus = "Cancelled"
	StatusPaused      HistoryStatus = "Paused"
	StatusError       HistoryStatus = "Error"
)

// IsTerminal reports whether the status is a terminal one
func (s HistoryStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusPaused, StatusError:
		return true
	}
	return false
}

// ValidHistoryStatus checks if a status value is known
func ValidHistoryStatus(s HistoryStatus) bool {
	return s == StatusDownloading || s.IsTerminal()
}

// HistoryEntry is one persisted job record. An entry is created with status
// Downloading when a run starts and mutated exactly once at termination;
// it never goes back to Downloading. A resumed job gets a fresh entry.
type HistoryEntry struct {
	ID          string        `json:"id" gorm:"primaryKey"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	FormatLabel string        `json:"format_label"`
	Status      HistoryStatus `json:"status" gorm:"index"`
	CreatedAt   string        `json:"created_at"`
	OutputPath  string        `json:"output_path"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
}

// lastEntryID guards against two entries landing on the same nanosecond
var lastEntryID atomic.Int64

func nextEntryID(now time.Time) string {
	nano := now.UnixNano()
	for {
		last := lastEntryID.Load()
		if nano <= last {
			nano = last + 1
		}
		if lastEntryID.CompareAndSwap(last, nano) {
			return strconv.FormatInt(nano, 10)
		}
	}
}

// NewHistoryEntry creates an entry in the Downloading state. The id is
// derived from the creation instant; entries are created sequentially by a
// single controller, so nanosecond resolution keeps them unique and sortable.
func NewHistoryEntry(title, url, formatLabel, outputPath, thumbnail string) *HistoryEntry {
	now := time.Now()
	return &HistoryEntry{
		ID:          nextEntryID(now),
		Title:       title,
		URL:         url,
		FormatLabel: formatLabel,
		Status:      StatusDownloading,
		CreatedAt:   now.Format("2006-01-02 15:04:05"),
		OutputPath:  outputPath,
		Thumbnail:   thumbnail,
	}
}

// CanTransitionTo reports whether moving to the given status is a legal
// forward transition. Only Downloading -> terminal is allowed.
func (e *HistoryEntry) CanTransitionTo(status HistoryStatus) bool {
	return e.Status == StatusDownloading && status.IsTerminal()
}
