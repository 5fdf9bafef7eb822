package domain

import (
	"errors"
	"fmt"
)

// Abort signals returned from a ProgressFunc to stop an in-flight transfer.
// They flow back out of ExtractionBackend.Transfer unchanged so the caller
// can tell a user-requested stop apart from a real failure.
var (
	ErrCancelled = errors.New("cancelled by user")
	ErrPaused    = errors.New("paused by user")
)

// ErrHistoryPersist marks a durable-write failure on the history store.
// The in-memory state is still correct for the session; callers should warn
// the user rather than fail the job whose outcome was being recorded.
var ErrHistoryPersist = errors.New("history persist failed")

// AnalysisError reports a failed probe: bad URL, unsupported site, network
// failure. No partial metadata accompanies it.
type AnalysisError struct {
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %s", e.Message)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// TransferError reports a backend transfer failure for reasons other than
// user cancel/pause.
type TransferError struct {
	Message string
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed: %s", e.Message)
}

func (e *TransferError) Unwrap() error { return e.Err }
