package domain

import "sync/atomic"

// JobState represents the controller's position in the job lifecycle
type JobState string

const (
	StateIdle        JobState = "idle"
	StateAnalyzing   JobState = "analyzing"
	StateReady       JobState = "ready"
	StateDownloading JobState = "downloading"
)

// OutcomeStatus is the terminal result class of a run
type OutcomeStatus string

const (
	OutcomeFinished  OutcomeStatus = "finished"
	OutcomeCancelled OutcomeStatus = "cancelled"
	OutcomePaused    OutcomeStatus = "paused"
	OutcomeError     OutcomeStatus = "error"
)

// JobOutcome is the terminal result of one run
type JobOutcome struct {
	Status      OutcomeStatus `json:"status"`
	Message     string        `json:"message,omitempty"`
	EntryID     string        `json:"entry_id"`
	OutputPaths []string      `json:"output_paths,omitempty"`
}

// HistoryStatus maps the outcome to the history status it terminates with
func (o JobOutcome) HistoryStatus() HistoryStatus {
	switch o.Status {
	case OutcomeFinished:
		return StatusFinished
	case OutcomeCancelled:
		return StatusCancelled
	case OutcomePaused:
		return StatusPaused
	default:
		return StatusError
	}
}

// Control is the per-job cancellation token. One Control belongs to exactly
// one active job, owned by the controller that started it; the flags are
// polled on every progress tick, never preemptively.
type Control struct {
	cancelled atomic.Bool
	paused    atomic.Bool
}

// NewControl creates a control token with both flags clear
func NewControl() *Control {
	return &Control{}
}

// Cancel requests a cooperative stop; takes effect at the next progress tick
func (c *Control) Cancel() {
	c.cancelled.Store(true)
}

// Pause requests a cooperative stop that is recorded as paused rather than
// cancelled. The current transfer is fully aborted; resuming means running
// the job again from scratch.
func (c *Control) Pause() {
	c.paused.Store(true)
}

// Cancelled reports whether a cancel was requested
func (c *Control) Cancelled() bool {
	return c.cancelled.Load()
}

// Paused reports whether a pause was requested
func (c *Control) Paused() bool {
	return c.paused.Load()
}

// Err returns the abort signal for the currently set flag, or nil.
// Pause wins over cancel when both are set, matching the reconciliation
// order at job termination.
func (c *Control) Err() error {
	if c.Paused() {
		return ErrPaused
	}
	if c.Cancelled() {
		return ErrCancelled
	}
	return nil
}
