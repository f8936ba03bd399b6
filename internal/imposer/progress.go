package imposer

import (
	"sync"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle of one orchestration pass.
type BatchStatus string

const (
	BatchIdle     BatchStatus = "idle"
	BatchImposing BatchStatus = "imposing"
	BatchComplete BatchStatus = "complete"
	BatchError    BatchStatus = "error"
)

// RunError records a per-run failure for the final summary, so the
// operator can re-run just the failed subset.
type RunError struct {
	RunNumber int    `json:"run_number"`
	Message   string `json:"message"`
}

// Progress is a snapshot of a batch in flight. It is a plain value:
// callers receive copies, never shared mutable state.
type Progress struct {
	Status       BatchStatus `json:"status"`
	CurrentIndex int         `json:"current_index"`
	Total        int         `json:"total"`
	CurrentRun   int         `json:"current_run"`
	Succeeded    int         `json:"succeeded"`
	Failed       int         `json:"failed"`
	Skipped      int         `json:"skipped"`
	Errors       []RunError  `json:"errors,omitempty"`
	// Awaiting lists run IDs dispatched but not yet terminally resolved.
	Awaiting []uuid.UUID `json:"awaiting,omitempty"`
}

// Tracker accumulates batch progress. The orchestrator writes, API
// handlers and CLIs read snapshots; all methods are safe for concurrent
// use and safe on a nil receiver so the orchestrator can run untracked.
type Tracker struct {
	mu       sync.Mutex
	progress Progress
	awaiting map[uuid.UUID]struct{}
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{
		progress: Progress{Status: BatchIdle},
		awaiting: make(map[uuid.UUID]struct{}),
	}
}

// Start resets the tracker for a batch of total runs.
func (t *Tracker) Start(total int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = Progress{Status: BatchImposing, Total: total}
	t.awaiting = make(map[uuid.UUID]struct{})
}

// BeginRun records that dispatch of the i-th run (0-based) has started.
func (t *Tracker) BeginRun(index, runNumber int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.CurrentIndex = index
	t.progress.CurrentRun = runNumber
}

// AwaitRun marks a run as dispatched and awaiting external completion.
func (t *Tracker) AwaitRun(runID uuid.UUID) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.awaiting[runID] = struct{}{}
}

// ResolveRun clears a run from the awaiting set.
func (t *Tracker) ResolveRun(runID uuid.UUID) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.awaiting, runID)
}

// RunSucceeded counts a successful run.
func (t *Tracker) RunSucceeded() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Succeeded++
}

// RunFailed counts a failed run and records its error.
func (t *Tracker) RunFailed(runNumber int, msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Failed++
	t.progress.Errors = append(t.progress.Errors, RunError{RunNumber: runNumber, Message: msg})
}

// RunSkipped counts a run that was never attempted.
func (t *Tracker) RunSkipped(runNumber int, reason string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Skipped++
	t.progress.Errors = append(t.progress.Errors, RunError{RunNumber: runNumber, Message: reason})
}

// Fail marks the batch failed before any run was dispatched and records
// why. Used when batch setup (run selection, reference data) fails.
func (t *Tracker) Fail(msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Status = BatchError
	t.progress.Errors = append(t.progress.Errors, RunError{Message: msg})
}

// Finish records the batch's terminal state.
func (t *Tracker) Finish(status BatchStatus) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Status = status
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Progress {
	if t == nil {
		return Progress{Status: BatchIdle}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.progress
	snap.Errors = append([]RunError(nil), t.progress.Errors...)
	for id := range t.awaiting {
		snap.Awaiting = append(snap.Awaiting, id)
	}
	return snap
}

// Active reports whether a batch is currently imposing.
func (t *Tracker) Active() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress.Status == BatchImposing
}
