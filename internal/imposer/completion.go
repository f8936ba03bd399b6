package imposer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"labelplane/internal/store"
)

// ErrCompletionTimeout is returned when an accepted run does not reach a
// terminal state within the configured maximum wait.
var ErrCompletionTimeout = errors.New("timed out waiting for imposition to complete")

// Outcome is the terminal resolution of an accepted dispatch.
// Result is set only when the waiter itself obtained the artifacts; when
// a completion callback already persisted them, Status alone is reported.
type Outcome struct {
	Status  store.RunStatus // approved or error
	Result  *store.RunResult
	Message string // error detail when Status is error
}

// CompletionWaiter blocks until an accepted run reaches a terminal state.
// The two transports for learning about completion, polling the renderer
// and receiving a push callback, sit behind this one interface so the
// orchestrator has a single "dispatch accepted, awaiting terminal status"
// path.
type CompletionWaiter interface {
	Await(ctx context.Context, runID uuid.UUID) (*Outcome, error)
}

// StatusPoller resolves completion by polling the renderer's status
// endpoint at a fixed interval.
type StatusPoller struct {
	renderer Renderer
	interval time.Duration
	maxWait  time.Duration
}

// NewStatusPoller creates a renderer-polling completion waiter.
func NewStatusPoller(r Renderer, interval, maxWait time.Duration) *StatusPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	return &StatusPoller{renderer: r, interval: interval, maxWait: maxWait}
}

// Await polls until the renderer reports complete or rejected, the
// maximum wait elapses, or the context is cancelled.
func (p *StatusPoller) Await(ctx context.Context, runID uuid.UUID) (*Outcome, error) {
	deadline := time.Now().Add(p.maxWait)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return nil, ErrCompletionTimeout
		}

		res, err := p.renderer.Status(ctx, runID)
		if err != nil {
			// Transient; the deadline bounds how long we keep trying.
			continue
		}

		switch res.State {
		case DispatchComplete:
			result := res.Result
			return &Outcome{Status: store.RunStatusApproved, Result: &result}, nil
		case DispatchRejected:
			return &Outcome{Status: store.RunStatusError, Message: res.Message}, nil
		default:
			// Still processing (or briefly busy); keep polling.
		}
	}
}

// RunReader is the slice of the store the callback watcher needs.
type RunReader interface {
	GetRunByID(ctx context.Context, id uuid.UUID) (*store.ProductionRun, error)
}

// CallbackWatcher resolves completion by watching the run row, which the
// renderer's push callback updates out-of-band. Because the row is the
// single source of truth, a callback that has already landed is observed
// rather than raced.
type CallbackWatcher struct {
	runs     RunReader
	interval time.Duration
	maxWait  time.Duration
}

// NewCallbackWatcher creates a completion waiter backed by the run row.
func NewCallbackWatcher(runs RunReader, interval, maxWait time.Duration) *CallbackWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	return &CallbackWatcher{runs: runs, interval: interval, maxWait: maxWait}
}

// Await watches the run until it leaves imposing or the maximum wait
// elapses. The terminal status is reported without a Result: the callback
// handler already persisted the artifacts.
func (w *CallbackWatcher) Await(ctx context.Context, runID uuid.UUID) (*Outcome, error) {
	deadline := time.Now().Add(w.maxWait)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return nil, ErrCompletionTimeout
		}

		run, err := w.runs.GetRunByID(ctx, runID)
		if err != nil {
			continue
		}

		switch run.Status {
		case store.RunStatusApproved:
			return &Outcome{Status: store.RunStatusApproved}, nil
		case store.RunStatusImposing:
			// Callback not yet delivered.
		default:
			// The callback recorded a failure; FailRun reverts to
			// planned with the message preserved on the row.
			msg := "imposition failed"
			if run.ErrorMessage != nil {
				msg = *run.ErrorMessage
			}
			return &Outcome{Status: store.RunStatusError, Message: msg}, nil
		}
	}
}
