package imposer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"labelplane/internal/geometry"
	"labelplane/internal/rollsplit"
	"labelplane/internal/store"
)

// ErrCircuitOpen aborts a batch after too many consecutive whole-run
// failures, on the assumption the renderer itself is down.
var ErrCircuitOpen = errors.New("circuit breaker open: renderer appears unavailable")

// ErrBatchActive is returned when a batch for the order is already running.
var ErrBatchActive = errors.New("an imposition batch is already active")

// Policy holds the retry, tolerance, and pacing constants. They are
// configuration, not law; defaults match production machine policy.
type Policy struct {
	OverrunTolerance            int
	RollCapacity                int
	SplitMergeTolerance         int
	BusyMaxAttempts             int
	BusyRetryDelay              time.Duration
	CompletionPollInterval      time.Duration
	CompletionMaxWait           time.Duration
	ConsecutiveFailureThreshold int
	InterRunDelay               time.Duration
	IncludeProof                bool

	// CallbackBaseURL, when set, asks the renderer to push completion to
	// this controller instead of being polled. CallbackToken is the
	// shared secret the renderer must present.
	CallbackBaseURL string
	CallbackToken   string
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		OverrunTolerance:            250,
		RollCapacity:                5000,
		SplitMergeTolerance:         50,
		BusyMaxAttempts:             5,
		BusyRetryDelay:              15 * time.Second,
		CompletionPollInterval:      5 * time.Second,
		CompletionMaxWait:           10 * time.Minute,
		ConsecutiveFailureThreshold: 2,
		InterRunDelay:               3 * time.Second,
		IncludeProof:                true,
	}
}

// Store combines the persistence slices the orchestrator needs.
type Store interface {
	store.RunStore
	store.ItemStore
	store.DielineStore
}

// RunOutcome is the per-run entry of a batch report.
type RunOutcome struct {
	RunID     uuid.UUID `json:"run_id"`
	RunNumber int       `json:"run_number"`
	Approved  bool      `json:"approved"`
	Skipped   bool      `json:"skipped,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// BatchResult is the final summary of one orchestration pass.
type BatchResult struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Runs      []RunOutcome `json:"runs"`
}

// Orchestrator dispatches an order's planned runs to the renderer, one at
// a time. Sequential dispatch is deliberate: the renderer is a shared,
// memory-constrained single service and concurrent dispatch destabilizes
// it.
type Orchestrator struct {
	store    Store
	renderer Renderer
	waiter   CompletionWaiter
	policy   Policy
	logger   *slog.Logger
	tracker  *Tracker
}

// New creates an orchestrator. waiter may be nil, in which case a
// renderer status poller built from the policy is used. tracker may be
// nil for untracked batches.
func New(s Store, r Renderer, waiter CompletionWaiter, policy Policy, logger *slog.Logger, tracker *Tracker) *Orchestrator {
	if policy.BusyMaxAttempts <= 0 {
		policy.BusyMaxAttempts = DefaultPolicy().BusyMaxAttempts
	}
	if policy.ConsecutiveFailureThreshold <= 0 {
		policy.ConsecutiveFailureThreshold = DefaultPolicy().ConsecutiveFailureThreshold
	}
	if waiter == nil {
		waiter = NewStatusPoller(r, policy.CompletionPollInterval, policy.CompletionMaxWait)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    s,
		renderer: r,
		waiter:   waiter,
		policy:   policy,
		logger:   logger,
		tracker:  tracker,
	}
}

// ImposeOrder runs one batch over the order's runs in run_number order.
// With reprocess set, every run is first reset to planned with its
// imposed output cleared; otherwise only planned runs are selected.
//
// Per-run failures are recovered locally (the run reverts to planned);
// only a tripped circuit breaker propagates as a batch error, and even
// then runs already approved stay approved. Partial success is expected
// and persisted, never rolled back.
func (o *Orchestrator) ImposeOrder(ctx context.Context, orderID uuid.UUID, reprocess bool) (*BatchResult, error) {
	runs, err := o.selectRuns(ctx, orderID, reprocess)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	if len(runs) == 0 {
		o.tracker.Start(0)
		o.tracker.Finish(BatchComplete)
		return result, nil
	}

	// Resolve shared reference data up front; missing geometry or items
	// is a configuration error and fails fast before any dispatch.
	dielines, err := o.loadDielines(ctx, runs)
	if err != nil {
		return nil, err
	}
	artwork, err := o.loadArtwork(ctx, orderID)
	if err != nil {
		return nil, err
	}

	o.tracker.Start(len(runs))

	tracer := otel.Tracer("imposer")
	consecutiveFailures := 0
	circuitOpen := false

	for i, run := range runs {
		if circuitOpen || ctx.Err() != nil {
			reason := "batch aborted"
			if circuitOpen {
				reason = ErrCircuitOpen.Error()
			}
			result.Skipped++
			result.Runs = append(result.Runs, RunOutcome{
				RunID: run.ID, RunNumber: run.RunNumber, Skipped: true, Error: reason,
			})
			o.tracker.RunSkipped(run.RunNumber, reason)
			continue
		}

		o.tracker.BeginRun(i, run.RunNumber)

		spanCtx, span := tracer.Start(ctx, "impose_run",
			trace.WithAttributes(
				attribute.String("run.id", run.ID.String()),
				attribute.Int("run.number", run.RunNumber),
				attribute.String("order.id", orderID.String()),
			),
		)

		outcome := o.imposeRun(spanCtx, &run, dielines[run.DielineID], artwork)
		span.End()

		result.Runs = append(result.Runs, outcome)
		switch {
		case outcome.Approved:
			result.Succeeded++
			consecutiveFailures = 0
			o.tracker.RunSucceeded()
		case outcome.Skipped:
			result.Skipped++
			o.tracker.RunSkipped(run.RunNumber, outcome.Error)
		default:
			result.Failed++
			consecutiveFailures++
			o.tracker.RunFailed(run.RunNumber, outcome.Error)
			if consecutiveFailures >= o.policy.ConsecutiveFailureThreshold {
				o.logger.Error("circuit breaker tripped, aborting batch",
					"order_id", orderID, "consecutive_failures", consecutiveFailures)
				circuitOpen = true
			}
		}

		// Give the shared renderer recovery time before the next run,
		// whether this one succeeded or failed.
		if i < len(runs)-1 && !circuitOpen {
			sleepCtx(ctx, o.policy.InterRunDelay)
		}
	}

	if circuitOpen {
		o.tracker.Finish(BatchError)
		return result, ErrCircuitOpen
	}

	o.tracker.Finish(BatchComplete)
	return result, nil
}

// imposeRun drives a single run to a terminal outcome.
func (o *Orchestrator) imposeRun(ctx context.Context, run *store.ProductionRun, dieline store.Dieline, artwork map[uuid.UUID]string) RunOutcome {
	outcome := RunOutcome{RunID: run.ID, RunNumber: run.RunNumber}

	claimed, err := o.store.MarkImposing(ctx, nil, run.ID)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to claim run: %v", err)
		return outcome
	}
	if !claimed {
		// Another invocation already owns this run.
		outcome.Skipped = true
		outcome.Error = "already being processed"
		return outcome
	}

	req, err := o.buildRequest(ctx, run, dieline, artwork)
	if err != nil {
		o.failRun(run, err.Error())
		outcome.Error = err.Error()
		return outcome
	}

	o.logger.Info("dispatching run", "run_number", run.RunNumber, "run_id", run.ID)

	res, err := o.dispatchWithBusyRetry(ctx, *req)
	if err != nil {
		o.failRun(run, err.Error())
		outcome.Error = err.Error()
		return outcome
	}

	switch res.State {
	case DispatchComplete:
		o.approveRun(run, res.Result)
		outcome.Approved = true

	case DispatchProcessing:
		o.tracker.AwaitRun(run.ID)
		defer o.tracker.ResolveRun(run.ID)

		final, err := o.waiter.Await(ctx, run.ID)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, ErrCompletionTimeout) {
				msg = fmt.Sprintf("run %d: %v", run.RunNumber, err)
			}
			o.failRun(run, msg)
			outcome.Error = msg
			return outcome
		}
		if final.Status == store.RunStatusApproved {
			if final.Result != nil {
				o.approveRun(run, *final.Result)
			}
			outcome.Approved = true
		} else {
			o.failRun(run, final.Message)
			outcome.Error = final.Message
		}

	case DispatchRejected:
		msg := fmt.Sprintf("renderer rejected run: %s", res.Message)
		o.failRun(run, msg)
		outcome.Error = msg
	}

	return outcome
}

// dispatchWithBusyRetry retries a busy renderer with a fixed delay up to
// the attempt cap; exhausting the cap converts busy into a run failure.
func (o *Orchestrator) dispatchWithBusyRetry(ctx context.Context, req ImposeRequest) (*DispatchResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := o.renderer.Impose(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("dispatch failed: %w", err)
		}

		if res.State != DispatchBusy {
			return res, nil
		}

		if attempt >= o.policy.BusyMaxAttempts {
			return nil, fmt.Errorf("renderer busy after %d attempts", attempt)
		}

		o.logger.Warn("renderer busy, retrying",
			"attempt", attempt, "max_attempts", o.policy.BusyMaxAttempts)
		if err := sleepCtx(ctx, o.policy.BusyRetryDelay); err != nil {
			return nil, err
		}
	}
}

// buildRequest assembles the dispatch payload: slots enriched with the
// resolved artwork reference, dieline geometry, and the roll split plan
// when the achieved output exceeds the roll capacity.
func (o *Orchestrator) buildRequest(ctx context.Context, run *store.ProductionRun, dieline store.Dieline, artwork map[uuid.UUID]string) (*ImposeRequest, error) {
	slots := make([]SlotPayload, 0, len(run.SlotAssignments))
	for _, sa := range run.SlotAssignments {
		url, ok := artwork[sa.ItemID]
		if !ok || url == "" {
			return nil, fmt.Errorf("slot %d: no artwork for item %s", sa.Slot, sa.ItemID)
		}
		slots = append(slots, SlotPayload{
			Slot:       sa.Slot,
			ArtworkURL: url,
			Quantity:   sa.Quantity,
			Rotated:    sa.Rotated,
		})
	}

	req := &ImposeRequest{
		RunID:         run.ID,
		OrderID:       run.OrderID,
		Dieline:       dielinePayload(dieline),
		Slots:         slots,
		IncludeProof:  o.policy.IncludeProof,
		MetersToPrint: run.MetersToPrint,
		RollCounts:    o.rollCounts(ctx, run, dieline),
	}
	if o.policy.CallbackBaseURL != "" {
		req.CallbackURL = fmt.Sprintf("%s/internal/impositions/%s/complete", o.policy.CallbackBaseURL, run.ID)
		req.CallbackToken = o.policy.CallbackToken
	}
	return req, nil
}

// rollCounts returns the run's roll split instruction. A previously
// chosen plan wins; otherwise, when the achieved output exceeds the roll
// capacity, a fill_first plan is computed and persisted as the default.
func (o *Orchestrator) rollCounts(ctx context.Context, run *store.ProductionRun, dieline store.Dieline) []int {
	if len(run.SplitCounts) > 0 {
		return run.SplitCounts
	}

	perFrame := geometry.LabelsPerSlotPerFrame(dieline)
	achieved := geometry.AchievedPerSlot(run.FramesCount, perFrame)
	if o.policy.RollCapacity <= 0 || achieved <= o.policy.RollCapacity {
		return nil
	}

	plan := rollsplit.FillFirst(achieved, o.policy.RollCapacity, o.policy.SplitMergeTolerance)
	if err := o.store.SetSplitPlan(ctx, nil, run.ID, plan.Strategy, plan.Counts); err != nil {
		o.logger.Warn("failed to persist default split plan", "run_id", run.ID, "error", err)
	}
	return plan.Counts
}

func (o *Orchestrator) selectRuns(ctx context.Context, orderID uuid.UUID, reprocess bool) ([]store.ProductionRun, error) {
	if !reprocess {
		return o.store.ListRunsByOrder(ctx, orderID, store.RunStatusPlanned)
	}

	runs, err := o.store.ListRunsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		if err := o.store.ResetRun(ctx, nil, runs[i].ID); err != nil {
			return nil, fmt.Errorf("failed to reset run %d: %w", runs[i].RunNumber, err)
		}
		runs[i].Status = store.RunStatusPlanned
	}
	return runs, nil
}

func (o *Orchestrator) loadDielines(ctx context.Context, runs []store.ProductionRun) (map[uuid.UUID]store.Dieline, error) {
	out := make(map[uuid.UUID]store.Dieline)
	for _, run := range runs {
		if _, ok := out[run.DielineID]; ok {
			continue
		}
		d, err := o.store.GetDielineByID(ctx, run.DielineID)
		if err != nil {
			return nil, fmt.Errorf("missing dieline %s for run %d: %w", run.DielineID, run.RunNumber, err)
		}
		out[run.DielineID] = *d
	}
	return out, nil
}

func (o *Orchestrator) loadArtwork(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]string, error) {
	items, err := o.store.ListItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	out := make(map[uuid.UUID]string, len(items))
	for _, it := range items {
		out[it.ID] = it.ArtworkURL
	}
	return out, nil
}

// approveRun persists success; the status guard in ApproveRun makes this
// a no-op if a completion callback got there first.
func (o *Orchestrator) approveRun(run *store.ProductionRun, result store.RunResult) {
	applied, err := o.store.ApproveRun(context.Background(), nil, run.ID, result)
	if err != nil {
		o.logger.Error("failed to approve run", "run_id", run.ID, "error", err)
		return
	}
	if !applied {
		o.logger.Info("run already approved out-of-band", "run_id", run.ID)
	}
}

// failRun persists the error and reverts the run to planned. Uses a
// background context: the failure must be recorded even on abort.
func (o *Orchestrator) failRun(run *store.ProductionRun, msg string) {
	o.logger.Warn("run failed", "run_number", run.RunNumber, "error", msg)
	applied, err := o.store.FailRun(context.Background(), nil, run.ID, msg)
	if err != nil {
		o.logger.Error("failed to record run failure", "run_id", run.ID, "error", err)
		return
	}
	if !applied {
		// A completion callback resolved the run first; its state wins.
		o.logger.Info("run already resolved out-of-band", "run_id", run.ID)
	}
}

func dielinePayload(d store.Dieline) DielinePayload {
	return DielinePayload{
		RollWidthMM:   d.RollWidthMM,
		LabelWidthMM:  d.LabelWidthMM,
		LabelHeightMM: d.LabelHeightMM,
		ColumnsAcross: d.ColumnsAcross,
		RowsAround:    d.RowsAround,
		GapXMM:        d.GapXMM,
		GapYMM:        d.GapYMM,
		BleedMM:       d.BleedMM,
		CornerRadius:  d.CornerRadius,
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
