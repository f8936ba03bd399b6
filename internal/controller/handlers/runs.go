package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"labelplane/internal/geometry"
	"labelplane/internal/rollsplit"
	"labelplane/internal/store"
	"labelplane/pkg/api"
)

// ListRuns handles GET /orders/{id}/runs. An optional ?status= query
// parameter (repeatable) filters the result.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(r, "id")
	if !ok {
		h.httpError(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	var statuses []store.RunStatus
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, store.RunStatus(s))
	}

	runs, err := h.store.ListRunsByOrder(r.Context(), orderID, statuses...)
	if err != nil {
		h.httpError(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	resp := make([]api.RunResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, runResponse(&runs[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetRun handles GET /runs/{id}.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := pathUUID(r, "id")
	if !ok {
		h.httpError(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := h.store.GetRunByID(r.Context(), runID)
	if err != nil {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}
	h.respondJson(w, http.StatusOK, runResponse(run))
}

// SetOverride handles PUT /runs/{id}/override. A positive quantity pins
// the per-slot quantity for every slot in the run; zero clears the
// override and the run falls back to its demand-derived quantity.
// Frames, meters, and the roll split plan are recomputed either way.
func (h *Handlers) SetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := pathUUID(r, "id")
	if !ok {
		h.httpError(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	var req api.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity < 0 {
		h.httpError(w, "Quantity must not be negative", http.StatusBadRequest)
		return
	}

	run, err := h.store.GetRunByID(ctx, runID)
	if err != nil {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status == store.RunStatusImposing {
		h.httpError(w, "Run is currently being imposed", http.StatusConflict)
		return
	}

	dieline, err := h.store.GetDielineByID(ctx, run.DielineID)
	if err != nil {
		h.httpError(w, "Dieline not found", http.StatusInternalServerError)
		return
	}

	perFrame := geometry.LabelsPerSlotPerFrame(*dieline)
	effective := req.Quantity
	if effective == 0 {
		effective = run.MaxSlotQuantity()
	}
	frames := geometry.FramesFor(effective, perFrame)
	meters := geometry.MetersToPrint(*dieline, frames)
	achieved := geometry.AchievedPerSlot(frames, perFrame)

	var warnings []string
	if excess := achieved - run.MaxSlotQuantity(); req.Quantity > 0 && excess > h.policy.OverrunTolerance {
		warnings = append(warnings, fmt.Sprintf(
			"override prints %d labels per slot over demand (tolerance %d)",
			excess, h.policy.OverrunTolerance))
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.SetQuantityOverride(ctx, tx, runID, req.Quantity, frames, meters); err != nil {
		h.httpError(w, "Failed to set override", http.StatusInternalServerError)
		return
	}

	// The stored split plan was built for the old quantity. Replace it
	// with the default plan when one is still needed, clear it otherwise.
	plan := rollsplit.Plan{}
	if achieved > h.policy.RollCapacity {
		plan = rollsplit.FillFirst(achieved, h.policy.RollCapacity, h.policy.SplitMergeTolerance)
	}
	if err := h.store.SetSplitPlan(ctx, tx, runID, plan.Strategy, plan.Counts); err != nil {
		h.httpError(w, "Failed to update split plan", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit override", http.StatusInternalServerError)
		return
	}

	updated, err := h.store.GetRunByID(ctx, runID)
	if err != nil {
		h.httpError(w, "Failed to reload run", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.OverrideResponse{
		Run:      runResponse(updated),
		Warnings: warnings,
	})
}

// GetSplitOptions handles GET /runs/{id}/split and lists the distinct
// split plans for the run's achieved quantity.
func (h *Handlers) GetSplitOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := pathUUID(r, "id")
	if !ok {
		h.httpError(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := h.store.GetRunByID(ctx, runID)
	if err != nil {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}
	dieline, err := h.store.GetDielineByID(ctx, run.DielineID)
	if err != nil {
		h.httpError(w, "Dieline not found", http.StatusInternalServerError)
		return
	}

	achieved := achievedQuantity(run, *dieline)
	resp := api.SplitOptionsResponse{
		Achieved: achieved,
		Capacity: h.policy.RollCapacity,
	}
	for _, p := range rollsplit.Options(achieved, h.policy.RollCapacity, h.policy.SplitMergeTolerance) {
		resp.Plans = append(resp.Plans, api.SplitPlan{
			Strategy: string(p.Strategy),
			Counts:   p.Counts,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ChooseSplit handles PUT /runs/{id}/split. The fill_first and even
// plans are always computed server-side; custom counts are stored as
// given so operators can encode constraints the planner cannot see.
func (h *Handlers) ChooseSplit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := pathUUID(r, "id")
	if !ok {
		h.httpError(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	var req api.ChooseSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	run, err := h.store.GetRunByID(ctx, runID)
	if err != nil {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status == store.RunStatusImposing {
		h.httpError(w, "Run is currently being imposed", http.StatusConflict)
		return
	}
	dieline, err := h.store.GetDielineByID(ctx, run.DielineID)
	if err != nil {
		h.httpError(w, "Dieline not found", http.StatusInternalServerError)
		return
	}

	achieved := achievedQuantity(run, *dieline)

	var plan rollsplit.Plan
	switch store.SplitStrategy(req.Strategy) {
	case store.SplitFillFirst:
		plan = rollsplit.FillFirst(achieved, h.policy.RollCapacity, h.policy.SplitMergeTolerance)
	case store.SplitEven:
		plan = rollsplit.Even(achieved, h.policy.RollCapacity, h.policy.SplitMergeTolerance)
	case store.SplitCustom:
		if len(req.Counts) == 0 {
			h.httpError(w, "Custom split requires counts", http.StatusBadRequest)
			return
		}
		plan = rollsplit.Custom(req.Counts)
	default:
		h.httpError(w, "Unknown split strategy", http.StatusBadRequest)
		return
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.store.SetSplitPlan(ctx, tx, runID, plan.Strategy, plan.Counts); err != nil {
		h.httpError(w, "Failed to store split plan", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(); err != nil {
		h.httpError(w, "Failed to commit split plan", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.SplitPlan{
		Strategy: string(plan.Strategy),
		Counts:   plan.Counts,
	})
}

// achievedQuantity is the per-slot quantity the press will produce for
// the run as currently configured.
func achievedQuantity(run *store.ProductionRun, dieline store.Dieline) int {
	perFrame := geometry.LabelsPerSlotPerFrame(dieline)
	frames := geometry.FramesFor(run.EffectiveQuantity(), perFrame)
	return geometry.AchievedPerSlot(frames, perFrame)
}
