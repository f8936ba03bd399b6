package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"labelplane/internal/imposer"
	"labelplane/internal/store"
	"labelplane/pkg/api"
)

// StartImpose handles POST /orders/{id}/impose. It starts an imposition
// batch in the background and answers 202 immediately; progress is read
// from GET /orders/{id}/impose/progress. Only one batch per order may be
// active at a time.
func (h *Handlers) StartImpose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := pathUUID(r, "id")
	if !ok {
		h.httpError(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	var req api.ImposeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.httpError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	statuses := []store.RunStatus{store.RunStatusPlanned}
	if req.Reprocess {
		statuses = nil
	}
	runs, err := h.store.ListRunsByOrder(ctx, orderID, statuses...)
	if err != nil {
		h.httpError(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if len(runs) == 0 {
		h.httpError(w, "Order has no runs to impose", http.StatusNotFound)
		return
	}

	h.mu.Lock()
	if t, ok := h.batches[orderID]; ok && t.Active() {
		h.mu.Unlock()
		h.httpError(w, "An imposition batch is already active for this order", http.StatusConflict)
		return
	}
	tracker := imposer.NewTracker()
	// Mark the batch active before releasing the lock: a second request
	// must see it as in flight even though the orchestrator has not
	// started yet. The orchestrator resets the tracker with the runs it
	// actually selects.
	tracker.Start(len(runs))
	h.batches[orderID] = tracker
	h.mu.Unlock()

	runner := h.newRunner(tracker)
	go func() {
		// The batch outlives the HTTP request on purpose.
		if _, err := runner.ImposeOrder(context.Background(), orderID, req.Reprocess); err != nil {
			h.logger.Error("imposition batch failed", "order_id", orderID, "error", err)
			// A circuit-open batch already drove the tracker; setup
			// failures never reached it and would leave it imposing
			// forever without this.
			if !errors.Is(err, imposer.ErrCircuitOpen) {
				tracker.Fail(err.Error())
			}
		}
	}()

	h.respondJson(w, http.StatusAccepted, api.ImposeResponse{
		Started: true,
		Total:   len(runs),
	})
}

// GetProgress handles GET /orders/{id}/impose/progress.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(r, "id")
	if !ok {
		h.httpError(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	tracker := h.batches[orderID]
	h.mu.Unlock()

	// A nil tracker snapshots as idle, which is also the right answer
	// for an order that was never imposed through this process.
	h.respondJson(w, http.StatusOK, progressResponse(tracker.Snapshot()))
}

func progressResponse(p imposer.Progress) api.ProgressResponse {
	resp := api.ProgressResponse{
		Status:       string(p.Status),
		CurrentIndex: p.CurrentIndex,
		Total:        p.Total,
		CurrentRun:   p.CurrentRun,
		Succeeded:    p.Succeeded,
		Failed:       p.Failed,
		Skipped:      p.Skipped,
	}
	for _, e := range p.Errors {
		resp.Errors = append(resp.Errors, api.RunError{
			RunNumber: e.RunNumber,
			Message:   e.Message,
		})
	}
	for _, id := range p.Awaiting {
		resp.Awaiting = append(resp.Awaiting, id.String())
	}
	return resp
}
