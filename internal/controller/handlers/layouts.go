package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"labelplane/internal/layout"
	"labelplane/internal/store"
	"labelplane/pkg/api"
)

// ValidateLayout handles POST /layouts/validate.
// It validates a proposed slot layout against the order's items and the
// dieline. With ?accept=true a clean layout is persisted as planned
// production runs in one transaction; a layout with violations is only
// reported, never auto-repaired.
func (h *Handlers) ValidateLayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ValidateLayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		h.httpError(w, "Invalid order_id", http.StatusBadRequest)
		return
	}
	dielineID, err := uuid.Parse(req.DielineID)
	if err != nil {
		h.httpError(w, "Invalid dieline_id", http.StatusBadRequest)
		return
	}

	dieline, err := h.store.GetDielineByID(ctx, dielineID)
	if err != nil {
		h.httpError(w, "Dieline not found", http.StatusNotFound)
		return
	}

	items, err := h.store.ListItemsByOrder(ctx, orderID)
	if err != nil {
		h.httpError(w, "Failed to load order items", http.StatusInternalServerError)
		return
	}

	proposal, err := toProposal(req.Runs)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	report := layout.Validate(proposal, items, *dieline, h.policy.OverrunTolerance)

	resp := api.ValidateLayoutResponse{
		Valid:      report.Valid,
		Violations: report.Violations,
	}

	if report.Valid && r.URL.Query().Get("accept") == "true" {
		runs := layout.ToRuns(proposal, orderID, *dieline)

		tx, err := h.store.BeginTx(ctx)
		if err != nil {
			h.httpError(w, "Internal database error", http.StatusInternalServerError)
			return
		}
		defer tx.Rollback()

		for i := range runs {
			runs[i].CreatedAt = time.Now().UTC()
			if err := h.store.CreateRun(ctx, tx, &runs[i]); err != nil {
				h.httpError(w, "Failed to create runs", http.StatusInternalServerError)
				return
			}
			resp.RunIDs = append(resp.RunIDs, runs[i].ID.String())
		}

		if err := tx.Commit(); err != nil {
			h.httpError(w, "Failed to commit runs", http.StatusInternalServerError)
			return
		}

		h.respondJson(w, http.StatusCreated, resp)
		return
	}

	h.respondJson(w, http.StatusOK, resp)
}

// toProposal converts the wire layout to the validator's input shape.
func toProposal(runs []api.ProposedRun) (*layout.Proposal, error) {
	p := &layout.Proposal{}
	for _, pr := range runs {
		run := layout.ProposedRun{Reasoning: pr.Reasoning}
		for _, sa := range pr.SlotAssignments {
			itemID, err := uuid.Parse(sa.ItemID)
			if err != nil {
				return nil, errors.New("slot assignment has an invalid item_id")
			}
			run.SlotAssignments = append(run.SlotAssignments, store.SlotAssignment{
				Slot:     sa.Slot,
				ItemID:   itemID,
				Quantity: sa.Quantity,
				Rotated:  sa.Rotated,
			})
		}
		p.Runs = append(p.Runs, run)
	}
	return p, nil
}
