// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"labelplane/internal/imposer"
	"labelplane/internal/store"
	"labelplane/pkg/api"
)

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.RunStore
	store.ItemStore
	store.DielineStore
}

// BatchRunner runs one imposition batch. Satisfied by the orchestrator;
// swapped for a fake in tests.
type BatchRunner interface {
	ImposeOrder(ctx context.Context, orderID uuid.UUID, reprocess bool) (*imposer.BatchResult, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store     StoreFactory
	policy    imposer.Policy
	newRunner func(tracker *imposer.Tracker) BatchRunner
	logger    *slog.Logger

	mu      sync.Mutex
	batches map[uuid.UUID]*imposer.Tracker
}

// New creates a new Handlers instance. newRunner builds a batch runner
// bound to the given progress tracker; one runner is created per batch.
func New(s StoreFactory, policy imposer.Policy, newRunner func(tracker *imposer.Tracker) BatchRunner, logg *slog.Logger) *Handlers {
	if logg == nil {
		logg = slog.Default()
	}
	return &Handlers{
		store:     s,
		policy:    policy,
		newRunner: newRunner,
		logger:    logg,
		batches:   make(map[uuid.UUID]*imposer.Tracker),
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// pathUUID parses the {id}-style path value named name.
func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func runResponse(run *store.ProductionRun) api.RunResponse {
	resp := api.RunResponse{
		ID:               run.ID.String(),
		OrderID:          run.OrderID.String(),
		RunNumber:        run.RunNumber,
		Status:           string(run.Status),
		FramesCount:      run.FramesCount,
		MetersToPrint:    run.MetersToPrint,
		QuantityOverride: run.QuantityOverride,
		SplitStrategy:    string(run.SplitStrategy),
		SplitCounts:      run.SplitCounts,
		PDFURL:           run.PDFURL,
		ProofURL:         run.ProofURL,
		ErrorMessage:     run.ErrorMessage,
		CreatedAt:        run.CreatedAt,
		UpdatedAt:        run.UpdatedAt,
	}
	for _, sa := range run.SlotAssignments {
		resp.SlotAssignments = append(resp.SlotAssignments, api.SlotAssignment{
			Slot:     sa.Slot,
			ItemID:   sa.ItemID.String(),
			Quantity: sa.Quantity,
			Rotated:  sa.Rotated,
		})
	}
	return resp
}
