package handlers

import (
	"encoding/json"
	"net/http"

	"labelplane/internal/store"
	"labelplane/pkg/api"
)

// ImpositionComplete handles POST /internal/impositions/{run_id}/complete,
// the renderer's push callback for an accepted dispatch. The transition is
// guarded: a run that is no longer imposing (re-planned, already resolved
// by the poller) is acknowledged without applying anything, so a late or
// duplicate callback can never clobber state.
func (h *Handlers) ImpositionComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runID, ok := pathUUID(r, "run_id")
	if !ok {
		h.httpError(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	var cb api.CompletionCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetRunByID(ctx, runID); err != nil {
		h.httpError(w, "Run not found", http.StatusNotFound)
		return
	}

	switch cb.Status {
	case "complete":
		result := store.RunResult{
			FrameCount:  cb.FrameCount,
			TotalMeters: cb.TotalMeters,
		}
		if len(cb.ArtifactURLs) > 0 {
			result.PDFURL = cb.ArtifactURLs[0]
		}
		if len(cb.ArtifactURLs) > 1 {
			result.ProofURL = cb.ArtifactURLs[1]
		}

		applied, err := h.store.ApproveRun(ctx, nil, runID, result)
		if err != nil {
			h.httpError(w, "Failed to approve run", http.StatusInternalServerError)
			return
		}
		h.respondJson(w, http.StatusOK, map[string]bool{"applied": applied})

	case "rejected":
		msg := cb.Error
		if msg == "" {
			msg = "renderer rejected the imposition"
		}
		applied, err := h.store.FailRun(ctx, nil, runID, msg)
		if err != nil {
			h.httpError(w, "Failed to record failure", http.StatusInternalServerError)
			return
		}
		h.respondJson(w, http.StatusOK, map[string]bool{"applied": applied})

	default:
		h.httpError(w, "Unknown callback status", http.StatusBadRequest)
	}
}
