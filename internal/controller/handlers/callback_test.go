package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"labelplane/internal/store"
	"labelplane/pkg/api"
)

func TestImpositionComplete(t *testing.T) {
	callbackBody := func(cb api.CompletionCallback) []byte {
		body, _ := json.Marshal(cb)
		return body
	}

	t.Run("Complete Approves Run", func(t *testing.T) {
		run := testRun(store.RunStatusImposing, 1000)
		mock := &mockStore{runResp: run, approveRunOK: true}
		h, _ := newTestHandlers(mock)

		body := callbackBody(api.CompletionCallback{
			Status:       "complete",
			FrameCount:   2,
			TotalMeters:  15.24,
			ArtifactURLs: []string{"s3://out/run.pdf", "s3://out/proof.pdf"},
		})
		req := request(http.MethodPost, "/internal/impositions/"+run.ID.String()+"/complete",
			"run_id", run.ID.String(), body)
		rr := httptest.NewRecorder()
		h.ImpositionComplete(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
		}
		if mock.capturedResult.PDFURL != "s3://out/run.pdf" {
			t.Errorf("got pdf url %q", mock.capturedResult.PDFURL)
		}
		if mock.capturedResult.ProofURL != "s3://out/proof.pdf" {
			t.Errorf("got proof url %q", mock.capturedResult.ProofURL)
		}
		if mock.capturedResult.FrameCount != 2 {
			t.Errorf("got frame count %d, want 2", mock.capturedResult.FrameCount)
		}
	})

	t.Run("Late Callback Not Applied", func(t *testing.T) {
		run := testRun(store.RunStatusApproved, 1000)
		mock := &mockStore{runResp: run, approveRunOK: false}
		h, _ := newTestHandlers(mock)

		body := callbackBody(api.CompletionCallback{Status: "complete", FrameCount: 2})
		req := request(http.MethodPost, "/internal/impositions/"+run.ID.String()+"/complete",
			"run_id", run.ID.String(), body)
		rr := httptest.NewRecorder()
		h.ImpositionComplete(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
		}
		var resp map[string]bool
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["applied"] {
			t.Error("a guarded transition that did not fire must report applied=false")
		}
	})

	t.Run("Rejected Fails Run", func(t *testing.T) {
		run := testRun(store.RunStatusImposing, 1000)
		mock := &mockStore{runResp: run, failRunOK: true}
		h, _ := newTestHandlers(mock)

		body := callbackBody(api.CompletionCallback{Status: "rejected", Error: "artwork missing bleed"})
		req := request(http.MethodPost, "/internal/impositions/"+run.ID.String()+"/complete",
			"run_id", run.ID.String(), body)
		rr := httptest.NewRecorder()
		h.ImpositionComplete(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
		}
		if mock.capturedFailMsg != "artwork missing bleed" {
			t.Errorf("got failure message %q", mock.capturedFailMsg)
		}
		var resp map[string]bool
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !resp["applied"] {
			t.Error("rejecting an imposing run must report applied=true")
		}
	})

	t.Run("Late Rejection Not Applied", func(t *testing.T) {
		run := testRun(store.RunStatusApproved, 1000)
		mock := &mockStore{runResp: run, failRunOK: false}
		h, _ := newTestHandlers(mock)

		body := callbackBody(api.CompletionCallback{Status: "rejected", Error: "artwork missing bleed"})
		req := request(http.MethodPost, "/internal/impositions/"+run.ID.String()+"/complete",
			"run_id", run.ID.String(), body)
		rr := httptest.NewRecorder()
		h.ImpositionComplete(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
		}
		var resp map[string]bool
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["applied"] {
			t.Error("a rejection for an approved run must report applied=false")
		}
	})

	t.Run("Unknown Status Rejected", func(t *testing.T) {
		run := testRun(store.RunStatusImposing, 1000)
		mock := &mockStore{runResp: run}
		h, _ := newTestHandlers(mock)

		body := callbackBody(api.CompletionCallback{Status: "exploded"})
		req := request(http.MethodPost, "/internal/impositions/"+run.ID.String()+"/complete",
			"run_id", run.ID.String(), body)
		rr := httptest.NewRecorder()
		h.ImpositionComplete(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("got status %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})
}
