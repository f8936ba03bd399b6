package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"labelplane/internal/store"
	"labelplane/pkg/api"
)

// request builds a request with the given path value set, matching what
// the router's pattern matching would produce.
func request(method, target, name, value string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.SetPathValue(name, value)
	return req
}

func TestListRuns(t *testing.T) {
	orderID := uuid.New()
	mock := &mockStore{listRunsResp: []store.ProductionRun{
		*testRun(store.RunStatusPlanned, 1000),
		*testRun(store.RunStatusApproved, 2000),
	}}
	h, _ := newTestHandlers(mock)

	req := request(http.MethodGet, "/orders/"+orderID.String()+"/runs?status=planned", "id", orderID.String(), nil)
	rr := httptest.NewRecorder()
	h.ListRuns(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	var resp []api.RunResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Errorf("got %d runs, want 2", len(resp))
	}
	if len(mock.capturedStatuses) != 1 || mock.capturedStatuses[0] != store.RunStatusPlanned {
		t.Errorf("status filter not passed through, got %v", mock.capturedStatuses)
	}
}

func TestGetRun(t *testing.T) {
	run := testRun(store.RunStatusPlanned, 1000)

	t.Run("Found", func(t *testing.T) {
		mock := &mockStore{runResp: run}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodGet, "/runs/"+run.ID.String(), "id", run.ID.String(), nil)
		rr := httptest.NewRecorder()
		h.GetRun(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
		}
		var resp api.RunResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.ID != run.ID.String() {
			t.Errorf("got run %s, want %s", resp.ID, run.ID)
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		mock := &mockStore{runErr: fmt.Errorf("no rows")}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodGet, "/runs/"+run.ID.String(), "id", run.ID.String(), nil)
		rr := httptest.NewRecorder()
		h.GetRun(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("got status %d, want %d", rr.Code, http.StatusNotFound)
		}
	})

	t.Run("Invalid ID", func(t *testing.T) {
		mock := &mockStore{}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodGet, "/runs/abc", "id", "abc", nil)
		rr := httptest.NewRecorder()
		h.GetRun(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("got status %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})
}

func TestSetOverride(t *testing.T) {
	overrideBody := func(qty int) []byte {
		body, _ := json.Marshal(api.OverrideRequest{Quantity: qty})
		return body
	}

	t.Run("Set Recomputes Frames", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 1000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/override", "id", run.ID.String(), overrideBody(2400))
		rr := httptest.NewRecorder()
		h.SetOverride(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
		}
		// 2400 at 500 per frame rounds up to 5 frames.
		if mock.capturedOverride.qty != 2400 || mock.capturedOverride.frames != 5 {
			t.Errorf("got override qty=%d frames=%d, want 2400/5",
				mock.capturedOverride.qty, mock.capturedOverride.frames)
		}
		if !mock.lastTx.committed {
			t.Error("override must be committed")
		}
		// Achieved 2500 stays within one roll: any stored plan is cleared.
		if mock.capturedSplit.strategy != "" {
			t.Errorf("split plan should be cleared, got %q", mock.capturedSplit.strategy)
		}
	})

	t.Run("Oversized Override Gets Default Split", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 1000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/override", "id", run.ID.String(), overrideBody(12000))
		rr := httptest.NewRecorder()
		h.SetOverride(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
		}
		if mock.capturedSplit.strategy != store.SplitFillFirst {
			t.Errorf("got split strategy %q, want %q", mock.capturedSplit.strategy, store.SplitFillFirst)
		}
		want := []int{5000, 5000, 2000}
		if len(mock.capturedSplit.counts) != len(want) {
			t.Fatalf("got split counts %v, want %v", mock.capturedSplit.counts, want)
		}
		for i, c := range want {
			if mock.capturedSplit.counts[i] != c {
				t.Errorf("split counts[%d] = %d, want %d", i, mock.capturedSplit.counts[i], c)
			}
		}
	})

	t.Run("Over-Demand Override Warns", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 1000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/override", "id", run.ID.String(), overrideBody(2400))
		rr := httptest.NewRecorder()
		h.SetOverride(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
		}
		var resp api.OverrideResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Warnings) != 1 {
			t.Errorf("an override far over demand should warn, got %v", resp.Warnings)
		}
	})

	t.Run("Clear Restores Demand", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 1000)
		run.QuantityOverride = 2400
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/override", "id", run.ID.String(), overrideBody(0))
		rr := httptest.NewRecorder()
		h.SetOverride(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
		}
		// Demand is 1000: 2 frames at 500 per frame.
		if mock.capturedOverride.qty != 0 || mock.capturedOverride.frames != 2 {
			t.Errorf("got override qty=%d frames=%d, want 0/2",
				mock.capturedOverride.qty, mock.capturedOverride.frames)
		}
	})

	t.Run("Imposing Run Conflicts", func(t *testing.T) {
		run := testRun(store.RunStatusImposing, 1000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/override", "id", run.ID.String(), overrideBody(2400))
		rr := httptest.NewRecorder()
		h.SetOverride(rr, req)

		if rr.Code != http.StatusConflict {
			t.Errorf("got status %d, want %d", rr.Code, http.StatusConflict)
		}
	})

	t.Run("Negative Quantity Rejected", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 1000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/override", "id", run.ID.String(), overrideBody(-5))
		rr := httptest.NewRecorder()
		h.SetOverride(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("got status %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})
}

func TestGetSplitOptions(t *testing.T) {
	run := testRun(store.RunStatusPlanned, 12000)
	mock := &mockStore{runResp: run, dielineResp: testDieline()}
	h, _ := newTestHandlers(mock)

	req := request(http.MethodGet, "/runs/"+run.ID.String()+"/split", "id", run.ID.String(), nil)
	rr := httptest.NewRecorder()
	h.GetSplitOptions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	var resp api.SplitOptionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Achieved != 12000 {
		t.Errorf("got achieved %d, want 12000", resp.Achieved)
	}
	if len(resp.Plans) != 2 {
		t.Fatalf("got %d plans, want 2 (fill_first and even differ here)", len(resp.Plans))
	}
	if resp.Plans[0].Strategy != string(store.SplitFillFirst) {
		t.Errorf("got first plan %q, want fill_first", resp.Plans[0].Strategy)
	}
}

func TestChooseSplit(t *testing.T) {
	chooseBody := func(strategy string, counts []int) []byte {
		body, _ := json.Marshal(api.ChooseSplitRequest{Strategy: strategy, Counts: counts})
		return body
	}

	t.Run("Even Computed Server-Side", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 12000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		// Counts in the request are ignored for non-custom strategies.
		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/split", "id", run.ID.String(),
			chooseBody("even", []int{1, 2, 3}))
		rr := httptest.NewRecorder()
		h.ChooseSplit(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
		}
		want := []int{4000, 4000, 4000}
		if len(mock.capturedSplit.counts) != len(want) {
			t.Fatalf("got counts %v, want %v", mock.capturedSplit.counts, want)
		}
		for i, c := range want {
			if mock.capturedSplit.counts[i] != c {
				t.Errorf("counts[%d] = %d, want %d", i, mock.capturedSplit.counts[i], c)
			}
		}
	})

	t.Run("Custom Stored As Given", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 12000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/split", "id", run.ID.String(),
			chooseBody("custom", []int{7000, 5000}))
		rr := httptest.NewRecorder()
		h.ChooseSplit(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
		}
		if mock.capturedSplit.strategy != store.SplitCustom {
			t.Errorf("got strategy %q, want custom", mock.capturedSplit.strategy)
		}
		if len(mock.capturedSplit.counts) != 2 || mock.capturedSplit.counts[0] != 7000 {
			t.Errorf("got counts %v, want [7000 5000]", mock.capturedSplit.counts)
		}
	})

	t.Run("Custom Without Counts Rejected", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 12000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/split", "id", run.ID.String(),
			chooseBody("custom", nil))
		rr := httptest.NewRecorder()
		h.ChooseSplit(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("got status %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})

	t.Run("Unknown Strategy Rejected", func(t *testing.T) {
		run := testRun(store.RunStatusPlanned, 12000)
		mock := &mockStore{runResp: run, dielineResp: testDieline()}
		h, _ := newTestHandlers(mock)

		req := request(http.MethodPut, "/runs/"+run.ID.String()+"/split", "id", run.ID.String(),
			chooseBody("zigzag", nil))
		rr := httptest.NewRecorder()
		h.ChooseSplit(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("got status %d, want %d", rr.Code, http.StatusBadRequest)
		}
	})
}
