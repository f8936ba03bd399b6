// Package imposer drives production runs through the external rendering
// service: payload assembly, dispatch, retry and backoff, circuit
// breaking, and asynchronous completion tracking.
package imposer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"labelplane/internal/store"
)

// DispatchState classifies the renderer's reaction to a dispatch.
type DispatchState string

const (
	// DispatchComplete: synchronous success, artifact URLs returned.
	DispatchComplete DispatchState = "complete"
	// DispatchProcessing: accepted, will complete asynchronously.
	DispatchProcessing DispatchState = "processing"
	// DispatchBusy: renderer temporarily overloaded, retry later.
	DispatchBusy DispatchState = "busy"
	// DispatchRejected: hard failure with a message.
	DispatchRejected DispatchState = "rejected"
)

// SlotPayload is one slot of the dispatch request, enriched with the
// resolved artwork reference.
type SlotPayload struct {
	Slot       int    `json:"slot"`
	ArtworkURL string `json:"artwork_url"`
	Quantity   int    `json:"quantity"`
	Rotated    bool   `json:"rotated"`
}

// DielinePayload carries the geometry fields the renderer needs.
type DielinePayload struct {
	RollWidthMM   float64 `json:"roll_width_mm"`
	LabelWidthMM  float64 `json:"label_width_mm"`
	LabelHeightMM float64 `json:"label_height_mm"`
	ColumnsAcross int     `json:"columns_across"`
	RowsAround    int     `json:"rows_around"`
	GapXMM        float64 `json:"gap_x_mm"`
	GapYMM        float64 `json:"gap_y_mm"`
	BleedMM       float64 `json:"bleed_mm"`
	CornerRadius  float64 `json:"corner_radius"`
}

// ImposeRequest is the dispatch payload sent to the renderer.
// CallbackURL and CallbackToken are set only in push-callback mode so the
// renderer can write results and notify completion out-of-band.
type ImposeRequest struct {
	RunID         uuid.UUID      `json:"run_id"`
	OrderID       uuid.UUID      `json:"order_id"`
	Dieline       DielinePayload `json:"dieline"`
	Slots         []SlotPayload  `json:"slot_assignments"`
	IncludeProof  bool           `json:"include_proof"`
	MetersToPrint float64        `json:"meters_to_print"`
	RollCounts    []int          `json:"roll_counts,omitempty"`
	CallbackURL   string         `json:"callback_url,omitempty"`
	CallbackToken string         `json:"callback_token,omitempty"`
}

// DispatchResult is the unified internal representation of a renderer
// response, whichever transport produced it.
type DispatchResult struct {
	State   DispatchState
	Result  store.RunResult // populated when State is complete
	Message string          // populated when State is rejected
}

// Renderer is the request/response contract with the external rendering
// service. Implementations own transport detail; callers only see the
// classified result.
type Renderer interface {
	// Impose dispatches a run for rendering.
	Impose(ctx context.Context, req ImposeRequest) (*DispatchResult, error)

	// Status reports the current state of a previously accepted run.
	Status(ctx context.Context, runID uuid.UUID) (*DispatchResult, error)
}

// rendererResponse is the renderer's wire format.
type rendererResponse struct {
	Status       string   `json:"status"`
	FrameCount   int      `json:"frame_count"`
	TotalMeters  float64  `json:"total_meters"`
	ArtifactURLs []string `json:"artifact_urls"`
	Error        string   `json:"error"`
}

// HTTPRenderer talks to the rendering service over HTTP.
// The client timeout doubles as the accept-timeout distinguishing
// "rejected quickly" from "accepted, processing async".
type HTTPRenderer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPRenderer creates a renderer client for the given base URL.
func NewHTTPRenderer(baseURL, apiKey string, acceptTimeout time.Duration) *HTTPRenderer {
	if acceptTimeout <= 0 {
		acceptTimeout = 30 * time.Second
	}
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &HTTPRenderer{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: acceptTimeout,
		},
	}
}

// Impose sends the dispatch payload and classifies the response.
func (r *HTTPRenderer) Impose(ctx context.Context, req ImposeRequest) (*DispatchResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal impose request: %w", err)
	}

	url := fmt.Sprintf("%s/impositions", r.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("renderer unreachable: %w", err)
	}
	defer resp.Body.Close()

	return classify(resp)
}

// Status queries the renderer for an accepted run's current state.
func (r *HTTPRenderer) Status(ctx context.Context, runID uuid.UUID) (*DispatchResult, error) {
	url := fmt.Sprintf("%s/impositions/%s", r.baseURL, runID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("renderer unreachable: %w", err)
	}
	defer resp.Body.Close()

	return classify(resp)
}

// classify maps an HTTP response onto the four dispatch states.
// 429 and 503 mean the shared renderer is overloaded; any other non-2xx
// is a hard rejection carrying whatever message the renderer gave.
func classify(resp *http.Response) (*DispatchResult, error) {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return &DispatchResult{State: DispatchBusy}, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read renderer response: %w", err)
	}

	var body rendererResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		if resp.StatusCode >= 400 {
			return &DispatchResult{
				State:   DispatchRejected,
				Message: fmt.Sprintf("renderer returned status %d", resp.StatusCode),
			}, nil
		}
		return nil, fmt.Errorf("failed to decode renderer response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := body.Error
		if msg == "" {
			msg = fmt.Sprintf("renderer returned status %d", resp.StatusCode)
		}
		return &DispatchResult{State: DispatchRejected, Message: msg}, nil
	}

	switch body.Status {
	case "complete":
		result := store.RunResult{
			FrameCount:  body.FrameCount,
			TotalMeters: body.TotalMeters,
		}
		if len(body.ArtifactURLs) > 0 {
			result.PDFURL = body.ArtifactURLs[0]
		}
		if len(body.ArtifactURLs) > 1 {
			result.ProofURL = body.ArtifactURLs[1]
		}
		return &DispatchResult{State: DispatchComplete, Result: result}, nil
	case "processing":
		return &DispatchResult{State: DispatchProcessing}, nil
	case "busy":
		return &DispatchResult{State: DispatchBusy}, nil
	default:
		msg := body.Error
		if msg == "" {
			msg = fmt.Sprintf("renderer reported unknown status %q", body.Status)
		}
		return &DispatchResult{State: DispatchRejected, Message: msg}, nil
	}
}
