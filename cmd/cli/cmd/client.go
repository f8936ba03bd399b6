package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"labelplane/pkg/api"
)

// LabelClient handles API calls to the labelplane controller.
type LabelClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewLabelClient creates a new client with the given base URL and token.
func NewLabelClient(baseURL, token string) *LabelClient {
	return &LabelClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends a JSON request and decodes the response into out (unless nil).
func (c *LabelClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// ValidateLayout sends POST /layouts/validate. With accept set, a clean
// layout is also persisted as planned runs.
func (c *LabelClient) ValidateLayout(req api.ValidateLayoutRequest, accept bool) (*api.ValidateLayoutResponse, error) {
	path := "/layouts/validate"
	if accept {
		path += "?accept=true"
	}
	var result api.ValidateLayoutResponse
	if err := c.do(http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRuns sends GET /orders/{id}/runs.
func (c *LabelClient) ListRuns(orderID string) ([]api.RunResponse, error) {
	var result []api.RunResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/orders/%s/runs", orderID), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRun sends GET /runs/{id}.
func (c *LabelClient) GetRun(runID string) (*api.RunResponse, error) {
	var result api.RunResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/runs/%s", runID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetOverride sends PUT /runs/{id}/override.
func (c *LabelClient) SetOverride(runID string, quantity int) (*api.OverrideResponse, error) {
	var result api.OverrideResponse
	req := api.OverrideRequest{Quantity: quantity}
	if err := c.do(http.MethodPut, fmt.Sprintf("/runs/%s/override", runID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSplitOptions sends GET /runs/{id}/split.
func (c *LabelClient) GetSplitOptions(runID string) (*api.SplitOptionsResponse, error) {
	var result api.SplitOptionsResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/runs/%s/split", runID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ChooseSplit sends PUT /runs/{id}/split.
func (c *LabelClient) ChooseSplit(runID string, req api.ChooseSplitRequest) (*api.SplitPlan, error) {
	var result api.SplitPlan
	if err := c.do(http.MethodPut, fmt.Sprintf("/runs/%s/split", runID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartImpose sends POST /orders/{id}/impose.
func (c *LabelClient) StartImpose(orderID string, reprocess bool) (*api.ImposeResponse, error) {
	var result api.ImposeResponse
	req := api.ImposeRequest{Reprocess: reprocess}
	if err := c.do(http.MethodPost, fmt.Sprintf("/orders/%s/impose", orderID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetProgress sends GET /orders/{id}/impose/progress.
func (c *LabelClient) GetProgress(orderID string) (*api.ProgressResponse, error) {
	var result api.ProgressResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/orders/%s/impose/progress", orderID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
