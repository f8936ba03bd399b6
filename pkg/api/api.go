// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// SlotAssignment mirrors one slot of a run on the wire.
type SlotAssignment struct {
	Slot     int    `json:"slot"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Rotated  bool   `json:"rotated,omitempty"`
}

// ProposedRun is one run of a candidate layout.
type ProposedRun struct {
	SlotAssignments []SlotAssignment `json:"slot_assignments"`
	Reasoning       string           `json:"reasoning,omitempty"`
}

// ValidateLayoutRequest is the request body for layout validation.
// The runs shape is the contract with the external layout proposer and
// is accepted as-is regardless of source.
type ValidateLayoutRequest struct {
	OrderID   string        `json:"order_id"`
	DielineID string        `json:"dieline_id"`
	Runs      []ProposedRun `json:"runs"`
}

// ValidateLayoutResponse reports the validation outcome and, when the
// layout was accepted with ?accept=true, the created run IDs.
type ValidateLayoutResponse struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
	RunIDs     []string `json:"run_ids,omitempty"`
}

// RunResponse represents a production run in API responses.
type RunResponse struct {
	ID               string           `json:"id"`
	OrderID          string           `json:"order_id"`
	RunNumber        int              `json:"run_number"`
	Status           string           `json:"status"`
	SlotAssignments  []SlotAssignment `json:"slot_assignments"`
	FramesCount      int              `json:"frames_count"`
	MetersToPrint    float64          `json:"meters_to_print"`
	QuantityOverride int              `json:"quantity_override,omitempty"`
	SplitStrategy    string           `json:"split_strategy,omitempty"`
	SplitCounts      []int            `json:"split_counts,omitempty"`
	PDFURL           *string          `json:"pdf_url,omitempty"`
	ProofURL         *string          `json:"proof_url,omitempty"`
	ErrorMessage     *string          `json:"error_message,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// OverrideRequest sets or clears (quantity 0) a run's quantity override.
type OverrideRequest struct {
	Quantity int `json:"quantity"`
}

// OverrideResponse returns the updated run and any planner warnings.
// Warnings do not block the override; over-printing is allowed when
// asked for explicitly.
type OverrideResponse struct {
	Run      RunResponse `json:"run"`
	Warnings []string    `json:"warnings,omitempty"`
}

// SplitPlan is one roll split option.
type SplitPlan struct {
	Strategy string `json:"strategy"`
	Counts   []int  `json:"counts"`
}

// SplitOptionsResponse lists the distinct split plans for a run.
type SplitOptionsResponse struct {
	Achieved int         `json:"achieved"`
	Capacity int         `json:"capacity"`
	Plans    []SplitPlan `json:"plans"`
}

// ChooseSplitRequest selects a split strategy for a run. Counts is only
// read for the custom strategy.
type ChooseSplitRequest struct {
	Strategy string `json:"strategy"`
	Counts   []int  `json:"counts,omitempty"`
}

// ImposeRequest starts an imposition batch for an order.
type ImposeRequest struct {
	Reprocess bool `json:"reprocess,omitempty"`
}

// ImposeResponse acknowledges a started batch.
type ImposeResponse struct {
	Started bool `json:"started"`
	Total   int  `json:"total"`
}

// ProgressResponse is a snapshot of the running (or last) batch.
type ProgressResponse struct {
	Status       string     `json:"status"`
	CurrentIndex int        `json:"current_index"`
	Total        int        `json:"total"`
	CurrentRun   int        `json:"current_run"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	Skipped      int        `json:"skipped"`
	Errors       []RunError `json:"errors,omitempty"`
	Awaiting     []string   `json:"awaiting,omitempty"`
}

// RunError pairs a run number with its failure reason.
type RunError struct {
	RunNumber int    `json:"run_number"`
	Message   string `json:"message"`
}

// CompletionCallback is the body the renderer posts when an accepted
// imposition finishes out-of-band.
type CompletionCallback struct {
	Status       string   `json:"status"` // "complete" or "rejected"
	FrameCount   int      `json:"frame_count,omitempty"`
	TotalMeters  float64  `json:"total_meters,omitempty"`
	ArtifactURLs []string `json:"artifact_urls,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
