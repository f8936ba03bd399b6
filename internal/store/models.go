// Package store contains the database layer for labelplane.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Dieline describes the printing template geometry for a job.
// It is reference data: this subsystem reads it but never writes it.
type Dieline struct {
	ID            uuid.UUID
	Name          string
	RollWidthMM   float64
	LabelWidthMM  float64
	LabelHeightMM float64
	ColumnsAcross int // slots across the web
	RowsAround    int // rows around the print cylinder
	GapXMM        float64
	GapYMM        float64
	BleedMM       float64
	CornerRadius  float64
	CreatedAt     time.Time
}

// LabelItem is one artwork to be produced for an order.
// QuantityOrdered is the authoritative demand; never mutated here.
type LabelItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	Name            string
	QuantityOrdered int
	WidthMM         *float64
	HeightMM        *float64
	ArtworkURL      string
	CreatedAt       time.Time
}

// SlotAssignment binds one slot of a run to an item.
// Quantity is the demanded output for the slot, before frame rounding.
type SlotAssignment struct {
	Slot     int       `json:"slot"`
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
	Rotated  bool      `json:"rotated,omitempty"`
}

// RunStatus represents the lifecycle state of a production run.
type RunStatus string

const (
	RunStatusPlanned  RunStatus = "planned"
	RunStatusImposing RunStatus = "imposing"
	RunStatusApproved RunStatus = "approved"
	RunStatusError    RunStatus = "error"
)

// SplitStrategy names how a run's achieved output is divided across rolls.
type SplitStrategy string

const (
	SplitFillFirst SplitStrategy = "fill_first"
	SplitEven      SplitStrategy = "even"
	SplitCustom    SplitStrategy = "custom"
)

// ProductionRun is the unit of dispatch: one press pass with a fixed
// slot->item assignment, printed for a computed number of frames.
// Once dispatch has begun a run is never deleted; a failed run reverts
// to planned for re-dispatch, preserving identity.
type ProductionRun struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	DielineID       uuid.UUID
	RunNumber       int // ordering key, stable once assigned
	Status          RunStatus
	SlotAssignments []SlotAssignment
	FramesCount     int
	MetersToPrint   float64

	// QuantityOverride, when > 0, supersedes the demand-derived
	// per-slot quantity for every slot in the run. 0 means no override.
	QuantityOverride int

	SplitStrategy SplitStrategy // empty until a plan is chosen
	SplitCounts   []int

	PDFURL         *string
	ProofURL       *string
	RendererFrames *int
	RendererMeters *float64
	ErrorMessage   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaxSlotQuantity returns the largest demanded slot quantity in the run.
func (r *ProductionRun) MaxSlotQuantity() int {
	max := 0
	for _, sa := range r.SlotAssignments {
		if sa.Quantity > max {
			max = sa.Quantity
		}
	}
	return max
}

// EffectiveQuantity is the per-slot quantity the press will actually be
// driven by: the manual override when set, otherwise the natural demand.
func (r *ProductionRun) EffectiveQuantity() int {
	if r.QuantityOverride > 0 {
		return r.QuantityOverride
	}
	return r.MaxSlotQuantity()
}

// RunResult captures the renderer-reported outcome persisted on approval.
type RunResult struct {
	PDFURL      string
	ProofURL    string
	FrameCount  int
	TotalMeters float64
}
