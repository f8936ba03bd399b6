// Package layout validates candidate slot layouts against an order's
// demand and the dieline's physical constraints.
//
// A layout may come from any proposer, including a generative one with no
// structural guarantees, so validation never trusts its input: every
// problem is collected and reported, none is fatal, and a flawed layout is
// surfaced to the operator rather than silently repaired.
package layout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"labelplane/internal/geometry"
	"labelplane/internal/store"
)

// DefaultOverrunTolerance is the policy default for how many excess labels
// frame rounding may produce per slot before it is a violation.
const DefaultOverrunTolerance = 250

// ProposedRun is one run of a candidate layout as produced by a proposer.
type ProposedRun struct {
	SlotAssignments []store.SlotAssignment `json:"slot_assignments"`
	Reasoning       string                 `json:"reasoning,omitempty"`
}

// Proposal is the wire contract with the external layout proposer.
// Accepted as-is regardless of source.
type Proposal struct {
	Runs []ProposedRun `json:"runs"`
}

// Proposer produces a candidate layout for a set of items on a dieline.
// Implementations are black boxes; their output must always be validated.
type Proposer interface {
	Propose(ctx context.Context, items []store.LabelItem, dieline store.Dieline) (*Proposal, error)
}

// Report is the outcome of validating a proposal. Violations holds every
// problem found; a proposal with none is producible as-is.
type Report struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

// Validate checks a proposal for physical producibility and quantity
// conservation. All checks run independently; nothing short-circuits.
func Validate(p *Proposal, items []store.LabelItem, dieline store.Dieline, tolerance int) Report {
	if tolerance <= 0 {
		tolerance = DefaultOverrunTolerance
	}

	var violations []string

	ordered := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		ordered[it.ID] = it.QuantityOrdered
	}

	assigned := make(map[uuid.UUID]int)  // total quantity per item
	occupancy := make(map[uuid.UUID]int) // slots per item, across all runs

	perFrame := geometry.LabelsPerSlotPerFrame(dieline)

	for i, run := range p.Runs {
		runNo := i + 1

		// Slot count: a run must fill the web exactly.
		if len(run.SlotAssignments) != dieline.ColumnsAcross {
			violations = append(violations, fmt.Sprintf(
				"run %d has %d slot assignments, dieline has %d columns",
				runNo, len(run.SlotAssignments), dieline.ColumnsAcross))
		}

		maxQty := 0
		for _, sa := range run.SlotAssignments {
			if _, ok := ordered[sa.ItemID]; !ok {
				violations = append(violations, fmt.Sprintf(
					"run %d slot %d references unknown item %s", runNo, sa.Slot, sa.ItemID))
				continue
			}
			assigned[sa.ItemID] += sa.Quantity
			occupancy[sa.ItemID]++
			if sa.Quantity > maxQty {
				maxQty = sa.Quantity
			}
		}

		// Overrun bound: the frame rounding for this run must not
		// overshoot any slot's demand by more than the tolerance.
		frames := geometry.FramesFor(maxQty, perFrame)
		achieved := geometry.AchievedPerSlot(frames, perFrame)
		for _, sa := range run.SlotAssignments {
			if overrun := achieved - sa.Quantity; overrun > tolerance {
				violations = append(violations, fmt.Sprintf(
					"run %d slot %d overrun %d exceeds tolerance %d (achieved %d for demand %d)",
					runNo, sa.Slot, overrun, tolerance, achieved, sa.Quantity))
			}
		}
	}

	// Conservation: every item's assigned total must stay within the
	// tolerance band around its ordered quantity.
	for _, it := range items {
		got := assigned[it.ID]
		slots := occupancy[it.ID]
		if got < it.QuantityOrdered-tolerance {
			violations = append(violations, fmt.Sprintf(
				"item %s under-assigned: %d of %d ordered (tolerance %d)",
				it.Name, got, it.QuantityOrdered, tolerance))
		}
		if bound := it.QuantityOrdered + tolerance*maxInt(slots, 1); got > bound {
			violations = append(violations, fmt.Sprintf(
				"item %s over-assigned: %d exceeds %d ordered by more than tolerance x %d slots",
				it.Name, got, it.QuantityOrdered, maxInt(slots, 1)))
		}
	}

	return Report{Valid: len(violations) == 0, Violations: violations}
}

// ToRuns converts an accepted proposal into ProductionRun rows with frame
// counts and meters computed. Call only after Validate reports no
// violations; the conversion itself does not re-check.
func ToRuns(p *Proposal, orderID uuid.UUID, dieline store.Dieline) []store.ProductionRun {
	perFrame := geometry.LabelsPerSlotPerFrame(dieline)

	runs := make([]store.ProductionRun, 0, len(p.Runs))
	for i, pr := range p.Runs {
		maxQty := 0
		for _, sa := range pr.SlotAssignments {
			if sa.Quantity > maxQty {
				maxQty = sa.Quantity
			}
		}
		frames := geometry.FramesFor(maxQty, perFrame)

		runs = append(runs, store.ProductionRun{
			ID:              uuid.New(),
			OrderID:         orderID,
			DielineID:       dieline.ID,
			RunNumber:       i + 1,
			Status:          store.RunStatusPlanned,
			SlotAssignments: pr.SlotAssignments,
			FramesCount:     frames,
			MetersToPrint:   geometry.MetersToPrint(dieline, frames),
		})
	}
	return runs
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
