// Package geometry computes press frame capacity from dieline geometry.
// It is the single source of truth for frame arithmetic; every other
// component consumes these functions rather than re-deriving them.
package geometry

import (
	"math"

	"labelplane/internal/store"
)

// MaxFrameLengthMM is the maximum single print-frame length the press
// supports, in millimetres. Machine constant.
const MaxFrameLengthMM = 762.0

// LabelsPerSlotPerFrame returns how many labels one slot yields per frame
// for the given dieline.
//
// One cylinder repeat stacks rows_around labels with the vertical gap
// between them plus top and bottom bleed. The press fits as many whole
// repeats as the frame length allows; when even a single repeat is longer
// than the frame the result is clamped so a frame always yields at least
// one repeat (never zero, which would collapse the frame division).
func LabelsPerSlotPerFrame(d store.Dieline) int {
	rh := repeatHeight(d)

	repeats := 1
	if rh > 0 && rh <= MaxFrameLengthMM {
		repeats = int(math.Floor(MaxFrameLengthMM / rh))
	}

	return d.RowsAround * repeats
}

// repeatHeight is the length of one cylinder repeat in millimetres:
// rows_around labels, the vertical gaps between them, and bleed on both
// ends.
func repeatHeight(d store.Dieline) float64 {
	return d.LabelHeightMM*float64(d.RowsAround) +
		d.GapYMM*float64(d.RowsAround-1) +
		2*d.BleedMM
}

// FramesFor returns the frame count needed to satisfy the largest slot
// quantity in a run: ceil(maxSlotQty / perFrame).
func FramesFor(maxSlotQty, perFrame int) int {
	if maxSlotQty <= 0 {
		return 0
	}
	if perFrame <= 0 {
		perFrame = 1
	}
	return (maxSlotQty + perFrame - 1) / perFrame
}

// AchievedPerSlot is the output every slot actually receives once the run
// length is fixed: frames * perFrame. It is identical across all slots in
// a run because a run prints at one length.
func AchievedPerSlot(frames, perFrame int) int {
	return frames * perFrame
}

// MetersToPrint returns the web length a run consumes, in metres.
func MetersToPrint(d store.Dieline, frames int) float64 {
	return float64(frames) * repeatHeight(d) / 1000.0
}
