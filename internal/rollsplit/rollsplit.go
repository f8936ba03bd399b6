// Package rollsplit divides a run's achieved per-slot output across
// physical output rolls when it exceeds the roll capacity.
//
// The planner is pure: it holds no state and is recomputed whenever the
// achieved output or a quantity override changes.
package rollsplit

import "labelplane/internal/store"

// DefaultMergeTolerance is how small a trailing roll may be before
// fill_first folds it into the previous roll.
const DefaultMergeTolerance = 50

// Plan is a concrete division of a run's output across rolls.
// Counts always sum to the total the plan was built for.
type Plan struct {
	Strategy store.SplitStrategy `json:"strategy"`
	Counts   []int               `json:"counts"`
}

// Rolls returns how many physical rolls the plan produces.
func (p Plan) Rolls() int { return len(p.Counts) }

// Total returns the summed label count across the plan's rolls.
func (p Plan) Total() int {
	sum := 0
	for _, c := range p.Counts {
		sum += c
	}
	return sum
}

// FillFirst greedily fills successive rolls to capacity. When the final
// roll's remainder is at or below the tolerance it is merged into the
// previous roll, avoiding a near-empty trailing roll.
func FillFirst(total, capacity, tolerance int) Plan {
	if tolerance < 0 {
		tolerance = DefaultMergeTolerance
	}
	if total <= 0 || capacity <= 0 {
		return Plan{Strategy: store.SplitFillFirst}
	}

	var counts []int
	remaining := total
	for remaining > capacity {
		counts = append(counts, capacity)
		remaining -= capacity
	}
	counts = append(counts, remaining)

	if n := len(counts); n > 1 && counts[n-1] <= tolerance {
		counts[n-2] += counts[n-1]
		counts = counts[:n-1]
	}

	return Plan{Strategy: store.SplitFillFirst, Counts: counts}
}

// Even distributes the total over the roll count fill_first settles on
// (after merging), with roll sizes differing by at most one: the first
// total%rolls rolls each take one extra label.
func Even(total, capacity, tolerance int) Plan {
	rolls := FillFirst(total, capacity, tolerance).Rolls()
	if rolls == 0 {
		return Plan{Strategy: store.SplitEven}
	}

	base := total / rolls
	extra := total % rolls

	counts := make([]int, rolls)
	for i := range counts {
		counts[i] = base
		if i < extra {
			counts[i]++
		}
	}
	return Plan{Strategy: store.SplitEven, Counts: counts}
}

// Custom wraps operator-supplied explicit per-roll counts. The sum is not
// validated here; the caller owns that.
func Custom(counts []int) Plan {
	out := make([]int, len(counts))
	copy(out, counts)
	return Plan{Strategy: store.SplitCustom, Counts: out}
}

// Options returns the plans worth offering for the given total:
// fill_first always, plus any alternative whose first-roll size differs
// from fill_first's, so duplicate-looking choices are never presented.
func Options(total, capacity, tolerance int) []Plan {
	ff := FillFirst(total, capacity, tolerance)
	plans := []Plan{ff}

	if ev := Even(total, capacity, tolerance); ev.Rolls() > 0 && differs(ev, ff) {
		plans = append(plans, ev)
	}
	return plans
}

func differs(a, b Plan) bool {
	if a.Rolls() == 0 || b.Rolls() == 0 {
		return true
	}
	return a.Counts[0] != b.Counts[0]
}
