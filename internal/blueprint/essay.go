package blueprint

import (
	"math"
	"sort"
)

// essaySlots lists the essay levels to fill, scarcer HighApplication first.
func essaySlots(t Targets) []Level {
	slots := make([]Level, 0, t.HighApplicationEssay+t.ApplicationEssay)
	for i := 0; i < t.HighApplicationEssay; i++ {
		slots = append(slots, HighApplication)
	}
	for i := 0; i < t.ApplicationEssay; i++ {
		slots = append(slots, Application)
	}
	return slots
}

// allocateEssays places one essay per slot on the row furthest behind its
// target. Slots with no candidate stay unfilled.
func (a *allocation) allocateEssays(t Targets) {
	for _, level := range essaySlots(t) {
		candidates := a.candidates(func(i int) bool {
			return a.rows[i].Remaining(level, Essay) > 0
		})
		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(x, y int) bool {
			return a.essayBefore(candidates[x], candidates[y], level)
		})
		a.assign(candidates[0], level, Essay)
	}
}

// essayBefore orders essay candidates: new lessons first in final exams,
// then the larger score gap, then the larger remaining availability.
func (a *allocation) essayBefore(i, j int, level Level) bool {
	ri, rj := &a.rows[i], &a.rows[j]
	if a.final {
		if ri.IsNewLesson() != rj.IsNewLesson() {
			return ri.IsNewLesson()
		}
	}

	gi, gj := a.gap(i), a.gap(j)
	if math.Abs(gi-gj) > a.policy.EssayGapEpsilon {
		return gi > gj
	}

	return ri.Remaining(level, Essay) > rj.Remaining(level, Essay)
}
