package blueprint

import "sort"

// allocateChoices fills the Recall and Comprehension multiple-choice targets
// one question at a time, advancing whichever level is proportionally behind.
func (a *allocation) allocateChoices(t Targets) {
	target := map[Level]int{
		Recall:        t.RecallChoice,
		Comprehension: t.ComprehensionChoice,
	}
	placed := map[Level]int{}

	for a.iterations < a.policy.MaxIterations {
		level, ok := nextChoiceLevel(placed[Recall], target[Recall], placed[Comprehension], target[Comprehension])
		if !ok {
			return
		}
		a.iterations++

		oldScore := a.oldScore()
		candidates := a.candidates(func(i int) bool {
			return a.choiceEligible(i, level, oldScore, true)
		})
		if len(candidates) == 0 {
			candidates = a.candidates(func(i int) bool {
				return a.choiceEligible(i, level, oldScore, false)
			})
		}
		if len(candidates) == 0 {
			return
		}

		sort.SliceStable(candidates, func(x, y int) bool {
			return a.choiceBefore(candidates[x], candidates[y], level)
		})
		a.assign(candidates[0], level, MultipleChoice)
		placed[level]++
	}

	if _, pending := nextChoiceLevel(placed[Recall], target[Recall], placed[Comprehension], target[Comprehension]); pending {
		a.iterationLimitHit = true
	}
}

// nextChoiceLevel picks the level to advance, or false when both are met.
func nextChoiceLevel(curNB, targetNB, curTH, targetTH int) (Level, bool) {
	needNB := curNB < targetNB
	needTH := curTH < targetTH
	switch {
	case needNB && needTH:
		ratioNB := float64(curNB) / float64(targetNB)
		ratioTH := float64(curTH) / float64(targetTH)
		if ratioNB <= ratioTH {
			return Recall, true
		}
		return Comprehension, true
	case needNB:
		return Recall, true
	case needTH:
		return Comprehension, true
	default:
		return 0, false
	}
}

// choiceEligible applies the availability and global old-content checks, and
// in strict mode the per-row tolerance of mid-term exams.
func (a *allocation) choiceEligible(i int, level Level, oldScore float64, strict bool) bool {
	r := &a.rows[i]
	if r.Remaining(level, MultipleChoice) <= 0 {
		return false
	}

	if a.final && r.IsOldLesson() {
		if oldScore+a.policy.ChoicePoints > a.policy.OldScoreCap()+a.policy.OldCapTolerance {
			return false
		}
	}

	if strict && !a.final {
		if a.scores[i] >= a.targets[i]+a.policy.RowTolerance {
			return false
		}
	}
	return true
}

// choiceBefore orders candidates: rows without a question at this level
// first, then the larger score gap.
func (a *allocation) choiceBefore(i, j int, level Level) bool {
	zi := a.rows[i].Allocated[level][MultipleChoice] == 0
	zj := a.rows[j].Allocated[level][MultipleChoice] == 0
	if zi != zj {
		return zi
	}
	return a.gap(i) > a.gap(j)
}
