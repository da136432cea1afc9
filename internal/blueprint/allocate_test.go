package blueprint_test

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
)

const eps = 1e-6

// ample returns availability large enough to never bind.
func ample() blueprint.Counts {
	var c blueprint.Counts
	for _, l := range blueprint.Levels {
		for _, k := range blueprint.Kinds {
			c[l][k] = 50
		}
	}
	return c
}

func lesson(name string, periods, examined float64, avail blueprint.Counts) blueprint.Row {
	return blueprint.Row{
		MainTopic:       "Chủ đề A",
		SubTopic:        name,
		Lesson:          name,
		Periods:         periods,
		ExaminedPeriods: examined,
		Available:       avail,
	}
}

func sumAllocated(rows []blueprint.Row, l blueprint.Level, k blueprint.Kind) int {
	total := 0
	for _, r := range rows {
		total += r.Allocated[l][k]
	}
	return total
}

func score(r blueprint.Row) float64 {
	return r.Score(blueprint.DefaultPolicy())
}

func TestComputeTargets_MidTermSumsToTotal(t *testing.T) {
	rows := []blueprint.Row{
		lesson("a", 3, 0, ample()),
		lesson("b", 7, 2, ample()),
		lesson("c", 1.5, 0, ample()),
	}

	targets := blueprint.ComputeTargets(rows, false, blueprint.DefaultPolicy())

	sum := 0.0
	for _, v := range targets {
		sum += v
	}
	if math.Abs(sum-10) > eps {
		t.Errorf("sum(targets) = %v, want 10", sum)
	}
	if math.Abs(targets[0]-10*3/11.5) > eps {
		t.Errorf("targets[0] = %v, want %v", targets[0], 10*3/11.5)
	}
}

func TestComputeTargets_FinalSplitsOldAndNew(t *testing.T) {
	rows := []blueprint.Row{
		lesson("old-1", 2, 2, ample()),
		lesson("old-2", 6, 6, ample()),
		lesson("mixed", 4, 2, ample()),
		lesson("new", 8, 0, ample()),
	}

	targets := blueprint.ComputeTargets(rows, true, blueprint.DefaultPolicy())

	sum, oldSum := 0.0, 0.0
	for i, v := range targets {
		sum += v
		if rows[i].IsOldLesson() {
			oldSum += v
		}
	}
	if math.Abs(sum-10) > eps {
		t.Errorf("sum(targets) = %v, want 10", sum)
	}
	// Pold = 10, old lessons hold 8 of it.
	if want := 3.5 * 8 / 10; math.Abs(oldSum-want) > eps {
		t.Errorf("old lesson targets = %v, want %v", oldSum, want)
	}
	// mixed: 2/10*3.5 + 2/10*6.5
	if want := 0.7 + 1.3; math.Abs(targets[2]-want) > eps {
		t.Errorf("targets[mixed] = %v, want %v", targets[2], want)
	}
}

func TestComputeTargets_ZeroDenominators(t *testing.T) {
	tests := []struct {
		name  string
		rows  []blueprint.Row
		final bool
		want  []float64
	}{
		{
			name: "no periods",
			rows: []blueprint.Row{lesson("a", 0, 0, ample()), lesson("b", 0, 0, ample())},
			want: []float64{0, 0},
		},
		{
			name:  "final without examined content",
			rows:  []blueprint.Row{lesson("a", 1, 0, ample()), lesson("b", 3, 0, ample())},
			final: true,
			want:  []float64{6.5 / 4, 6.5 * 3 / 4},
		},
		{
			name:  "final with only examined content",
			rows:  []blueprint.Row{lesson("a", 1, 1, ample()), lesson("b", 1, 1, ample())},
			final: true,
			want:  []float64{1.75, 1.75},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blueprint.ComputeTargets(tt.rows, tt.final, blueprint.DefaultPolicy())
			for i := range tt.want {
				if math.IsNaN(got[i]) || math.Abs(got[i]-tt.want[i]) > eps {
					t.Errorf("targets[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAllocate_MeetsTargetsWithAmpleAvailability(t *testing.T) {
	for _, ratio := range blueprint.Ratios {
		t.Run(string(ratio), func(t *testing.T) {
			rows := []blueprint.Row{
				lesson("a", 2, 0, ample()),
				lesson("b", 3, 0, ample()),
				lesson("c", 1, 0, ample()),
				lesson("d", 4, 0, ample()),
			}
			want, _ := blueprint.ParseRatio(ratio)

			res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: ratio})
			if err != nil {
				t.Fatalf("Allocate() error = %v", err)
			}

			if got := sumAllocated(res.Rows, blueprint.Recall, blueprint.MultipleChoice); got != want.RecallChoice {
				t.Errorf("NB TN = %d, want %d", got, want.RecallChoice)
			}
			if got := sumAllocated(res.Rows, blueprint.Comprehension, blueprint.MultipleChoice); got != want.ComprehensionChoice {
				t.Errorf("TH TN = %d, want %d", got, want.ComprehensionChoice)
			}
			if got := sumAllocated(res.Rows, blueprint.Application, blueprint.Essay); got != want.ApplicationEssay {
				t.Errorf("VD TL = %d, want %d", got, want.ApplicationEssay)
			}
			if got := sumAllocated(res.Rows, blueprint.HighApplication, blueprint.Essay); got != want.HighApplicationEssay {
				t.Errorf("VDC TL = %d, want %d", got, want.HighApplicationEssay)
			}
			if !res.Report.Complete() {
				t.Errorf("Report.Complete() = false, unmet = %v", res.Report.Unmet)
			}
			if math.Abs(res.Report.TotalScore-10) > eps {
				t.Errorf("TotalScore = %v, want 10", res.Report.TotalScore)
			}
		})
	}
}

func TestAllocate_EveryLessonCoveredBeforeSeconds(t *testing.T) {
	rows := make([]blueprint.Row, 6)
	for i := range rows {
		rows[i] = lesson("l", float64(i+1), 0, ample())
	}

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio40302010})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	for i, r := range res.Rows {
		if r.Allocated[blueprint.Recall][blueprint.MultipleChoice] == 0 {
			t.Errorf("row %d has no NB question", i)
		}
		if r.Allocated[blueprint.Comprehension][blueprint.MultipleChoice] == 0 {
			t.Errorf("row %d has no TH question", i)
		}
	}
}

func TestAllocate_ProportionalToPeriods(t *testing.T) {
	rows := []blueprint.Row{
		lesson("long", 10, 0, ample()),
		lesson("short", 5, 0, ample()),
	}

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio40302010})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if math.Abs(res.Rows[0].TargetScore-20.0/3) > 1e-3 || math.Abs(res.Rows[1].TargetScore-10.0/3) > 1e-3 {
		t.Errorf("targets = [%v %v], want [6.67 3.33]", res.Rows[0].TargetScore, res.Rows[1].TargetScore)
	}
	for i, r := range res.Rows {
		if d := math.Abs(score(r) - r.TargetScore); d > 0.25+eps {
			t.Errorf("row %d score = %v, target %v", i, score(r), r.TargetScore)
		}
	}
	ratio := score(res.Rows[0]) / score(res.Rows[1])
	if ratio < 1.8 || ratio > 2.3 {
		t.Errorf("score ratio = %v, want about 2", ratio)
	}
	mc := func(r blueprint.Row) int {
		return r.Allocated[blueprint.Recall][blueprint.MultipleChoice] + r.Allocated[blueprint.Comprehension][blueprint.MultipleChoice]
	}
	if mc(res.Rows[0]) <= mc(res.Rows[1]) {
		t.Errorf("MC counts = [%d %d], want the longer lesson to receive more", mc(res.Rows[0]), mc(res.Rows[1]))
	}
}

func TestAllocate_FinalExamOldAndNewLesson(t *testing.T) {
	rows := []blueprint.Row{
		lesson("old", 4, 4, ample()),
		lesson("new", 6, 0, ample()),
	}

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio40302010, FinalExam: true})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if math.Abs(res.Rows[0].TargetScore-3.5) > eps {
		t.Errorf("old target = %v, want 3.5", res.Rows[0].TargetScore)
	}
	if math.Abs(res.Rows[1].TargetScore-6.5) > eps {
		t.Errorf("new target = %v, want 6.5", res.Rows[1].TargetScore)
	}
	old := score(res.Rows[0])
	if old > 3.55+eps {
		t.Errorf("old lesson score = %v, exceeds cap", old)
	}
	if math.Abs(old-3.5) > 0.25+eps {
		t.Errorf("old lesson score = %v, want about 3.5", old)
	}
	essays := res.Rows[0].Allocated[blueprint.Application][blueprint.Essay] + res.Rows[0].Allocated[blueprint.HighApplication][blueprint.Essay]
	if essays != 0 {
		t.Errorf("old lesson essays = %d, want 0", essays)
	}
	if !res.Report.Complete() {
		t.Errorf("Report.Complete() = false, unmet = %v", res.Report.Unmet)
	}
}

func TestAllocate_FinalExamOldCapBinds(t *testing.T) {
	var scarce blueprint.Counts
	scarce[blueprint.Recall][blueprint.MultipleChoice] = 2
	scarce[blueprint.Comprehension][blueprint.MultipleChoice] = 2
	scarce[blueprint.Application][blueprint.Essay] = 5
	scarce[blueprint.HighApplication][blueprint.Essay] = 5

	rows := []blueprint.Row{
		lesson("old-a", 6, 6, ample()),
		lesson("old-b", 4, 4, ample()),
		lesson("new", 1, 0, scarce),
	}

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio40302010, FinalExam: true})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if res.Report.OldContentScore > 3.55+eps {
		t.Errorf("OldContentScore = %v, want <= 3.55", res.Report.OldContentScore)
	}
	mc := sumAllocated(res.Rows, blueprint.Recall, blueprint.MultipleChoice) +
		sumAllocated(res.Rows, blueprint.Comprehension, blueprint.MultipleChoice)
	// 14 MC fill the old budget, the new lesson only has 4.
	if mc != 18 {
		t.Errorf("MC placed = %d, want 18", mc)
	}
	if res.Report.Complete() {
		t.Error("Report.Complete() = true, want an under-fill")
	}
	if len(res.Report.Unmet) == 0 {
		t.Error("Report.Unmet is empty")
	}
}

func TestAllocate_OldCapNeverExceeded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		rows := randomRows(rng)
		res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratios[n%3], FinalExam: true})
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		// Essays are not capped, only multiple-choice placements are.
		oldMC := 0.0
		for _, r := range res.Rows {
			if r.IsOldLesson() {
				oldMC += float64(r.Allocated[blueprint.Recall][blueprint.MultipleChoice]+r.Allocated[blueprint.Comprehension][blueprint.MultipleChoice]) * 0.25
			}
		}
		if oldMC > 3.55+eps {
			t.Fatalf("case %d: old MC score = %v, want <= 3.55", n, oldMC)
		}
	}
}

func TestAllocate_NeverExceedsAvailability(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 200; n++ {
		rows := randomRows(rng)
		res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratios[n%3], FinalExam: n%2 == 0})
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		for i, r := range res.Rows {
			for _, l := range blueprint.Levels {
				for _, k := range blueprint.Kinds {
					if r.Allocated[l][k] > r.Available[l][k] {
						t.Fatalf("case %d row %d: allocated %s %s = %d > available %d",
							n, i, l.Code(), k.Code(), r.Allocated[l][k], r.Available[l][k])
					}
				}
			}
		}
	}
}

func TestAllocate_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	rows := randomRows(rng)
	opts := blueprint.Options{Ratio: blueprint.Ratio40302010, FinalExam: true}

	first, err := blueprint.Allocate(rows, opts)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	second, err := blueprint.Allocate(rows, opts)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Allocate() results differ between identical runs")
	}

	// Re-running on an already allocated table gives the same answer.
	third, err := blueprint.Allocate(first.Rows, opts)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if !reflect.DeepEqual(first.Rows, third.Rows) {
		t.Error("Allocate() on its own output changed the table")
	}
}

func TestAllocate_DoesNotMutateInput(t *testing.T) {
	rows := []blueprint.Row{lesson("a", 2, 0, ample()), lesson("b", 2, 0, ample())}

	if _, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio403030}); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	for i, r := range rows {
		if r.Allocated.Total() != 0 {
			t.Errorf("input row %d was mutated: %v", i, r.Allocated)
		}
		if r.TargetScore != 0 {
			t.Errorf("input row %d target was set", i)
		}
	}
}

func TestAllocate_NoHighApplicationEssayAvailable(t *testing.T) {
	avail := ample()
	avail[blueprint.HighApplication][blueprint.Essay] = 0
	rows := []blueprint.Row{lesson("a", 2, 0, avail), lesson("b", 3, 0, avail)}

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio40302010})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if got := sumAllocated(res.Rows, blueprint.HighApplication, blueprint.Essay); got != 0 {
		t.Errorf("VDC TL = %d, want 0", got)
	}
	if len(res.Report.Unmet) != 1 {
		t.Fatalf("len(Unmet) = %d, want 1: %v", len(res.Report.Unmet), res.Report.Unmet)
	}
	got := res.Report.Unmet[0]
	if got.Level != blueprint.HighApplication || got.Kind != blueprint.Essay || got.Requested != 1 || got.Placed != 0 {
		t.Errorf("Unmet[0] = %v, want VDC TL requested 1 placed 0", got)
	}
}

func TestAllocate_InsufficientInput(t *testing.T) {
	rows := []blueprint.Row{lesson("a", 0, 0, ample()), lesson("b", 0, 0, ample())}

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio40302010})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if !res.Report.InsufficientInput {
		t.Error("InsufficientInput = false, want true")
	}
	for i, r := range res.Rows {
		if r.Allocated.Total() != 0 {
			t.Errorf("row %d allocated %d questions, want 0", i, r.Allocated.Total())
		}
	}
	if len(res.Report.Unmet) != 4 {
		t.Errorf("len(Unmet) = %d, want 4", len(res.Report.Unmet))
	}
	if res.Report.Complete() {
		t.Error("Complete() = true, want false")
	}
}

func TestAllocate_FallbackIgnoresRowTolerance(t *testing.T) {
	rows := []blueprint.Row{
		lesson("stocked", 1, 0, ample()),
		lesson("empty", 9, 0, blueprint.Counts{}),
	}

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio403030})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if got := res.Rows[0].Allocated[blueprint.Recall][blueprint.MultipleChoice]; got != 16 {
		t.Errorf("NB TN = %d, want 16", got)
	}
	if got := res.Rows[0].Allocated[blueprint.Comprehension][blueprint.MultipleChoice]; got != 12 {
		t.Errorf("TH TN = %d, want 12", got)
	}
}

func TestAllocate_IterationLimit(t *testing.T) {
	rows := []blueprint.Row{lesson("a", 1, 0, ample())}
	policy := blueprint.DefaultPolicy()
	policy.MaxIterations = 5

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio403030, Policy: policy})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if !res.Report.IterationLimitHit {
		t.Error("IterationLimitHit = false, want true")
	}
	if res.Report.Iterations != 5 {
		t.Errorf("Iterations = %d, want 5", res.Report.Iterations)
	}
	if res.Report.Complete() {
		t.Error("Complete() = true, want false")
	}
}

func TestAllocate_PartialPolicy(t *testing.T) {
	rows := []blueprint.Row{
		lesson("a", 3, 0, ample()),
		lesson("b", 2, 0, ample()),
		lesson("c", 1, 0, ample()),
	}

	partial, err := blueprint.Allocate(rows, blueprint.Options{
		Ratio:  blueprint.Ratio40302010,
		Policy: blueprint.Policy{MaxIterations: 5000},
	})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	literal := blueprint.DefaultPolicy()
	literal.RowTolerance = 0
	literal.OldCapTolerance = 0
	literal.EssayGapEpsilon = 0
	want, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio40302010, Policy: literal})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	if math.Abs(partial.Report.TotalScore-10) > 1e-9 {
		t.Errorf("TotalScore = %v, want 10 from default point values", partial.Report.TotalScore)
	}
	for i := range rows {
		if partial.Rows[i].Allocated != want.Rows[i].Allocated {
			t.Errorf("rows[%d].Allocated = %v, want %v with zero tolerances", i, partial.Rows[i].Allocated, want.Rows[i].Allocated)
		}
	}
}

func TestAllocate_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		rows []blueprint.Row
		opts blueprint.Options
	}{
		{"unknown ratio", []blueprint.Row{lesson("a", 1, 0, ample())}, blueprint.Options{Ratio: "50-50"}},
		{"negative periods", []blueprint.Row{lesson("a", -1, 0, ample())}, blueprint.Options{Ratio: blueprint.Ratio403030}},
		{"NaN periods", []blueprint.Row{lesson("a", math.NaN(), 0, ample())}, blueprint.Options{Ratio: blueprint.Ratio403030}},
		{"negative availability", []blueprint.Row{lesson("a", 1, 0, blueprint.Counts{{-1, 0}})}, blueprint.Options{Ratio: blueprint.Ratio403030}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := blueprint.Allocate(tt.rows, tt.opts); err == nil {
				t.Error("Allocate() error = nil, want error")
			}
		})
	}

	_, err := blueprint.Allocate(nil, blueprint.Options{Ratio: "bogus"})
	if !errors.Is(err, blueprint.ErrUnknownRatio) {
		t.Errorf("Allocate() error = %v, want ErrUnknownRatio", err)
	}
}

func TestAllocate_EssayTieBreaks(t *testing.T) {
	t.Run("remaining availability", func(t *testing.T) {
		a := ample()
		a[blueprint.Application][blueprint.Essay] = 1
		b := ample()
		b[blueprint.Application][blueprint.Essay] = 3
		rows := []blueprint.Row{lesson("a", 5, 0, a), lesson("b", 5, 0, b)}

		res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio403030})
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}

		// Equal gaps send the first essay to b; the gap then favours a; a is
		// exhausted so the last goes to b.
		if got := res.Rows[0].Allocated[blueprint.Application][blueprint.Essay]; got != 1 {
			t.Errorf("row a VD TL = %d, want 1", got)
		}
		if got := res.Rows[1].Allocated[blueprint.Application][blueprint.Essay]; got != 2 {
			t.Errorf("row b VD TL = %d, want 2", got)
		}
	})

	t.Run("final exam prefers new lessons", func(t *testing.T) {
		var essayOnly blueprint.Counts
		essayOnly[blueprint.Application][blueprint.Essay] = 1
		rows := []blueprint.Row{lesson("old", 4, 4, ample())}
		for i := 0; i < 5; i++ {
			rows = append(rows, lesson("new", 2, 0, essayOnly))
		}

		res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio403030, FinalExam: true})
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}

		if got := res.Rows[0].Allocated[blueprint.Application][blueprint.Essay]; got != 0 {
			t.Errorf("old lesson VD TL = %d, want 0", got)
		}
		for i := 1; i <= 3; i++ {
			if got := res.Rows[i].Allocated[blueprint.Application][blueprint.Essay]; got != 1 {
				t.Errorf("row %d VD TL = %d, want 1", i, got)
			}
		}
	})
}

func TestAllocate_PercentFromScore(t *testing.T) {
	rows := []blueprint.Row{lesson("a", 1, 0, ample()), lesson("b", 1, 0, ample())}

	res, err := blueprint.Allocate(rows, blueprint.Options{Ratio: blueprint.Ratio403030})
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	total := 0.0
	for _, r := range res.Rows {
		if math.Abs(r.Percent-score(r)*10) > eps {
			t.Errorf("Percent = %v, want %v", r.Percent, score(r)*10)
		}
		total += r.Percent
	}
	if math.Abs(total-100) > eps {
		t.Errorf("sum(Percent) = %v, want 100", total)
	}
}

func randomRows(rng *rand.Rand) []blueprint.Row {
	n := 1 + rng.Intn(8)
	rows := make([]blueprint.Row, n)
	for i := range rows {
		periods := float64(rng.Intn(6))
		examined := 0.0
		switch rng.Intn(3) {
		case 1:
			examined = periods
		case 2:
			examined = float64(rng.Intn(int(periods) + 1))
		}
		var avail blueprint.Counts
		for _, l := range blueprint.Levels {
			for _, k := range blueprint.Kinds {
				avail[l][k] = rng.Intn(10)
			}
		}
		rows[i] = lesson("r", periods, examined, avail)
	}
	return rows
}
