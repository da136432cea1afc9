package blueprint

import (
	"encoding/json"
	"fmt"
)

// Options configures an allocation run.
type Options struct {
	Ratio     RatioOption
	FinalExam bool
	// Policy defaults to DefaultPolicy when left zero. In a partly filled
	// Policy, zero point values, OldShare and MaxIterations take their
	// defaults; the tolerances are used as given, so zero turns them off.
	Policy Policy
}

// Result is the outcome of Allocate. Rows are a fresh copy of the input.
type Result struct {
	Rows      []Row     `json:"rows"`
	Positions Positions `json:"positions"`
	Report    Report    `json:"report"`
}

// allocation is the private working state of one run.
type allocation struct {
	rows    []Row
	targets []float64
	scores  []float64
	policy  Policy
	final   bool

	iterations        int
	iterationLimitHit bool
}

// Allocate distributes the ratio's question counts across rows. The input
// slice is not modified. Errors are returned only for invalid input;
// unmet targets are reported in Result.Report.
func Allocate(rows []Row, opts Options) (Result, error) {
	targets, err := ParseRatio(opts.Ratio)
	if err != nil {
		return Result{}, err
	}
	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return Result{}, fmt.Errorf("row %d: %w", i, err)
		}
	}

	policy := opts.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	} else {
		policy = policy.withDefaults()
	}

	a := &allocation{
		rows:   CloneRows(rows),
		scores: make([]float64, len(rows)),
		policy: policy,
		final:  opts.FinalExam,
	}
	for i := range a.rows {
		a.rows[i].Allocated = Counts{}
	}
	a.targets = ComputeTargets(a.rows, a.final, policy)
	for i := range a.rows {
		a.rows[i].TargetScore = a.targets[i]
	}

	insufficient := SumPeriods(a.rows).All <= 0
	if !insufficient {
		a.allocateEssays(targets)
		a.allocateChoices(targets)
	}

	for i := range a.rows {
		a.rows[i].Percent = a.scores[i] / policy.TotalScore * 100
	}

	return Result{
		Rows:      a.rows,
		Positions: IndexPositions(a.rows),
		Report:    a.report(opts.Ratio, targets, insufficient),
	}, nil
}

// candidates returns the indexes of rows accepted by keep, in row order.
func (a *allocation) candidates(keep func(i int) bool) []int {
	var out []int
	for i := range a.rows {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

// assign places one question and refreshes the row's score.
func (a *allocation) assign(i int, level Level, kind Kind) {
	a.rows[i].Allocated[level][kind]++
	a.scores[i] = a.rows[i].Score(a.policy)
}

// gap is how far row i is behind its target score.
func (a *allocation) gap(i int) float64 {
	return a.targets[i] - a.scores[i]
}

// oldScore sums the score of fully examined rows in a final exam.
func (a *allocation) oldScore() float64 {
	if !a.final {
		return 0
	}
	total := 0.0
	for i := range a.rows {
		if a.rows[i].IsOldLesson() {
			total += a.scores[i]
		}
	}
	return total
}

func (a *allocation) report(ratio RatioOption, t Targets, insufficient bool) Report {
	var placed Counts
	for i := range a.rows {
		for _, l := range Levels {
			for _, k := range Kinds {
				placed[l][k] += a.rows[i].Allocated[l][k]
			}
		}
	}
	total := 0.0
	for _, s := range a.scores {
		total += s
	}
	rep := Report{
		Ratio:             ratio,
		FinalExam:         a.final,
		Requested:         t.Requested(),
		Placed:            placed,
		InsufficientInput: insufficient,
		IterationLimitHit: a.iterationLimitHit,
		Iterations:        a.iterations,
		TotalScore:        total,
		OldContentScore:   a.oldScore(),
	}
	rep.Unmet = rep.Shortfalls()
	return rep
}

// Report summarises what an allocation run placed against what was asked.
type Report struct {
	Ratio             RatioOption `json:"ratio"`
	FinalExam         bool        `json:"final_exam"`
	Requested         Counts      `json:"requested"`
	Placed            Counts      `json:"placed"`
	InsufficientInput bool        `json:"insufficient_input"`
	IterationLimitHit bool        `json:"iteration_limit_hit"`
	Iterations        int         `json:"iterations"`
	TotalScore        float64     `json:"total_score"`
	OldContentScore   float64     `json:"old_content_score"`
	Unmet             []Shortfall `json:"unmet,omitempty"`
}

// Shortfall is one (level, kind) whose placed count is below the request.
type Shortfall struct {
	Level     Level
	Kind      Kind
	Requested int
	Placed    int
}

// Shortfalls lists every under-filled (level, kind) in display order.
func (r Report) Shortfalls() []Shortfall {
	var out []Shortfall
	for _, l := range Levels {
		for _, k := range Kinds {
			if r.Placed[l][k] < r.Requested[l][k] {
				out = append(out, Shortfall{
					Level:     l,
					Kind:      k,
					Requested: r.Requested[l][k],
					Placed:    r.Placed[l][k],
				})
			}
		}
	}
	return out
}

// Complete reports whether every requested question was placed.
func (r Report) Complete() bool {
	return len(r.Shortfalls()) == 0 && !r.InsufficientInput
}

type shortfallJSON struct {
	Level     string `json:"level"`
	Kind      string `json:"kind"`
	Requested int    `json:"requested"`
	Placed    int    `json:"placed"`
}

// MarshalJSON writes level and kind as short codes.
func (s Shortfall) MarshalJSON() ([]byte, error) {
	return json.Marshal(shortfallJSON{
		Level:     s.Level.Code(),
		Kind:      s.Kind.Code(),
		Requested: s.Requested,
		Placed:    s.Placed,
	})
}

// UnmarshalJSON reads the shape written by MarshalJSON.
func (s *Shortfall) UnmarshalJSON(data []byte) error {
	var in shortfallJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	level, ok := ParseLevel(in.Level)
	if !ok {
		return fmt.Errorf("unknown level %q", in.Level)
	}
	kind := MultipleChoice
	if in.Kind == Essay.Code() {
		kind = Essay
	}
	*s = Shortfall{Level: level, Kind: kind, Requested: in.Requested, Placed: in.Placed}
	return nil
}

func (s Shortfall) String() string {
	return fmt.Sprintf("%s %s: requested %d, placed %d", s.Level.Code(), s.Kind.Code(), s.Requested, s.Placed)
}
