package blueprint

import (
	"errors"
	"fmt"
)

// ErrUnknownRatio is returned for a ratio option outside the supported table.
var ErrUnknownRatio = errors.New("unknown ratio option")

// RatioOption names a cognitive-level split such as "40-30-20-10".
type RatioOption string

const (
	Ratio403030   RatioOption = "40-30-30"
	Ratio304030   RatioOption = "30-40-30"
	Ratio40302010 RatioOption = "40-30-20-10"
)

// DefaultRatio is used when neither the caller nor the advisor picks one.
const DefaultRatio = Ratio40302010

// Ratios lists the supported options.
var Ratios = []RatioOption{Ratio403030, Ratio304030, Ratio40302010}

// Targets are the global question counts implied by a ratio option.
type Targets struct {
	RecallChoice         int `json:"recall_choice"`
	ComprehensionChoice  int `json:"comprehension_choice"`
	ApplicationEssay     int `json:"application_essay"`
	HighApplicationEssay int `json:"high_application_essay"`
}

// ParseRatio maps an option to its targets.
func ParseRatio(opt RatioOption) (Targets, error) {
	switch opt {
	case Ratio403030:
		return Targets{RecallChoice: 16, ComprehensionChoice: 12, ApplicationEssay: 3}, nil
	case Ratio304030:
		return Targets{RecallChoice: 12, ComprehensionChoice: 16, ApplicationEssay: 3}, nil
	case Ratio40302010:
		return Targets{RecallChoice: 16, ComprehensionChoice: 12, ApplicationEssay: 2, HighApplicationEssay: 1}, nil
	default:
		return Targets{}, fmt.Errorf("%w: %q", ErrUnknownRatio, opt)
	}
}

// Requested returns the targets as a Counts table.
func (t Targets) Requested() Counts {
	var c Counts
	c[Recall][MultipleChoice] = t.RecallChoice
	c[Comprehension][MultipleChoice] = t.ComprehensionChoice
	c[Application][Essay] = t.ApplicationEssay
	c[HighApplication][Essay] = t.HighApplicationEssay
	return c
}

// Policy holds the scoring constants and tolerances of an allocation run.
type Policy struct {
	TotalScore   float64 `json:"total_score"`
	ChoicePoints float64 `json:"choice_points"`
	EssayPoints  float64 `json:"essay_points"`
	// OldShare is the fraction of TotalScore reserved for examined content in
	// a final exam.
	OldShare float64 `json:"old_share"`
	// RowTolerance lets a mid-term row exceed its target by one MC question.
	RowTolerance float64 `json:"row_tolerance"`
	// OldCapTolerance absorbs rounding in the global old-content cap.
	OldCapTolerance float64 `json:"old_cap_tolerance"`
	// EssayGapEpsilon treats essay score gaps closer than this as equal.
	EssayGapEpsilon float64 `json:"essay_gap_epsilon"`
	MaxIterations   int     `json:"max_iterations"`
}

// DefaultPolicy returns the standard 10-point exam policy.
func DefaultPolicy() Policy {
	return Policy{
		TotalScore:      10,
		ChoicePoints:    0.25,
		EssayPoints:     1.0,
		OldShare:        0.35,
		RowTolerance:    0.25,
		OldCapTolerance: 0.05,
		EssayGapEpsilon: 0.1,
		MaxIterations:   5000,
	}
}

// OldScoreCap returns the score budget for examined content in a final exam.
func (p Policy) OldScoreCap() float64 {
	return p.TotalScore * p.OldShare
}

// withDefaults fills zero score fields and MaxIterations from
// DefaultPolicy. Tolerances are kept as given.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.TotalScore == 0 {
		p.TotalScore = d.TotalScore
	}
	if p.ChoicePoints == 0 {
		p.ChoicePoints = d.ChoicePoints
	}
	if p.EssayPoints == 0 {
		p.EssayPoints = d.EssayPoints
	}
	if p.OldShare == 0 {
		p.OldShare = d.OldShare
	}
	if p.MaxIterations == 0 {
		p.MaxIterations = d.MaxIterations
	}
	return p
}
