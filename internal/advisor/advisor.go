// Package advisor classifies exams by name and suggests a cognitive-level
// ratio from the curriculum requirements of the lessons they cover.
package advisor

import (
	"strings"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/curriculum"
)

// ExamKind is the term an exam belongs to.
type ExamKind int

const (
	ExamUnknown ExamKind = iota
	ExamMidTerm
	ExamFinal
)

func (k ExamKind) String() string {
	switch k {
	case ExamMidTerm:
		return "mid_term"
	case ExamFinal:
		return "final"
	default:
		return "unknown"
	}
}

var (
	finalMarkers   = []string{"cuoi ki", "cuoi ky"}
	midTermMarkers = []string{"giua ki", "giua ky"}
)

// ClassifyExam reads the exam kind from its name, with or without
// diacritics. A name carrying both markers is a final exam.
func ClassifyExam(name string) ExamKind {
	folded := curriculum.Fold(name)
	for _, m := range finalMarkers {
		if strings.Contains(folded, m) {
			return ExamFinal
		}
	}
	for _, m := range midTermMarkers {
		if strings.Contains(folded, m) {
			return ExamMidTerm
		}
	}
	return ExamUnknown
}

// IsFinalExam reports whether name refers to an end-of-term exam.
func IsFinalExam(name string) bool {
	return ClassifyExam(name) == ExamFinal
}

// Lesson is the requirement text of one subtopic in the exam.
type Lesson struct {
	SubTopic     string
	Requirements string
	// New is false when the subtopic was fully examined before.
	New bool
}

// Suggestion is the advisor's ratio with the counts it was derived from.
type Suggestion struct {
	Ratio              blueprint.RatioOption `json:"ratio"`
	Kind               string                `json:"exam_kind"`
	Recall             int                   `json:"recall_lines"`
	Comprehension      int                   `json:"comprehension_lines"`
	HighApplication    int                   `json:"high_application_lines"`
	HighApplicationNew int                   `json:"high_application_new_lines"`
	Lessons            int                   `json:"lessons"`
}

// SuggestRatio picks a ratio from the requirement lines of lessons. It is
// advisory; callers with an explicit ratio should not consult it.
func SuggestRatio(lessons []Lesson, kind ExamKind) blueprint.RatioOption {
	return Suggest(lessons, kind).Ratio
}

// Suggest is SuggestRatio with the line counts behind the decision.
func Suggest(lessons []Lesson, kind ExamKind) Suggestion {
	s := Suggestion{Kind: kind.String(), Lessons: len(lessons)}
	for _, l := range lessons {
		req := curriculum.RequirementsByLevel(l.Requirements)
		s.Recall += req.Count(blueprint.Recall)
		s.Comprehension += req.Count(blueprint.Comprehension)
		vdc := req.Count(blueprint.HighApplication)
		s.HighApplication += vdc
		if l.New {
			s.HighApplicationNew += vdc
		}
	}

	highApp := s.HighApplication
	if kind == ExamFinal {
		// Only new content counts toward VDC in a final exam.
		highApp = s.HighApplicationNew
	}

	switch {
	case highApp > 0:
		s.Ratio = blueprint.Ratio40302010
	case s.Recall > s.Comprehension:
		s.Ratio = blueprint.Ratio403030
	default:
		s.Ratio = blueprint.Ratio304030
	}
	return s
}

// LessonsFromRows collects one Lesson per distinct subtopic of rows, in
// table order. A subtopic is old when its first row has
// Examined >= Periods > 0.
func LessonsFromRows(grade curriculum.Grade, rows []blueprint.Row) []Lesson {
	seen := make(map[string]bool)
	var out []Lesson
	for i := range rows {
		r := &rows[i]
		if seen[r.SubTopic] {
			continue
		}
		seen[r.SubTopic] = true

		_, sub, ok := grade.Subtopic(r.SubTopic)
		if !ok {
			continue
		}
		old := r.Periods > 0 && r.ExaminedPeriods >= r.Periods
		out = append(out, Lesson{
			SubTopic:     r.SubTopic,
			Requirements: sub.Requirements,
			New:          !old,
		})
	}
	return out
}
