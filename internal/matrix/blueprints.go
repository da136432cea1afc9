package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/p-n-ai/pai-matrix/internal/advisor"
	"github.com/p-n-ai/pai-matrix/internal/bank"
	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/store"
)

// CreateRequest describes a new blueprint. Without rows, the rows are built
// from the exam's question bank folder.
type CreateRequest struct {
	ExamName string                `json:"exam_name"`
	Grade    string                `json:"grade"`
	Ratio    blueprint.RatioOption `json:"ratio"`
	Rows     []blueprint.Row       `json:"rows"`
}

// Create saves a new blueprint. Without a ratio, the advisor's pick for the
// rows is stored as the starting ratio.
func (s *Service) Create(ctx context.Context, req CreateRequest) (View, error) {
	name := strings.TrimSpace(req.ExamName)
	if name == "" {
		return View{}, fmt.Errorf("%w: exam name is required", ErrInvalidInput)
	}
	if req.Ratio != "" {
		if _, err := blueprint.ParseRatio(req.Ratio); err != nil {
			return View{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	rows := blueprint.CloneRows(req.Rows)
	if rows == nil {
		if s.bank == nil {
			rows = []blueprint.Row{}
		} else {
			built, err := s.bank.BuildRows(name)
			if err != nil {
				return View{}, fmt.Errorf("build rows: %w", err)
			}
			rows = built
		}
	}
	if err := validateRows(rows); err != nil {
		return View{}, err
	}

	gradeID := req.Grade
	ratio := req.Ratio
	if g, ok := s.gradeOf(req.Grade, name); ok {
		gradeID = g.ID
		if lessons := advisor.LessonsFromRows(g, rows); ratio == "" && len(lessons) > 0 {
			ratio = advisor.SuggestRatio(lessons, advisor.ClassifyExam(name))
		}
	}

	bp, err := s.store.Create(ctx, store.Blueprint{
		ExamName:  name,
		Grade:     gradeID,
		Ratio:     ratio,
		FinalExam: advisor.IsFinalExam(name),
		Rows:      rows,
	})
	if err != nil {
		return View{}, fmt.Errorf("create blueprint: %w", err)
	}

	slog.Info("blueprint created", "id", bp.ID, "exam", bp.ExamName, "grade", bp.Grade, "rows", len(bp.Rows))
	s.logEvent(ctx, bp.ID, store.EventCreated, map[string]any{"rows": len(bp.Rows)})
	return newView(bp), nil
}

// Regenerate rebuilds the rows of a blueprint from the question bank while
// keeping the examined periods the teacher entered. The previous report is
// dropped since it no longer matches the rows.
func (s *Service) Regenerate(ctx context.Context, id string) (View, error) {
	if s.bank == nil {
		return View{}, ErrNoBank
	}
	bp, err := s.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}

	fresh, err := s.bank.BuildRows(bp.ExamName)
	if err != nil {
		return View{}, fmt.Errorf("build rows: %w", err)
	}
	bp.Rows = bank.Merge(bp.Rows, fresh)
	bp.Report = nil

	updated, err := s.store.Replace(ctx, bp, bp.Version)
	if err != nil {
		return View{}, err
	}

	slog.Info("blueprint regenerated", "id", updated.ID, "rows", len(updated.Rows), "version", updated.Version)
	s.logEvent(ctx, updated.ID, store.EventRegenerated, map[string]any{"rows": len(updated.Rows)})
	return newView(updated), nil
}

// RowEdit changes one row's periods and examined periods. Nil fields are
// left as they are.
type RowEdit struct {
	Index           int      `json:"index"`
	Periods         *float64 `json:"periods,omitempty"`
	ExaminedPeriods *float64 `json:"examined_periods,omitempty"`
}

// ApplyEdits applies edits to rows in place. Examined periods are clamped to
// the row's periods; negative numbers and unknown indexes are rejected and
// leave rows untouched.
func ApplyEdits(rows []blueprint.Row, edits []RowEdit) error {
	for _, e := range edits {
		if e.Index < 0 || e.Index >= len(rows) {
			return fmt.Errorf("%w: row index %d out of range [0, %d)", ErrInvalidInput, e.Index, len(rows))
		}
		if e.Periods != nil && !validNumber(*e.Periods) {
			return fmt.Errorf("%w: row %d: periods must be a non-negative number, got %v", ErrInvalidInput, e.Index, *e.Periods)
		}
		if e.ExaminedPeriods != nil && !validNumber(*e.ExaminedPeriods) {
			return fmt.Errorf("%w: row %d: examined periods must be a non-negative number, got %v", ErrInvalidInput, e.Index, *e.ExaminedPeriods)
		}
	}

	for _, e := range edits {
		r := &rows[e.Index]
		if e.Periods != nil {
			r.Periods = *e.Periods
		}
		if e.ExaminedPeriods != nil {
			r.ExaminedPeriods = *e.ExaminedPeriods
		}
		r.ExaminedPeriods = math.Min(r.ExaminedPeriods, r.Periods)
	}
	return nil
}

func validNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// UpdateRows applies cell edits. A zero version means "whatever is stored";
// otherwise the write only lands on that version. Allocated counts stay as
// they are, Percent returns to the period share and the report is dropped
// until the next distribution.
func (s *Service) UpdateRows(ctx context.Context, id string, version int, edits []RowEdit) (View, error) {
	bp, err := s.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	if version == 0 {
		version = bp.Version
	}

	if err := ApplyEdits(bp.Rows, edits); err != nil {
		return View{}, err
	}
	bank.SetPeriodPercent(bp.Rows)
	bp.Report = nil

	updated, err := s.store.Replace(ctx, bp, version)
	if err != nil {
		return View{}, err
	}
	slog.Debug("blueprint rows edited", "id", updated.ID, "edits", len(edits), "version", updated.Version)
	return newView(updated), nil
}

// DistributeRequest asks for a fresh allocation of a saved blueprint.
type DistributeRequest struct {
	// Version guards against concurrent edits; zero skips the check.
	Version int                   `json:"version"`
	Ratio   blueprint.RatioOption `json:"ratio"`
}

// Distributed is the saved blueprint after distribution.
type Distributed struct {
	View
	Suggestion *advisor.Suggestion `json:"suggestion,omitempty"`
}

// Distribute allocates questions across the saved rows and stores the result
// atomically. An explicit ratio wins over the advisor; the final-exam rules
// follow the exam name.
func (s *Service) Distribute(ctx context.Context, id string, req DistributeRequest) (Distributed, error) {
	bp, err := s.store.Get(ctx, id)
	if err != nil {
		return Distributed{}, err
	}
	version := req.Version
	if version == 0 {
		version = bp.Version
	}

	var out Distributed
	ratio := req.Ratio
	if ratio == "" {
		sugg := s.suggest(bp.Grade, bp.ExamName, bp.Rows)
		out.Suggestion = &sugg
		ratio = sugg.Ratio
	}
	final := advisor.IsFinalExam(bp.ExamName)

	res, err := s.allocate(ctx, bp.Rows, ratio, final)
	if err != nil {
		return Distributed{}, err
	}

	bp.Rows = res.Rows
	bp.Ratio = ratio
	bp.FinalExam = final
	report := res.Report
	bp.Report = &report

	updated, err := s.store.Replace(ctx, bp, version)
	if err != nil {
		return Distributed{}, err
	}

	s.logEvent(ctx, updated.ID, store.EventDistributed, map[string]any{
		"ratio":       string(ratio),
		"final_exam":  final,
		"complete":    report.Complete(),
		"unmet":       len(report.Unmet),
		"total_score": report.TotalScore,
		"iterations":  report.Iterations,
	})
	out.View = newView(updated)
	return out, nil
}

// Suggest returns the advisor's ratio for a saved blueprint.
func (s *Service) Suggest(ctx context.Context, id string) (advisor.Suggestion, error) {
	bp, err := s.store.Get(ctx, id)
	if err != nil {
		return advisor.Suggestion{}, err
	}
	grade, ok := s.gradeOf(bp.Grade, bp.ExamName)
	if !ok {
		return advisor.Suggestion{}, fmt.Errorf("%w: %q", bank.ErrNoGrade, bp.ExamName)
	}
	return advisor.Suggest(advisor.LessonsFromRows(grade, bp.Rows), advisor.ClassifyExam(bp.ExamName)), nil
}
