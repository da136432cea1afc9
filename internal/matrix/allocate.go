package matrix

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-matrix/internal/advisor"
	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/platform/cache"
)

// AllocateRequest is a stateless allocation over caller-supplied rows.
type AllocateRequest struct {
	ExamName string                `json:"exam_name"`
	Grade    string                `json:"grade"`
	Ratio    blueprint.RatioOption `json:"ratio"`
	// FinalExam forces final-exam rules. An exam name classified as final
	// sets it too.
	FinalExam bool            `json:"final_exam"`
	Rows      []blueprint.Row `json:"rows"`
}

// Allocation is an allocation result plus the advisor's reasoning when the
// ratio was not given.
type Allocation struct {
	blueprint.Result
	Suggestion *advisor.Suggestion `json:"suggestion,omitempty"`
}

// Allocate runs the engine on req.Rows. An empty ratio is filled by the
// advisor.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (Allocation, error) {
	if err := validateRows(req.Rows); err != nil {
		return Allocation{}, err
	}

	final := req.FinalExam || advisor.IsFinalExam(req.ExamName)
	var out Allocation
	ratio := req.Ratio
	if ratio == "" {
		sugg := s.suggest(req.Grade, req.ExamName, req.Rows)
		out.Suggestion = &sugg
		ratio = sugg.Ratio
	}

	res, err := s.allocate(ctx, req.Rows, ratio, final)
	if err != nil {
		return Allocation{}, err
	}
	out.Result = res
	return out, nil
}

// cacheKey is the canonical request that identifies an allocation.
type cacheKey struct {
	Ratio     blueprint.RatioOption `json:"ratio"`
	FinalExam bool                  `json:"final_exam"`
	Policy    blueprint.Policy      `json:"policy"`
	Rows      []blueprint.Row       `json:"rows"`
}

// allocate runs the engine through the result cache. Cache failures are
// logged and the result is computed.
func (s *Service) allocate(ctx context.Context, rows []blueprint.Row, ratio blueprint.RatioOption, final bool) (blueprint.Result, error) {
	opts := blueprint.Options{Ratio: ratio, FinalExam: final, Policy: s.policy}
	if _, err := blueprint.ParseRatio(ratio); err != nil {
		return blueprint.Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var key string
	if s.cache != nil {
		k, err := cache.Key(cacheKey{Ratio: ratio, FinalExam: final, Policy: s.policy, Rows: keyRows(rows)})
		if err != nil {
			slog.Warn("allocation cache key failed", "error", err)
		} else {
			key = k
			var cached blueprint.Result
			hit, err := s.cache.Get(ctx, key, &cached)
			switch {
			case err != nil:
				slog.Warn("allocation cache read failed", "error", err)
			case hit:
				slog.Debug("allocation cache hit", "key", key)
				return cached, nil
			}
		}
	}

	res, err := blueprint.Allocate(rows, opts)
	if err != nil {
		return blueprint.Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	slog.Info("allocation complete",
		"ratio", ratio,
		"final_exam", final,
		"rows", len(rows),
		"iterations", res.Report.Iterations,
		"complete", res.Report.Complete(),
	)
	if !res.Report.Complete() {
		slog.Warn("allocation under-filled", "unmet", len(res.Report.Unmet), "insufficient_input", res.Report.InsufficientInput)
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, res); err != nil {
			slog.Warn("allocation cache write failed", "error", err)
		}
	}
	return res, nil
}

// keyRows drops the fields Allocate recomputes so equal inputs share a key.
func keyRows(rows []blueprint.Row) []blueprint.Row {
	out := blueprint.CloneRows(rows)
	for i := range out {
		out[i].Allocated = blueprint.Counts{}
		out[i].TargetScore = 0
		out[i].Percent = 0
	}
	return out
}

// suggest asks the advisor for a ratio. Without curriculum data for the
// exam it falls back to the default ratio.
func (s *Service) suggest(gradeID, examName string, rows []blueprint.Row) advisor.Suggestion {
	kind := advisor.ClassifyExam(examName)
	grade, ok := s.gradeOf(gradeID, examName)
	if !ok {
		return advisor.Suggestion{Ratio: blueprint.DefaultRatio, Kind: kind.String()}
	}
	lessons := advisor.LessonsFromRows(grade, rows)
	if len(lessons) == 0 {
		return advisor.Suggestion{Ratio: blueprint.DefaultRatio, Kind: kind.String()}
	}
	return advisor.Suggest(lessons, kind)
}
