// Package matrix is the blueprint service: it ties the allocation engine to
// the curriculum, the question bank, persistence and exports.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-matrix/internal/bank"
	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/curriculum"
	"github.com/p-n-ai/pai-matrix/internal/platform/cache"
	"github.com/p-n-ai/pai-matrix/internal/store"
)

var (
	// ErrInvalidInput marks requests whose rows or edits cannot be used.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoBank is returned by operations that need a question bank when
	// none is configured.
	ErrNoBank = errors.New("question bank not configured")
)

// ServiceConfig holds dependencies for the blueprint service.
type ServiceConfig struct {
	Store      store.Store
	Events     store.EventLogger
	Cache      *cache.ResultCache // optional
	Curriculum *curriculum.Loader
	Bank       *bank.Bank // optional
	Policy     blueprint.Policy
}

// Service implements the blueprint operations.
type Service struct {
	store      store.Store
	events     store.EventLogger
	cache      *cache.ResultCache
	curriculum *curriculum.Loader
	bank       *bank.Bank
	policy     blueprint.Policy
}

// NewService creates a blueprint service. Missing dependencies fall back to
// an in-memory store, a no-op event logger and an empty curriculum.
func NewService(cfg ServiceConfig) *Service {
	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = store.NopEventLogger{}
	}
	cur := cfg.Curriculum
	if cur == nil {
		cur = curriculum.NewStaticLoader()
	}
	policy := cfg.Policy
	if policy == (blueprint.Policy{}) {
		policy = blueprint.DefaultPolicy()
	}
	return &Service{
		store:      st,
		events:     events,
		cache:      cfg.Cache,
		curriculum: cur,
		bank:       cfg.Bank,
		policy:     policy,
	}
}

// View is a blueprint with its derived question positions.
type View struct {
	store.Blueprint
	Positions blueprint.Positions `json:"positions"`
}

func newView(bp store.Blueprint) View {
	return View{Blueprint: bp, Positions: blueprint.IndexPositions(bp.Rows)}
}

// Get returns one blueprint.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	bp, err := s.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return newView(bp), nil
}

// Summary is the list entry of a blueprint.
type Summary struct {
	ID        string                `json:"id"`
	ExamName  string                `json:"exam_name"`
	Grade     string                `json:"grade"`
	Ratio     blueprint.RatioOption `json:"ratio"`
	FinalExam bool                  `json:"final_exam"`
	Rows      int                   `json:"rows"`
	Complete  bool                  `json:"complete"`
	Version   int                   `json:"version"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// List returns a summary of every blueprint, most recently updated first.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	bps, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blueprints: %w", err)
	}
	out := make([]Summary, 0, len(bps))
	for _, bp := range bps {
		out = append(out, Summary{
			ID:        bp.ID,
			ExamName:  bp.ExamName,
			Grade:     bp.Grade,
			Ratio:     bp.Ratio,
			FinalExam: bp.FinalExam,
			Rows:      len(bp.Rows),
			Complete:  bp.Report != nil && bp.Report.Complete(),
			Version:   bp.Version,
			UpdatedAt: bp.UpdatedAt,
		})
	}
	return out, nil
}

// Delete removes a blueprint.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("blueprint deleted", "id", id)
	return nil
}

// Grades lists the curriculum catalogue.
func (s *Service) Grades() []curriculum.Grade {
	return s.curriculum.AllGrades()
}

// Exams lists the exam folders of the question bank.
func (s *Service) Exams() ([]string, error) {
	if s.bank == nil {
		return nil, ErrNoBank
	}
	return s.bank.Exams()
}

// gradeOf resolves the curriculum grade of a blueprint, by its stored grade
// first and its exam name second.
func (s *Service) gradeOf(gradeID, examName string) (curriculum.Grade, bool) {
	if gradeID != "" {
		if g, ok := s.curriculum.GetGrade(gradeID); ok {
			return g, true
		}
	}
	return s.curriculum.GradeForExam(examName)
}

func (s *Service) logEvent(ctx context.Context, id, eventType string, data map[string]any) {
	if err := s.events.LogEvent(ctx, store.Event{
		BlueprintID: id,
		EventType:   eventType,
		Data:        data,
	}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "blueprint_id", id, "error", err)
	}
}

func validateRows(rows []blueprint.Row) error {
	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return fmt.Errorf("%w: row %d: %w", ErrInvalidInput, i, err)
		}
	}
	return nil
}
