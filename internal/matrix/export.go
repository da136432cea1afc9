package matrix

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/p-n-ai/pai-matrix/internal/advisor"
	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/export"
	"github.com/p-n-ai/pai-matrix/internal/store"
)

// document assembles the export view of a blueprint, pulling requirement
// text from the curriculum.
func (s *Service) document(bp store.Blueprint) export.Document {
	doc := export.Document{
		ExamName:     bp.ExamName,
		Grade:        bp.Grade,
		FinalExam:    bp.FinalExam,
		CreatedAt:    bp.CreatedAt,
		Rows:         bp.Rows,
		Positions:    blueprint.IndexPositions(bp.Rows),
		Requirements: make([]string, len(bp.Rows)),
		Policy:       s.policy,
	}
	grade, ok := s.gradeOf(bp.Grade, bp.ExamName)
	if !ok {
		return doc
	}
	for i, r := range bp.Rows {
		if text, ok := s.curriculum.Requirements(grade.ID, r.MainTopic, r.SubTopic); ok {
			doc.Requirements[i] = text
		}
	}
	return doc
}

// ExportWorkbook writes the blueprint as an .xlsx workbook.
func (s *Service) ExportWorkbook(ctx context.Context, id string, w io.Writer) error {
	bp, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := export.WriteWorkbook(w, s.document(bp)); err != nil {
		return fmt.Errorf("export workbook: %w", err)
	}
	return nil
}

// ExportJSON writes the blueprint in the JSON interchange format.
func (s *Service) ExportJSON(ctx context.Context, id string, w io.Writer) error {
	bp, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := export.EncodeJSON(w, s.document(bp)); err != nil {
		return fmt.Errorf("export json: %w", err)
	}
	return nil
}

// Import saves a blueprint read from the JSON interchange format. The file
// carries no availability, so each row may offer what it already holds;
// when the question bank has the exam, its inventory replaces that for
// matching lessons.
func (s *Service) Import(ctx context.Context, r io.Reader) (View, error) {
	doc, err := export.DecodeJSON(r)
	if err != nil {
		return View{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if doc.ExamName == "" {
		return View{}, fmt.Errorf("%w: exam name is required", ErrInvalidInput)
	}

	rows := doc.Rows
	for i := range rows {
		rows[i].Available = rows[i].Allocated
	}
	s.mergeInventory(doc.ExamName, rows)
	if err := validateRows(rows); err != nil {
		return View{}, err
	}

	gradeID := ""
	if g, ok := s.gradeOf("", doc.ExamName); ok {
		gradeID = g.ID
	}
	bp, err := s.store.Create(ctx, store.Blueprint{
		ExamName:  doc.ExamName,
		Grade:     gradeID,
		FinalExam: advisor.IsFinalExam(doc.ExamName),
		Rows:      rows,
	})
	if err != nil {
		return View{}, fmt.Errorf("create blueprint: %w", err)
	}

	slog.Info("blueprint imported", "id", bp.ID, "exam", bp.ExamName, "rows", len(bp.Rows))
	s.logEvent(ctx, bp.ID, store.EventCreated, map[string]any{"rows": len(bp.Rows), "imported": true})
	return newView(bp), nil
}

// mergeInventory copies bank availability onto rows with the same subtopic
// and lesson. A missing bank or exam folder leaves rows unchanged.
func (s *Service) mergeInventory(exam string, rows []blueprint.Row) {
	if s.bank == nil {
		return
	}
	fresh, err := s.bank.BuildRows(exam)
	if err != nil {
		slog.Debug("no bank inventory for import", "exam", exam, "error", err)
		return
	}
	type key struct{ sub, lesson string }
	avail := make(map[key]blueprint.Counts, len(fresh))
	for _, r := range fresh {
		avail[key{r.SubTopic, r.Lesson}] = r.Available
	}
	for i := range rows {
		if c, ok := avail[key{rows[i].SubTopic, rows[i].Lesson}]; ok {
			rows[i].Available = c
		}
	}
}
