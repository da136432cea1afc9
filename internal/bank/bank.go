// Package bank reads the folder-based question bank and turns an exam
// folder into blueprint rows.
package bank

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/curriculum"
)

var (
	// ErrNoGrade is returned when an exam cannot be tied to a curriculum grade.
	ErrNoGrade = errors.New("exam has no known grade")
	// ErrBadExam is returned for exam names that are not a single folder
	// directly under the bank root.
	ErrBadExam = errors.New("invalid exam folder name")
)

// Bank is a question bank rooted at a directory laid out as
// <root>/<exam>/<subtopic>/<lesson file>.
type Bank struct {
	root       string
	curriculum *curriculum.Loader
}

// New creates a bank over root, resolving grades through loader.
func New(root string, loader *curriculum.Loader) *Bank {
	return &Bank{root: root, curriculum: loader}
}

// Exams lists exam folders in Vietnamese collation order.
func (b *Bank) Exams() ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, fmt.Errorf("listing exams: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sortVietnamese(out)
	return out, nil
}

// BuildRows builds one row per lesson file of the exam folder, walking
// topics and subtopics in curriculum order. Subtopics without a folder are
// skipped; an empty subtopic folder yields a placeholder row.
func (b *Bank) BuildRows(exam string) ([]blueprint.Row, error) {
	examDir, err := b.examDir(exam)
	if err != nil {
		return nil, err
	}
	grade, ok := b.curriculum.GradeForExam(exam)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoGrade, exam)
	}

	if _, err := os.Stat(examDir); err != nil {
		return nil, fmt.Errorf("opening exam folder: %w", err)
	}

	var rows []blueprint.Row
	for _, topic := range grade.Topics {
		for _, sub := range topic.Subtopics {
			dir := filepath.Join(examDir, sub.Name)
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}

			lessons, err := readLessons(dir)
			if err != nil {
				return nil, err
			}
			if len(lessons) == 0 {
				rows = append(rows, blueprint.Row{MainTopic: topic.Name, SubTopic: sub.Name})
				continue
			}
			for _, l := range lessons {
				rows = append(rows, blueprint.Row{
					MainTopic: topic.Name,
					SubTopic:  sub.Name,
					Lesson:    l.Name(),
					Periods:   l.Periods(),
					Available: Inventory(l),
				})
			}
		}
	}

	SetPeriodPercent(rows)
	slog.Debug("bank rows built", "exam", exam, "grade", grade.ID, "rows", len(rows))
	return rows, nil
}

// examDir resolves an exam name to its folder. The name must be one path
// element; separators of either OS are rejected.
func (b *Bank) examDir(exam string) (string, error) {
	if !filepath.IsLocal(exam) || strings.ContainsAny(exam, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrBadExam, exam)
	}
	return filepath.Join(b.root, exam), nil
}

// readLessons parses every lesson file in dir, sorted by file name.
// Unreadable files are skipped with a warning.
func readLessons(dir string) ([]LessonFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing lessons: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsLessonFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sortVietnamese(names)

	lessons := make([]LessonFile, 0, len(names))
	for _, name := range names {
		f, err := ParseLessonFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("skipping lesson file", "path", filepath.Join(dir, name), "error", err)
			continue
		}
		lessons = append(lessons, f)
	}
	return lessons, nil
}

// SetPeriodPercent sets each row's Percent to its share of all periods.
func SetPeriodPercent(rows []blueprint.Row) {
	total := blueprint.SumPeriods(rows).All
	for i := range rows {
		rows[i].Percent = 0
		if total > 0 {
			rows[i].Percent = rows[i].Periods / total * 100
		}
	}
}

// Merge carries ExaminedPeriods from old rows to fresh rows that share the
// same subtopic and lesson. fresh is modified in place and returned.
func Merge(old, fresh []blueprint.Row) []blueprint.Row {
	type key struct{ sub, lesson string }
	examined := make(map[key]float64, len(old))
	for _, r := range old {
		k := key{r.SubTopic, r.Lesson}
		if _, seen := examined[k]; !seen {
			examined[k] = r.ExaminedPeriods
		}
	}
	for i := range fresh {
		if v, ok := examined[key{fresh[i].SubTopic, fresh[i].Lesson}]; ok {
			fresh[i].ExaminedPeriods = v
		}
	}
	return fresh
}

func sortVietnamese(names []string) {
	c := collate.New(language.Vietnamese)
	sort.SliceStable(names, func(i, j int) bool {
		return c.CompareString(names[i], names[j]) < 0
	})
}
