package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var gradeNumber = regexp.MustCompile(`\d+`)

// Loader loads and caches grade catalogues from the filesystem.
type Loader struct {
	rootDir string
	grades  map[string]Grade
	mu      sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all grades under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		grades:  make(map[string]Grade),
	}

	if err := l.Reload(); err != nil {
		return nil, err
	}

	slog.Info("curriculum loaded", "grades", len(l.grades), "dir", rootDir)
	return l, nil
}

// NewStaticLoader serves the given grades without touching the filesystem.
func NewStaticLoader(grades ...Grade) *Loader {
	l := &Loader{grades: make(map[string]Grade, len(grades))}
	for _, g := range grades {
		l.grades[g.ID] = g
	}
	return l
}

// Reload re-reads every grade file under the root directory.
func (l *Loader) Reload() error {
	if l.rootDir == "" {
		return nil
	}
	grades := make(map[string]Grade)
	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		return loadGrade(path, grades)
	})
	if err != nil {
		return fmt.Errorf("loading curriculum: %w", err)
	}

	l.mu.Lock()
	l.grades = grades
	l.mu.Unlock()
	return nil
}

func loadGrade(path string, into map[string]Grade) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var grade Grade
	if err := yaml.Unmarshal(data, &grade); err != nil {
		slog.Warn("skipping invalid grade YAML", "path", path, "error", err)
		return nil
	}

	if grade.ID == "" {
		return nil // Not a grade file
	}
	if _, dup := into[grade.ID]; dup {
		slog.Warn("duplicate grade, keeping first", "grade", grade.ID, "path", path)
		return nil
	}

	into[grade.ID] = grade
	return nil
}

// GetGrade returns a grade by ID, e.g. "Lớp 6".
func (l *Loader) GetGrade(id string) (Grade, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.grades[id]
	return g, ok
}

// AllGrades returns all loaded grades ordered by ID.
func (l *Loader) AllGrades() []Grade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	grades := make([]Grade, 0, len(l.grades))
	for _, g := range l.grades {
		grades = append(grades, g)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].ID < grades[j].ID })
	return grades
}

// Requirements returns the requirement text of a subtopic.
func (l *Loader) Requirements(gradeID, topic, subtopic string) (string, bool) {
	g, ok := l.GetGrade(gradeID)
	if !ok {
		return "", false
	}
	for _, t := range g.Topics {
		if t.Name != topic {
			continue
		}
		for _, s := range t.Subtopics {
			if s.Name == subtopic {
				return s.Requirements, true
			}
		}
	}
	return "", false
}

// GradeID extracts "Lớp N" from the first number in an exam or folder name.
func GradeID(name string) (string, bool) {
	n := gradeNumber.FindString(name)
	if n == "" {
		return "", false
	}
	return "Lớp " + n, true
}

// GradeForExam resolves the grade an exam name refers to.
func (l *Loader) GradeForExam(name string) (Grade, bool) {
	id, ok := GradeID(name)
	if !ok {
		return Grade{}, false
	}
	return l.GetGrade(id)
}
