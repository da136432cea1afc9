package bank

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
)

// LessonFile is one lesson of the question bank. Both the current layout
// (Info, Questions) and the legacy one (ThongTinChung, TracNghiem, TuLuan)
// are accepted, and may even be mixed in one file.
type LessonFile struct {
	Info          *LessonInfo      `json:"info,omitempty" yaml:"info,omitempty"`
	ThongTinChung *LegacyInfo      `json:"thongTinChung,omitempty" yaml:"thongTinChung,omitempty"`
	Questions     []Question       `json:"questions,omitempty" yaml:"questions,omitempty"`
	TracNghiem    []LegacyQuestion `json:"tracNghiem,omitempty" yaml:"tracNghiem,omitempty"`
	TuLuan        []LegacyQuestion `json:"tuLuan,omitempty" yaml:"tuLuan,omitempty"`

	// path is the file the lesson was read from.
	path string
}

// LessonInfo is the header of the current layout.
type LessonInfo struct {
	Grade  string  `json:"grade" yaml:"grade"`
	Lesson string  `json:"lesson" yaml:"lesson"`
	SoTiet float64 `json:"soTiet,omitempty" yaml:"soTiet,omitempty"`
}

// LegacyInfo is the header of the legacy layout.
type LegacyInfo struct {
	Bai    string  `json:"bai" yaml:"bai"`
	SoTiet float64 `json:"soTiet,omitempty" yaml:"soTiet,omitempty"`
}

// Question is a bank question in the current layout. Only the fields that
// drive availability are decoded.
type Question struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Category string `json:"category" yaml:"category"`
	Level    string `json:"level" yaml:"level"`
	Content  string `json:"content,omitempty" yaml:"content,omitempty"`
}

// LegacyQuestion is a bank question in the legacy layout.
type LegacyQuestion struct {
	MucDo   string `json:"mucDo" yaml:"mucDo"`
	NoiDung string `json:"noiDung,omitempty" yaml:"noiDung,omitempty"`
}

// IsLessonFile reports whether name has a bank file extension.
func IsLessonFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// ParseLessonFile reads a lesson from JSON or YAML depending on extension.
func ParseLessonFile(path string) (LessonFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LessonFile{}, fmt.Errorf("reading lesson file: %w", err)
	}

	var f LessonFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		return LessonFile{}, fmt.Errorf("unsupported lesson file %q", filepath.Base(path))
	}
	if err != nil {
		return LessonFile{}, fmt.Errorf("parsing lesson file %s: %w", filepath.Base(path), err)
	}
	f.path = path
	return f, nil
}

// Name returns the lesson label, falling back to the file name.
func (f LessonFile) Name() string {
	if f.Info != nil && f.Info.Lesson != "" {
		return f.Info.Lesson
	}
	if f.ThongTinChung != nil && f.ThongTinChung.Bai != "" {
		return f.ThongTinChung.Bai
	}
	base := filepath.Base(f.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Periods returns the lesson's teaching periods, defaulting to 1.
func (f LessonFile) Periods() float64 {
	if f.Info != nil && f.Info.SoTiet > 0 {
		return f.Info.SoTiet
	}
	if f.ThongTinChung != nil && f.ThongTinChung.SoTiet > 0 {
		return f.ThongTinChung.SoTiet
	}
	return 1
}

// Inventory counts the lesson's questions per (level, kind). A missing
// level counts as NB; unknown levels are ignored.
func Inventory(f LessonFile) blueprint.Counts {
	var c blueprint.Counts
	add := func(code string, kind blueprint.Kind) {
		if strings.TrimSpace(code) == "" {
			code = blueprint.Recall.Code()
		}
		if level, ok := blueprint.ParseLevel(code); ok {
			c.Add(level, kind, 1)
		}
	}

	for _, q := range f.TracNghiem {
		add(q.MucDo, blueprint.MultipleChoice)
	}
	for _, q := range f.TuLuan {
		add(q.MucDo, blueprint.Essay)
	}
	for _, q := range f.Questions {
		kind := blueprint.Essay
		if q.Category == "mc" {
			kind = blueprint.MultipleChoice
		}
		add(q.Level, kind)
	}
	return c
}
