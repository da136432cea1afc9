package bank_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-matrix/internal/bank"
	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/curriculum"
)

const exam = "Lớp 6 - Giữa kì 1"

func testGrade() curriculum.Grade {
	return curriculum.Grade{
		ID: "Lớp 6",
		Topics: []curriculum.Topic{
			{Name: "Chủ đề A", Subtopics: []curriculum.Subtopic{{Name: "A1"}, {Name: "A2"}}},
			{Name: "Chủ đề B", Subtopics: []curriculum.Subtopic{{Name: "B1"}, {Name: "B2"}}},
		},
	}
}

func setupTestBank(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write := func(rel, content string) {
		path := filepath.Join(root, exam, rel)
		os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// Vietnamese collation puts "Đa" before "Em".
	write("A1/Em.json", `{
  "info": {"grade": "Lớp 6", "lesson": "Bài 2. Em", "soTiet": 3},
  "questions": [
    {"category": "mc", "level": "NB"},
    {"category": "mc", "level": "th"},
    {"category": "essay", "level": "VDC"},
    {"category": "mc"}
  ]
}`)
	write("A1/Đa.yaml", `
thongTinChung:
  bai: "Bài 1. Đa"
  soTiet: 2
tracNghiem:
  - mucDo: NB
  - mucDo: TH
  - mucDo: XYZ
tuLuan:
  - mucDo: VD
  - {}
`)
	write("A1/notes.txt", "ignored")
	write("A1/broken.json", "{not json")
	os.MkdirAll(filepath.Join(root, exam, "B1"), 0o755)
	write("Unlisted/x.json", `{"questions": []}`)
	write("B2/plain.json", `{"questions": [{"category": "essay", "level": "VD"}]}`)

	return root
}

func TestBuildRows(t *testing.T) {
	root := setupTestBank(t)
	b := bank.New(root, curriculum.NewStaticLoader(testGrade()))

	rows, err := b.BuildRows(exam)
	if err != nil {
		t.Fatalf("BuildRows() error = %v", err)
	}

	want := []struct {
		sub, lesson string
		periods     float64
	}{
		{"A1", "Bài 1. Đa", 2},
		{"A1", "Bài 2. Em", 3},
		{"B1", "", 0},
		{"B2", "plain", 1},
	}
	if len(rows) != len(want) {
		t.Fatalf("BuildRows() = %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i, w := range want {
		if rows[i].SubTopic != w.sub || rows[i].Lesson != w.lesson || rows[i].Periods != w.periods {
			t.Errorf("rows[%d] = %s/%q/%v, want %s/%q/%v", i, rows[i].SubTopic, rows[i].Lesson, rows[i].Periods, w.sub, w.lesson, w.periods)
		}
	}
	if rows[0].MainTopic != "Chủ đề A" || rows[3].MainTopic != "Chủ đề B" {
		t.Errorf("main topics = %q, %q", rows[0].MainTopic, rows[3].MainTopic)
	}

	if math.Abs(rows[1].Percent-50) > 1e-9 {
		t.Errorf("rows[1].Percent = %v, want 50", rows[1].Percent)
	}
	if rows[2].Percent != 0 {
		t.Errorf("placeholder Percent = %v, want 0", rows[2].Percent)
	}
}

func TestBuildRows_Inventory(t *testing.T) {
	root := setupTestBank(t)
	b := bank.New(root, curriculum.NewStaticLoader(testGrade()))

	rows, err := b.BuildRows(exam)
	if err != nil {
		t.Fatalf("BuildRows() error = %v", err)
	}

	tests := []struct {
		row   int
		level blueprint.Level
		kind  blueprint.Kind
		want  int
	}{
		{0, blueprint.Recall, blueprint.MultipleChoice, 1},
		{0, blueprint.Comprehension, blueprint.MultipleChoice, 1},
		{0, blueprint.Application, blueprint.Essay, 1},
		{0, blueprint.Recall, blueprint.Essay, 1},
		{1, blueprint.Recall, blueprint.MultipleChoice, 2},
		{1, blueprint.Comprehension, blueprint.MultipleChoice, 1},
		{1, blueprint.HighApplication, blueprint.Essay, 1},
		{3, blueprint.Application, blueprint.Essay, 1},
	}
	for _, tt := range tests {
		if got := rows[tt.row].Available[tt.level][tt.kind]; got != tt.want {
			t.Errorf("rows[%d] %s %s = %d, want %d", tt.row, tt.level.Code(), tt.kind.Code(), got, tt.want)
		}
	}
	if got := rows[0].Available.Total(); got != 4 {
		t.Errorf("rows[0] total = %d, want 4 (unknown level dropped)", got)
	}
}

func TestBuildRows_NoGrade(t *testing.T) {
	root := setupTestBank(t)

	tests := []struct {
		name   string
		loader *curriculum.Loader
		exam   string
	}{
		{"no number in name", curriculum.NewStaticLoader(testGrade()), "Giữa kì"},
		{"grade not in curriculum", curriculum.NewStaticLoader(), exam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bank.New(root, tt.loader).BuildRows(tt.exam)
			if !errors.Is(err, bank.ErrNoGrade) {
				t.Errorf("BuildRows() error = %v, want ErrNoGrade", err)
			}
		})
	}
}

func TestBuildRows_RejectsPathsOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "bank")
	os.MkdirAll(root, 0o755)
	outside := filepath.Join(dir, "secret 6", "A1", "x.json")
	os.MkdirAll(filepath.Dir(outside), 0o755)
	if err := os.WriteFile(outside, []byte(`{"info": {"lesson": "outside", "soTiet": 9}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	b := bank.New(root, curriculum.NewStaticLoader(testGrade()))

	for _, name := range []string{"../secret 6", `..\secret 6`, "nested/Lớp 6", filepath.Join(dir, "secret 6"), "..", ""} {
		t.Run(name, func(t *testing.T) {
			rows, err := b.BuildRows(name)
			if !errors.Is(err, bank.ErrBadExam) {
				t.Errorf("BuildRows(%q) = %d rows, error = %v; want ErrBadExam", name, len(rows), err)
			}
		})
	}
}

func TestBuildRows_MissingExamFolder(t *testing.T) {
	b := bank.New(t.TempDir(), curriculum.NewStaticLoader(testGrade()))

	if _, err := b.BuildRows(exam); err == nil {
		t.Error("BuildRows() error = nil, want missing folder error")
	}
}

func TestExams(t *testing.T) {
	root := setupTestBank(t)
	os.MkdirAll(filepath.Join(root, "Lớp 6 - Cuối kì 1"), 0o755)
	os.WriteFile(filepath.Join(root, "readme.md"), []byte("x"), 0o644)

	exams, err := bank.New(root, curriculum.NewStaticLoader()).Exams()
	if err != nil {
		t.Fatalf("Exams() error = %v", err)
	}
	if len(exams) != 2 || exams[0] != "Lớp 6 - Cuối kì 1" {
		t.Errorf("Exams() = %q", exams)
	}
}

func TestLessonFile_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Bài 5.json")
	os.WriteFile(path, []byte(`{"info": {"soTiet": 0}}`), 0o644)

	f, err := bank.ParseLessonFile(path)
	if err != nil {
		t.Fatalf("ParseLessonFile() error = %v", err)
	}
	if f.Name() != "Bài 5" {
		t.Errorf("Name() = %q, want file name", f.Name())
	}
	if f.Periods() != 1 {
		t.Errorf("Periods() = %v, want 1", f.Periods())
	}

	if _, err := bank.ParseLessonFile(filepath.Join(dir, "x.txt")); err == nil {
		t.Error("ParseLessonFile(missing) error = nil")
	}
}

func TestMerge(t *testing.T) {
	old := []blueprint.Row{
		{SubTopic: "A1", Lesson: "Bài 1", Periods: 2, ExaminedPeriods: 2},
		{SubTopic: "A1", Lesson: "Bài 2", Periods: 3, ExaminedPeriods: 1},
		{SubTopic: "A2", Lesson: "Gone", ExaminedPeriods: 4},
	}
	fresh := []blueprint.Row{
		{SubTopic: "A1", Lesson: "Bài 1", Periods: 2},
		{SubTopic: "A1", Lesson: "Bài 2", Periods: 4},
		{SubTopic: "A1", Lesson: "Bài 3", Periods: 1},
	}

	got := bank.Merge(old, fresh)

	want := []float64{2, 1, 0}
	for i, w := range want {
		if got[i].ExaminedPeriods != w {
			t.Errorf("rows[%d].ExaminedPeriods = %v, want %v", i, got[i].ExaminedPeriods, w)
		}
	}
	if got[1].Periods != 4 {
		t.Errorf("Merge() changed fresh periods to %v", got[1].Periods)
	}
}

func TestBuildRows_ShippedSample(t *testing.T) {
	loader, err := curriculum.NewLoader(filepath.Join("..", "..", "data", "curriculum"))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	b := bank.New(filepath.Join("..", "..", "data", "bank"), loader)

	rows, err := b.BuildRows(exam)
	if err != nil {
		t.Fatalf("BuildRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("BuildRows() = %d rows, want 4", len(rows))
	}
	if rows[0].Lesson != "Bài 1. Thông tin và dữ liệu" || rows[3].Lesson != "Bài 4. Mạng máy tính" {
		t.Errorf("lessons = %q .. %q", rows[0].Lesson, rows[3].Lesson)
	}

	var total blueprint.Counts
	for _, r := range rows {
		for _, l := range blueprint.Levels {
			for _, k := range blueprint.Kinds {
				total.Add(l, k, r.Available.Get(l, k))
			}
		}
	}
	if got := total.Get(blueprint.Recall, blueprint.MultipleChoice); got != 25 {
		t.Errorf("NB choice inventory = %d, want 25", got)
	}
	if got := total.Get(blueprint.HighApplication, blueprint.Essay); got != 1 {
		t.Errorf("VDC essay inventory = %d, want 1", got)
	}
}
