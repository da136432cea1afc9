package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
)

// Sheet names of the exported workbook.
const (
	MatrixSheet = "Ma trận"
	SpecSheet   = "Đặc tả"
)

// Column layout of the matrix sheet.
const (
	colSTT = iota + 1
	colTopic
	colSubTopic
	colLesson
	colPeriods
	colFirstCount // NB TN, NB TL, TH TN, TH TL, VD TN, VD TL, VDC TN, VDC TL
	colPercent = colFirstCount + blueprint.NumLevels*blueprint.NumKinds
)

var levelNames = [blueprint.NumLevels]string{"Nhận biết", "Thông hiểu", "Vận dụng", "Vận dụng cao"}

// countCol returns the matrix column of a (level, kind) count.
func countCol(l blueprint.Level, k blueprint.Kind) int {
	return colFirstCount + int(l)*blueprint.NumKinds + int(k)
}

// sheet writes cells to one worksheet and keeps the first error.
type sheet struct {
	f    *excelize.File
	name string
	err  error
}

func (s *sheet) cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil && s.err == nil {
		s.err = err
	}
	return name
}

func (s *sheet) set(col, row int, v any) {
	if s.err != nil {
		return
	}
	s.err = s.f.SetCellValue(s.name, s.cell(col, row), v)
}

func (s *sheet) merge(col1, row1, col2, row2 int) {
	if s.err != nil || (col1 == col2 && row1 == row2) {
		return
	}
	s.err = s.f.MergeCell(s.name, s.cell(col1, row1), s.cell(col2, row2))
}

func (s *sheet) style(col1, row1, col2, row2, style int) {
	if s.err != nil {
		return
	}
	s.err = s.f.SetCellStyle(s.name, s.cell(col1, row1), s.cell(col2, row2), style)
}

func (s *sheet) width(col1, col2 int, w float64) {
	if s.err != nil {
		return
	}
	a, _ := excelize.ColumnNumberToName(col1)
	b, _ := excelize.ColumnNumberToName(col2)
	s.err = s.f.SetColWidth(s.name, a, b, w)
}

type styles struct {
	header, body, left, bold int
}

func newStyles(f *excelize.File) (styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true}
	left := &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true}
	font := &excelize.Font{Family: "Times New Roman", Size: 11}
	boldFont := &excelize.Font{Family: "Times New Roman", Size: 11, Bold: true}

	var s styles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Border: border, Alignment: center, Font: boldFont,
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F2F2F2"}},
	}); err != nil {
		return s, err
	}
	if s.body, err = f.NewStyle(&excelize.Style{Border: border, Alignment: center, Font: font}); err != nil {
		return s, err
	}
	if s.left, err = f.NewStyle(&excelize.Style{Border: border, Alignment: left, Font: font}); err != nil {
		return s, err
	}
	if s.bold, err = f.NewStyle(&excelize.Style{Border: border, Alignment: center, Font: boldFont}); err != nil {
		return s, err
	}
	return s, nil
}

// WriteWorkbook writes doc as an .xlsx file with a matrix sheet and a
// specification sheet.
func WriteWorkbook(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f)
	if err != nil {
		return fmt.Errorf("creating styles: %w", err)
	}

	if err := f.SetSheetName("Sheet1", MatrixSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(SpecSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	if err := writeMatrix(&sheet{f: f, name: MatrixSheet}, doc, st); err != nil {
		return fmt.Errorf("writing matrix sheet: %w", err)
	}
	if err := writeSpec(&sheet{f: f, name: SpecSheet}, doc, st); err != nil {
		return fmt.Errorf("writing spec sheet: %w", err)
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func title(prefix string, doc Document) string {
	grade := strings.TrimSpace(strings.TrimPrefix(doc.Grade, "Lớp"))
	return strings.ToUpper(fmt.Sprintf("%s môn Tin lớp %s - %s", prefix, grade, doc.ExamName))
}

// topicSpans groups consecutive rows sharing a main topic.
func topicSpans(rows []blueprint.Row) [][2]int {
	var spans [][2]int
	for i := 0; i < len(rows); {
		j := i
		for j+1 < len(rows) && rows[j+1].MainTopic == rows[i].MainTopic {
			j++
		}
		spans = append(spans, [2]int{i, j})
		i = j + 1
	}
	return spans
}

func writeMatrix(s *sheet, doc Document, st styles) error {
	policy := doc.policy()

	s.set(1, 1, title("Khung ma trận đề kiểm tra", doc))
	s.merge(1, 1, colPercent, 1)
	s.style(1, 1, colPercent, 1, st.bold)

	// Three header rows.
	for col, label := range map[int]string{
		colSTT: "TT", colTopic: "Chương/Chủ đề", colSubTopic: "Nội dung/Đơn vị kiến thức",
		colLesson: "Bài", colPeriods: "Số tiết", colPercent: "Tổng % điểm",
	} {
		s.set(col, 2, label)
		s.merge(col, 2, col, 4)
	}
	s.set(colFirstCount, 2, "Mức độ nhận thức")
	s.merge(colFirstCount, 2, colPercent-1, 2)
	for _, l := range blueprint.Levels {
		c := countCol(l, blueprint.MultipleChoice)
		s.set(c, 3, levelNames[l])
		s.merge(c, 3, c+1, 3)
		s.set(c, 4, "TNKQ")
		s.set(c+1, 4, "TL")
	}
	s.style(1, 2, colPercent, 4, st.header)

	const first = 5
	for i := range doc.Rows {
		r := &doc.Rows[i]
		row := first + i
		s.set(colSTT, row, i+1)
		s.set(colTopic, row, r.MainTopic)
		s.set(colSubTopic, row, r.SubTopic)
		s.set(colLesson, row, r.Lesson)
		s.set(colPeriods, row, r.Periods)
		for _, l := range blueprint.Levels {
			for _, k := range blueprint.Kinds {
				if n := r.Allocated[l][k]; n > 0 {
					s.set(countCol(l, k), row, n)
				}
			}
		}
		s.set(colPercent, row, FormatPercent(r.Percent)+"%")
	}
	last := first + len(doc.Rows) - 1
	if len(doc.Rows) > 0 {
		s.style(1, first, colPercent, last, st.body)
		s.style(colTopic, first, colLesson, last, st.left)
		for _, span := range topicSpans(doc.Rows) {
			s.merge(colTopic, first+span[0], colTopic, first+span[1])
		}
	}

	// Totals: questions, points, and percent per level.
	count, points, percent := last+1, last+2, last+3
	s.set(colSTT, count, "Tổng số câu")
	s.set(colSTT, points, "Tổng số điểm")
	s.set(colSTT, percent, "Tỉ lệ %")
	for _, r := range []int{count, points, percent} {
		s.merge(colSTT, r, colPeriods, r)
	}
	total := 0.0
	for _, l := range blueprint.Levels {
		levelPoints := 0.0
		for _, k := range blueprint.Kinds {
			n := 0
			for i := range doc.Rows {
				n += doc.Rows[i].Allocated[l][k]
			}
			p := float64(n) * policy.ChoicePoints
			if k == blueprint.Essay {
				p = float64(n) * policy.EssayPoints
			}
			levelPoints += p
			s.set(countCol(l, k), count, n)
			s.set(countCol(l, k), points, FormatScore(p))
		}
		total += levelPoints
		c := countCol(l, blueprint.MultipleChoice)
		s.set(c, percent, FormatPercent(levelPoints/policy.TotalScore*100)+"%")
		s.merge(c, percent, c+1, percent)
	}
	s.set(colPercent, points, FormatScore(total))
	s.set(colPercent, percent, FormatPercent(total/policy.TotalScore*100)+"%")
	s.style(1, count, colPercent, percent, st.bold)

	s.width(colSTT, colSTT, 5)
	s.width(colTopic, colSubTopic, 28)
	s.width(colLesson, colLesson, 24)
	s.width(colPeriods, colPercent, 9)

	if doc.FinalExam {
		s.set(colSTT, percent+2, finalNote(doc, policy))
		s.merge(colSTT, percent+2, colPercent, percent+2)
	}
	return s.err
}

// finalNote describes the realised old/new split of a final exam.
func finalNote(doc Document, p blueprint.Policy) string {
	totals := blueprint.SumPeriods(doc.Rows)
	var oldPoints, allPoints float64
	for i := range doc.Rows {
		pts := doc.Rows[i].Score(p)
		allPoints += pts
		if doc.Rows[i].IsOldLesson() {
			oldPoints += pts
		}
	}
	var oldPeriods, oldScore float64
	if totals.All > 0 {
		oldPeriods = totals.Examined / totals.All * 100
	}
	if allPoints > 0 {
		oldScore = oldPoints / allPoints * 100
	}
	return fmt.Sprintf("* Ghi chú: nội dung đã thi giữa kì chiếm %s%% thời lượng và %s%% điểm số; nội dung mới chiếm %s%% điểm số.",
		FormatPercent(oldPeriods), FormatPercent(oldScore), FormatPercent(100-oldScore))
}

const (
	specSTT = iota + 1
	specTopic
	specSubTopic
	specRequirements
	specFirstLevel
	specLastLevel = specFirstLevel + blueprint.NumLevels - 1
)

func writeSpec(s *sheet, doc Document, st styles) error {
	s.set(1, 1, title("Bảng đặc tả đề kiểm tra", doc))
	s.merge(1, 1, specLastLevel, 1)
	s.style(1, 1, specLastLevel, 1, st.bold)

	for col, label := range map[int]string{
		specSTT: "TT", specTopic: "Chương/Chủ đề", specSubTopic: "Nội dung/Đơn vị kiến thức",
		specRequirements: "Mức độ đánh giá",
	} {
		s.set(col, 2, label)
		s.merge(col, 2, col, 3)
	}
	s.set(specFirstLevel, 2, "Số câu hỏi theo mức độ nhận thức")
	s.merge(specFirstLevel, 2, specLastLevel, 2)
	for _, l := range blueprint.Levels {
		s.set(specFirstLevel+int(l), 3, levelNames[l])
	}
	s.style(1, 2, specLastLevel, 3, st.header)

	const first = 4
	var totals [blueprint.NumLevels]int
	for i := range doc.Rows {
		r := &doc.Rows[i]
		row := first + i
		s.set(specSTT, row, i+1)
		s.set(specTopic, row, r.MainTopic)
		sub := r.SubTopic
		if r.Lesson != "" {
			sub += "\n" + r.Lesson
		}
		s.set(specSubTopic, row, sub)
		s.set(specRequirements, row, strings.TrimSpace(doc.requirement(i)))
		for _, l := range blueprint.Levels {
			var labels []string
			n := 0
			for _, k := range blueprint.Kinds {
				n += r.Allocated[l][k]
				if label := doc.Positions.Label(i, l, k); label != "" {
					labels = append(labels, label)
				}
			}
			totals[l] += n
			if n > 0 {
				s.set(specFirstLevel+int(l), row, fmt.Sprintf("%d\n%s", n, strings.Join(labels, "; ")))
			}
		}
	}
	last := first + len(doc.Rows) - 1
	if len(doc.Rows) > 0 {
		s.style(1, first, specLastLevel, last, st.body)
		s.style(specTopic, first, specRequirements, last, st.left)
		for _, span := range topicSpans(doc.Rows) {
			s.merge(specTopic, first+span[0], specTopic, first+span[1])
		}
	}

	s.set(specSTT, last+1, "Tổng")
	s.merge(specSTT, last+1, specRequirements, last+1)
	for _, l := range blueprint.Levels {
		s.set(specFirstLevel+int(l), last+1, totals[l])
	}
	s.style(1, last+1, specLastLevel, last+1, st.bold)

	s.width(specSTT, specSTT, 5)
	s.width(specTopic, specSubTopic, 26)
	s.width(specRequirements, specRequirements, 60)
	s.width(specFirstLevel, specLastLevel, 14)
	return s.err
}
