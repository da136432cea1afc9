package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
)

type jsonFile struct {
	ThongTinChung jsonHeader `json:"thongTinChung"`
	ChiTiet       []jsonRow  `json:"chiTiet"`
}

type jsonHeader struct {
	TenDe   string `json:"tenDe"`
	NgayTao string `json:"ngayTao"`
}

type jsonRow struct {
	ThongTinChung jsonRowInfo       `json:"thongTinChung"`
	YeuCauCanDat  string            `json:"yeuCauCanDat"`
	TracNghiem    jsonLevels        `json:"tracNghiem"`
	TuLuan        jsonLevels        `json:"tuLuan"`
	TiLeDiem      float64           `json:"tiLeDiem"`
	ViTriCauHoi   map[string]string `json:"viTriCauHoi,omitempty"`
}

type jsonRowInfo struct {
	STT     string  `json:"stt"`
	Chuong  string  `json:"chuong"`
	NoiDung string  `json:"noiDung"`
	Bai     string  `json:"bai"`
	SoTiet  float64 `json:"soTiet"`
	DaThi   bool    `json:"daThi"`
	// SoTietDaThi keeps partial examined periods, which DaThi cannot.
	SoTietDaThi *float64 `json:"soTietDaThi,omitempty"`
}

type jsonLevels struct {
	NB  int `json:"NB"`
	TH  int `json:"TH"`
	VD  int `json:"VD"`
	VDC int `json:"VDC"`
}

func levelsOf(c blueprint.Counts, k blueprint.Kind) jsonLevels {
	return jsonLevels{
		NB:  c[blueprint.Recall][k],
		TH:  c[blueprint.Comprehension][k],
		VD:  c[blueprint.Application][k],
		VDC: c[blueprint.HighApplication][k],
	}
}

func (l jsonLevels) into(c *blueprint.Counts, k blueprint.Kind) {
	c[blueprint.Recall][k] = l.NB
	c[blueprint.Comprehension][k] = l.TH
	c[blueprint.Application][k] = l.VD
	c[blueprint.HighApplication][k] = l.VDC
}

// check rejects negative counts.
func (l jsonLevels) check(field string) error {
	for _, c := range []struct {
		code string
		n    int
	}{{"NB", l.NB}, {"TH", l.TH}, {"VD", l.VD}, {"VDC", l.VDC}} {
		if c.n < 0 {
			return fmt.Errorf("%s %s must be non-negative, got %d", field, c.code, c.n)
		}
	}
	return nil
}

// EncodeJSON writes doc in the interchange format, indented by two spaces.
func EncodeJSON(w io.Writer, doc Document) error {
	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	out := jsonFile{
		ThongTinChung: jsonHeader{
			TenDe:   doc.ExamName,
			NgayTao: created.UTC().Format(time.RFC3339),
		},
		ChiTiet: make([]jsonRow, 0, len(doc.Rows)),
	}

	for i := range doc.Rows {
		r := &doc.Rows[i]
		examined := r.Examined()
		row := jsonRow{
			ThongTinChung: jsonRowInfo{
				STT:         strconv.Itoa(i + 1),
				Chuong:      r.MainTopic,
				NoiDung:     r.SubTopic,
				Bai:         r.Lesson,
				SoTiet:      r.Periods,
				DaThi:       r.IsOldLesson(),
				SoTietDaThi: &examined,
			},
			YeuCauCanDat: doc.requirement(i),
			TracNghiem:   levelsOf(r.Allocated, blueprint.MultipleChoice),
			TuLuan:       levelsOf(r.Allocated, blueprint.Essay),
			TiLeDiem:     r.Percent,
		}
		for _, l := range blueprint.Levels {
			for _, k := range blueprint.Kinds {
				if label := doc.Positions.Label(i, l, k); label != "" {
					if row.ViTriCauHoi == nil {
						row.ViTriCauHoi = make(map[string]string)
					}
					row.ViTriCauHoi[l.Code()+"_"+k.Code()] = label
				}
			}
		}
		out.ChiTiet = append(out.ChiTiet, row)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding matrix json: %w", err)
	}
	return nil
}

// DecodeJSON reads the interchange format. Allocated counts come from
// tracNghiem and tuLuan; availability is left empty. A file without
// soTietDaThi marks daThi lessons as fully examined.
func DecodeJSON(r io.Reader) (Document, error) {
	var in jsonFile
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return Document{}, fmt.Errorf("decoding matrix json: %w", err)
	}

	doc := Document{ExamName: in.ThongTinChung.TenDe}
	if in.ThongTinChung.NgayTao != "" {
		created, err := time.Parse(time.RFC3339, in.ThongTinChung.NgayTao)
		if err != nil {
			return Document{}, fmt.Errorf("parsing ngayTao: %w", err)
		}
		doc.CreatedAt = created
	}

	doc.Rows = make([]blueprint.Row, 0, len(in.ChiTiet))
	doc.Requirements = make([]string, 0, len(in.ChiTiet))
	for _, item := range in.ChiTiet {
		info := item.ThongTinChung
		row := blueprint.Row{
			MainTopic: info.Chuong,
			SubTopic:  info.NoiDung,
			Lesson:    info.Bai,
			Periods:   info.SoTiet,
			Percent:   item.TiLeDiem,
		}
		switch {
		case info.SoTietDaThi != nil:
			row.ExaminedPeriods = *info.SoTietDaThi
		case info.DaThi:
			row.ExaminedPeriods = info.SoTiet
		}
		if err := item.TracNghiem.check("tracNghiem"); err != nil {
			return Document{}, fmt.Errorf("row %s: %w", info.STT, err)
		}
		if err := item.TuLuan.check("tuLuan"); err != nil {
			return Document{}, fmt.Errorf("row %s: %w", info.STT, err)
		}
		item.TracNghiem.into(&row.Allocated, blueprint.MultipleChoice)
		item.TuLuan.into(&row.Allocated, blueprint.Essay)

		if err := row.Validate(); err != nil {
			return Document{}, fmt.Errorf("row %s: %w", info.STT, err)
		}
		doc.Rows = append(doc.Rows, row)
		doc.Requirements = append(doc.Requirements, item.YeuCauCanDat)
	}
	doc.Positions = blueprint.IndexPositions(doc.Rows)
	return doc, nil
}
