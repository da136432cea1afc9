package blueprint

import (
	"encoding/json"
	"fmt"
)

// Position is the contiguous question-number range of one (row, level, kind)
// cell in the rendered exam.
type Position struct {
	Row   int
	Level Level
	Kind  Kind
	Start int
	End   int
}

// Label renders the range as "Câu 3" or "Câu 3-5", with a "(TL)" suffix
// for essays.
func (p Position) Label() string {
	label := fmt.Sprintf("Câu %d", p.Start)
	if p.End != p.Start {
		label = fmt.Sprintf("Câu %d-%d", p.Start, p.End)
	}
	if p.Kind == Essay {
		label += " (TL)"
	}
	return label
}

type positionJSON struct {
	Row   int    `json:"row"`
	Level string `json:"level"`
	Kind  string `json:"kind"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

// MarshalJSON writes level and kind as short codes plus the label.
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(positionJSON{
		Row:   p.Row,
		Level: p.Level.Code(),
		Kind:  p.Kind.Code(),
		Start: p.Start,
		End:   p.End,
		Label: p.Label(),
	})
}

// UnmarshalJSON reads the shape written by MarshalJSON.
func (p *Position) UnmarshalJSON(data []byte) error {
	var in positionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	level, ok := ParseLevel(in.Level)
	if !ok {
		return fmt.Errorf("unknown level %q", in.Level)
	}
	kind := MultipleChoice
	if in.Kind == Essay.Code() {
		kind = Essay
	}
	*p = Position{Row: in.Row, Level: level, Kind: kind, Start: in.Start, End: in.End}
	return nil
}

// Positions lists question ranges in numbering order.
type Positions []Position

// Label returns the label for a cell, or "" when the cell holds no question.
func (ps Positions) Label(row int, level Level, kind Kind) string {
	for _, p := range ps {
		if p.Row == row && p.Level == level && p.Kind == kind {
			return p.Label()
		}
	}
	return ""
}

// IndexPositions numbers questions from final counts. Multiple-choice and
// essay questions use independent counters; each walks levels NB, TH, VD,
// VDC and, within a level, rows in table order.
func IndexPositions(rows []Row) Positions {
	var out Positions
	for _, kind := range Kinds {
		next := 1
		for _, level := range Levels {
			for i := range rows {
				n := rows[i].Allocated[level][kind]
				if n <= 0 {
					continue
				}
				out = append(out, Position{
					Row:   i,
					Level: level,
					Kind:  kind,
					Start: next,
					End:   next + n - 1,
				})
				next += n
			}
		}
	}
	return out
}
