// Package blueprint allocates exam blueprint (ma trận đề) question counts
// across lessons by cognitive level and question type.
package blueprint

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Level is a cognitive level of a question.
type Level int

const (
	Recall Level = iota
	Comprehension
	Application
	HighApplication
)

// NumLevels is the number of cognitive levels.
const NumLevels = 4

// Levels lists the cognitive levels in display order.
var Levels = [NumLevels]Level{Recall, Comprehension, Application, HighApplication}

// Code returns the Vietnamese short code (NB, TH, VD, VDC).
func (l Level) Code() string {
	switch l {
	case Recall:
		return "NB"
	case Comprehension:
		return "TH"
	case Application:
		return "VD"
	case HighApplication:
		return "VDC"
	default:
		return "unknown"
	}
}

func (l Level) String() string {
	switch l {
	case Recall:
		return "recall"
	case Comprehension:
		return "comprehension"
	case Application:
		return "application"
	case HighApplication:
		return "high_application"
	default:
		return "unknown"
	}
}

// ParseLevel accepts a short code (NB, TH, VD, VDC) in any case.
func ParseLevel(code string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "NB":
		return Recall, true
	case "TH":
		return Comprehension, true
	case "VD":
		return Application, true
	case "VDC":
		return HighApplication, true
	}
	return 0, false
}

// Kind is a question type.
type Kind int

const (
	MultipleChoice Kind = iota
	Essay
)

// NumKinds is the number of question types.
const NumKinds = 2

// Kinds lists the question types in display order.
var Kinds = [NumKinds]Kind{MultipleChoice, Essay}

// Code returns the Vietnamese short code (TN, TL).
func (k Kind) Code() string {
	if k == Essay {
		return "TL"
	}
	return "TN"
}

func (k Kind) String() string {
	if k == Essay {
		return "essay"
	}
	return "multiple_choice"
}

// Counts holds a non-negative integer per (level, kind).
type Counts [NumLevels][NumKinds]int

// Get returns the count at (l, k).
func (c *Counts) Get(l Level, k Kind) int { return c[l][k] }

// Add adds n to the count at (l, k).
func (c *Counts) Add(l Level, k Kind, n int) { c[l][k] += n }

// Total sums every cell.
func (c *Counts) Total() int {
	total := 0
	for _, l := range Levels {
		for _, k := range Kinds {
			total += c[l][k]
		}
	}
	return total
}

// MarshalJSON encodes counts as {"NB":{"TN":1,"TL":0},...}.
func (c Counts) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]int, NumLevels)
	for _, l := range Levels {
		out[l.Code()] = map[string]int{
			MultipleChoice.Code(): c[l][MultipleChoice],
			Essay.Code():          c[l][Essay],
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the shape written by MarshalJSON.
func (c *Counts) UnmarshalJSON(data []byte) error {
	var in map[string]map[string]int
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Counts{}
	for code, kinds := range in {
		l, ok := ParseLevel(code)
		if !ok {
			return fmt.Errorf("unknown level %q", code)
		}
		for kc, n := range kinds {
			switch strings.ToUpper(kc) {
			case "TN":
				c[l][MultipleChoice] = n
			case "TL":
				c[l][Essay] = n
			default:
				return fmt.Errorf("unknown question type %q", kc)
			}
		}
	}
	return nil
}

// Row is one lesson of the blueprint table.
type Row struct {
	MainTopic       string  `json:"main_topic"`
	SubTopic        string  `json:"sub_topic"`
	Lesson          string  `json:"lesson"`
	Periods         float64 `json:"periods"`
	ExaminedPeriods float64 `json:"examined_periods"`
	Available       Counts  `json:"available"`
	Allocated       Counts  `json:"allocated"`
	TargetScore     float64 `json:"target_score"`
	Percent         float64 `json:"percent"`
}

// Examined returns ExaminedPeriods clamped to [0, Periods].
func (r *Row) Examined() float64 {
	return math.Min(math.Max(r.ExaminedPeriods, 0), math.Max(r.Periods, 0))
}

// NewPeriods returns the periods not yet covered by a prior exam.
func (r *Row) NewPeriods() float64 {
	return math.Max(r.Periods-r.Examined(), 0)
}

// IsOldLesson reports whether the lesson was fully examined before.
func (r *Row) IsOldLesson() bool {
	return r.Examined() > 0 && r.NewPeriods() == 0
}

// IsNewLesson reports whether the lesson has any new content.
func (r *Row) IsNewLesson() bool {
	return r.NewPeriods() > 0
}

// Remaining returns the unallocated availability at (l, k).
func (r *Row) Remaining(l Level, k Kind) int {
	return r.Available[l][k] - r.Allocated[l][k]
}

// Score returns the points earned by the row's allocated questions.
func (r *Row) Score(p Policy) float64 {
	score := 0.0
	for _, l := range Levels {
		score += float64(r.Allocated[l][MultipleChoice]) * p.ChoicePoints
		score += float64(r.Allocated[l][Essay]) * p.EssayPoints
	}
	return score
}

// Validate rejects rows whose numbers cannot be allocated against.
func (r *Row) Validate() error {
	if math.IsNaN(r.Periods) || math.IsInf(r.Periods, 0) || r.Periods < 0 {
		return fmt.Errorf("periods must be a non-negative number, got %v", r.Periods)
	}
	if math.IsNaN(r.ExaminedPeriods) || math.IsInf(r.ExaminedPeriods, 0) {
		return fmt.Errorf("examined periods must be a number, got %v", r.ExaminedPeriods)
	}
	for _, l := range Levels {
		for _, k := range Kinds {
			if r.Available[l][k] < 0 {
				return fmt.Errorf("available %s %s must be non-negative, got %d", l.Code(), k.Code(), r.Available[l][k])
			}
		}
	}
	return nil
}

// CloneRows returns a deep copy of rows.
func CloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}
