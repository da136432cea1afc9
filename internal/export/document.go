package export

import (
	"time"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
)

// Document is everything an export needs about one blueprint.
type Document struct {
	ExamName  string
	Grade     string
	FinalExam bool
	CreatedAt time.Time
	Rows      []blueprint.Row
	Positions blueprint.Positions
	// Requirements holds the requirement text of each row, index-aligned
	// with Rows. It may be shorter than Rows or nil.
	Requirements []string
	Policy       blueprint.Policy
}

func (d Document) requirement(i int) string {
	if i < len(d.Requirements) {
		return d.Requirements[i]
	}
	return ""
}

func (d Document) policy() blueprint.Policy {
	if d.Policy == (blueprint.Policy{}) {
		return blueprint.DefaultPolicy()
	}
	return d.Policy
}
