package curriculum

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
)

var (
	numberPrefix = regexp.MustCompile(`^[\d.]+\s*`)
	spaces       = regexp.MustCompile(`\s+`)
)

// Fold lowercases s, strips Vietnamese diacritics and collapses whitespace,
// so "Cuối  Kỳ" and "cuoi ky" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.NewReplacer("đ", "d", "Đ", "d").Replace(out)
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(out)), " ")
}

// headings are checked in order; "van dung cao" must precede "van dung".
var headings = []struct {
	prefix string
	level  blueprint.Level
}{
	{"nhan biet", blueprint.Recall},
	{"thong hieu", blueprint.Comprehension},
	{"van dung cao", blueprint.HighApplication},
	{"van dung", blueprint.Application},
}

// Heading reports whether line is a level heading such as "Vận dụng cao"
// or "2. Thông hiểu".
func Heading(line string) (blueprint.Level, bool) {
	core := Fold(numberPrefix.ReplaceAllString(strings.TrimSpace(line), ""))
	for _, h := range headings {
		if strings.HasPrefix(core, h.prefix) {
			return h.level, true
		}
	}
	return 0, false
}

// LevelRequirements holds requirement lines grouped by level.
type LevelRequirements [blueprint.NumLevels][]string

// Count returns the number of lines under level l.
func (r LevelRequirements) Count(l blueprint.Level) int {
	return len(r[l])
}

// RequirementsByLevel splits requirement text into its level sections.
// Lines before the first heading and lines of three characters or fewer
// are dropped.
func RequirementsByLevel(text string) LevelRequirements {
	var out LevelRequirements
	current := -1
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if level, ok := Heading(line); ok {
			current = int(level)
			continue
		}
		if current < 0 || utf8.RuneCountInString(line) <= 3 {
			continue
		}
		out[current] = append(out[current], line)
	}
	return out
}
