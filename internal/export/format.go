// Package export renders blueprints as an Excel workbook and as the JSON
// interchange format read by the exam generator.
package export

import (
	"math"
	"strconv"
	"strings"
)

// FormatScore renders points with a decimal comma, rounded to two places.
// Whole numbers keep one decimal: 10 → "10,0", 3.5 → "3,5", 0.25 → "0,25".
func FormatScore(points float64) string {
	scaled := math.Round(points * 100)
	if math.Mod(scaled, 100) == 0 {
		return comma(strconv.FormatFloat(scaled/100, 'f', 1, 64))
	}
	return comma(strconv.FormatFloat(scaled/100, 'f', -1, 64))
}

// FormatPercent renders a percentage rounded to one decimal, dropping the
// decimal when whole: 40 → "40", 40.46 → "40,5".
func FormatPercent(v float64) string {
	rounded := math.Round(v*10) / 10
	if rounded == math.Trunc(rounded) {
		return strconv.FormatFloat(rounded, 'f', 0, 64)
	}
	return comma(strconv.FormatFloat(rounded, 'f', -1, 64))
}

func comma(s string) string {
	return strings.Replace(s, ".", ",", 1)
}
