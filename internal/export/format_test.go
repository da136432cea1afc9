package export_test

import (
	"testing"

	"github.com/p-n-ai/pai-matrix/internal/export"
)

func TestFormatScore(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{10, "10,0"},
		{3.5, "3,5"},
		{0.25, "0,25"},
		{2.75, "2,75"},
		{0, "0,0"},
		{6.666666, "6,67"},
	}
	for _, tt := range tests {
		if got := export.FormatScore(tt.in); got != tt.want {
			t.Errorf("FormatScore(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{40, "40"},
		{40.5, "40,5"},
		{40.46, "40,5"},
		{33.333, "33,3"},
		{99.96, "100"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := export.FormatPercent(tt.in); got != tt.want {
			t.Errorf("FormatPercent(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
