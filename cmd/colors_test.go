package cmd

import (
	"testing"

	"github.com/fatih/color"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

func TestFormatRiskWithColor(t *testing.T) {
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() {
		color.NoColor = original
	})

	tests := []struct {
		name  string
		level risk.Level
		want  string
	}{
		{name: "critical", level: risk.Critical, want: "CRITICAL"},
		{name: "high", level: risk.High, want: "HIGH"},
		{name: "medium", level: risk.Medium, want: "MEDIUM"},
		{name: "low", level: risk.Low, want: "LOW"},
		{name: "unknown passes through", level: risk.Level("ODD"), want: "ODD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatRiskWithColor(tt.level); got != tt.want {
				t.Fatalf("formatRiskWithColor(%q) = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}
