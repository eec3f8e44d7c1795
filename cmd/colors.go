package cmd

import (
	"github.com/fatih/color"

	"github.com/sentinelsweep/sweep-cli/internal/risk"
)

var (
	colorCritical = color.New(color.FgRed, color.Bold).SprintFunc()
	colorHigh     = color.New(color.FgRed).SprintFunc()
	colorMedium   = color.New(color.FgYellow).SprintFunc()
	colorLow      = color.New(color.FgGreen).SprintFunc()
	colorInfo     = color.New(color.FgCyan).SprintFunc()
)

// formatRiskWithColor renders a risk tier in its severity color.
func formatRiskWithColor(level risk.Level) string {
	switch level {
	case risk.Critical:
		return colorCritical(string(level))
	case risk.High:
		return colorHigh(string(level))
	case risk.Medium:
		return colorMedium(string(level))
	case risk.Low:
		return colorLow(string(level))
	default:
		return string(level)
	}
}
