// Package report renders an ExecutionReport for terminal output.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/gaze/pkg/runtime"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorDim    = lipgloss.Color("240")

	titleStyle  = lipgloss.NewStyle().Bold(true)
	passedStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	failedStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	skipStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	errStyle    = lipgloss.NewStyle().Foreground(colorRed)
)

// Render produces the final human-readable report: scenario name, overall
// status, total duration, then one line per recorded top-level step.
func Render(r *runtime.ExecutionReport) string {
	var b strings.Builder

	status := passedStyle.Render("PASSED")
	if !r.Success {
		status = failedStyle.Render("FAILED")
	}
	fmt.Fprintf(&b, "\n%s  %s  %s\n",
		titleStyle.Render(r.Scenario),
		status,
		dimStyle.Render(formatMs(r.DurationMs)))

	for _, s := range r.Steps {
		fmt.Fprintf(&b, "  %s %2d  %-11s %s\n",
			glyph(s.Status),
			s.Index+1,
			s.Kind,
			dimStyle.Render(formatMs(s.DurationMs)))
		if s.Error != "" {
			fmt.Fprintf(&b, "        %s\n", errStyle.Render(s.Error))
		}
	}

	// Fatal errors are reported once, distinctly, after the step lines.
	if r.Error != "" {
		fmt.Fprintf(&b, "\n  %s %s\n", failedStyle.Render("fatal:"), errStyle.Render(r.Error))
	}

	return b.String()
}

func glyph(s runtime.Status) string {
	switch s {
	case runtime.StatusPassed:
		return passedStyle.Render("✓")
	case runtime.StatusFailed:
		return failedStyle.Render("✗")
	case runtime.StatusSkipped:
		return skipStyle.Render("⊘")
	}
	return "?"
}

func formatMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
