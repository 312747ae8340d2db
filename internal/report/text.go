package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const (
	barWidth   = 24
	labelWidth = 27
	lineWidth  = 80

	colorCalm    = "#9999CC"
	colorCaution = "#FFCC00"
	colorAlert   = "#FF3333"
	colorMuted   = "#52526A"

	cautionPercent = 70
	alertPercent   = 90
)

type quota struct {
	label   string
	percent int
	reset   string
}

// WriteText renders result as labeled usage bars, one quota per line.
func WriteText(w io.Writer, result Result) error {
	if w == nil {
		return errors.New("writer is required")
	}

	renderer := lipgloss.NewRenderer(w)
	if result.Failed() {
		errStyle := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAlert))
		_, err := fmt.Fprintln(w, errStyle.Render(wordwrap.String("error: "+*result.Error, lineWidth)))
		return err
	}

	labelStyle := renderer.NewStyle().Bold(true).Width(labelWidth)
	resetStyle := renderer.NewStyle().Foreground(lipgloss.Color(colorMuted))

	quotas := []quota{
		{label: "Current session", percent: result.SessionPercent, reset: result.SessionReset},
		{label: "Current week (all models)", percent: result.WeeklyPercent, reset: result.WeeklyReset},
		{label: "Sonnet only", percent: result.SonnetPercent},
	}

	var b strings.Builder
	for _, q := range quotas {
		line := fmt.Sprintf("%s [%s] %3d%%", labelStyle.Render(q.label), renderBar(q.percent), q.percent)
		if q.reset != "" {
			line += "  " + resetStyle.Render("resets "+q.reset)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderBar draws percent as a fixed-width bar. Values outside 0-100 are
// clamped for drawing only; the printed number is left as parsed.
func renderBar(percent int) string {
	fraction := float64(clampPercent(percent)) / 100
	return progress.New(
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
		progress.WithFillCharacters('#', '.'),
		progress.WithSolidFill(barColor(percent)),
	).ViewAs(fraction)
}

func barColor(percent int) string {
	switch {
	case percent >= alertPercent:
		return colorAlert
	case percent >= cautionPercent:
		return colorCaution
	default:
		return colorCalm
	}
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
