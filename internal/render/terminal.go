package render

import (
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/mathquiz/internal/ui/theme"
)

const minWidth = 30

// Terminal renders the card for a terminal of the given width.
func Terminal(c Card, width int) string {
	if width < minWidth {
		width = minWidth
	}
	inner := width - theme.Card.GetHorizontalFrameSize()

	var parts []string
	parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Center,
		theme.Title.Render(c.Title), "  ", pillStyle(c.Pill.State).Render(c.Pill.Label)))

	if c.Summary != "" {
		parts = append(parts, "", theme.Body.Width(inner).Render(c.Summary))
	}

	if len(c.Math) > 0 {
		parts = append(parts, "")
		for _, m := range c.Math {
			line := theme.Math.Render(`\(` + m.Math + `\)`)
			if m.Label != "" {
				line = theme.MathLabel.Render(m.Label) + "  " + line
			}
			parts = append(parts, line)
		}
	}

	for _, s := range []Section{c.Strengths, c.Issues, c.NextSteps} {
		parts = append(parts, "", terminalSection(s, inner))
	}

	if len(c.Badges) > 0 {
		badges := make([]string, 0, len(c.Badges))
		for _, b := range c.Badges {
			badges = append(badges, theme.Badge.Render(b))
		}
		parts = append(parts, "", strings.Join(badges, " "))
	}

	return theme.Card.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func terminalSection(s Section, width int) string {
	lines := []string{theme.Heading.Render(s.Heading)}
	if len(s.Items) == 0 {
		lines = append(lines, theme.Hint.Render(s.Placeholder))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	item := theme.Body.Width(width - 2)
	for _, it := range s.Items {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, "• ", item.Render(it)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func pillStyle(s State) lipgloss.Style {
	switch s {
	case StateAffirmative:
		return theme.Affirmative
	case StateWarning:
		return theme.Warning
	default:
		return theme.Negative
	}
}
