package theme

import (
	"charm.land/lipgloss/v2"
)

// Color palette
var (
	Primary   = lipgloss.Color("#8B5CF6") // Vivid Purple
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F97316") // Orange
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	BgCard    = lipgloss.Color("#1E293B") // Dark Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Heading = lipgloss.NewStyle().
		Bold(true).
		Foreground(Secondary)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)
)

// Layout
var (
	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(1, 2)
)

// Verdict pills
var (
	pill = lipgloss.NewStyle().
		Bold(true).
		Foreground(BgCard).
		Padding(0, 1)

	Affirmative = pill.Background(Success)
	Warning     = pill.Background(Accent)
	Negative    = pill.Background(Error)
)

// Components
var (
	Badge = lipgloss.NewStyle().
		Foreground(Text).
		Background(Border).
		Padding(0, 1)

	MathLabel = lipgloss.NewStyle().
			Foreground(TextDim).
			Bold(true)

	Math = lipgloss.NewStyle().
		Foreground(Accent)
)
