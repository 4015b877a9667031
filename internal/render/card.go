// Package render turns a feedback record into a card. Build produces the
// structured document; HTML and Terminal are its two back-ends.
package render

import (
	"github.com/abhisek/mathquiz/internal/feedback"
	"github.com/abhisek/mathquiz/internal/verdict"
)

// State is the visual state of the verdict pill.
type State string

const (
	StateAffirmative State = "affirmative"
	StateWarning     State = "warning"
	StateNegative    State = "negative"
)

// Placeholder stands in for an empty list.
const Placeholder = "—"

// Title heads every card.
const Title = "AI Feedback"

// Pill is the verdict indicator.
type Pill struct {
	State State  `json:"state"`
	Label string `json:"label"`
	Class string `json:"class"`
}

// MathRegion is one typeset excerpt. Label is empty for unlabeled regions.
type MathRegion struct {
	Label string `json:"label,omitempty"`
	Math  string `json:"math"`
}

// Section is an ordered list. Placeholder is set exactly when Items is empty.
type Section struct {
	Heading     string   `json:"heading"`
	Items       []string `json:"items"`
	Placeholder string   `json:"placeholder,omitempty"`
}

// Card is the rendered form of a feedback record.
type Card struct {
	Title     string       `json:"title"`
	Pill      Pill         `json:"pill"`
	Summary   string       `json:"summary,omitempty"`
	Math      []MathRegion `json:"math,omitempty"`
	Strengths Section      `json:"strengths"`
	Issues    Section      `json:"issues"`
	NextSteps Section      `json:"next_steps"`
	Badges    []string     `json:"badges,omitempty"`
}

// Build lays out rec as a Card. Zero-valued fields are fine.
func Build(rec feedback.Record) Card {
	return Card{
		Title:     Title,
		Pill:      pillFor(rec.Correctness),
		Summary:   rec.Summary,
		Math:      mathRegions(rec.MathHighlight),
		Strengths: section("Strengths", rec.Strengths),
		Issues:    section("Issues", rec.Issues),
		NextSteps: section("Next Steps", rec.NextSteps),
		Badges:    nonEmpty(rec.KeyConcepts),
	}
}

func pillFor(v verdict.Verdict) Pill {
	norm := verdict.Normalize(string(v))
	p := Pill{Label: norm.Label()}
	switch norm {
	case verdict.Correct:
		p.State, p.Class = StateAffirmative, "aifx-pill aifx-ok"
	case verdict.PartiallyCorrect:
		p.State, p.Class = StateWarning, "aifx-pill aifx-warn"
	default:
		p.State, p.Class = StateNegative, "aifx-pill aifx-bad"
	}
	return p
}

func section(heading string, items []string) Section {
	s := Section{Heading: heading, Items: nonEmpty(items)}
	if len(s.Items) == 0 {
		s.Items = []string{}
		s.Placeholder = Placeholder
	}
	return s
}

func nonEmpty(items []string) []string {
	var out []string
	for _, it := range items {
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

func mathRegions(h feedback.MathHighlight) []MathRegion {
	switch h.Kind {
	case feedback.HighlightSingle:
		if h.Single == "" {
			return nil
		}
		return []MathRegion{{Math: h.Single}}
	case feedback.HighlightSequence:
		out := make([]MathRegion, 0, len(h.Sequence))
		for _, m := range h.Sequence {
			out = append(out, MathRegion{Math: m})
		}
		return out
	case feedback.HighlightLabeled:
		out := make([]MathRegion, 0, len(h.Labeled))
		for _, e := range h.Labeled {
			out = append(out, MathRegion{Label: e.Label, Math: e.Math})
		}
		return out
	}
	return nil
}
