package reasoning

// Gap is a qualitative shortcoming detected in an explanation.
type Gap string

const (
	GapBrief        Gap = "brief"
	GapNoNotation   Gap = "no-notation"
	GapNoKeyConcept Gap = "no-key-concept"
	GapInvalidLatex Gap = "invalid-latex"
)

// Message is the learner-facing wording of the gap.
func (g Gap) Message() string {
	switch g {
	case GapBrief:
		return "Reasoning is too brief."
	case GapNoNotation:
		return "No mathematical notation used."
	case GapNoKeyConcept:
		return "Key concept (e.g., chain rule) not referenced."
	case GapInvalidLatex:
		return "LaTeX has syntax errors."
	}
	return string(g)
}

// Gaps lists the shortcomings that actually held, in a stable order.
func (a Assessment) Gaps() []Gap {
	var gaps []Gap
	d := a.Details
	if d.Empty || d.WordCount < SubstanceWords {
		gaps = append(gaps, GapBrief)
	}
	if !d.HasNotation {
		gaps = append(gaps, GapNoNotation)
	}
	if d.VocabHits == 0 {
		gaps = append(gaps, GapNoKeyConcept)
	}
	if len(d.LatexErrors) > 0 {
		gaps = append(gaps, GapInvalidLatex)
	}
	return gaps
}

// Strengths lists the positive signals, mirroring Gaps.
func (a Assessment) Strengths() []string {
	d := a.Details
	if d.Empty {
		return nil
	}
	var out []string
	if d.WordCount >= SubstanceWords {
		out = append(out, "Explanation length is sufficient.")
	}
	if d.HasNotation {
		out = append(out, "Uses mathematical notation.")
	}
	if d.VocabHits > 0 {
		out = append(out, "References key mathematical concept(s).")
	}
	if len(d.LatexErrors) == 0 {
		out = append(out, "Valid LaTeX syntax.")
	}
	return out
}
