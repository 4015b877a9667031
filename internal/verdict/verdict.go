// Package verdict combines answer correctness with reasoning quality.
package verdict

import (
	"strings"

	"github.com/abhisek/mathquiz/internal/reasoning"
)

// Verdict is the final judgment shown to the learner.
type Verdict string

const (
	Correct          Verdict = "correct"
	PartiallyCorrect Verdict = "partially-correct"
	Incorrect        Verdict = "incorrect"
)

// Combine applies the grading policy. A right answer backed by poor
// reasoning is not yet mastered and is graded incorrect.
func Combine(answerCorrect bool, tier reasoning.Tier) Verdict {
	if !answerCorrect {
		return Incorrect
	}
	switch tier {
	case reasoning.TierGood:
		return Correct
	case reasoning.TierOK:
		return PartiallyCorrect
	default:
		return Incorrect
	}
}

// Normalize maps a free-form label onto a Verdict. Matching is
// case-insensitive; "partial" and "partially" are accepted as synonyms and
// anything unrecognized is Incorrect.
func Normalize(label string) Verdict {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "correct":
		return Correct
	case "partially-correct", "partial", "partially":
		return PartiallyCorrect
	default:
		return Incorrect
	}
}

func (v Verdict) String() string { return string(v) }

// Label is the human-readable form used on cards.
func (v Verdict) Label() string {
	switch Normalize(string(v)) {
	case Correct:
		return "Correct"
	case PartiallyCorrect:
		return "Partially Correct"
	default:
		return "Incorrect"
	}
}
