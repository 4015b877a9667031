// Package reasoning scores the quality of a learner's written explanation.
//
// The score is additive: explanation length, domain vocabulary, and LaTeX
// validity each contribute independently. The tier breakpoints are fixed;
// verdict combination downstream depends on the tier, not the raw score.
package reasoning

import (
	"strings"

	"github.com/abhisek/mathquiz/internal/latex"
)

// Tier is the discretized reasoning-quality bucket.
type Tier string

const (
	TierPoor Tier = "poor"
	TierOK   Tier = "ok"
	TierGood Tier = "good"
)

// Scoring weights, in hundredths of a point. Accumulating integers keeps the
// tier breakpoints exact.
const (
	pointsSubstance   = 35
	pointsDetail      = 10
	pointsPerVocabHit = 3
	maxVocabPoints    = 18
	pointsValidLatex  = 22
	penaltyPerLatex   = 5

	goodThreshold = 70
	okThreshold   = 40
)

// Word-count thresholds.
const (
	SubstanceWords = 20
	DetailWords    = 40
)

// Vocabulary holds the signal terms matched case-insensitively as
// substrings. Each term counts at most once.
var Vocabulary = []string{
	"because",
	"therefore",
	"thus",
	"so that",
	"hence",
	"implies",
	"differentiate",
	"derive",
	"substitute",
	"factor",
	"cancel",
	"simplify",
	"chain rule",
	"product rule",
	"quotient rule",
	"log",
	"trig",
	"sine",
	"cosine",
	"domain",
	"range",
	"limit",
	"continuous",
	"indeterminate",
	"0/0",
}

// Details carries the signals behind a score.
type Details struct {
	WordCount   int      `json:"wordCount"`
	VocabHits   int      `json:"vocabHits"`
	Empty       bool     `json:"empty"`
	HasNotation bool     `json:"hasNotation"`
	LatexErrors []string `json:"latexErrors,omitempty"`
}

// Assessment is the result of scoring one explanation.
type Assessment struct {
	Score   float64 `json:"score"`
	Tier    Tier    `json:"tier"`
	Details Details `json:"details"`
}

// Assess scores text. Blank input short-circuits to a zero score.
func Assess(text string) Assessment {
	s := strings.TrimSpace(text)
	if s == "" {
		return Assessment{Score: 0, Tier: TierPoor, Details: Details{Empty: true}}
	}

	words := len(strings.Fields(s))
	points := 0
	if words >= SubstanceWords {
		points += pointsSubstance
	}
	if words >= DetailWords {
		points += pointsDetail
	}

	hits := vocabHits(s)
	points += min(hits*pointsPerVocabHit, maxVocabPoints)

	lv := latex.Validate(s)
	if lv.Valid {
		points += pointsValidLatex
	} else {
		points += max(0, pointsValidLatex-penaltyPerLatex*lv.ErrorCount())
	}

	points = max(0, min(100, points))

	return Assessment{
		Score: float64(points) / 100,
		Tier:  tierFor(points),
		Details: Details{
			WordCount:   words,
			VocabHits:   hits,
			HasNotation: hasNotation(s),
			LatexErrors: lv.Errors,
		},
	}
}

// TierFor maps a score in [0,1] to its tier.
func TierFor(score float64) Tier {
	// Round to hundredths so callers passing 0.7 land on the exact breakpoint.
	return tierFor(int(score*100 + 0.5))
}

func tierFor(points int) Tier {
	switch {
	case points >= goodThreshold:
		return TierGood
	case points >= okThreshold:
		return TierOK
	default:
		return TierPoor
	}
}

func vocabHits(s string) int {
	lower := strings.ToLower(s)
	n := 0
	for _, term := range Vocabulary {
		if strings.Contains(lower, term) {
			n++
		}
	}
	return n
}

var notationTokens = []string{"$", `\(`, `\[`, `\frac`, `\sin`, `\cos`, `\ln`, `\cdot`}

func hasNotation(s string) bool {
	for _, tok := range notationTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// ParseTier converts a label into a Tier. Unknown labels are poor.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierGood:
		return TierGood
	case TierOK:
		return TierOK
	default:
		return TierPoor
	}
}
