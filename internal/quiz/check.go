package quiz

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Tolerance is the absolute difference accepted for numeric answers.
const Tolerance = 0.001

// CheckResult is the outcome of checking every part of a question.
type CheckResult struct {
	Correct bool            `json:"correct"`
	Parts   map[string]bool `json:"parts"`
}

// Check grades answers keyed by part. Missing parts are wrong.
func Check(q *Question, answers map[string]string) CheckResult {
	res := CheckResult{Correct: len(q.Parts) > 0, Parts: make(map[string]bool, len(q.Parts))}
	for _, p := range q.Parts {
		ok := CheckPart(p, answers[p.Key])
		res.Parts[p.Key] = ok
		if !ok {
			res.Correct = false
		}
	}
	return res
}

// CheckPart grades a single answer.
func CheckPart(p Part, answer string) bool {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return false
	}

	switch p.Kind {
	case KindNumeric:
		got, err := ParseNumber(answer)
		if err != nil {
			return false
		}
		want, err := ParseNumber(p.Answer)
		if err != nil {
			return false
		}
		return math.Abs(got-want) < Tolerance
	case KindChoice:
		return strings.EqualFold(answer, strings.TrimSpace(p.Answer))
	default:
		return NormalizeExpression(answer) == NormalizeExpression(p.Answer)
	}
}

var fractionRe = regexp.MustCompile(`^\s*([+-]?\d+)\s*/\s*([+-]?\d+)\s*$`)

var errZeroDenominator = errors.New("zero denominator")

// ParseNumber parses a decimal or an integer fraction like "-7/2".
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if m := fractionRe.FindStringSubmatch(s); m != nil {
		num, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid numerator: %w", err)
		}
		den, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, fmt.Errorf("invalid denominator: %w", err)
		}
		if den == 0 {
			return 0, errZeroDenominator
		}
		return float64(num) / float64(den), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %w", err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

var expressionNoise = strings.NewReplacer(`\cdot`, "", "*", "", `\left`, "", `\right`, "")

// NormalizeExpression strips whitespace, multiplication marks and sizing
// commands, then lowercases.
func NormalizeExpression(s string) string {
	s = strings.Join(strings.Fields(s), "")
	return strings.ToLower(expressionNoise.Replace(s))
}
