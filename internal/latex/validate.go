// Package latex performs lightweight structural checks on LaTeX fragments
// embedded in free-text answers.
//
// It is not a parser. Each check counts tokens and reports a shape
// violation; deeper constructs such as \left/\right pairing are not
// inspected. Nested fractions like \frac{\frac{1}{2}}{3} are reported as
// malformed because the shape check only accepts brace-free arguments.
package latex

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is the outcome of validating a fragment.
type Result struct {
	Valid  bool     `json:"isValid"`
	Errors []string `json:"errors"`
}

// Error messages, in the order the checks run.
const (
	msgDollar   = "Unbalanced $ delimiters."
	msgBracket  = `Unbalanced \[ \] delimiters.`
	msgParen    = `Unbalanced \( \) delimiters.`
	msgFraction = `Each \frac must be \frac{num}{den}.`
)

var (
	displayBlock  = regexp.MustCompile(`\$\$[\s\S]*?\$\$`)
	fracToken     = regexp.MustCompile(`\\frac`)
	fracWellShape = regexp.MustCompile(`\\frac\{[^{}]+\}\{[^{}]+\}`)
)

// Validate runs every check against text and collects all violations.
// It never fails; an empty string is valid.
func Validate(text string) Result {
	errs := make([]string, 0)

	open := countUnescaped(text, "{")
	closing := countUnescaped(text, "}")
	if open != closing {
		errs = append(errs, fmt.Sprintf("Unbalanced braces: %d “{” vs %d “}”.", open, closing))
	}

	inline := displayBlock.ReplaceAllString(text, "")
	if countUnescaped(inline, "$")%2 != 0 {
		errs = append(errs, msgDollar)
	}

	if countUnescaped(text, `\[`) != countUnescaped(text, `\]`) {
		errs = append(errs, msgBracket)
	}

	if countUnescaped(text, `\(`) != countUnescaped(text, `\)`) {
		errs = append(errs, msgParen)
	}

	all := len(fracToken.FindAllStringIndex(text, -1))
	ok := len(fracWellShape.FindAllStringIndex(text, -1))
	if all != ok {
		errs = append(errs, msgFraction)
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ErrorCount is a convenience for scoring callers.
func (r Result) ErrorCount() int {
	return len(r.Errors)
}

// countUnescaped counts non-overlapping occurrences of tok that are not
// immediately preceded by a backslash.
func countUnescaped(s, tok string) int {
	n := 0
	for i := 0; i+len(tok) <= len(s); {
		j := strings.Index(s[i:], tok)
		if j < 0 {
			break
		}
		at := i + j
		if at == 0 || s[at-1] != '\\' {
			n++
			i = at + len(tok)
			continue
		}
		i = at + 1
	}
	return n
}
