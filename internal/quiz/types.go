// Package quiz holds practice questions, their generators, and local answer
// checking.
package quiz

import (
	"github.com/abhisek/mathquiz/internal/feedback"
)

// Topic names.
const (
	TopicAlgebra     = "algebra"
	TopicLimits      = "limits"
	TopicDerivatives = "derivatives"
	TopicDomainRange = "domain-range"
	TopicPiecewise   = "piecewise"
)

// Kind is how a part's answer is compared.
type Kind string

const (
	// KindNumeric accepts decimals and a/b fractions within Tolerance.
	KindNumeric Kind = "numeric"
	// KindExpression compares LaTeX after normalization.
	KindExpression Kind = "expression"
	// KindChoice compares trimmed text case-insensitively.
	KindChoice Kind = "choice"
)

// Part is one answer slot of a question.
type Part struct {
	Key     string   `yaml:"key" json:"key"`
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Answer  string   `yaml:"answer" json:"answer"`
	Kind    Kind     `yaml:"kind" json:"kind"`
	Choices []string `yaml:"choices" json:"choices,omitempty"`
}

// Question is a practice question with one or more parts.
type Question struct {
	ID         string         `yaml:"id" json:"id"`
	Topic      string         `yaml:"topic" json:"topic"`
	Text       string         `yaml:"text" json:"text"`
	Latex      string         `yaml:"latex" json:"latex,omitempty"`
	Parts      []Part         `yaml:"parts" json:"parts"`
	Parameters map[string]any `yaml:"parameters" json:"parameters,omitempty"`
	Steps      []string       `yaml:"steps" json:"steps,omitempty"`
	Hint       string         `yaml:"hint" json:"hint,omitempty"`
}

// Part returns the part with the given key.
func (q *Question) Part(key string) (Part, bool) {
	for _, p := range q.Parts {
		if p.Key == key {
			return p, true
		}
	}
	return Part{}, false
}

// Answers returns the expected answer per part key.
func (q *Question) Answers() map[string]string {
	out := make(map[string]string, len(q.Parts))
	for _, p := range q.Parts {
		out[p.Key] = p.Answer
	}
	return out
}

// Context converts q to the feedback question shape. A single-part
// question reports its answer as a plain string.
func (q *Question) Context() feedback.Question {
	fq := feedback.Question{
		Text:       q.Text,
		Topic:      q.Topic,
		Parameters: q.Parameters,
	}
	switch len(q.Parts) {
	case 0:
	case 1:
		fq.CorrectAnswer = q.Parts[0].Answer
	default:
		fq.CorrectAnswer = q.Answers()
	}
	return fq
}
