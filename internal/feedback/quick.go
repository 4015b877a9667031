package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/mathquiz/internal/llm"
)

// ErrNoProvider is returned by Quick when no model is configured.
var ErrNoProvider = errors.New("no LLM provider configured")

const (
	quickMaxTokens   = 150
	quickTemperature = 0.7
)

// Quick asks for two or three encouraging sentences about an answer.
// Unlike Synthesize it has no local fallback and returns provider errors.
func (s *Synthesizer) Quick(ctx context.Context, question Question, userAnswer any, correct bool) (string, error) {
	if s.provider == nil {
		return "", ErrNoProvider
	}
	ctx = llm.WithPurpose(ctx, llm.PurposeQuickFeedback)

	verdictWord := "No"
	if correct {
		verdictWord = "Yes"
	}
	prompt := fmt.Sprintf("Question: %s\nStudent Answer: %s\nCorrect: %s\n\nProvide brief, encouraging feedback in 2-3 sentences.",
		question.Text, safeString(userAnswer), verdictWord)

	resp, err := s.provider.Generate(ctx, llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Model:       s.cfg.Model,
		MaxTokens:   quickMaxTokens,
		Temperature: quickTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("quick feedback: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func safeString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
