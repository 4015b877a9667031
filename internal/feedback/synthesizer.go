// Package feedback turns a graded attempt into learner-facing feedback.
//
// The local verdict is computed first and always wins. A language model may
// contribute narrative or structured fields, but any failure degrades to a
// deterministic record built from the reasoning assessment.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/mathquiz/internal/llm"
	"github.com/abhisek/mathquiz/internal/reasoning"
	"github.com/abhisek/mathquiz/internal/verdict"
)

// Mode selects what the collaborator is asked to produce.
type Mode string

const (
	ModeNarrative  Mode = "narrative"
	ModeStructured Mode = "structured"
)

// ParseMode returns the mode named by s, defaulting to narrative.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeStructured {
		return ModeStructured
	}
	return ModeNarrative
}

// Config holds construction-time settings for a Synthesizer.
type Config struct {
	Model       string        `mapstructure:"model"`
	Mode        Mode          `mapstructure:"mode"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeNarrative,
		MaxTokens:   450,
		Temperature: 0.3,
		Timeout:     20 * time.Second,
	}
}

// Question is the context the learner answered.
type Question struct {
	Text          string         `json:"question"`
	Topic         string         `json:"topic,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	CorrectAnswer any            `json:"correctAnswer,omitempty"`
}

// Input is one graded attempt.
type Input struct {
	Question      Question
	UserAnswer    any
	Reasoning     string
	AnswerCorrect bool
}

// RemoteStatus reports what happened with the collaborator call.
type RemoteStatus struct {
	Attempted bool     `json:"attempted"`
	OK        bool     `json:"ok"`
	Err       error    `json:"-"`
	Rejected  []string `json:"rejected,omitempty"`
	Model     string   `json:"model,omitempty"`
}

// ErrorText returns the failure text, or "" when the call succeeded.
func (s RemoteStatus) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Result is a synthesized record plus the signals it was built from.
type Result struct {
	Record     Record
	Assessment reasoning.Assessment
	Verdict    verdict.Verdict
	Remote     RemoteStatus
}

// Strict returns the collaborator failure, if any. Callers that must show a
// network error instead of degraded feedback use it.
func (r *Result) Strict() error {
	if r.Remote.Attempted && !r.Remote.OK {
		if r.Remote.Err != nil {
			return r.Remote.Err
		}
		return errors.New("feedback collaborator failed")
	}
	return nil
}

// Synthesizer produces feedback records. It is safe for concurrent use.
type Synthesizer struct {
	provider llm.Provider
	cfg      Config
	log      logrus.FieldLogger
}

// New creates a Synthesizer. A nil provider produces local records only.
func New(provider llm.Provider, cfg Config, log logrus.FieldLogger) *Synthesizer {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Synthesizer{provider: provider, cfg: cfg, log: log}
}

// Config returns the effective configuration.
func (s *Synthesizer) Config() Config { return s.cfg }

// Synthesize grades the attempt and builds its feedback record. It never
// fails; collaborator problems are reported through Result.Remote.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) *Result {
	a := reasoning.Assess(in.Reasoning)
	v := verdict.Combine(in.AnswerCorrect, a.Tier)
	res := &Result{Assessment: a, Verdict: v}

	var rf *remote
	if s.provider != nil {
		res.Remote.Attempted = true
		fetched, model, err := s.fetch(ctx, in, a)
		if err != nil {
			res.Remote.Err = err
			s.log.WithError(err).WithFields(logrus.Fields{
				"mode":    s.cfg.Mode,
				"verdict": v,
			}).Warn("feedback collaborator failed, using local record")
		} else {
			rf = fetched
			res.Remote.OK = true
			res.Remote.Model = model
			res.Remote.Rejected = fetched.rejected
			if len(fetched.rejected) > 0 {
				s.log.WithField("fields", fetched.rejected).Debug("dropped malformed feedback fields")
			}
		}
	}

	res.Record = merge(localRecord(v, a, in.AnswerCorrect), rf)
	return res
}

func (s *Synthesizer) fetch(ctx context.Context, in Input, a reasoning.Assessment) (*remote, string, error) {
	ctx = llm.WithPurpose(ctx, llm.PurposeFeedback)
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	userMsg, err := buildUserPrompt(in, a, s.cfg.Mode)
	if err != nil {
		return nil, "", fmt.Errorf("build feedback prompt: %w", err)
	}

	req := llm.Request{
		System: systemPrompt(s.cfg.Mode),
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userMsg},
		},
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}
	if s.cfg.Mode == ModeStructured {
		req.Schema = Schema
	}

	var content json.RawMessage
	var model string
	resp, err := s.provider.Generate(ctx, req)
	if err != nil {
		// A body that failed whole-object validation can still carry
		// usable fields.
		var inv *llm.ErrInvalidResponse
		if !errors.As(err, &inv) || len(inv.Content) == 0 {
			return nil, "", err
		}
		content = inv.Content
	} else {
		content = resp.Content
		model = resp.Model
	}

	rf, err := parseRemote(content, req.Schema != nil)
	if err != nil {
		return nil, "", err
	}
	return rf, model, nil
}

// looksLikeObject reports whether body opens like a JSON object: a brace
// followed by a quoted key or the closing brace.
func looksLikeObject(body string) bool {
	rest := strings.TrimLeft(strings.TrimPrefix(body, "{"), " \t\r\n")
	return rest == "" || rest[0] == '"' || rest[0] == '}'
}

// remote holds the fields adopted from a collaborator response.
type remote struct {
	summary   string
	lists     map[string][]string
	highlight MathHighlight
	rejected  []string
}

var errEmptyResponse = errors.New("empty feedback response")

// parseRemote reads narrative text or a JSON object. Object fields are
// validated one at a time; a malformed field is dropped, not fatal.
// Text opening with a brace but not a JSON key, such as set notation, is
// narrative unless an object was requested.
func parseRemote(raw json.RawMessage, wantObject bool) (*remote, error) {
	body := stripFences(strings.TrimSpace(string(raw)))
	if body == "" {
		return nil, errEmptyResponse
	}

	if body[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(body), &s); err == nil {
			body = strings.TrimSpace(s)
			if body == "" {
				return nil, errEmptyResponse
			}
		}
	}

	if body[0] != '{' {
		if (body[0] == '[' || body == "null") && json.Valid([]byte(body)) {
			return nil, &llm.ErrInvalidResponse{Content: raw, Err: errors.New("feedback is not an object or text")}
		}
		return &remote{summary: body}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		if wantObject || looksLikeObject(body) {
			return nil, &llm.ErrInvalidResponse{Content: raw, Err: fmt.Errorf("parse feedback object: %w", err)}
		}
		return &remote{summary: body}, nil
	}

	rf := &remote{lists: make(map[string][]string)}
	for _, name := range remoteFields {
		v, ok := obj[name]
		if !ok || string(v) == "null" {
			continue
		}
		if err := llm.ValidateContent(fieldSchema(name), v); err != nil {
			rf.rejected = append(rf.rejected, name)
			continue
		}

		switch name {
		case fieldSummary:
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				rf.summary = strings.TrimSpace(s)
			}
		case fieldMathHighlight:
			var h MathHighlight
			if err := h.UnmarshalJSON(v); err != nil {
				rf.rejected = append(rf.rejected, name)
				continue
			}
			rf.highlight = h
		default:
			var items []string
			if err := json.Unmarshal(v, &items); err != nil {
				rf.rejected = append(rf.rejected, name)
				continue
			}
			rf.lists[name] = items
		}
	}
	return rf, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// merge overlays adopted remote fields on the local record. Correctness
// always comes from base.
func merge(base Record, rf *remote) Record {
	if rf == nil {
		return base
	}
	if rf.summary != "" {
		base.Summary = rf.summary
	}
	adopt := func(name string, dst *[]string) {
		if items, ok := rf.lists[name]; ok {
			*dst = append([]string{}, items...)
		}
	}
	adopt(fieldStrengths, &base.Strengths)
	adopt(fieldIssues, &base.Issues)
	adopt(fieldNextSteps, &base.NextSteps)
	adopt(fieldKeyConcepts, &base.KeyConcepts)
	if !rf.highlight.IsZero() {
		base.MathHighlight = MathHighlight{
			Kind:     rf.highlight.Kind,
			Single:   rf.highlight.Single,
			Sequence: slices.Clone(rf.highlight.Sequence),
			Labeled:  slices.Clone(rf.highlight.Labeled),
		}
	}
	return base
}
