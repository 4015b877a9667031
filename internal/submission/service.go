// Package submission normalizes quiz submissions and persists them.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/mathquiz/internal/store"
)

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("submission not found")

// Payload is the body a quiz page posts after grading.
type Payload struct {
	Question       string          `json:"question" validate:"max=4000"`
	Course         string          `json:"course" validate:"max=200"`
	QuestionID     Text            `json:"questionId" validate:"max=200"`
	TimeOpen       *Timestamp      `json:"timeOpen"`
	TimeSubmitted  *Timestamp      `json:"timeSubmitted"`
	UserAnswer     json.RawMessage `json:"userAnswer"`
	ReasoningSteps string          `json:"reasoningSteps" validate:"max=20000"`
	AIFeedback     json.RawMessage `json:"aiFeedback"`
	Correctness    string          `json:"correctness" validate:"max=50"`
	Metadata       json.RawMessage `json:"metadata"`
	Username       string          `json:"username" validate:"max=200"`
	Email          string          `json:"email" validate:"omitempty,email"`
	UserID         Text            `json:"userId" validate:"max=200"`
}

// Text accepts a JSON string or number.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*t = Text(n.String())
	return nil
}

// Timestamp accepts epoch milliseconds (number or numeric string) or an
// RFC 3339 string.
type Timestamp struct {
	time.Time
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
	}
	if ms, err := strconv.ParseFloat(raw, 64); err == nil {
		ts.Time = time.UnixMilli(int64(ms)).UTC()
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("timestamp %q: want epoch milliseconds or RFC 3339", raw)
	}
	ts.Time = t.UTC()
	return nil
}

// Service saves and reads submissions. Safe for concurrent use.
type Service struct {
	repo store.SubmissionRepo
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewService(repo store.SubmissionRepo, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// Save normalizes p and stores it.
func (s *Service) Save(ctx context.Context, p Payload) (*store.Submission, error) {
	sub := s.normalize(p)
	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		s.log.WithError(err).WithField("question_id", sub.QuestionID).Error("Failed to save submission")
		return nil, fmt.Errorf("save submission: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"id":          sub.ID,
		"question_id": sub.QuestionID,
		"correctness": sub.Correctness,
	}).Info("Submission saved")
	return sub, nil
}

func (s *Service) normalize(p Payload) *store.Submission {
	now := s.now().UTC()
	sub := &store.Submission{
		Question:       p.Question,
		Course:         p.Course,
		QuestionID:     string(p.QuestionID),
		TimeSubmitted:  now,
		UserAnswer:     orEmptyString(p.UserAnswer),
		ReasoningSteps: p.ReasoningSteps,
		AIFeedback:     toObject(p.AIFeedback),
		Correctness:    p.Correctness,
		Username:       p.Username,
		Email:          p.Email,
		UserID:         string(p.UserID),
		Metadata:       toObject(p.Metadata),
		CreatedAt:      now,
	}
	if p.TimeSubmitted != nil && !p.TimeSubmitted.IsZero() {
		sub.TimeSubmitted = p.TimeSubmitted.Time
	}
	if p.TimeOpen != nil && !p.TimeOpen.IsZero() {
		open := p.TimeOpen.Time
		sub.TimeOpen = &open
		if p.TimeSubmitted != nil && !p.TimeSubmitted.IsZero() {
			d := p.TimeSubmitted.Sub(open).Milliseconds()
			sub.DurationMs = &d
		}
	}
	return sub
}

// Get returns ErrNotFound for an unknown ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Submission, error) {
	sub, err := s.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context, filter store.SubmissionFilter) ([]store.Submission, error) {
	return s.repo.ListSubmissions(ctx, filter)
}

var emptyObject = json.RawMessage(`{}`)

// toObject coerces a loosely typed field into a JSON value for storage.
// Absent or null becomes {}, objects and arrays pass through, a string
// holding JSON is decoded, any other string becomes {"summary": s}, and
// other scalars become {"value": v}.
func toObject(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return emptyObject
	}

	switch raw[0] {
	case '{', '[':
		if json.Valid(raw) {
			return raw
		}
		return emptyObject
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return emptyObject
		}
		inner := bytes.TrimSpace([]byte(s))
		if json.Valid(inner) {
			if bytes.Equal(inner, []byte("null")) {
				return emptyObject
			}
			return inner
		}
		out, _ := json.Marshal(map[string]string{"summary": s})
		return out
	}

	if !json.Valid(raw) {
		return emptyObject
	}
	out, _ := json.Marshal(map[string]json.RawMessage{"value": raw})
	return out
}

func orEmptyString(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return json.RawMessage(`""`)
	}
	return raw
}
