package store

import (
	"context"
	"encoding/json"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int       // max results (0 = unlimited)
	Purpose string    // exact purpose match when set
	From    time.Time // timestamp >= From
	To      time.Time // timestamp <= To
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEvent is a stored LLM request event.
type LLMEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage aggregates token usage for one purpose label.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates token usage for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo provides append and query access to LLM request events.
type EventRepo interface {
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error)

	// GetLLMEvent returns nil when no event has the given ID.
	GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error)

	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}

// Submission is one persisted quiz attempt.
type Submission struct {
	ID             string          `json:"id"`
	Question       string          `json:"question"`
	Course         string          `json:"course"`
	QuestionID     string          `json:"question_id"`
	TimeOpen       *time.Time      `json:"time_open"`
	TimeSubmitted  time.Time       `json:"time_submitted"`
	DurationMs     *int64          `json:"duration_ms"`
	UserAnswer     json.RawMessage `json:"user_answer"`
	ReasoningSteps string          `json:"reasoning_steps"`
	AIFeedback     json.RawMessage `json:"ai_feedback"`
	Correctness    string          `json:"correctness"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	UserID         string          `json:"user_id"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SubmissionFilter narrows ListSubmissions.
type SubmissionFilter struct {
	Limit  int
	Course string
	UserID string
}

// SubmissionRepo persists quiz submissions.
type SubmissionRepo interface {
	CreateSubmission(ctx context.Context, sub *Submission) error

	// GetSubmission returns nil when no submission has the given ID.
	GetSubmission(ctx context.Context, id string) (*Submission, error)

	// ListSubmissions returns submissions newest first.
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
}

// jsonOrNull keeps stored JSON columns valid when a value is absent.
func jsonOrNull(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}
