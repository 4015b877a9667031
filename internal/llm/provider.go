package llm

import (
	"context"
	"encoding/json"
)

// Provider is the abstraction over a text-generation backend.
type Provider interface {
	// Generate sends a prompt and returns the model output. When the
	// request carries a Schema the provider asks for JSON conforming to it
	// and validates the result before returning.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the model.
type Request struct {
	// System is the system prompt.
	System string

	// Messages is the conversation. Feedback generation sends a single
	// user turn; the proxy endpoint forwards whatever the client sent.
	Messages []Message

	// Schema, when set, selects the provider's structured output mode.
	// When nil, Content in the response is the raw text.
	Schema *Schema

	// Model overrides the provider's configured model for this request.
	Model string

	MaxTokens int

	// Temperature controls randomness, 0.0 - 1.0.
	Temperature float64
}

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps a wire role name onto a Role. Unknown roles are treated as
// user turns.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSystem, RoleAssistant:
		return Role(s)
	default:
		return RoleUser
	}
}

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies the schema, kebab-case, e.g. "feedback-record".
	Name string

	// Description is sent to the model to guide generation.
	Description string

	// Definition is the JSON Schema document.
	Definition map[string]any

	// Strict asks providers that support it to enforce the schema during
	// decoding. Strict schemas must list every property as required and
	// forbid additional properties.
	Strict bool
}

// Response holds the model output.
type Response struct {
	// Content is the generated output: validated JSON when the request had
	// a Schema, otherwise the raw text bytes.
	Content json.RawMessage

	Usage Usage

	// Model is the model that actually served the request.
	Model string

	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Text returns Content as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Content)
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

func (r Request) model(fallback string) string {
	if r.Model != "" {
		return r.Model
	}
	return fallback
}
