package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

var (
	textList = map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}

	nonEmptyText = &Schema{
		Name:       "test_nonempty_text",
		Definition: map[string]any{"type": "string", "minLength": 1},
	}

	stepsSchema = &Schema{
		Name:       "test_steps",
		Definition: textList,
	}

	// A value that may be one expression, a sequence, or labeled expressions.
	mathSchema = &Schema{
		Name: "test_math",
		Definition: map[string]any{
			"anyOf": []any{
				map[string]any{"type": "string"},
				textList,
				map[string]any{
					"type":                 "object",
					"additionalProperties": map[string]any{"type": "string"},
				},
			},
		},
	}

	verdictSchema = &Schema{
		Name: "test_verdict",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary":     map[string]any{"type": "string"},
				"correctness": map[string]any{"type": "string", "enum": []any{"correct", "partially-correct", "incorrect"}},
				"issues":      textList,
			},
			"required": []any{"summary"},
		},
	}
)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name   string
		schema *Schema
		raw    string
		ok     bool
	}{
		{"summary text", nonEmptyText, `"Check the sign of the derivative."`, true},
		{"empty summary", nonEmptyText, `""`, false},
		{"summary not a string", nonEmptyText, `["a"]`, false},
		{"steps list", stepsSchema, `["Factor x^2-1.", "Cancel x-1."]`, true},
		{"empty steps list", stepsSchema, `[]`, true},
		{"steps with numbers", stepsSchema, `[1, 2]`, false},
		{"steps as text", stepsSchema, `"not a list"`, false},
		{"math single", mathSchema, `"-6\\sin(2x)"`, true},
		{"math sequence", mathSchema, `["x^2", "2x"]`, true},
		{"math labeled", mathSchema, `{"f(x)": "3\\cos(2x)", "f'(x)": "-6\\sin(2x)"}`, true},
		{"math labeled with number", mathSchema, `{"f(x)": 3}`, false},
		{"math number", mathSchema, `42`, false},
		{"object", verdictSchema, `{"summary":"ok","correctness":"partially-correct","issues":[]}`, true},
		{"object without summary", verdictSchema, `{"issues":["x"]}`, false},
		{"object unknown verdict", verdictSchema, `{"summary":"ok","correctness":"partial"}`, false},
		{"malformed", verdictSchema, `{"summary": "cut off`, false},
		{"empty body", verdictSchema, ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.schema, json.RawMessage(tt.raw))
			if tt.ok {
				if err != nil {
					t.Fatalf("ValidateContent(%s) = %v, want nil", tt.raw, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateContent(%s) = nil, want error", tt.raw)
			}
			var inv *ErrInvalidResponse
			if !errors.As(err, &inv) {
				t.Fatalf("err = %T, want *ErrInvalidResponse", err)
			}
			if string(inv.Content) != tt.raw {
				t.Errorf("Content = %q, want the rejected body", inv.Content)
			}
		})
	}
}

func TestValidateContent_NilSchema(t *testing.T) {
	if err := ValidateContent(nil, json.RawMessage(`not even json`)); err != nil {
		t.Fatalf("nil schema should accept anything, got %v", err)
	}
}

func TestValidateContent_BrokenSchema(t *testing.T) {
	broken := &Schema{
		Name:       "test_broken",
		Definition: map[string]any{"type": 12},
	}
	err := ValidateContent(broken, json.RawMessage(`"x"`))
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want *ErrInvalidResponse for an uncompilable schema", err)
	}
}

func TestGetCompiledSchema_CachedByName(t *testing.T) {
	first, err := getCompiledSchema(stepsSchema)
	if err != nil {
		t.Fatal(err)
	}
	second, err := getCompiledSchema(&Schema{Name: stepsSchema.Name, Definition: map[string]any{"type": "string"}})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("schemas with the same name should share one compiled schema")
	}
}
