package feedback

import "github.com/abhisek/mathquiz/internal/llm"

var stringList = map[string]any{
	"type":  "array",
	"items": map[string]any{"type": "string"},
}

var highlightDef = map[string]any{
	"anyOf": []any{
		map[string]any{"type": "string"},
		stringList,
		map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		},
	},
}

// Schema asks providers for a structured feedback object. It is not strict:
// fields are adopted one by one, so a partially valid object is still useful.
var Schema = &llm.Schema{
	Name:        "feedback_record",
	Description: "Feedback on a student's answer and reasoning",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":        map[string]any{"type": "string", "description": "One short paragraph of feedback"},
			"strengths":      stringList,
			"issues":         stringList,
			"next_steps":     stringList,
			"key_concepts":   stringList,
			"math_highlight": highlightDef,
		},
		"required": []any{"summary"},
	},
}

// Record fields in the order they are adopted from a remote object.
const (
	fieldSummary       = "summary"
	fieldStrengths     = "strengths"
	fieldIssues        = "issues"
	fieldNextSteps     = "next_steps"
	fieldKeyConcepts   = "key_concepts"
	fieldMathHighlight = "math_highlight"
)

var remoteFields = []string{
	fieldSummary, fieldStrengths, fieldIssues, fieldNextSteps, fieldKeyConcepts, fieldMathHighlight,
}

var (
	summarySchema = &llm.Schema{
		Name:       "feedback_summary",
		Definition: map[string]any{"type": "string", "minLength": 1},
	}
	listSchema = &llm.Schema{
		Name:       "feedback_list",
		Definition: stringList,
	}
	highlightSchema = &llm.Schema{
		Name:       "feedback_math_highlight",
		Definition: highlightDef,
	}
)

func fieldSchema(name string) *llm.Schema {
	switch name {
	case fieldSummary:
		return summarySchema
	case fieldMathHighlight:
		return highlightSchema
	default:
		return listSchema
	}
}
