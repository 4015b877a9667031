package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/abhisek/mathquiz/internal/verdict"
)

// Record is the normalized feedback shown to the learner.
type Record struct {
	Summary       string          `json:"summary"`
	Correctness   verdict.Verdict `json:"correctness"`
	Strengths     []string        `json:"strengths"`
	Issues        []string        `json:"issues"`
	NextSteps     []string        `json:"next_steps"`
	KeyConcepts   []string        `json:"key_concepts"`
	MathHighlight MathHighlight   `json:"math_highlight,omitzero"`
}

// HighlightKind tags which shape a MathHighlight holds.
type HighlightKind int

const (
	HighlightNone HighlightKind = iota
	HighlightSingle
	HighlightSequence
	HighlightLabeled
)

// LabeledMath is one entry of a labeled highlight.
type LabeledMath struct {
	Label string
	Math  string
}

// MathHighlight is a short excerpt of notation surfaced on the card. On the
// wire it is a string, an array of strings, or an object of label to string.
// Object entries keep their order.
type MathHighlight struct {
	Kind     HighlightKind
	Single   string
	Sequence []string
	Labeled  []LabeledMath
}

// SingleMath returns a one-region highlight. Blank input yields None.
func SingleMath(s string) MathHighlight {
	if s == "" {
		return MathHighlight{}
	}
	return MathHighlight{Kind: HighlightSingle, Single: s}
}

// SequenceMath returns one region per element.
func SequenceMath(items ...string) MathHighlight {
	if len(items) == 0 {
		return MathHighlight{}
	}
	return MathHighlight{Kind: HighlightSequence, Sequence: items}
}

// LabeledMaths returns labeled regions in the given order.
func LabeledMaths(entries ...LabeledMath) MathHighlight {
	if len(entries) == 0 {
		return MathHighlight{}
	}
	return MathHighlight{Kind: HighlightLabeled, Labeled: entries}
}

func (h MathHighlight) IsZero() bool { return h.Kind == HighlightNone }

func (h MathHighlight) MarshalJSON() ([]byte, error) {
	switch h.Kind {
	case HighlightSingle:
		return json.Marshal(h.Single)
	case HighlightSequence:
		return json.Marshal(h.Sequence)
	case HighlightLabeled:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, e := range h.Labeled {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(e.Label)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(e.Math)
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte(`""`), nil
	}
}

func (h *MathHighlight) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*h = MathHighlight{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = SingleMath(s)
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("math_highlight array: %w", err)
		}
		*h = SequenceMath(items...)
		return nil
	case '{':
		entries, err := decodeOrdered(data)
		if err != nil {
			return fmt.Errorf("math_highlight object: %w", err)
		}
		*h = LabeledMaths(entries...)
		return nil
	default:
		return fmt.Errorf("math_highlight: unsupported JSON value %.20q", data)
	}
}

// decodeOrdered reads a flat object of string values preserving key order.
func decodeOrdered(data []byte) ([]LabeledMath, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var out []LabeledMath
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return nil, fmt.Errorf("value for %q: %w", key, err)
		}
		out = append(out, LabeledMath{Label: key, Math: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
