package quiz

import (
	"embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed bank/bank.yaml
var bankFS embed.FS

// ErrUnknownTopic is returned for a topic with no generator.
var ErrUnknownTopic = errors.New("unknown topic")

// Topics lists every topic in presentation order.
func Topics() []string {
	return []string{TopicAlgebra, TopicDerivatives, TopicDomainRange, TopicLimits, TopicPiecewise}
}

// Generator hands out questions. Algebra and limits are randomized; the
// other topics cycle through the embedded bank. Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	bank   map[string][]Question
	cursor map[string]int
}

// NewGenerator loads the embedded bank. rng drives the randomized topics;
// nil seeds one randomly.
func NewGenerator(rng *rand.Rand) (*Generator, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	bank, err := loadBank()
	if err != nil {
		return nil, err
	}
	return &Generator{rng: rng, bank: bank, cursor: make(map[string]int)}, nil
}

func loadBank() (map[string][]Question, error) {
	data, err := bankFS.ReadFile("bank/bank.yaml")
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var bank map[string][]Question
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	for topic, qs := range bank {
		if !slices.Contains(Topics(), topic) {
			return nil, fmt.Errorf("question bank: %w %q", ErrUnknownTopic, topic)
		}
		for i := range qs {
			qs[i].Topic = topic
			if len(qs[i].Parts) == 0 {
				return nil, fmt.Errorf("question bank: %s has no parts", qs[i].ID)
			}
		}
	}
	return bank, nil
}

// Next returns the next question for topic.
func (g *Generator) Next(topic string) (*Question, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch topic {
	case TopicAlgebra:
		return linearEquation(g.rng), nil
	case TopicLimits:
		return factorCancelLimit(g.rng), nil
	}

	qs, ok := g.bank[topic]
	if !ok || len(qs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	i := g.cursor[topic] % len(qs)
	g.cursor[topic] = i + 1
	q := qs[i]
	q.Parts = slices.Clone(q.Parts)
	q.Steps = slices.Clone(q.Steps)
	return &q, nil
}

// Lookup finds a bank question by ID.
func (g *Generator) Lookup(id string) (*Question, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, qs := range g.bank {
		for _, q := range qs {
			if q.ID == id {
				q.Parts = slices.Clone(q.Parts)
				return &q, true
			}
		}
	}
	return nil, false
}

// linearEquation builds "solve ax + b = c" with a in [1,10], b in [-10,9]
// and c in [1,20].
func linearEquation(r *rand.Rand) *Question {
	a := r.IntN(10) + 1
	b := r.IntN(20) - 10
	c := r.IntN(20) + 1

	sign := ""
	if b >= 0 {
		sign = "+"
	}
	eq := fmt.Sprintf("%dx %s%d = %d", a, sign, b, c)
	answer := strconv.FormatFloat(float64(c-b)/float64(a), 'f', -1, 64)

	return &Question{
		ID:         fmt.Sprintf("algebra-%d-%d-%d", a, b, c),
		Topic:      TopicAlgebra,
		Text:       "Solve for x: " + eq,
		Latex:      eq,
		Parameters: map[string]any{"a": a, "b": b, "c": c},
		Parts:      []Part{{Key: "x", Prompt: "x", Answer: answer, Kind: KindNumeric}},
		Steps: []string{
			fmt.Sprintf("Subtract %d from both sides: %dx = %d", b, a, c-b),
			fmt.Sprintf(`Divide both sides by %d: x = \frac{%d}{%d}`, a, c-b, a),
			"x = " + answer,
		},
		Hint: "Isolate the x term first, then divide by its coefficient.",
	}
}

// factorCancelLimit builds a removable-discontinuity limit whose value is
// c*a + b. a and c are drawn from [-5,6] with c != 0, b from [-8,8].
func factorCancelLimit(r *rand.Rand) *Question {
	a := r.IntN(12) - 5
	c := r.IntN(12) - 5
	if c == 0 {
		c = 2
	}
	b := r.IntN(17) - 8

	expr := fmt.Sprintf(`\lim_{x\to %d} \dfrac{(%dx+%d)(x-%d)}{x-%d}`, a, c, b, a, a)
	answer := strconv.Itoa(c*a + b)

	return &Question{
		ID:         fmt.Sprintf("limit-%d-%d-%d", a, b, c),
		Topic:      TopicLimits,
		Text:       "Evaluate the limit: " + expr,
		Latex:      expr,
		Parameters: map[string]any{"a": a, "b": b, "c": c},
		Parts:      []Part{{Key: "limit", Prompt: "Limit", Answer: answer, Kind: KindNumeric}},
		Steps: []string{
			fmt.Sprintf(`Direct substitution of x = %d gives the indeterminate form 0/0.`, a),
			fmt.Sprintf(`Cancel the common factor (x-%d) for x \ne %d.`, a, a),
			fmt.Sprintf(`Substitute into %dx+%d: %d \cdot %d + %d = %s.`, c, b, c, a, b, answer),
		},
		Hint: "Factor and cancel the term that makes the denominator zero.",
	}
}
