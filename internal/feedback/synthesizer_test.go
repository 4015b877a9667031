package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/abhisek/mathquiz/internal/llm"
	"github.com/abhisek/mathquiz/internal/reasoning"
	"github.com/abhisek/mathquiz/internal/verdict"
)

const (
	goodReasoning = `We differentiate $f(x)=3\cos(2x)$ using the chain rule, therefore the derivative of the outer cosine is minus sine and the inner derivative is two, so we multiply them together because the chain rule says the outer derivative times the inner derivative gives the result we want here today.`
	okReasoning   = "First I subtract three from both sides and then divide by two to get the value of x which is two and it checks out fine when plugged back in."
	poorReasoning = "x = 2"
)

var derivQuestion = Question{
	Text:          `Find f'(x) for f(x)=3\cos(2x)`,
	Topic:         "derivatives",
	Parameters:    map[string]any{"a": 3, "b": 2},
	CorrectAnswer: `-6\sin(2x)`,
}

func quietLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

func TestSynthesize_LocalRecords(t *testing.T) {
	tests := []struct {
		name          string
		reasoning     string
		answerCorrect bool
		want          Record
	}{
		{
			name:          "correct",
			reasoning:     goodReasoning,
			answerCorrect: true,
			want: Record{
				Summary:     "Answer and reasoning are solid.",
				Correctness: verdict.Correct,
				Strengths:   []string{"Correct result with clear reasoning."},
				Issues:      []string{},
				NextSteps:   []string{},
				KeyConcepts: []string{"Complete justification"},
			},
		},
		{
			name:          "partially correct",
			reasoning:     okReasoning,
			answerCorrect: true,
			want: Record{
				Summary:     "Answer is right, but reasoning needs improvement.",
				Correctness: verdict.PartiallyCorrect,
				Strengths:   []string{"Correct final result."},
				Issues:      []string{"Reasoning is present but not fully correct or complete."},
				NextSteps:   []string{"Clarify each step and cite the exact rule (e.g., chain rule)."},
				KeyConcepts: []string{"Reasoning quality"},
			},
		},
		{
			name:          "right answer with poor reasoning",
			reasoning:     poorReasoning,
			answerCorrect: true,
			want: Record{
				Summary:     "This needs correction.",
				Correctness: verdict.Incorrect,
				Strengths:   []string{"Correct final result.", "Valid LaTeX syntax."},
				Issues: []string{
					"Reasoning is too brief.",
					"No mathematical notation used.",
					"Key concept (e.g., chain rule) not referenced.",
				},
				NextSteps:   []string{"Rework the solution and write a clear justification."},
				KeyConcepts: []string{"Reasoning quality"},
			},
		},
		{
			name:          "wrong answer with good reasoning",
			reasoning:     goodReasoning,
			answerCorrect: false,
			want: Record{
				Summary:     "This needs correction.",
				Correctness: verdict.Incorrect,
				Strengths: []string{
					"Explanation length is sufficient.",
					"Uses mathematical notation.",
					"References key mathematical concept(s).",
					"Valid LaTeX syntax.",
				},
				Issues:      []string{"The final answer is incorrect."},
				NextSteps:   []string{"Rework the solution and write a clear justification."},
				KeyConcepts: []string{"Reasoning quality"},
			},
		},
		{
			name:          "invalid latex adds a fix step",
			reasoning:     `because $x = \frac{1}{2`,
			answerCorrect: false,
			want: Record{
				Summary:     "This needs correction.",
				Correctness: verdict.Incorrect,
				Strengths:   []string{"Uses mathematical notation.", "References key mathematical concept(s)."},
				Issues: []string{
					"The final answer is incorrect.",
					"Reasoning is too brief.",
					"LaTeX has syntax errors.",
				},
				NextSteps: []string{
					"Rework the solution and write a clear justification.",
					"Fix the LaTeX syntax errors so your notation renders.",
				},
				KeyConcepts: []string{"Reasoning quality"},
			},
		},
	}

	s := New(nil, DefaultConfig(), quietLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Synthesize(context.Background(), Input{
				Question:      derivQuestion,
				UserAnswer:    "-6sin(2x)",
				Reasoning:     tt.reasoning,
				AnswerCorrect: tt.answerCorrect,
			})
			if diff := cmp.Diff(tt.want, res.Record); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
			if res.Remote.Attempted {
				t.Error("remote attempted without a provider")
			}
			if err := res.Strict(); err != nil {
				t.Errorf("Strict() = %v, want nil", err)
			}
		})
	}
}

func TestSynthesize_LocalVerdictWins(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText(`{"summary":"Great job!","correctness":"correct","strengths":["Nice work"]}`))
	s := New(mock, DefaultConfig(), quietLogger())

	res := s.Synthesize(context.Background(), Input{
		Question:      derivQuestion,
		Reasoning:     poorReasoning,
		AnswerCorrect: true,
	})

	if res.Record.Correctness != verdict.Incorrect {
		t.Errorf("correctness = %q, want incorrect", res.Record.Correctness)
	}
	if res.Record.Summary != "Great job!" {
		t.Errorf("summary = %q", res.Record.Summary)
	}
	if diff := cmp.Diff([]string{"Nice work"}, res.Record.Strengths); diff != "" {
		t.Errorf("strengths (-want +got):\n%s", diff)
	}
	if len(res.Record.Issues) != 3 {
		t.Errorf("issues = %v, want three local gap issues", res.Record.Issues)
	}
	if !res.Remote.OK {
		t.Errorf("remote not OK: %v", res.Remote.Err)
	}
}

func TestSynthesize_NarrativeBecomesSummary(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText("  Nice use of the chain rule, \\(x\\) is right.  "))
	s := New(mock, DefaultConfig(), quietLogger())

	res := s.Synthesize(context.Background(), Input{Question: derivQuestion, Reasoning: goodReasoning, AnswerCorrect: true})

	if res.Record.Summary != `Nice use of the chain rule, \(x\) is right.` {
		t.Errorf("summary = %q", res.Record.Summary)
	}
	if res.Record.Correctness != verdict.Correct {
		t.Errorf("correctness = %q, want correct", res.Record.Correctness)
	}
	if diff := cmp.Diff([]string{"Correct result with clear reasoning."}, res.Record.Strengths); diff != "" {
		t.Errorf("strengths should stay local (-want +got):\n%s", diff)
	}
}

func TestSynthesize_BraceNarrativeBecomesSummary(t *testing.T) {
	text := `{x | x > 0} is the domain because the logarithm needs a positive argument.`
	mock := llm.NewMockProvider(llm.MockText(text))
	s := New(mock, DefaultConfig(), quietLogger())

	res := s.Synthesize(context.Background(), Input{Question: derivQuestion, Reasoning: goodReasoning, AnswerCorrect: true})

	if !res.Remote.OK {
		t.Fatalf("remote failed: %v", res.Remote.Err)
	}
	if res.Record.Summary != text {
		t.Errorf("summary = %q, want the narrative", res.Record.Summary)
	}
}

func TestSynthesize_StructuredRejectsBraceText(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText(`{x | x > 0} is the domain.`))
	cfg := DefaultConfig()
	cfg.Mode = ModeStructured
	s := New(mock, cfg, quietLogger())

	res := s.Synthesize(context.Background(), Input{Question: derivQuestion, Reasoning: goodReasoning, AnswerCorrect: true})

	if res.Remote.OK {
		t.Fatal("remote OK, want a failure when an object was requested")
	}
	var inv *llm.ErrInvalidResponse
	if !errors.As(res.Remote.Err, &inv) {
		t.Errorf("err = %v, want ErrInvalidResponse", res.Remote.Err)
	}
}

func TestLooksLikeObject(t *testing.T) {
	for body, want := range map[string]bool{
		`{"summary": "cut off`: true,
		`{ "a": 1}`:            true,
		`{}`:                   true,
		`{x | x > 0}`:          false,
		`{1, 2, 3} are roots`:  false,
	} {
		if got := looksLikeObject(body); got != want {
			t.Errorf("looksLikeObject(%q) = %v, want %v", body, got, want)
		}
	}
}

func TestSynthesize_MalformedFieldDropped(t *testing.T) {
	body := "```json\n" + `{
		"summary": "Check the sign.",
		"strengths": "not a list",
		"issues": ["Sign error in the derivative of cosine."],
		"next_steps": [1, 2],
		"math_highlight": {"f(x)": "3\\cos(2x)", "f'(x)": "-6\\sin(2x)", "f''(x)": "-12\\cos(2x)"}
	}` + "\n```"
	mock := llm.NewMockProvider(llm.MockText(body))
	cfg := DefaultConfig()
	cfg.Mode = ModeStructured
	s := New(mock, cfg, quietLogger())

	res := s.Synthesize(context.Background(), Input{Question: derivQuestion, Reasoning: goodReasoning, AnswerCorrect: false})

	if !res.Remote.OK {
		t.Fatalf("remote failed: %v", res.Remote.Err)
	}
	if diff := cmp.Diff([]string{"strengths", "next_steps"}, res.Remote.Rejected); diff != "" {
		t.Errorf("rejected (-want +got):\n%s", diff)
	}
	rec := res.Record
	if rec.Summary != "Check the sign." {
		t.Errorf("summary = %q", rec.Summary)
	}
	if diff := cmp.Diff([]string{"Sign error in the derivative of cosine."}, rec.Issues); diff != "" {
		t.Errorf("issues (-want +got):\n%s", diff)
	}
	if len(rec.Strengths) != 4 {
		t.Errorf("strengths = %v, want local defaults", rec.Strengths)
	}
	if diff := cmp.Diff([]string{"Rework the solution and write a clear justification."}, rec.NextSteps); diff != "" {
		t.Errorf("next steps (-want +got):\n%s", diff)
	}
	wantHL := LabeledMaths(
		LabeledMath{Label: "f(x)", Math: `3\cos(2x)`},
		LabeledMath{Label: "f'(x)", Math: `-6\sin(2x)`},
		LabeledMath{Label: "f''(x)", Math: `-12\cos(2x)`},
	)
	if diff := cmp.Diff(wantHL, rec.MathHighlight); diff != "" {
		t.Errorf("math highlight (-want +got):\n%s", diff)
	}
}

func TestSynthesize_ProviderFailureDegrades(t *testing.T) {
	tests := []struct {
		name  string
		mock  *llm.MockProvider
		check func(t *testing.T, err error)
	}{
		{
			name: "rate limit",
			mock: llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrRateLimit{RetryAfter: time.Second}}),
			check: func(t *testing.T, err error) {
				var rl *llm.ErrRateLimit
				if !errors.As(err, &rl) {
					t.Errorf("err = %v, want ErrRateLimit", err)
				}
			},
		},
		{
			name: "unavailable",
			mock: llm.NewMockProvider(),
			check: func(t *testing.T, err error) {
				var pu *llm.ErrProviderUnavailable
				if !errors.As(err, &pu) {
					t.Errorf("err = %v, want ErrProviderUnavailable", err)
				}
			},
		},
		{
			name: "empty body",
			mock: llm.NewMockProvider(llm.MockText("   ")),
			check: func(t *testing.T, err error) {
				if !errors.Is(err, errEmptyResponse) {
					t.Errorf("err = %v, want errEmptyResponse", err)
				}
			},
		},
		{
			name: "truncated object",
			mock: llm.NewMockProvider(llm.MockText(`{"summary": "cut off`)),
			check: func(t *testing.T, err error) {
				var inv *llm.ErrInvalidResponse
				if !errors.As(err, &inv) {
					t.Errorf("err = %v, want ErrInvalidResponse", err)
				}
			},
		},
		{
			name: "array body",
			mock: llm.NewMockProvider(llm.MockText(`["a","b"]`)),
			check: func(t *testing.T, err error) {
				var inv *llm.ErrInvalidResponse
				if !errors.As(err, &inv) {
					t.Errorf("err = %v, want ErrInvalidResponse", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			s := New(tt.mock, DefaultConfig(), logger)

			res := s.Synthesize(context.Background(), Input{Question: derivQuestion, Reasoning: okReasoning, AnswerCorrect: true})

			want := localRecord(verdict.PartiallyCorrect, reasoning.Assess(okReasoning), true)
			if diff := cmp.Diff(want, res.Record); diff != "" {
				t.Errorf("degraded record mismatch (-want +got):\n%s", diff)
			}
			if !res.Remote.Attempted || res.Remote.OK {
				t.Errorf("remote = %+v, want attempted and failed", res.Remote)
			}
			err := res.Strict()
			if err == nil {
				t.Fatal("Strict() = nil, want error")
			}
			tt.check(t, err)
			if res.Remote.ErrorText() == "" {
				t.Error("ErrorText() empty")
			}
			if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
				t.Errorf("expected a warning log, got %+v", e)
			}
		})
	}
}

func TestSynthesize_TimeoutDegrades(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Block: true})
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	s := New(mock, cfg, quietLogger())

	res := s.Synthesize(context.Background(), Input{Question: derivQuestion, Reasoning: goodReasoning, AnswerCorrect: true})

	if res.Record.Correctness != verdict.Correct {
		t.Errorf("correctness = %q, want correct", res.Record.Correctness)
	}
	if err := res.Strict(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Strict() = %v, want deadline exceeded", err)
	}
}

func TestSynthesize_CancelledContext(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Block: true})
	s := New(mock, DefaultConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Synthesize(ctx, Input{Question: derivQuestion, Reasoning: goodReasoning, AnswerCorrect: true})

	if err := res.Strict(); !errors.Is(err, context.Canceled) {
		t.Errorf("Strict() = %v, want context canceled", err)
	}
}

func TestSynthesize_RequestCarriesContext(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText("ok"))
	cfg := DefaultConfig()
	cfg.Model = "gpt-4o-mini"
	s := New(mock, cfg, quietLogger())

	s.Synthesize(context.Background(), Input{
		Question:      derivQuestion,
		UserAnswer:    map[string]string{"fprime": `-6\sin(2x)`},
		Reasoning:     okReasoning,
		AnswerCorrect: true,
	})

	req, ok := mock.LastCall()
	if !ok {
		t.Fatal("provider not called")
	}
	if req.Model != "gpt-4o-mini" || req.MaxTokens != 450 || req.Temperature != 0.3 {
		t.Errorf("request settings = model %q, max %d, temp %v", req.Model, req.MaxTokens, req.Temperature)
	}
	if req.Schema != nil {
		t.Error("narrative mode should not attach a schema")
	}
	if !strings.Contains(req.System, "Do not return JSON") {
		t.Errorf("system prompt = %q", req.System)
	}
	msg := req.Messages[0].Content
	for _, want := range []string{
		`QUESTION: "Find f'(x) for f(x)=3\\cos(2x)"`,
		`PARAMETERS: {"a":3,"b":2}`,
		`STUDENT_ANSWER(S): {"fprime":"-6\\sin(2x)"}`,
		"ANSWERS_CORRECT: true",
		`REASONING_EVAL: {"score":0.57,"tier":"ok"`,
		`CORRECT_ANSWER: "-6\\sin(2x)"`,
		"Write the feedback paragraph now.",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("user prompt missing %q:\n%s", want, msg)
		}
	}
}

func TestSynthesize_StructuredAttachesSchema(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText(`{"summary":"fine"}`))
	cfg := DefaultConfig()
	cfg.Mode = ModeStructured
	s := New(mock, cfg, quietLogger())

	res := s.Synthesize(context.Background(), Input{Question: Question{Text: "2+2"}, Reasoning: poorReasoning})

	req, _ := mock.LastCall()
	if req.Schema != Schema {
		t.Error("structured mode should attach the feedback schema")
	}
	if !strings.Contains(req.Messages[0].Content, "Write the feedback object now.") {
		t.Error("structured prompt should ask for an object")
	}
	if !strings.Contains(req.Messages[0].Content, `PARAMETERS: {}`) {
		t.Error("nil parameters should render as an empty object")
	}
	if res.Record.Summary != "fine" {
		t.Errorf("summary = %q", res.Record.Summary)
	}
}

func TestSynthesize_Idempotent(t *testing.T) {
	body := `{"summary":"Same","key_concepts":["Chain rule"],"math_highlight":["a","b"]}`
	in := Input{Question: derivQuestion, UserAnswer: "x", Reasoning: goodReasoning, AnswerCorrect: true}

	run := func() []byte {
		s := New(llm.NewMockProvider(llm.MockText(body)), DefaultConfig(), quietLogger())
		b, err := json.Marshal(s.Synthesize(context.Background(), in).Record)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return b
	}

	first, second := run(), run()
	if string(first) != string(second) {
		t.Errorf("records differ:\n%s\n%s", first, second)
	}

	local := New(nil, DefaultConfig(), quietLogger())
	a := local.Synthesize(context.Background(), in).Record
	b := local.Synthesize(context.Background(), in).Record
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("local records differ (-first +second):\n%s", diff)
	}
}

func TestSynthesize_ConcurrentUse(t *testing.T) {
	s := New(nil, DefaultConfig(), quietLogger())
	want := s.Synthesize(context.Background(), Input{Reasoning: goodReasoning, AnswerCorrect: true}).Record

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := s.Synthesize(context.Background(), Input{Reasoning: goodReasoning, AnswerCorrect: true}).Record
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("concurrent record mismatch:\n%s", diff)
			}
		}()
	}
	wg.Wait()
}

func TestQuick(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockText("  Well done! Keep going.  "))
	s := New(mock, DefaultConfig(), quietLogger())

	got, err := s.Quick(context.Background(), Question{Text: "Solve 2x+3=7"}, []string{"2"}, true)
	if err != nil {
		t.Fatalf("Quick: %v", err)
	}
	if got != "Well done! Keep going." {
		t.Errorf("Quick = %q", got)
	}

	req, _ := mock.LastCall()
	if req.MaxTokens != 150 || req.Temperature != 0.7 {
		t.Errorf("quick settings = %d / %v", req.MaxTokens, req.Temperature)
	}
	want := "Question: Solve 2x+3=7\nStudent Answer: [\"2\"]\nCorrect: Yes"
	if !strings.HasPrefix(req.Messages[0].Content, want) {
		t.Errorf("prompt = %q", req.Messages[0].Content)
	}
}

func TestQuick_Errors(t *testing.T) {
	if _, err := New(nil, DefaultConfig(), quietLogger()).Quick(context.Background(), Question{}, nil, false); !errors.Is(err, ErrNoProvider) {
		t.Errorf("nil provider err = %v, want ErrNoProvider", err)
	}

	s := New(llm.NewMockProvider(), DefaultConfig(), quietLogger())
	_, err := s.Quick(context.Background(), Question{}, nil, false)
	var pu *llm.ErrProviderUnavailable
	if !errors.As(err, &pu) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode(" Structured ") != ModeStructured {
		t.Error("structured not parsed")
	}
	if ParseMode("whatever") != ModeNarrative {
		t.Error("unknown mode should default to narrative")
	}
}
