package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mathquiz/internal/config"
	"github.com/abhisek/mathquiz/internal/feedback"
	"github.com/abhisek/mathquiz/internal/llm"
	"github.com/abhisek/mathquiz/internal/quiz"
	"github.com/abhisek/mathquiz/internal/store"
	"github.com/abhisek/mathquiz/internal/submission"
)

const goodReasoning = `We differentiate $f(x)=3\cos(2x)$ using the chain rule, therefore the derivative of the outer cosine is minus sine and the inner derivative is two, so we multiply them together because the chain rule says the outer derivative times the inner derivative gives the result we want here today.`

type fixture struct {
	handler http.Handler
	mock    *llm.MockProvider
}

type fixtureOpts struct {
	provider  bool
	rateLimit int
	bodyLimit string
}

func newFixture(t *testing.T, opts fixtureOpts, responses ...llm.MockResponse) *fixture {
	t.Helper()

	st, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gen, err := quiz.NewGenerator(rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	log, _ := test.NewNullLogger()

	var provider llm.Provider
	var mock *llm.MockProvider
	if opts.provider {
		mock = llm.NewMockProvider(responses...)
		provider = mock
	}

	cfg := config.ServerConfig{
		Port:           3080,
		CORSOrigins:    []string{"*"},
		BodyLimit:      opts.bodyLimit,
		ProxyRateLimit: opts.rateLimit,
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "200K"
	}

	srv := New(cfg, Deps{
		Synthesizer: feedback.New(provider, feedback.DefaultConfig(), log),
		Provider:    provider,
		Questions:   gen,
		Submissions: submission.NewService(st.SubmissionRepo(), log),
	}, log)

	return &fixture{handler: srv.Handler(), mock: mock}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.doCtx(t, context.Background(), method, path, body)
}

func (f *fixture) doCtx(t *testing.T, ctx context.Context, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequestWithContext(ctx, method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// envelope decodes the response and unmarshals its data into out.
func envelope(t *testing.T, rec *httptest.ResponseRecorder, out any) Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(raw.Data, out), string(raw.Data))
	}
	return raw.Response
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestFeedback_LocalOnly(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/feedback", `{
		"question": {"text": "Solve 2x+1=5"},
		"userAnswer": "2",
		"reasoning": "x = 2",
		"answerCorrect": true
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out FeedbackResponse
	res := envelope(t, rec, &out)
	assert.True(t, res.Success)
	assert.Equal(t, "incorrect", string(out.Record.Correctness))
	assert.False(t, out.Remote.Attempted)
	assert.Nil(t, out.Check)
	assert.Empty(t, out.HTML)
}

func TestFeedback_GradesWhenAnswerCorrectAbsent(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	body := fmt.Sprintf(`{
		"question": {"text": "Solve 2x+1=5", "parts": [{"key": "x", "answer": "2", "kind": "numeric"}]},
		"userAnswer": "2.0",
		"reasoning": %q
	}`, goodReasoning)
	rec := f.do(t, http.MethodPost, "/api/feedback", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out FeedbackResponse
	envelope(t, rec, &out)
	require.NotNil(t, out.Check)
	assert.True(t, out.Check.Correct)
	assert.Equal(t, "correct", string(out.Record.Correctness))
}

func TestFeedback_BankQuestionKeepsItsAnswerKey(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/feedback", `{
		"question": {"id": "piecewise-1", "parts": [{"key": "at4", "answer": "anything", "kind": "choice"}]},
		"answers": {"at4": "is continuous", "at6": "is continuous"},
		"reasoning": "both sides agree"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out FeedbackResponse
	envelope(t, rec, &out)
	require.NotNil(t, out.Check)
	assert.True(t, out.Check.Correct)
	assert.Equal(t, map[string]bool{"at4": true, "at6": true}, out.Check.Parts)
}

func TestFeedback_RemoteNarrativeAndHTML(t *testing.T) {
	f := newFixture(t, fixtureOpts{provider: true}, llm.MockText("Nice use of the chain rule."))

	rec := f.do(t, http.MethodPost, "/api/feedback?format=html", `{
		"question": {"text": "Differentiate"},
		"reasoning": "chain rule",
		"answerCorrect": false
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out FeedbackResponse
	envelope(t, rec, &out)
	assert.True(t, out.Remote.OK)
	assert.Equal(t, "Nice use of the chain rule.", out.Record.Summary)
	assert.Equal(t, "incorrect", string(out.Record.Correctness))
	assert.Contains(t, out.HTML, `aifx-pill aifx-bad`)
	assert.Contains(t, out.HTML, "Nice use of the chain rule.")
}

func TestFeedback_CollaboratorFailure(t *testing.T) {
	body := `{"question": {"text": "q"}, "reasoning": "r", "answerCorrect": true}`

	t.Run("degrades by default", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true}, llm.MockResponse{Err: &llm.ErrRateLimit{}})
		rec := f.do(t, http.MethodPost, "/api/feedback", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var out FeedbackResponse
		envelope(t, rec, &out)
		assert.True(t, out.Remote.Attempted)
		assert.False(t, out.Remote.OK)
		assert.NotEmpty(t, out.Remote.Error)
		assert.NotEmpty(t, out.Record.Summary)
	})

	t.Run("strict surfaces rate limit", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true}, llm.MockResponse{Err: &llm.ErrRateLimit{}})
		rec := f.do(t, http.MethodPost, "/api/feedback?strict=true", body)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		res := envelope(t, rec, nil)
		assert.False(t, res.Success)
		assert.Equal(t, "Feedback service unavailable", res.Message)
	})

	t.Run("strict surfaces unavailable", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true})
		rec := f.do(t, http.MethodPost, "/api/feedback?strict=1", body)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestQuickFeedback(t *testing.T) {
	body := `{"question": {"text": "Solve 2x+1=5"}, "userAnswer": "2", "answerCorrect": true}`

	t.Run("no provider", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		rec := f.do(t, http.MethodPost, "/api/feedback/quick", body)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("returns text", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true}, llm.MockText("  Well done!  "))
		rec := f.do(t, http.MethodPost, "/api/feedback/quick", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var out map[string]string
		envelope(t, rec, &out)
		assert.Equal(t, "Well done!", out["feedback"])

		call, ok := f.mock.LastCall()
		require.True(t, ok)
		assert.Contains(t, call.Messages[0].Content, "Correct: Yes")
	})

	t.Run("provider error", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true}, llm.MockResponse{Err: &llm.ErrRateLimit{}})
		rec := f.do(t, http.MethodPost, "/api/feedback/quick", body)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestFeedback_CancelledRequestIsDropped(t *testing.T) {
	f := newFixture(t, fixtureOpts{provider: true}, llm.MockResponse{Block: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := f.doCtx(t, ctx, http.MethodPost, "/api/feedback", `{"question": {"text": "q"}, "reasoning": "r"}`)
	assert.Empty(t, rec.Body.String())

	metrics := f.do(t, http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, metrics, `mathquiz_feedback_total{outcome="discarded"} 1`)
	assert.NotContains(t, metrics, `mathquiz_feedback_verdicts_total`)
}

func TestFeedback_Validation(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/feedback", `{"question": {}, "reasoning": "r"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var raw struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Error   map[string]string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.False(t, raw.Success)
	assert.Equal(t, "Validation failed", raw.Message)
	assert.Contains(t, raw.Error, "question.text")

	rec = f.do(t, http.MethodPost, "/api/feedback", `{"question": `)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body is not valid", envelope(t, rec, nil).Message)
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t, fixtureOpts{bodyLimit: "1K"})
	big := fmt.Sprintf(`{"latex": %q}`, strings.Repeat("x", 4096))
	rec := f.do(t, http.MethodPost, "/api/latex/validate", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLatexValidate(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/latex/validate", `{"latex": "\\frac{1}{2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Valid  bool     `json:"isValid"`
		Errors []string `json:"errors"`
	}
	envelope(t, rec, &out)
	assert.False(t, out.Valid)
	assert.NotEmpty(t, out.Errors)
}

func TestReasoningAssess(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/reasoning/assess", `{"reasoning": ""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Score     float64  `json:"score"`
		Tier      string   `json:"tier"`
		Strengths []string `json:"strengths"`
		Issues    []string `json:"issues"`
	}
	envelope(t, rec, &out)
	assert.Zero(t, out.Score)
	assert.Equal(t, "poor", out.Tier)
	assert.Contains(t, out.Issues, "Reasoning is too brief.")
	assert.NotNil(t, out.Strengths)
}

func TestRender(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/render", `{"record": {
		"summary": "ok",
		"correctness": "partial",
		"math_highlight": {"step 1": "x^2"}
	}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]string
	envelope(t, rec, &out)
	assert.Contains(t, out["html"], "aifx-warn")
	assert.Contains(t, out["html"], "step 1")
}

func TestQuizRoutes(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	var topics []string
	envelope(t, f.do(t, http.MethodGet, "/api/quiz/topics", ""), &topics)
	assert.Equal(t, quiz.Topics(), topics)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/quiz/geometry/next", "").Code)

	var bank quiz.Question
	envelope(t, f.do(t, http.MethodGet, "/api/quiz/piecewise/next", ""), &bank)
	assert.Equal(t, "piecewise-1", bank.ID)
	for _, p := range bank.Parts {
		assert.Empty(t, p.Answer)
	}

	var generated quiz.Question
	envelope(t, f.do(t, http.MethodGet, "/api/quiz/algebra/next", ""), &generated)
	require.Len(t, generated.Parts, 1)
	assert.NotEmpty(t, generated.Parts[0].Answer)

	rec := f.do(t, http.MethodPost, "/api/quiz/check", `{
		"question": {"id": "piecewise-2"},
		"answers": {"at4": "is not continuous", "at6": "is continuous"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var check quiz.CheckResult
	envelope(t, rec, &check)
	assert.False(t, check.Correct)
	assert.Equal(t, map[string]bool{"at4": true, "at6": false}, check.Parts)

	rec = f.do(t, http.MethodPost, "/api/quiz/check", `{"question": {"text": "free"}, "answers": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmissionRoutes(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	rec := f.do(t, http.MethodPost, "/api/submissions", `{
		"question": "Solve 2x+1=5",
		"course": "algebra",
		"questionId": 42,
		"timeOpen": 1700000000000,
		"timeSubmitted": 1700000001000,
		"aiFeedback": "plain text",
		"userId": "u1"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created store.Submission
	envelope(t, rec, &created)
	assert.Equal(t, "42", created.QuestionID)
	require.NotNil(t, created.DurationMs)
	assert.Equal(t, int64(1000), *created.DurationMs)
	assert.JSONEq(t, `{"summary":"plain text"}`, string(created.AIFeedback))

	var got store.Submission
	envelope(t, f.do(t, http.MethodGet, "/api/submissions/"+created.ID, ""), &got)
	assert.Equal(t, created.ID, got.ID)

	var list []store.Submission
	envelope(t, f.do(t, http.MethodGet, "/api/submissions?userId=u1", ""), &list)
	assert.Len(t, list, 1)

	envelope(t, f.do(t, http.MethodGet, "/api/submissions?userId=nobody", ""), &list)
	assert.Empty(t, list)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/submissions/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/submissions?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/submissions", `{"email": "nope"}`).Code)
}

func TestProxy(t *testing.T) {
	body := `{
		"model": "gpt-4o-mini",
		"messages": [
			{"role": "system", "content": "You are a tutor."},
			{"role": "user", "content": "Explain limits."}
		],
		"max_tokens": 200
	}`

	t.Run("no provider", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/llm/feedback", body).Code)
	})

	t.Run("forwards", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true}, llm.MockText("A limit is..."))
		rec := f.do(t, http.MethodPost, "/api/openai/feedback", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var out ProxyResponse
		envelope(t, rec, &out)
		assert.Equal(t, "A limit is...", out.Content)
		assert.Equal(t, "gpt-4o-mini", out.Model)

		req, ok := f.mock.LastCall()
		require.True(t, ok)
		assert.Equal(t, "You are a tutor.", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
		assert.Equal(t, 200, req.MaxTokens)
	})

	t.Run("validates", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true})
		rec := f.do(t, http.MethodPost, "/api/llm/feedback", `{"messages": [{"role": "robot", "content": "hi"}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = f.do(t, http.MethodPost, "/api/llm/feedback", `{"messages": [{"role": "system", "content": "only system"}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps provider errors", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true}, llm.MockResponse{Err: &llm.ErrRateLimit{}})
		assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/llm/feedback", body).Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{provider: true, rateLimit: 2},
			llm.MockText("one"), llm.MockText("two"), llm.MockText("three"))
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/llm/feedback", body).Code)
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/llm/feedback", body).Code)
		assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/llm/feedback", body).Code)
		assert.Equal(t, 2, f.mock.CallCount())
	})
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.do(t, http.MethodGet, "/healthz", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mathquiz_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
