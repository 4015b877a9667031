package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/mathquiz/internal/feedback"
	"github.com/abhisek/mathquiz/internal/latex"
	"github.com/abhisek/mathquiz/internal/llm"
	"github.com/abhisek/mathquiz/internal/quiz"
	"github.com/abhisek/mathquiz/internal/reasoning"
	"github.com/abhisek/mathquiz/internal/render"
	"github.com/abhisek/mathquiz/internal/submission"
)

type handler struct {
	synth       *feedback.Synthesizer
	provider    llm.Provider
	questions   *quiz.Generator
	submissions *submission.Service
	metrics     *Metrics
	log         logrus.FieldLogger
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

type (
	// QuestionBody names a bank question by ID or carries the question
	// inline. Parts, when present, let the server grade the answer.
	QuestionBody struct {
		ID            string         `json:"id" validate:"max=200"`
		Text          string         `json:"text" validate:"required_without=ID,max=4000"`
		Topic         string         `json:"topic" validate:"max=100"`
		Parameters    map[string]any `json:"parameters"`
		CorrectAnswer any            `json:"correctAnswer"`
		Parts         []quiz.Part    `json:"parts" validate:"max=20,dive"`
	}

	FeedbackRequest struct {
		Question      QuestionBody      `json:"question"`
		UserAnswer    any               `json:"userAnswer"`
		Answers       map[string]string `json:"answers"`
		Reasoning     string            `json:"reasoning" validate:"max=20000"`
		AnswerCorrect *bool             `json:"answerCorrect"`
	}

	RemoteBody struct {
		Attempted bool     `json:"attempted"`
		OK        bool     `json:"ok"`
		Error     string   `json:"error,omitempty"`
		Rejected  []string `json:"rejected,omitempty"`
		Model     string   `json:"model,omitempty"`
	}

	FeedbackResponse struct {
		Record     feedback.Record      `json:"record"`
		Assessment reasoning.Assessment `json:"assessment"`
		Remote     RemoteBody           `json:"remote"`
		Check      *quiz.CheckResult    `json:"check,omitempty"`
		HTML       string               `json:"html,omitempty"`
	}
)

// resolveQuestion prefers the bank copy of a known ID so clients cannot
// supply their own answer key for it.
func (h *handler) resolveQuestion(body QuestionBody) *quiz.Question {
	if body.ID != "" && h.questions != nil {
		if q, ok := h.questions.Lookup(body.ID); ok {
			return q
		}
	}
	return &quiz.Question{
		ID:         body.ID,
		Topic:      body.Topic,
		Text:       body.Text,
		Parameters: body.Parameters,
		Parts:      body.Parts,
	}
}

// grade decides answer correctness when the client did not. A single-part
// question accepts a plain string userAnswer.
func grade(q *quiz.Question, req FeedbackRequest) (bool, *quiz.CheckResult) {
	if req.AnswerCorrect != nil {
		return *req.AnswerCorrect, nil
	}
	if len(q.Parts) == 0 {
		return false, nil
	}
	answers := req.Answers
	if answers == nil && len(q.Parts) == 1 {
		if s, ok := req.UserAnswer.(string); ok {
			answers = map[string]string{q.Parts[0].Key: s}
		}
	}
	res := quiz.Check(q, answers)
	return res.Correct, &res
}

// POST /api/feedback?strict=true&format=html
func (h *handler) feedback(c echo.Context) error {
	var req FeedbackRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	q := h.resolveQuestion(req.Question)
	correct, check := grade(q, req)

	fq := q.Context()
	if req.Question.CorrectAnswer != nil && len(q.Parts) == 0 {
		fq.CorrectAnswer = req.Question.CorrectAnswer
	}
	userAnswer := req.UserAnswer
	if userAnswer == nil && req.Answers != nil {
		userAnswer = req.Answers
	}

	ctx := c.Request().Context()
	res := h.synth.Synthesize(ctx, feedback.Input{
		Question:      fq,
		UserAnswer:    userAnswer,
		Reasoning:     req.Reasoning,
		AnswerCorrect: correct,
	})

	// The client is gone; a late answer must not be served or counted.
	if ctx.Err() != nil {
		h.metrics.discardFeedback()
		h.log.WithField("question_id", q.ID).Debug("Dropping feedback for cancelled request")
		return nil
	}
	h.metrics.observeFeedback(res)

	if isTrue(c.QueryParam("strict")) {
		if err := res.Strict(); err != nil {
			return echo.NewHTTPError(llm.HTTPStatus(err), "Feedback service unavailable").SetInternal(err)
		}
	}

	out := FeedbackResponse{
		Record:     res.Record,
		Assessment: res.Assessment,
		Remote: RemoteBody{
			Attempted: res.Remote.Attempted,
			OK:        res.Remote.OK,
			Error:     res.Remote.ErrorText(),
			Rejected:  res.Remote.Rejected,
			Model:     res.Remote.Model,
		},
		Check: check,
	}
	if c.QueryParam("format") == "html" {
		html, err := render.HTML(render.Build(res.Record))
		if err != nil {
			return err
		}
		out.HTML = html
	}
	return ok(c, http.StatusOK, "Feedback generated", out)
}

type QuickRequest struct {
	Question      QuestionBody `json:"question"`
	UserAnswer    any          `json:"userAnswer"`
	AnswerCorrect bool         `json:"answerCorrect"`
}

// POST /api/feedback/quick
func (h *handler) quickFeedback(c echo.Context) error {
	var req QuickRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	q := h.resolveQuestion(req.Question)

	text, err := h.synth.Quick(c.Request().Context(), q.Context(), req.UserAnswer, req.AnswerCorrect)
	if err != nil {
		if errors.Is(err, feedback.ErrNoProvider) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "No LLM provider configured")
		}
		return echo.NewHTTPError(llm.HTTPStatus(err), "Feedback service unavailable").SetInternal(err)
	}
	return ok(c, http.StatusOK, "Feedback generated", map[string]string{"feedback": text})
}

type LatexRequest struct {
	Latex string `json:"latex" validate:"max=20000"`
}

// POST /api/latex/validate
func (h *handler) validateLatex(c echo.Context) error {
	var req LatexRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return ok(c, http.StatusOK, "", latex.Validate(req.Latex))
}

type (
	ReasoningRequest struct {
		Reasoning string `json:"reasoning" validate:"max=20000"`
	}

	ReasoningResponse struct {
		reasoning.Assessment
		Strengths []string `json:"strengths"`
		Issues    []string `json:"issues"`
	}
)

// POST /api/reasoning/assess
func (h *handler) assessReasoning(c echo.Context) error {
	var req ReasoningRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a := reasoning.Assess(req.Reasoning)

	issues := []string{}
	for _, g := range a.Gaps() {
		issues = append(issues, g.Message())
	}
	strengths := a.Strengths()
	if strengths == nil {
		strengths = []string{}
	}
	return ok(c, http.StatusOK, "", ReasoningResponse{Assessment: a, Strengths: strengths, Issues: issues})
}

type RenderRequest struct {
	Record feedback.Record `json:"record"`
}

// POST /api/render
func (h *handler) render(c echo.Context) error {
	var req RenderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	html, err := render.HTML(render.Build(req.Record))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "", map[string]string{"html": html})
}

func isTrue(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}
