package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/abhisek/mathquiz/internal/quiz"
	"github.com/abhisek/mathquiz/internal/store"
	"github.com/abhisek/mathquiz/internal/submission"
)

// GET /api/quiz/topics
func (h *handler) topics(c echo.Context) error {
	return ok(c, http.StatusOK, "", quiz.Topics())
}

// GET /api/quiz/:topic/next?includeAnswer=true
func (h *handler) nextQuestion(c echo.Context) error {
	if h.questions == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Questions unavailable")
	}
	q, err := h.questions.Next(c.Param("topic"))
	if errors.Is(err, quiz.ErrUnknownTopic) {
		return echo.NewHTTPError(http.StatusNotFound, "Unknown topic")
	}
	if err != nil {
		return err
	}

	if !isTrue(c.QueryParam("includeAnswer")) {
		// Generated questions are not in the bank, so their answers must
		// travel with them for later grading. Bank answers stay server side.
		if _, inBank := h.questions.Lookup(q.ID); inBank {
			for i := range q.Parts {
				q.Parts[i].Answer = ""
			}
			q.Steps = nil
		}
	}
	return ok(c, http.StatusOK, "", q)
}

type CheckRequest struct {
	Question QuestionBody      `json:"question"`
	Answers  map[string]string `json:"answers" validate:"required"`
}

// POST /api/quiz/check
func (h *handler) checkAnswers(c echo.Context) error {
	var req CheckRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	q := h.resolveQuestion(req.Question)
	if len(q.Parts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Question has no gradable parts")
	}
	return ok(c, http.StatusOK, "", quiz.Check(q, req.Answers))
}

// POST /api/submissions
func (h *handler) createSubmission(c echo.Context) error {
	var p submission.Payload
	if err := bindAndValidate(c, &p); err != nil {
		return err
	}
	sub, err := h.submissions.Save(c.Request().Context(), p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Database insert failed").SetInternal(err)
	}
	return ok(c, http.StatusCreated, "Submission saved", sub)
}

// GET /api/submissions?limit=&course=&userId=
func (h *handler) listSubmissions(c echo.Context) error {
	filter := store.SubmissionFilter{
		Limit:  50,
		Course: c.QueryParam("course"),
		UserID: c.QueryParam("userId"),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		filter.Limit = n
	}

	subs, err := h.submissions.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if subs == nil {
		subs = []store.Submission{}
	}
	return ok(c, http.StatusOK, "", subs)
}

// GET /api/submissions/:id
func (h *handler) getSubmission(c echo.Context) error {
	sub, err := h.submissions.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, submission.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Submission not found")
	}
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, "", sub)
}
