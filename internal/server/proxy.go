package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/abhisek/mathquiz/internal/llm"
)

const (
	proxyDefaultMaxTokens   = 400
	proxyDefaultTemperature = 0.3
)

type (
	ProxyMessage struct {
		Role    string `json:"role" validate:"required,oneof=system user assistant"`
		Content string `json:"content" validate:"required,max=20000"`
	}

	ProxyRequest struct {
		Model       string         `json:"model" validate:"max=100"`
		Messages    []ProxyMessage `json:"messages" validate:"required,min=1,max=20,dive"`
		MaxTokens   int            `json:"max_tokens" validate:"gte=0,lte=4000"`
		Temperature *float64       `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	}

	ProxyResponse struct {
		Content string    `json:"content"`
		Model   string    `json:"model"`
		Usage   llm.Usage `json:"usage"`
	}
)

// toLLMRequest folds system turns into the system prompt.
func (r ProxyRequest) toLLMRequest() llm.Request {
	req := llm.Request{
		Model:       r.Model,
		MaxTokens:   r.MaxTokens,
		Temperature: proxyDefaultTemperature,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = proxyDefaultMaxTokens
	}
	if r.Temperature != nil {
		req.Temperature = *r.Temperature
	}

	var system []string
	for _, m := range r.Messages {
		role := llm.ParseRole(m.Role)
		if role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, llm.Message{Role: role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

// POST /api/llm/feedback
func (h *handler) proxy(c echo.Context) error {
	if h.provider == nil {
		h.metrics.proxy.WithLabelValues(strconv.Itoa(http.StatusServiceUnavailable)).Inc()
		return echo.NewHTTPError(http.StatusServiceUnavailable, "No LLM provider configured")
	}

	var req ProxyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	llmReq := req.toLLMRequest()
	if len(llmReq.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "At least one user message is required")
	}

	ctx := llm.WithPurpose(c.Request().Context(), llm.PurposeProxy)
	resp, err := h.provider.Generate(ctx, llmReq)
	status := llm.HTTPStatus(err)
	h.metrics.proxy.WithLabelValues(strconv.Itoa(status)).Inc()
	if err != nil {
		return echo.NewHTTPError(status, "LLM request failed").SetInternal(err)
	}

	model := resp.Model
	if model == "" {
		model = h.provider.ModelID()
	}
	return ok(c, http.StatusOK, "", ProxyResponse{
		Content: resp.Text(),
		Model:   model,
		Usage:   resp.Usage,
	})
}
