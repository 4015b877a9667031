package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/abhisek/mathquiz/internal/feedback"
)

// Feedback outcomes.
const (
	outcomeRemote    = "remote"
	outcomeLocal     = "local"
	outcomeFallback  = "fallback"
	outcomeDiscarded = "discarded"
)

type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	feedback *prometheus.CounterVec
	verdicts *prometheus.CounterVec
	proxy    *prometheus.CounterVec
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquiz_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mathquiz_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquiz_feedback_total",
			Help: "Feedback records served, by how they were produced",
		}, []string{"outcome"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquiz_feedback_verdicts_total",
			Help: "Feedback records served, by final verdict",
		}, []string{"verdict"}),
		proxy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mathquiz_llm_proxy_requests_total",
			Help: "LLM proxy requests by status",
		}, []string{"status"}),
	}
	reg.MustRegister(m.requests, m.latency, m.feedback, m.verdicts, m.proxy)
	return m
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}
			m.requests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) observeFeedback(res *feedback.Result) {
	switch {
	case !res.Remote.Attempted:
		m.feedback.WithLabelValues(outcomeLocal).Inc()
	case res.Remote.OK:
		m.feedback.WithLabelValues(outcomeRemote).Inc()
	default:
		m.feedback.WithLabelValues(outcomeFallback).Inc()
	}
	m.verdicts.WithLabelValues(res.Verdict.String()).Inc()
}

func (m *Metrics) discardFeedback() {
	m.feedback.WithLabelValues(outcomeDiscarded).Inc()
}

func statusOf(err error) int {
	var he *echo.HTTPError
	var fe *FieldsError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &fe):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
