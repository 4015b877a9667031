// Package server exposes feedback synthesis, quiz questions, submissions
// and the LLM proxy over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/abhisek/mathquiz/internal/config"
	"github.com/abhisek/mathquiz/internal/feedback"
	"github.com/abhisek/mathquiz/internal/llm"
	"github.com/abhisek/mathquiz/internal/quiz"
	"github.com/abhisek/mathquiz/internal/submission"
)

// Deps are the services the handlers call.
type Deps struct {
	Synthesizer *feedback.Synthesizer
	// Provider backs the proxy endpoint; nil answers 503.
	Provider    llm.Provider
	Questions   *quiz.Generator
	Submissions *submission.Service
	// Registry collects metrics; nil creates a fresh one.
	Registry *prometheus.Registry
}

type Server struct {
	echo *echo.Echo
	cfg  config.ServerConfig
	log  logrus.FieldLogger
}

func New(cfg config.ServerConfig, deps Deps, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	reg := deps.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	metrics := NewMetrics(reg)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(log)

	e.Use(middleware.Recover())
	e.Use(requestLogger(log))
	e.Use(metrics.Middleware())
	e.Use(middleware.Secure())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/metrics" },
	}))
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	h := &handler{
		synth:       deps.Synthesizer,
		provider:    deps.Provider,
		questions:   deps.Questions,
		submissions: deps.Submissions,
		metrics:     metrics,
		log:         log,
	}

	e.GET("/healthz", h.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	setupFeedbackRoutes(api, h)
	setupQuizRoutes(api, h)
	setupSubmissionRoutes(api, h)
	setupProxyRoutes(api, h, proxyLimiter(cfg.ProxyRateLimit))

	return &Server{echo: e, cfg: cfg, log: log}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.log.WithField("address", addr).Info("Server starting")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server...")
	return s.echo.Shutdown(ctx)
}

func setupFeedbackRoutes(api *echo.Group, h *handler) {
	api.POST("/feedback", h.feedback)
	api.POST("/feedback/quick", h.quickFeedback)
	api.POST("/latex/validate", h.validateLatex)
	api.POST("/reasoning/assess", h.assessReasoning)
	api.POST("/render", h.render)
}

func setupQuizRoutes(api *echo.Group, h *handler) {
	q := api.Group("/quiz")
	q.GET("/topics", h.topics)
	q.GET("/:topic/next", h.nextQuestion)
	q.POST("/check", h.checkAnswers)
}

func setupSubmissionRoutes(api *echo.Group, h *handler) {
	s := api.Group("/submissions")
	s.POST("", h.createSubmission)
	s.GET("", h.listSubmissions)
	s.GET("/:id", h.getSubmission)
}

func setupProxyRoutes(api *echo.Group, h *handler, limiter echo.MiddlewareFunc) {
	api.POST("/llm/feedback", h.proxy, limiter)
	api.POST("/openai/feedback", h.proxy, limiter)
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
				"ip":      v.RemoteIP,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			if v.Status >= http.StatusInternalServerError {
				entry.Warn("request")
			} else {
				entry.Debug("request")
			}
			return nil
		},
	})
}

// proxyLimiter allows perMinute requests per client IP per minute.
// Zero disables limiting.
func proxyLimiter(perMinute int) echo.MiddlewareFunc {
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     perMinute,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, try again in a minute")
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Client could not be identified").SetInternal(err)
		},
	})
}
