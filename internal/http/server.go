// Package http provides the HTTP API for evidenced.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/rag"
)

// Request validation bounds.
const (
	minQuestionLen = 3
	maxQuestionLen = 2000
	minK           = 1
	maxK           = 20
)

// Server provides HTTP endpoints for evidenced.
type Server struct {
	echo    *echo.Echo
	rag     *rag.Service
	metrics *HTTPMetrics
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server around the query service.
func NewServer(ragSvc *rag.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if ragSvc == nil {
		return nil, fmt.Errorf("rag service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewHTTPMetrics(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		rag:     ragSvc,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/readyz", s.handleReady)
	s.echo.POST("/query", s.handleQuery)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response body for GET /readyz.
type ReadyResponse struct {
	Status          string `json:"status"`
	VectorStore     string `json:"vector_store"`
	CollectionCount int    `json:"collection_count"`
	NumResults      int    `json:"num_results"`
	K               int    `json:"k"`
}

// QueryRequest is the request body for POST /query. K is a pointer so
// an explicit zero is rejected instead of silently becoming the
// default.
type QueryRequest struct {
	Question   string `json:"question"`
	K          *int   `json:"k"`
	RawContext bool   `json:"raw_context"`
}

// QueryResponse is the response body for POST /query.
type QueryResponse struct {
	Answer     *string      `json:"answer"`
	Sources    []rag.Source `json:"sources"`
	RawContext *string      `json:"raw_context,omitempty"`
}

// handleHealth is a liveness signal only: no dependency checks.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady verifies the store collection is populated and the
// retriever answers a probe query.
func (s *Server) handleReady(c echo.Context) error {
	info, err := s.rag.Readiness(c.Request().Context())
	if err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(http.StatusOK, ReadyResponse{
		Status:          "ready",
		VectorStore:     "ok",
		CollectionCount: info.CollectionCount,
		NumResults:      info.NumResults,
		K:               info.K,
	})
}

// handleQuery validates the request, runs retrieval and composition,
// and maps pipeline failures onto status codes.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	k := rag.DefaultK
	if req.K != nil {
		k = *req.K
	}

	// Validation happens before any retrieval call.
	qLen := utf8.RuneCountInString(req.Question)
	if qLen < minQuestionLen || qLen > maxQuestionLen {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("question must be between %d and %d characters", minQuestionLen, maxQuestionLen))
	}
	if k < minK || k > maxK {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("k must be between %d and %d", minK, maxK))
	}

	result, err := s.rag.Ask(c.Request().Context(), req.Question, k)
	if err != nil {
		switch {
		case errors.Is(err, rag.ErrUnavailable):
			s.logger.Warn("query rejected, store unavailable", zap.Error(err))
			return echo.NewHTTPError(http.StatusServiceUnavailable, "vector store not ready")
		case errors.Is(err, rag.ErrMissingSources):
			s.logger.Error("composer returned result without sources", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "internal invariant violation: missing sources")
		default:
			s.logger.Error("query failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
		}
	}

	resp := QueryResponse{
		Answer:  result.Answer,
		Sources: result.Sources,
	}
	if req.RawContext && result.RawContext != "" {
		resp.RawContext = &result.RawContext
	}

	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
