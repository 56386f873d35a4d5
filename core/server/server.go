// Package server exposes the decision engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adalundhe/rebound/core/config"
	"github.com/adalundhe/rebound/core/engine"
	"github.com/adalundhe/rebound/core/history"
	"github.com/adalundhe/rebound/core/metrics"
)

type Server struct {
	app      *fiber.App
	engine   *engine.Engine
	history  *history.Store
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	config   config.ServerConfig
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Server)

// WithHistory enables attempt recording and history-aware decisions.
func WithHistory(store *history.Store) Option {
	return func(s *Server) {
		s.history = store
	}
}

// WithMetrics records outcomes on c and serves g at the metrics path.
func WithMetrics(c *metrics.Collector, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = c
		s.gatherer = g
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(e *engine.Engine, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		engine: e,
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "rebound",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	v1 := s.app.Group("/v1")
	v1.Post("/decide", s.decide)
	v1.Post("/outcome", s.outcome)
	v1.Get("/circuits", s.listCircuits)
	v1.Get("/circuits/:class", s.getCircuit)
	v1.Delete("/circuits/:class", s.resetCircuit)
	v1.Get("/patterns", s.listPatterns)
	v1.Get("/patterns/:id", s.getPattern)
	v1.Get("/tasks/:id/attempts", s.taskAttempts)

	if s.gatherer != nil && s.config.MetricsPath != "" {
		s.app.Get(s.config.MetricsPath, adaptor.HTTPHandler(
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
		))
	}
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.config.Addr)
		errCh <- s.app.Listen(s.config.Addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := s.app.ShutdownWithTimeout(timeout); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := s.now()
	err := c.Next()
	s.logger.Debug("http request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"elapsed", s.now().Sub(start))
	return err
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	} else {
		s.logger.Error("handler error", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(errorResponse{Code: code, Message: err.Error()})
}
