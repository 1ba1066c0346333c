// Package http provides the HTTP API for baseline.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/ingestion"
	"github.com/sarahrhemadayal/baseline/internal/logging"
	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/retrieval"
)

// Items is the memory store surface the API serves.
type Items interface {
	Search(ctx context.Context, userID, query string, opts memory.SearchOptions) ([]memory.Match, error)
	Mutate(ctx context.Context, req memory.MutateRequest) (memory.MutateResponse, error)
	DeleteAll(ctx context.Context, userID string) error
}

// Views serves aggregated reads.
type Views interface {
	GetView(ctx context.Context, userID string, view retrieval.View, limit int) (any, error)
	SearchSimilar(ctx context.Context, userID, query string, opts retrieval.SimilarOptions) ([]retrieval.SimilarResult, error)
}

// Ingester runs an ingestion batch inline.
type Ingester interface {
	BulkIngest(ctx context.Context, userID string, sections ingestion.Sections) (*ingestion.Result, error)
}

// AsyncIngester hands a batch to a durable workflow and returns its id.
type AsyncIngester interface {
	StartBulkIngest(ctx context.Context, userID string, sections ingestion.Sections) (string, error)
}

// Services are the handlers' dependencies. Async is optional.
type Services struct {
	Items    Items
	Views    Views
	Ingester Ingester
	Async    AsyncIngester
}

// Server provides HTTP endpoints for baseline.
type Server struct {
	echo     *echo.Echo
	services Services
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration
}

// NewServer creates a new HTTP server.
func NewServer(services Services, logger *zap.Logger, cfg *Config) (*Server, error) {
	if services.Items == nil {
		return nil, fmt.Errorf("items service cannot be nil")
	}
	if services.Views == nil {
		return nil, fmt.Errorf("views service cannot be nil")
	}
	if services.Ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e, logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: cfg.RequestTimeout,
		}))
	}
	e.Use(sharedRequestMetrics().middleware())
	e.Use(requestLog(logger))

	s := &Server{
		echo:     e,
		services: services,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/items/search", s.handleSearchItems)
	v1.POST("/items", s.handleMutate)
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/search", s.handleSearchSimilar)
	v1.GET("/views/:view", s.handleView)
	v1.DELETE("/users/:userId", s.handleDeleteUser)
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
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

// requestLog tags the request context with its id, so downstream service
// logs carry request.id, and logs one line per request. The error handler
// runs after middleware, so a failed request's status comes from statusFor.
func requestLog(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), rid)))

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = statusFor(err)
			}
			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("route", routeLabel(c.Path())),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", rid),
			)
			return err
		}
	}
}
