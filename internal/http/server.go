// Package http provides the embedlife HTTP API.
package http

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/logging"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
)

// HeaderTenantID carries the tenant every /api/v1 request acts for.
const HeaderTenantID = "X-Tenant-ID"

// Server provides HTTP endpoints for embedlife.
type Server struct {
	echo    *echo.Echo
	manager *storemanager.Manager
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// RequestsPerSecond limits /api/v1 calls per client IP. Zero disables.
	RequestsPerSecond float64
	// Burst is the rate limiter burst size. Default: 10
	Burst int
}

// NewServer creates a new HTTP server.
func NewServer(manager *storemanager.Manager, logger *zap.Logger, cfg *Config) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("store manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8085}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logging.For(c.Request().Context(), logger).Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:    e,
		manager: manager,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", tenantMiddleware)
	if s.config.RequestsPerSecond > 0 {
		v1.Use(newIPRateLimiter(s.config.RequestsPerSecond, s.config.Burst).middleware)
	}

	v1.POST("/documents", s.handleIndex)
	v1.POST("/documents/batch", s.handleBatchIndex)
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.PUT("/documents/:id", s.handleUpdate)
	v1.DELETE("/documents/:id", s.handleDelete)
	v1.GET("/documents/:id/versions", s.handleVersions)

	v1.POST("/search", s.handleSearch)
	v1.POST("/search/contextual", s.handleContextualSearch)

	v1.GET("/clusters", s.handleClusterStats)
	v1.GET("/stats", s.handleStats)

	v1.GET("/maintenance", s.handleMaintenanceStatus)
	v1.POST("/maintenance/reindex", s.handleReindex)
	v1.POST("/maintenance/rebalance", s.handleRebalance)
	v1.POST("/maintenance/cleanup", s.handleCleanup)
}

// Echo exposes the router for additional routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
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
