package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseops-lab/pulseops/internal/core/config"
	"github.com/pulseops-lab/pulseops/internal/core/trace"
	"github.com/pulseops-lab/pulseops/internal/metrics"
)

const healthCheckTimeout = 2 * time.Second

// Health statuses. /health answers 200 in both cases so a load balancer keeps
// routing while a dependency recovers; callers read the body.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	ServiceConnected    = "connected"
	ServiceDisconnected = "disconnected"
)

type Server struct {
	Engine *gin.Engine
	Addr   string

	shutdownTimeout time.Duration
	checks          map[string]HealthChecker
	now             func() time.Time
}

// HealthChecker is an interface for components that can report their health status.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func New(cfg config.ServerConfig, reg *metrics.Registry) *Server {
	// Set Gin mode based on configuration
	if cfg.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), trace.Middleware(), requestLogger())

	s := &Server{
		Engine:          r,
		Addr:            cfg.Addr(),
		shutdownTimeout: cfg.ShutdownTimeout,
		checks:          make(map[string]HealthChecker),
		now:             time.Now,
	}

	if reg != nil {
		r.Use(reg.GinMiddleware())
		r.GET("/metrics", gin.WrapH(reg.Handler()))
	}

	r.GET("/health", s.healthHandler)

	return s
}

// AddHealthCheck reports name as connected while check pings successfully.
func (s *Server) AddHealthCheck(name string, check HealthChecker) {
	s.checks[name] = check
}

// API returns the /api/v1 group with middleware applied in the order given.
func (s *Server) API(middleware ...gin.HandlerFunc) *gin.RouterGroup {
	return s.Engine.Group("/api/v1", middleware...)
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: s.now().UTC(),
		Services:  make(map[string]string, len(s.checks)),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.checks[name].Ping(ctx); err != nil {
			slog.Warn("[Server] Health check failed", "service", name, "error", err)
			resp.Services[name] = ServiceDisconnected
			resp.Status = StatusDegraded
			continue
		}
		resp.Services[name] = ServiceConnected
	}

	c.JSON(http.StatusOK, resp)
}

// Run serves until ctx is cancelled, then stops accepting connections and
// waits up to the shutdown timeout for in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("[Server] Starting HTTP server", "address", s.Addr)

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		slog.Info("[Server] Stopping HTTP server, draining requests", "timeout", s.shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-stopped; err != nil {
		slog.Error("[Server] HTTP server forced to shutdown", "error", err)
		return err
	}
	slog.Info("[Server] HTTP server stopped")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"trace_id", trace.FromGin(c),
		}
		if status >= http.StatusInternalServerError {
			slog.Error("[Server] Request failed", attrs...)
			return
		}
		slog.Debug("[Server] Request handled", attrs...)
	}
}
