package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseops-lab/pulseops/internal/core/config"
	"github.com/pulseops-lab/pulseops/internal/core/trace"
	"github.com/pulseops-lab/pulseops/internal/metrics"
	"github.com/stretchr/testify/require"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		Mode:            "release",
		ShutdownTimeout: time.Second,
	}
}

func getHealth(t *testing.T, s *Server) HealthResponse {
	t.Helper()
	resp := httptest.NewRecorder()
	s.Engine.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	ok := HealthCheckFunc(func(context.Context) error { return nil })
	down := HealthCheckFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all connected", func(t *testing.T) {
		s := New(testConfig(), nil)
		s.AddHealthCheck("store", ok)
		s.AddHealthCheck("cache", ok)
		s.AddHealthCheck("bus", ok)

		body := getHealth(t, s)
		require.Equal(t, StatusHealthy, body.Status)
		require.False(t, body.Timestamp.IsZero())
		require.Equal(t, map[string]string{
			"store": ServiceConnected,
			"cache": ServiceConnected,
			"bus":   ServiceConnected,
		}, body.Services)
	})

	t.Run("one disconnected is degraded, still 200", func(t *testing.T) {
		s := New(testConfig(), nil)
		s.AddHealthCheck("store", ok)
		s.AddHealthCheck("cache", down)

		body := getHealth(t, s)
		require.Equal(t, StatusDegraded, body.Status)
		require.Equal(t, ServiceDisconnected, body.Services["cache"])
		require.Equal(t, ServiceConnected, body.Services["store"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(testConfig(), metrics.New())

	s.Engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := httptest.NewRecorder()
	s.Engine.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `pulseops_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestAPI_MiddlewareOrderAndTrace(t *testing.T) {
	s := New(testConfig(), nil)

	var order []string
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			order = append(order, name)
			c.Next()
		}
	}

	var seenTrace string
	api := s.API(mark("ratelimit"), mark("auth"))
	api.GET("/ping", func(c *gin.Context) {
		seenTrace = trace.FromGin(c)
		order = append(order, "handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set(trace.Header, "req-9")
	resp := httptest.NewRecorder()
	s.Engine.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, []string{"ratelimit", "auth", "handler"}, order)
	require.Equal(t, "req-9", seenTrace)
	require.Equal(t, "req-9", resp.Header().Get(trace.Header))
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
