package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/pulseops-lab/pulseops/internal/aggregation"
	"github.com/pulseops-lab/pulseops/internal/auth"
	"github.com/pulseops-lab/pulseops/internal/bus"
	"github.com/pulseops-lab/pulseops/internal/cache"
	"github.com/pulseops-lab/pulseops/internal/core/config"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
	"github.com/pulseops-lab/pulseops/internal/core/storage/memory"
	"github.com/pulseops-lab/pulseops/internal/core/storage/postgres"
	"github.com/pulseops-lab/pulseops/internal/ingestion"
	"github.com/pulseops-lab/pulseops/internal/metrics"
	"github.com/pulseops-lab/pulseops/internal/migrations"
	"github.com/pulseops-lab/pulseops/internal/projection"
	"github.com/pulseops-lab/pulseops/internal/ratelimit"
	"github.com/pulseops-lab/pulseops/internal/server"
	"github.com/urfave/cli/v2"
)

type closer struct {
	name string
	fn   func() error
}

// app holds the process-wide dependencies of one command.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Registry
	wmLogger watermill.LoggerAdapter

	transport *bus.Transport

	store  storage.Store
	keys   storage.APIKeyStore
	reader storage.AggregateReader

	closers []closer
}

func bootstrap(c *cli.Context) (*app, error) {
	configPath := c.String("config")
	if !c.IsSet("config") {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			configPath = ""
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	slog.Info("[Main] Loaded config",
		"path", configPath,
		"database", cfg.Database.Type,
		"bus", cfg.Bus.Driver,
		"cache", cfg.Cache.Driver,
		"auth", cfg.Auth.Mode)

	wmLogger := watermill.NewSlogLogger(logger)
	transport, err := bus.NewTransport(cfg.Bus, wmLogger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		metrics:   metrics.New(),
		wmLogger:  wmLogger,
		transport: transport,
	}, nil
}

// onClose registers a resource; close releases them in reverse order.
func (a *app) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			slog.Error("[Main] Failed to close resource", "resource", c.name, "error", err)
			continue
		}
		slog.Debug("[Main] Closed resource", "resource", c.name)
	}
	a.closers = nil
}

func (a *app) openStore() error {
	if a.cfg.Database.Type == "memory" {
		mem := memory.NewStore()
		a.store, a.keys, a.reader = mem, mem, mem
		slog.Warn("[Main] Using the in-memory store; events and aggregates are lost on exit")
		return nil
	}

	db, err := postgres.Open(a.cfg.Database.DSN, a.cfg.Database.MaxOpenConns, a.cfg.Database.MaxIdleConns)
	if err != nil {
		return err
	}

	if err := migrations.RunMigrations(db, a.cfg.Database.AutoMigrate); err != nil {
		db.Close()
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	adapter, err := postgres.NewAdapter(db)
	if err != nil {
		db.Close()
		return err
	}
	adapter.SetQueryObserver(a.metrics.ObserveQuery)
	a.onClose("database", adapter.Close)

	a.store, a.keys, a.reader = adapter, adapter, adapter
	return nil
}

func (a *app) newServer() (*server.Server, error) {
	if a.store == nil {
		return nil, errors.New("store must be opened before the server is built")
	}
	srv := server.New(a.cfg.Server, a.metrics)
	srv.AddHealthCheck("store", a.store)
	return srv, nil
}

// wireGateway mounts ingestion and projection under /api/v1 behind
// rate limit → authenticate.
func (a *app) wireGateway(srv *server.Server) error {
	c, err := cache.New(a.cfg.Cache)
	if err != nil {
		return err
	}
	a.onClose("cache", c.Close)
	srv.AddHealthCheck("cache", c)

	raw, err := a.transport.Publisher()
	if err != nil {
		return err
	}
	pub := bus.NewEventPublisher(raw, a.transport.Topology(), bus.PublisherConfig{
		Timeout:         a.cfg.Bus.PublishTimeout,
		BreakerFailures: a.cfg.Bus.BreakerFailures,
		BreakerCooldown: a.cfg.Bus.BreakerCooldown,
	})
	pub.SetObserver(a.metrics.ObservePublish)
	a.onClose("bus publisher", pub.Close)
	srv.AddHealthCheck("bus", server.HealthCheckFunc(func(context.Context) error {
		if !pub.Healthy() {
			return errors.New("publish circuit breaker is open")
		}
		return nil
	}))

	authn, err := auth.New(a.cfg.Auth, a.keys, c, a.cfg.Cache.AuthTTL)
	if err != nil {
		return err
	}
	if ak, ok := authn.(*auth.APIKeyAuthenticator); ok {
		ak.SetCacheObserver(a.metrics.ObserveCache)
	}

	var chain []gin.HandlerFunc
	if a.cfg.RateLimit.Enabled {
		limiter := ratelimit.New(c, a.cfg.RateLimit.MaxRequests, a.cfg.RateLimit.Window, a.cfg.Auth.Header)
		limiter.OnLimited(a.metrics.RateLimited)
		chain = append(chain, limiter.Middleware())
	} else {
		slog.Warn("[Main] Rate limiting disabled by config")
	}
	chain = append(chain, auth.Middleware(authn, a.cfg.Auth.Header))

	api := srv.API(chain...)

	ingestionSvc := ingestion.NewService(pub, a.cfg.Server.MaxBodySizeMB)
	ingestionSvc.SetRecorder(a.metrics)
	ingestionSvc.RegisterRoutes(api)

	projection.NewService(a.reader).RegisterRoutes(api)

	slog.Info("[Main] Gateway wired",
		"topic", a.cfg.Bus.Topic,
		"partitions", a.transport.Topology().Partitions,
		"rate_limit", a.cfg.RateLimit.Enabled)
	return nil
}

// wireWorker builds the aggregation router. reportBus adds a bus health
// check when no gateway publisher does.
func (a *app) wireWorker(srv *server.Server, reportBus bool) (*message.Router, *aggregation.Stats, error) {
	sub, err := a.transport.Subscriber()
	if err != nil {
		return nil, nil, err
	}
	a.onClose("bus subscriber", sub.Close)

	poisonPub, err := a.transport.Publisher()
	if err != nil {
		return nil, nil, err
	}
	a.onClose("poison publisher", poisonPub.Close)

	stats := aggregation.NewStats(a.cfg.Worker.StatsEvery)
	worker := aggregation.NewWorker(a.store, aggregation.Sinks(stats, a.metrics))

	router, err := aggregation.NewRouter(aggregation.RouterConfig{
		Topology:       a.transport.Topology(),
		PoisonTopic:    a.cfg.Bus.PoisonTopic,
		MessageTimeout: a.cfg.Worker.MessageTimeout,
		CloseTimeout:   a.cfg.Worker.CloseTimeout,
		NackDelay:      a.transport.NackDelay(),
	}, worker, sub, poisonPub, a.wmLogger)
	if err != nil {
		return nil, nil, err
	}

	if reportBus {
		srv.AddHealthCheck("bus", server.HealthCheckFunc(func(context.Context) error {
			if !router.IsRunning() {
				return errors.New("worker router is not running")
			}
			return nil
		}))
	}

	slog.Info("[Main] Worker wired",
		"topics", len(a.transport.Topology().Topics()),
		"poison_topic", a.cfg.Bus.PoisonTopic,
		"consumer_group", a.cfg.Bus.ConsumerGroup)
	return router, stats, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.Level {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
