// Package cache is the shared key-value layer behind credential lookups and
// the request quota. Redis is used in production; the memory driver serves
// single-process deployments and tests.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulseops-lab/pulseops/internal/core/config"
)

// ErrClosed is returned by a cache used after Close.
var ErrClosed = errors.New("cache closed")

// Cache stores opaque values with a TTL.
type Cache interface {
	// Get returns the value and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Counter keeps fixed-window request counters.
type Counter interface {
	// Increment adds one to key's counter for the window containing now.
	// It returns the count after the increment and the time left in the window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Store is a Cache that also counts.
type Store interface {
	Cache
	Counter
}

// New builds the configured cache driver.
func New(cfg config.CacheConfig) (Store, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg.RedisURL)
	case "memory":
		return NewMemory(cfg.MemorySize, cfg.AuthTTL)
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}

// windowBounds aligns now to a fixed window and returns the window index and
// the time left until it ends.
func windowBounds(now time.Time, window time.Duration) (int64, time.Duration) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	nowMs := now.UnixMilli()
	idx := nowMs / ms
	resetIn := time.Duration((idx+1)*ms-nowMs) * time.Millisecond
	return idx, resetIn
}
