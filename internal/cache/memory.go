package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type counterWindow struct {
	index int64
	count int64
}

// Memory is an in-process Store. Values live in a size-bounded LRU whose
// entries also expire after maxTTL; shorter per-entry TTLs are checked on read.
type Memory struct {
	values *expirable.LRU[string, memoryEntry]

	mu       sync.Mutex
	counters *lru.Cache[string, counterWindow]
	closed   bool
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory(size int, maxTTL time.Duration) (*Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory cache size must be > 0, got %d", size)
	}
	counters, err := lru.New[string, counterWindow](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter cache: %w", err)
	}
	return &Memory{
		values:   expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		counters: counters,
		now:      time.Now,
	}, nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.isClosed() {
		return nil, false, ErrClosed
	}
	entry, ok := m.values.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.values.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.isClosed() {
		return ErrClosed
	}
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.values.Add(key, entry)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if m.isClosed() {
		return ErrClosed
	}
	m.values.Remove(key)
	return nil
}

func (m *Memory) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	idx, resetIn := windowBounds(m.now(), window)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, 0, ErrClosed
	}

	w, ok := m.counters.Get(key)
	if !ok || w.index != idx {
		w = counterWindow{index: idx}
	}
	w.count++
	m.counters.Add(key, w)
	return w.count, resetIn, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.values.Purge()
	m.counters.Purge()
	return nil
}

func (m *Memory) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
