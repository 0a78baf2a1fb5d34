// Package memory is an in-process implementation of the storage contracts.
// Useful for testing and for running the whole pipeline on a laptop.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	"github.com/pulseops-lab/pulseops/internal/core/aggregation"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
)

type activeUserKey struct {
	orgID, projectID, date, userID string
}

type aggregateRow struct {
	agg  aggregation.DailyAggregate
	dims string
}

// Store keeps events, aggregates and API keys in maps.
// Transactions are serialized: Begin blocks until the previous unit of work
// commits or rolls back.
type Store struct {
	writer sync.Mutex

	mu          sync.RWMutex
	events      map[string]v1.Event
	activeUsers map[activeUserKey]struct{}
	aggregates  map[string]*aggregateRow
	apiKeys     map[string]storage.APIKeyRecord
	nextID      int64
}

var (
	_ storage.Store           = (*Store)(nil)
	_ storage.AggregateReader = (*Store)(nil)
	_ storage.APIKeyStore     = (*Store)(nil)
)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		events:      make(map[string]v1.Event),
		activeUsers: make(map[activeUserKey]struct{}),
		aggregates:  make(map[string]*aggregateRow),
		apiKeys:     make(map[string]storage.APIKeyRecord),
	}
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	s.writer.Lock()
	if err := ctx.Err(); err != nil {
		s.writer.Unlock()
		return nil, err
	}
	return &memTx{
		store:       s,
		events:      make(map[string]v1.Event),
		activeUsers: make(map[activeUserKey]struct{}),
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// PutAPIKey registers a raw key for a tenant.
func (s *Store) PutAPIKey(key string, rec storage.APIKeyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Active = true
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.apiKeys[key] = rec
}

// RevokeAPIKey deactivates a key. Unknown keys are ignored.
func (s *Store) RevokeAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.apiKeys[key]; ok {
		rec.Active = false
		s.apiKeys[key] = rec
	}
}

func (s *Store) LookupAPIKey(ctx context.Context, key string) (*storage.APIKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.apiKeys[key]
	if !ok || !rec.Active {
		return nil, storage.ErrNotFound
	}
	now := time.Now().UTC()
	rec.LastUsedAt = &now
	s.apiKeys[key] = rec

	out := rec
	return &out, nil
}

func (s *Store) QueryAggregates(ctx context.Context, q storage.AggregateQuery) ([]aggregation.DailyAggregate, error) {
	from := q.From.Format(aggregation.DateLayout)
	to := q.To.Format(aggregation.DateLayout)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []aggregation.DailyAggregate
	for _, row := range s.aggregates {
		a := row.agg
		if a.OrgID != q.OrgID || a.MetricName != q.MetricName {
			continue
		}
		if q.ProjectID != "" && a.ProjectID != q.ProjectID {
			continue
		}
		if a.Date < from || a.Date > to {
			continue
		}
		if !containsDims(a.Dimensions, q.Dimensions) {
			continue
		}
		a.Dimensions = copyDims(a.Dimensions)
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		di, _ := out[i].Dimensions.Canonical()
		dj, _ := out[j].Dimensions.Canonical()
		return di < dj
	})
	return out, nil
}

// Event returns a committed raw event.
func (s *Store) Event(id string) (v1.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[id]
	return evt, ok
}

// EventCount is the number of committed raw events.
func (s *Store) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// AggregateValue returns the committed value for key, or 0 when the row does not exist.
func (s *Store) AggregateValue(key aggregation.AggregateKey) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.aggregates[key.String()]
	if !ok {
		return 0
	}
	return row.agg.MetricValue
}

// AggregateRows is the number of committed aggregate rows.
func (s *Store) AggregateRows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aggregates)
}

func containsDims(have, want aggregation.Dimensions) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

func copyDims(d aggregation.Dimensions) aggregation.Dimensions {
	out := make(aggregation.Dimensions, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
