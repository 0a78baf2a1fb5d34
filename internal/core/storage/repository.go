package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	"github.com/pulseops-lab/pulseops/internal/core/aggregation"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrRejectedData marks a write the store refuses because of the values
// themselves. Retrying the same values fails the same way.
var ErrRejectedData = errors.New("data rejected by store")

// Store opens units of work against the aggregate store.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
}

// Tx is one event's unit of work. Nothing is visible to readers until Commit.
// Rollback after a successful Commit is a no-op, so callers can defer it.
type Tx interface {
	// InsertEvent appends the raw event keyed by its id.
	// It reports false, without error, when the id already exists.
	InsertEvent(ctx context.Context, evt *v1.Event) (bool, error)

	// MarkActiveUser records userID as active on date.
	// It reports false when the user was already marked for that day.
	MarkActiveUser(ctx context.Context, orgID, projectID string, date time.Time, userID string) (bool, error)

	// IncrementAggregate inserts the row or adds delta.Value to it.
	IncrementAggregate(ctx context.Context, delta aggregation.Delta) error

	Commit() error
	Rollback() error
}

// AggregateQuery selects daily aggregate rows for one tenant.
type AggregateQuery struct {
	OrgID      string
	ProjectID  string // empty matches every project
	MetricName string
	From       time.Time // inclusive date
	To         time.Time // inclusive date
	Dimensions aggregation.Dimensions
}

// AggregateReader serves the read API.
type AggregateReader interface {
	QueryAggregates(ctx context.Context, q AggregateQuery) ([]aggregation.DailyAggregate, error)
}

// APIKeyRecord maps a presented credential to a tenant.
type APIKeyRecord struct {
	ID         string
	OrgID      string
	ProjectID  string
	KeyPrefix  string
	KeyHash    string
	Active     bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// APIKeyStore resolves credentials. Issuance and rotation happen out-of-band.
type APIKeyStore interface {
	// LookupAPIKey returns the active record matching key, or ErrNotFound.
	LookupAPIKey(ctx context.Context, key string) (*APIKeyRecord, error)
}
