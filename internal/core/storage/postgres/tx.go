package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	"github.com/pulseops-lab/pulseops/internal/core/aggregation"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
)

// pqClassDataException covers values the server will never accept
// (invalid byte sequences, out-of-range numbers and the like).
const pqClassDataException = "22"

// pgTx implements storage.Tx on a *sql.Tx.
type pgTx struct {
	tx      *sql.Tx
	observe func(queryType string, start time.Time)
}

// InsertEvent appends the raw event. A redelivered id returns (false, nil).
func (t *pgTx) InsertEvent(ctx context.Context, evt *v1.Event) (bool, error) {
	defer t.observe("insert_event", time.Now())

	props, err := marshalProperties(evt.Properties)
	if err != nil {
		return false, err
	}

	var id string
	err = t.tx.QueryRowContext(ctx, queryInsertEvent,
		evt.ID,
		evt.OrgID,
		nullableString(evt.ProjectID),
		evt.EventName,
		nullableString(evt.UserID),
		nullableString(evt.SessionID),
		props,
		evt.Timestamp,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		// ON CONFLICT DO NOTHING - event already persisted by an earlier delivery
		slog.Debug("[Postgres] Duplicate event ignored", "event_id", evt.ID, "org_id", evt.OrgID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", classify(err))
	}

	slog.Debug("[Postgres] Inserted event", "event_id", evt.ID, "org_id", evt.OrgID)
	return true, nil
}

// MarkActiveUser records the user for the day and reports whether it was new.
func (t *pgTx) MarkActiveUser(ctx context.Context, orgID, projectID string, date time.Time, userID string) (bool, error) {
	defer t.observe("mark_active_user", time.Now())

	res, err := t.tx.ExecContext(ctx, queryMarkActiveUser,
		orgID,
		projectID,
		date.Format(aggregation.DateLayout),
		userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark active user: %w", classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read active user result: %w", err)
	}
	return n == 1, nil
}

// IncrementAggregate upserts one counter with increment-on-conflict semantics.
func (t *pgTx) IncrementAggregate(ctx context.Context, delta aggregation.Delta) error {
	defer t.observe("increment_aggregate", time.Now())

	dims, err := delta.Key.Dimensions.Canonical()
	if err != nil {
		return err
	}

	if _, err := t.tx.ExecContext(ctx, queryIncrementAggregate,
		delta.Key.OrgID,
		delta.Key.ProjectID,
		delta.Key.MetricName,
		delta.Value,
		dims,
		delta.Key.Date.Format(aggregation.DateLayout),
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to increment aggregate %s: %w", delta.Key, classify(err))
	}
	return nil
}

func (t *pgTx) Commit() error {
	defer t.observe("commit", time.Now())

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the unit of work. Calling it after Commit is a no-op.
func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// classify tags data exceptions with storage.ErrRejectedData so the caller
// stops retrying a row that can never be written.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == pqClassDataException {
		return fmt.Errorf("%w: %w", storage.ErrRejectedData, err)
	}
	return err
}
