package memory

import (
	"context"
	"errors"
	"time"

	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	"github.com/pulseops-lab/pulseops/internal/core/aggregation"
)

var errTxDone = errors.New("transaction already committed or rolled back")

// memTx buffers writes and applies them to the store on Commit.
type memTx struct {
	store       *Store
	done        bool
	events      map[string]v1.Event
	activeUsers map[activeUserKey]struct{}
	deltas      []aggregation.Delta
}

func (t *memTx) InsertEvent(ctx context.Context, evt *v1.Event) (bool, error) {
	if t.done {
		return false, errTxDone
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, ok := t.events[evt.ID]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, exists := t.store.events[evt.ID]
	t.store.mu.RUnlock()
	if exists {
		return false, nil
	}

	stored := *evt
	stored.Properties = copyProps(evt.Properties)
	t.events[evt.ID] = stored
	return true, nil
}

func (t *memTx) MarkActiveUser(ctx context.Context, orgID, projectID string, date time.Time, userID string) (bool, error) {
	if t.done {
		return false, errTxDone
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := activeUserKey{orgID, projectID, date.Format(aggregation.DateLayout), userID}
	if _, ok := t.activeUsers[key]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, exists := t.store.activeUsers[key]
	t.store.mu.RUnlock()
	if exists {
		return false, nil
	}

	t.activeUsers[key] = struct{}{}
	return true, nil
}

func (t *memTx) IncrementAggregate(ctx context.Context, delta aggregation.Delta) error {
	if t.done {
		return errTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := delta.Key.Dimensions.Canonical(); err != nil {
		return err
	}
	t.deltas = append(t.deltas, delta)
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.store.writer.Unlock()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, evt := range t.events {
		s.events[id] = evt
	}
	for k := range t.activeUsers {
		s.activeUsers[k] = struct{}{}
	}

	now := time.Now().UTC()
	for _, d := range t.deltas {
		key := d.Key.String()
		row, ok := s.aggregates[key]
		if !ok {
			s.nextID++
			dims, _ := d.Key.Dimensions.Canonical()
			row = &aggregateRow{
				dims: dims,
				agg: aggregation.DailyAggregate{
					ID:         s.nextID,
					OrgID:      d.Key.OrgID,
					ProjectID:  d.Key.ProjectID,
					MetricName: d.Key.MetricName,
					Dimensions: copyDims(d.Key.Dimensions),
					Date:       d.Key.Date.Format(aggregation.DateLayout),
				},
			}
			s.aggregates[key] = row
		}
		row.agg.MetricValue += d.Value
		row.agg.ComputedAt = now
	}
	return nil
}

// Rollback discards buffered writes. Calling it after Commit is a no-op.
func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.writer.Unlock()
	return nil
}

func copyProps(p map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
