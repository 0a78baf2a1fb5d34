// Package aggregation consumes events from the bus and folds them into the
// event log and the daily aggregate counters.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
	"github.com/pulseops-lab/pulseops/internal/bus"
	core "github.com/pulseops-lab/pulseops/internal/core/aggregation"
	apperrors "github.com/pulseops-lab/pulseops/internal/core/errors"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
)

// Worker applies one event per call. It keeps no per-event state between
// calls, so any number of partition handlers may share it.
type Worker struct {
	store storage.Store
	sink  Sink
	now   func() time.Time
}

func NewWorker(store storage.Store, sink Sink) *Worker {
	if store == nil {
		panic("aggregation: store must not be nil")
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Worker{store: store, sink: sink, now: time.Now}
}

// Handle is the bus handler. Returning nil acks the message; returning an
// error nacks it, unless the error is a poison message, which the router
// diverts and acks.
func (w *Worker) Handle(msg *message.Message) error {
	start := w.now()
	traceID := msg.Metadata.Get(bus.MetadataTraceID)

	evt, err := bus.Decode(msg)
	if err != nil {
		w.sink.EventPoisoned()
		slog.Warn("[Worker] Diverting poison message",
			"message_id", msg.UUID,
			"trace_id", traceID,
			"error", err)
		return err
	}

	out, err := w.Process(msg.Context(), evt)
	if errors.Is(err, apperrors.ErrPoisonMessage) {
		w.sink.EventPoisoned()
		slog.Warn("[Worker] Store rejected event, diverting as poison",
			"event_id", evt.ID,
			"org_id", evt.OrgID,
			"state", out.State.String(),
			"trace_id", traceID,
			"error", err)
		return err
	}
	if err != nil {
		w.sink.EventFailed(failureReason(err))
		slog.Error("[Worker] Event processing failed, will be redelivered",
			"event_id", evt.ID,
			"org_id", evt.OrgID,
			"state", out.State.String(),
			"trace_id", traceID,
			"error", err)
		return err
	}

	if out.Duplicate {
		w.sink.EventDuplicate()
	}
	w.sink.EventProcessed(w.now().Sub(start))

	slog.Debug("[Worker] Event acknowledged",
		"event_id", evt.ID,
		"org_id", evt.OrgID,
		"event_name", evt.EventName,
		"duplicate", out.Duplicate,
		"deltas", out.Deltas,
		"trace_id", traceID)
	return nil
}

// Process persists evt and, on its first delivery only, applies its
// aggregate increments. Both happen in one transaction: either the event and
// all of its increments are committed, or none of them are.
func (w *Worker) Process(ctx context.Context, evt *v1.Event) (Outcome, error) {
	out := Outcome{State: StateReceived}

	tx, err := w.store.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("%w: begin: %w", apperrors.ErrTransient, err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := tx.InsertEvent(ctx, evt)
	if err != nil {
		return out, fmt.Errorf("%w: insert event %s: %w", classify(err), evt.ID, err)
	}
	out.State = StatePersisted

	if !inserted {
		// Already counted by an earlier delivery.
		out.Duplicate = true
		if err := tx.Commit(); err != nil {
			return out, fmt.Errorf("%w: commit duplicate %s: %w", apperrors.ErrTransient, evt.ID, err)
		}
		out.State = StateAcknowledged
		return out, nil
	}

	if evt.UserID != "" {
		out.NewUser, err = tx.MarkActiveUser(ctx, evt.OrgID, evt.ProjectID, core.DayBucket(evt.Timestamp), evt.UserID)
		if err != nil {
			return out, fmt.Errorf("%w: mark active user: %w", classify(err), err)
		}
	}

	deltas := core.DeltasFor(evt, out.NewUser)
	for _, d := range deltas {
		if err := tx.IncrementAggregate(ctx, d); err != nil {
			return out, fmt.Errorf("%w: increment %s: %w", classify(err), d.Key, err)
		}
	}
	out.Deltas = len(deltas)
	out.State = StateAggregated

	if err := tx.Commit(); err != nil {
		return out, fmt.Errorf("%w: commit %s: %w", apperrors.ErrTransient, evt.ID, err)
	}
	out.State = StateAcknowledged
	return out, nil
}

// classify picks the sentinel for a store write failure: rejected data is
// poison, anything else is worth a redelivery.
func classify(err error) error {
	if errors.Is(err, storage.ErrRejectedData) {
		return apperrors.ErrPoisonMessage
	}
	return apperrors.ErrTransient
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, apperrors.ErrTransient):
		return "store"
	default:
		return "unknown"
	}
}
