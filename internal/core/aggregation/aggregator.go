package aggregation

import (
	v1 "github.com/pulseops-lab/pulseops/internal/api/v1"
)

// DeltasFor translates one first-time event into its aggregate increments.
//
// newActiveUser must be true only when this event is the first one seen for
// its (org, project, date, user_id); it gates the dau increment so that dau
// counts distinct users rather than events.
//
// Callers must only apply the result for an event whose raw insert was a
// genuine first insert. The increments are keyed by the aggregate tuple, not
// by the event id, so applying them for a redelivered event double-counts.
func DeltasFor(evt *v1.Event, newActiveUser bool) []Delta {
	date := DayBucket(evt.Timestamp)
	base := AggregateKey{
		OrgID:     evt.OrgID,
		ProjectID: evt.ProjectID,
		Date:      date,
	}

	deltas := make([]Delta, 0, 3)

	if evt.UserID != "" && newActiveUser {
		k := base
		k.MetricName = MetricDAU
		k.Dimensions = Dimensions{}
		deltas = append(deltas, Delta{Key: k, Value: 1})
	}

	byName := base
	byName.MetricName = MetricEventCount
	byName.Dimensions = Dimensions{"event_name": evt.EventName}
	deltas = append(deltas, Delta{Key: byName, Value: 1})

	total := base
	total.MetricName = MetricTotalEvents
	total.Dimensions = Dimensions{}
	deltas = append(deltas, Delta{Key: total, Value: 1})

	return deltas
}
