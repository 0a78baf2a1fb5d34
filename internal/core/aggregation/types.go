package aggregation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metric names maintained by the worker.
const (
	MetricDAU         = "dau"
	MetricEventCount  = "event_count"
	MetricTotalEvents = "total_events"
)

// DateLayout is the wire and SQL format of an aggregate date.
const DateLayout = "2006-01-02"

// Dimensions sub-partitions a metric. Order never matters and the empty
// mapping is a valid, distinct key.
type Dimensions map[string]string

// Canonical returns the stable JSON encoding used as part of the unique key.
// encoding/json sorts map keys, so equal mappings always encode identically.
func (d Dimensions) Canonical() (string, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(d))
	if err != nil {
		return "", fmt.Errorf("failed to encode dimensions: %w", err)
	}
	return string(b), nil
}

// AggregateKey identifies one daily_aggregates row.
type AggregateKey struct {
	OrgID      string
	ProjectID  string
	MetricName string
	Date       time.Time // UTC midnight, see DayBucket
	Dimensions Dimensions
}

// String renders the key for logs and map lookups.
func (k AggregateKey) String() string {
	dims, err := k.Dimensions.Canonical()
	if err != nil {
		dims = "?"
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.OrgID, k.ProjectID, k.MetricName, k.Date.Format(DateLayout), dims)
}

// Delta is one increment-on-conflict upsert.
type Delta struct {
	Key   AggregateKey
	Value int64
}

// DailyAggregate is a materialized daily_aggregates row.
type DailyAggregate struct {
	ID          int64      `json:"id"`
	OrgID       string     `json:"org_id"`
	ProjectID   string     `json:"project_id"`
	MetricName  string     `json:"metric_name"`
	MetricValue int64      `json:"metric_value"`
	Dimensions  Dimensions `json:"dimensions"`
	Date        string     `json:"date"`
	ComputedAt  time.Time  `json:"computed_at"`
}
