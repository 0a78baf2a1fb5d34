package projection

import (
	"time"
)

// Granularities accepted by the aggregate query.
const (
	GranularityDay   = "day"
	GranularityTotal = "total"
)

// AggregateQueryRequest is a validated read of daily aggregates for one org.
type AggregateQueryRequest struct {
	OrgID       string
	ProjectID   string // empty reads every project of the org
	Metric      string
	EventName   string // event_count only
	From        time.Time
	To          time.Time
	Granularity string // default: "day"
}

// queryParams is the raw query string of GET /aggregates.
type queryParams struct {
	Metric      string `form:"metric" binding:"required"`
	From        string `form:"from" binding:"required"`
	To          string `form:"to" binding:"required"`
	ProjectID   string `form:"project_id"`
	EventName   string `form:"event_name"`
	Granularity string `form:"granularity"`
}

// AggregateValue is one point of the response: a day, or the whole range.
type AggregateValue struct {
	Date  string `json:"date,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Value int64  `json:"value"`

	// ByEventName splits event_count when no event_name filter was given.
	ByEventName map[string]int64 `json:"by_event_name,omitempty"`
}

// AggregateQueryResponse is the body of GET /aggregates.
type AggregateQueryResponse struct {
	OrgID       string           `json:"org_id"`
	ProjectID   string           `json:"project_id,omitempty"`
	Metric      string           `json:"metric"`
	EventName   string           `json:"event_name,omitempty"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Granularity string           `json:"granularity"`
	// Total is the sum over the range. It is absent for dau, whose daily
	// distinct-user counts do not add up.
	Total  *int64           `json:"total,omitempty"`
	Values []AggregateValue `json:"values"`
}
