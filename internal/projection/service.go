package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	coreagg "github.com/pulseops-lab/pulseops/internal/core/aggregation"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
)

// MaxRangeDays bounds one query, inclusive of both ends.
const MaxRangeDays = 366

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid aggregate query")

// Service implements the aggregate read path. The worker keeps the rows
// current, so a query is a single indexed range scan plus an in-memory rollup.
type Service struct {
	reader storage.AggregateReader
}

func NewService(reader storage.AggregateReader) *Service {
	if reader == nil {
		panic("projection: aggregate reader must not be nil")
	}
	return &Service{reader: reader}
}

// QueryAggregates returns the rows of one metric for an org over [From, To].
func (s *Service) QueryAggregates(ctx context.Context, req AggregateQueryRequest) (*AggregateQueryResponse, error) {
	req, err := normalizeAndValidate(req)
	if err != nil {
		return nil, err
	}

	q := storage.AggregateQuery{
		OrgID:      req.OrgID,
		ProjectID:  req.ProjectID,
		MetricName: req.Metric,
		From:       req.From,
		To:         req.To,
	}
	if req.EventName != "" {
		q.Dimensions = coreagg.Dimensions{"event_name": req.EventName}
	}

	rows, err := s.reader.QueryAggregates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}

	slog.Debug("[Projection] Aggregates loaded",
		"org_id", req.OrgID,
		"metric", req.Metric,
		"rows", len(rows))

	resp := &AggregateQueryResponse{
		OrgID:       req.OrgID,
		ProjectID:   req.ProjectID,
		Metric:      req.Metric,
		EventName:   req.EventName,
		From:        req.From.Format(coreagg.DateLayout),
		To:          req.To.Format(coreagg.DateLayout),
		Granularity: req.Granularity,
	}

	splitByName := req.Metric == coreagg.MetricEventCount && req.EventName == ""
	daily := rollupDaily(rows, splitByName)
	if req.Metric != coreagg.MetricDAU {
		total := sumValues(daily)
		resp.Total = &total
	}

	switch req.Granularity {
	case GranularityTotal:
		resp.Values = []AggregateValue{rollupTotal(daily, resp.From, resp.To)}
	default:
		resp.Values = daily
	}

	return resp, nil
}

func normalizeAndValidate(req AggregateQueryRequest) (AggregateQueryRequest, error) {
	if req.Granularity == "" {
		req.Granularity = GranularityDay
	}

	if req.OrgID == "" {
		return req, invalidQueryf("org_id is required")
	}

	switch req.Metric {
	case coreagg.MetricDAU, coreagg.MetricEventCount, coreagg.MetricTotalEvents:
	case "":
		return req, invalidQueryf("metric is required")
	default:
		return req, invalidQueryf("unknown metric: %s (must be dau, event_count or total_events)", req.Metric)
	}

	if req.EventName != "" && req.Metric != coreagg.MetricEventCount {
		return req, invalidQueryf("event_name only applies to event_count")
	}
	if req.ProjectID != "" {
		if _, err := uuid.Parse(req.ProjectID); err != nil {
			return req, invalidQueryf("project_id must be a UUID")
		}
	}

	switch req.Granularity {
	case GranularityDay:
	case GranularityTotal:
		// Distinct users do not add up across days.
		if req.Metric == coreagg.MetricDAU {
			return req, invalidQueryf("granularity total is not supported for dau")
		}
	default:
		return req, invalidQueryf("invalid granularity: %s (must be day or total)", req.Granularity)
	}

	req.From = coreagg.DayBucket(req.From)
	req.To = coreagg.DayBucket(req.To)
	if req.To.Before(req.From) {
		return req, invalidQueryf("to must not be before from")
	}
	if days := int(req.To.Sub(req.From).Hours()/24) + 1; days > MaxRangeDays {
		return req, invalidQueryf("range of %d days exceeds the maximum of %d", days, MaxRangeDays)
	}

	return req, nil
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
