package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	coreagg "github.com/pulseops-lab/pulseops/internal/core/aggregation"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
	storagemocks "github.com/pulseops-lab/pulseops/internal/mocks/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	march1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	march3 = time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
)

func row(project, metric, date string, dims coreagg.Dimensions, value int64) coreagg.DailyAggregate {
	return coreagg.DailyAggregate{
		OrgID:       "org-a",
		ProjectID:   project,
		MetricName:  metric,
		MetricValue: value,
		Dimensions:  dims,
		Date:        date,
	}
}

func TestService_QueryAggregates_Validation(t *testing.T) {
	valid := AggregateQueryRequest{OrgID: "org-a", Metric: coreagg.MetricTotalEvents, From: march1, To: march3}

	tests := []struct {
		name   string
		mutate func(r *AggregateQueryRequest)
	}{
		{name: "missing org", mutate: func(r *AggregateQueryRequest) { r.OrgID = "" }},
		{name: "missing metric", mutate: func(r *AggregateQueryRequest) { r.Metric = "" }},
		{name: "unknown metric", mutate: func(r *AggregateQueryRequest) { r.Metric = "revenue" }},
		{name: "event name on dau", mutate: func(r *AggregateQueryRequest) { r.Metric = coreagg.MetricDAU; r.EventName = "click" }},
		{name: "bad project id", mutate: func(r *AggregateQueryRequest) { r.ProjectID = "p1" }},
		{name: "to before from", mutate: func(r *AggregateQueryRequest) { r.From, r.To = march3, march1 }},
		{name: "range too long", mutate: func(r *AggregateQueryRequest) { r.To = march1.AddDate(0, 0, MaxRangeDays) }},
		{name: "unknown granularity", mutate: func(r *AggregateQueryRequest) { r.Granularity = "1h" }},
		{name: "total dau", mutate: func(r *AggregateQueryRequest) { r.Metric = coreagg.MetricDAU; r.Granularity = GranularityTotal }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reader := storagemocks.NewAggregateReader(t)
			svc := NewService(reader)

			req := valid
			tc.mutate(&req)
			_, err := svc.QueryAggregates(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestService_QueryAggregates_MaxRangeAccepted(t *testing.T) {
	reader := storagemocks.NewAggregateReader(t)
	reader.EXPECT().QueryAggregates(mock.Anything, mock.Anything).Return(nil, nil).Once()

	svc := NewService(reader)
	resp, err := svc.QueryAggregates(context.Background(), AggregateQueryRequest{
		OrgID:  "org-a",
		Metric: coreagg.MetricTotalEvents,
		From:   march1,
		To:     march1.AddDate(0, 0, MaxRangeDays-1),
	})
	require.NoError(t, err)
	require.Empty(t, resp.Values)
	require.NotNil(t, resp.Total)
	require.Zero(t, *resp.Total)
}

func TestService_QueryAggregates_DailyEventCountBreakdown(t *testing.T) {
	const (
		p1 = "00000000-0000-0000-0000-0000000000a1"
		p2 = "00000000-0000-0000-0000-0000000000a2"
	)

	reader := storagemocks.NewAggregateReader(t)
	reader.EXPECT().
		QueryAggregates(mock.Anything, storage.AggregateQuery{
			OrgID:      "org-a",
			MetricName: coreagg.MetricEventCount,
			From:       march1,
			To:         march3,
		}).
		Return([]coreagg.DailyAggregate{
			row(p1, coreagg.MetricEventCount, "2024-03-01", coreagg.Dimensions{"event_name": "click"}, 3),
			row(p2, coreagg.MetricEventCount, "2024-03-01", coreagg.Dimensions{"event_name": "click"}, 2),
			row(p1, coreagg.MetricEventCount, "2024-03-01", coreagg.Dimensions{"event_name": "signup"}, 1),
			row(p1, coreagg.MetricEventCount, "2024-03-03", coreagg.Dimensions{"event_name": "click"}, 4),
		}, nil).
		Once()

	svc := NewService(reader)
	// Times inside the day are truncated to the date.
	resp, err := svc.QueryAggregates(context.Background(), AggregateQueryRequest{
		OrgID:  "org-a",
		Metric: coreagg.MetricEventCount,
		From:   march1.Add(13 * time.Hour),
		To:     march3,
	})
	require.NoError(t, err)

	require.Equal(t, GranularityDay, resp.Granularity)
	require.Equal(t, "2024-03-01", resp.From)
	require.Equal(t, "2024-03-03", resp.To)
	require.Equal(t, int64(10), *resp.Total)
	require.Equal(t, []AggregateValue{
		{Date: "2024-03-01", Value: 6, ByEventName: map[string]int64{"click": 5, "signup": 1}},
		{Date: "2024-03-03", Value: 4, ByEventName: map[string]int64{"click": 4}},
	}, resp.Values)
}

func TestService_QueryAggregates_TotalForOneEventName(t *testing.T) {
	reader := storagemocks.NewAggregateReader(t)
	reader.EXPECT().
		QueryAggregates(mock.Anything, mock.MatchedBy(func(q storage.AggregateQuery) bool {
			return q.Dimensions["event_name"] == "click" && q.ProjectID == "00000000-0000-0000-0000-0000000000a1"
		})).
		Return([]coreagg.DailyAggregate{
			row("00000000-0000-0000-0000-0000000000a1", coreagg.MetricEventCount, "2024-03-01", coreagg.Dimensions{"event_name": "click"}, 3),
			row("00000000-0000-0000-0000-0000000000a1", coreagg.MetricEventCount, "2024-03-02", coreagg.Dimensions{"event_name": "click"}, 4),
		}, nil).
		Once()

	svc := NewService(reader)
	resp, err := svc.QueryAggregates(context.Background(), AggregateQueryRequest{
		OrgID:       "org-a",
		ProjectID:   "00000000-0000-0000-0000-0000000000a1",
		Metric:      coreagg.MetricEventCount,
		EventName:   "click",
		From:        march1,
		To:          march3,
		Granularity: GranularityTotal,
	})
	require.NoError(t, err)
	require.Equal(t, []AggregateValue{{From: "2024-03-01", To: "2024-03-03", Value: 7}}, resp.Values)
	require.Equal(t, int64(7), *resp.Total)
}

func TestService_QueryAggregates_DAUHasNoRangeTotal(t *testing.T) {
	const p1 = "00000000-0000-0000-0000-0000000000a1"

	reader := storagemocks.NewAggregateReader(t)
	reader.EXPECT().QueryAggregates(mock.Anything, mock.Anything).
		Return([]coreagg.DailyAggregate{
			row(p1, coreagg.MetricDAU, "2024-03-01", coreagg.Dimensions{}, 5),
			row(p1, coreagg.MetricDAU, "2024-03-02", coreagg.Dimensions{}, 4),
		}, nil).
		Once()

	svc := NewService(reader)
	resp, err := svc.QueryAggregates(context.Background(), AggregateQueryRequest{
		OrgID: "org-a", ProjectID: p1, Metric: coreagg.MetricDAU, From: march1, To: march3,
	})
	require.NoError(t, err)

	// The same users may be active on both days; 9 would overcount.
	require.Nil(t, resp.Total)
	require.Equal(t, []AggregateValue{
		{Date: "2024-03-01", Value: 5},
		{Date: "2024-03-02", Value: 4},
	}, resp.Values)
}

func TestService_QueryAggregates_StoreError(t *testing.T) {
	reader := storagemocks.NewAggregateReader(t)
	reader.EXPECT().QueryAggregates(mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()

	svc := NewService(reader)
	_, err := svc.QueryAggregates(context.Background(), AggregateQueryRequest{
		OrgID: "org-a", Metric: coreagg.MetricDAU, From: march1, To: march3,
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidQuery)
}
