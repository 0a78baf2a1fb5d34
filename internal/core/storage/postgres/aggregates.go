package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pulseops-lab/pulseops/internal/core/aggregation"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
)

// QueryAggregates returns the rows of one metric over an inclusive date range,
// ordered by date.
func (a *Adapter) QueryAggregates(ctx context.Context, q storage.AggregateQuery) ([]aggregation.DailyAggregate, error) {
	defer a.observe("query_aggregates", time.Now())

	dims, err := q.Dimensions.Canonical()
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, queryRangeAggregates,
		q.OrgID,
		q.MetricName,
		q.From.Format(aggregation.DateLayout),
		q.To.Format(aggregation.DateLayout),
		q.ProjectID,
		dims,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var out []aggregation.DailyAggregate
	for rows.Next() {
		agg, err := scanAggregateRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregates: %w", err)
	}

	return out, nil
}
