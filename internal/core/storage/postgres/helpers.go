package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pulseops-lab/pulseops/internal/core/aggregation"
)

// keyPrefixLength is how much of a presented API key is stored in clear for lookup.
const keyPrefixLength = 8

// KeyPrefix returns the indexed lookup prefix of an API key.
func KeyPrefix(key string) string {
	if len(key) <= keyPrefixLength {
		return key
	}
	return key[:keyPrefixLength]
}

// marshalProperties encodes event properties, mapping nil to an empty object.
func marshalProperties(props map[string]interface{}) ([]byte, error) {
	if props == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}
	return b, nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanAggregateRow scans one daily_aggregates row.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanAggregateRow(row scanner) (aggregation.DailyAggregate, error) {
	var agg aggregation.DailyAggregate
	var dimsJSON []byte
	var date sql.NullTime

	err := row.Scan(
		&agg.ID,
		&agg.OrgID,
		&agg.ProjectID,
		&agg.MetricName,
		&agg.MetricValue,
		&dimsJSON,
		&date,
		&agg.ComputedAt,
	)
	if err != nil {
		return agg, fmt.Errorf("failed to scan aggregate row: %w", err)
	}

	agg.Dimensions = aggregation.Dimensions{}
	if len(dimsJSON) > 0 {
		if err := json.Unmarshal(dimsJSON, &agg.Dimensions); err != nil {
			return agg, fmt.Errorf("failed to unmarshal dimensions: %w", err)
		}
	}
	if date.Valid {
		agg.Date = date.Time.Format(aggregation.DateLayout)
	}

	return agg, nil
}
