package postgres

// SQL for the event log, daily aggregates and API key lookups.

const (
	queryTableExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)
	`

	// queryInsertEvent appends a raw event keyed by id.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) for a redelivered id,
	// which is how the worker tells a genuine insert from a no-op.
	queryInsertEvent = `
		INSERT INTO events (
			id, org_id, project_id, event_name,
			user_id, session_id, properties, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`

	// queryMarkActiveUser records one user per tenant day; affects 0 rows when already marked.
	queryMarkActiveUser = `
		INSERT INTO daily_active_users (org_id, project_id, date, user_id)
		VALUES ($1, $2, $3::date, $4)
		ON CONFLICT (org_id, project_id, date, user_id) DO NOTHING
	`

	// queryIncrementAggregate inserts a counter row or adds to it. Never overwrites.
	queryIncrementAggregate = `
		INSERT INTO daily_aggregates (
			org_id, project_id, metric_name, metric_value,
			dimensions, date, computed_at
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::date, $7)
		ON CONFLICT (org_id, project_id, metric_name, date, dimensions)
		DO UPDATE SET
			metric_value = daily_aggregates.metric_value + EXCLUDED.metric_value,
			computed_at  = EXCLUDED.computed_at
	`

	// queryRangeAggregates reads one metric over an inclusive date range.
	// Empty project ($5) matches every project; '{}' dimensions ($6) match every row.
	queryRangeAggregates = `
		SELECT
			id, org_id, project_id, metric_name, metric_value,
			dimensions, date, computed_at
		FROM daily_aggregates
		WHERE org_id = $1
		  AND metric_name = $2
		  AND date >= $3::date
		  AND date <= $4::date
		  AND ($5 = '' OR project_id = $5)
		  AND dimensions @> $6::jsonb
		ORDER BY date ASC, project_id ASC, dimensions::text ASC
	`

	queryLookupAPIKeys = `
		SELECT
			id, org_id, project_id, key_prefix, key_hash,
			active, created_at, last_used_at
		FROM api_keys
		WHERE key_prefix = $1
		  AND active = true
		LIMIT 100
	`

	queryTouchAPIKey = `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`
)
