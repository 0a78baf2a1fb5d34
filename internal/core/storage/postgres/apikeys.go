package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulseops-lab/pulseops/internal/core/storage"
	"golang.org/x/crypto/bcrypt"
)

// LookupAPIKey resolves a presented key. Candidates are narrowed by the clear
// prefix, then the bcrypt hash decides. A match bumps last_used_at.
func (a *Adapter) LookupAPIKey(ctx context.Context, key string) (*storage.APIKeyRecord, error) {
	defer a.observe("lookup_api_key", time.Now())

	match, err := a.matchAPIKey(ctx, key)
	if err != nil {
		return nil, err
	}

	// The lookup rows are closed by now, so the touch reuses their connection.
	if _, err := a.stmtTouchAPIKey.ExecContext(ctx, match.ID); err != nil {
		// Bookkeeping only; the key is still valid.
		slog.Warn("[Postgres] Failed to update api key last_used_at", "key_id", match.ID, "error", err)
	}

	return match, nil
}

// matchAPIKey scans the prefix candidates and returns the one whose hash
// matches key.
func (a *Adapter) matchAPIKey(ctx context.Context, key string) (*storage.APIKeyRecord, error) {
	rows, err := a.stmtLookupAPIKey.QueryContext(ctx, KeyPrefix(key))
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanAPIKeyRow(rows)
		if err != nil {
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(rec.KeyHash), []byte(key)) == nil {
			return rec, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}
	return nil, storage.ErrNotFound
}

func scanAPIKeyRow(row scanner) (*storage.APIKeyRecord, error) {
	var rec storage.APIKeyRecord
	var projectID sql.NullString
	var lastUsed sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.OrgID,
		&projectID,
		&rec.KeyPrefix,
		&rec.KeyHash,
		&rec.Active,
		&rec.CreatedAt,
		&lastUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan api key row: %w", err)
	}

	rec.ProjectID = projectID.String
	if lastUsed.Valid {
		t := lastUsed.Time
		rec.LastUsedAt = &t
	}
	return &rec, nil
}
