// Package postgres provides a PostgreSQL-backed implementation of the soelive
// stores: the transcript log ([memory.SessionStore]) and the report archive
// ([memory.ReportStore]).
//
// Both share a single [pgxpool.Pool]. [Migrate] creates the required tables
// on startup.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.WriteEntry(ctx, sessionID, entry)
//	_ = store.SaveReport(ctx, report)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Transcript log.
// ─────────────────────────────────────────────────────────────────────────────

const ddlSessionEntries = `
CREATE TABLE IF NOT EXISTS session_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    speaker     TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_session_entries_session_timestamp
    ON session_entries (session_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_session_entries_fts
    ON session_entries USING GIN (to_tsvector('simple', text));
`

// ─────────────────────────────────────────────────────────────────────────────
// Reports.
// ─────────────────────────────────────────────────────────────────────────────

const ddlReports = `
CREATE TABLE IF NOT EXISTS reports (
    id            TEXT         PRIMARY KEY,
    session_id    TEXT         NOT NULL DEFAULT '',
    student_name  TEXT         NOT NULL DEFAULT '',
    body          JSONB        NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reports_student_name ON reports (student_name);
`

// Migrate creates every table and index used by the store. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlSessionEntries, ddlReports} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
