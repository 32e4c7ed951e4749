package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/soelive/pkg/memory"
)

// WriteEntry implements [memory.SessionStore]. It appends entry to the
// session_entries table under sessionID.
func (s *Store) WriteEntry(ctx context.Context, sessionID string, entry memory.TranscriptEntry) error {
	if sessionID == "" {
		return fmt.Errorf("session store: write entry: empty session id")
	}
	const q = `
		INSERT INTO session_entries (session_id, speaker, text, timestamp)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, sessionID, string(entry.Speaker), entry.Text, entry.Timestamp); err != nil {
		return fmt.Errorf("session store: write entry: %w", err)
	}
	return nil
}

// Entries implements [memory.SessionStore].
func (s *Store) Entries(ctx context.Context, sessionID string) ([]memory.TranscriptEntry, error) {
	const q = `
		SELECT speaker, text, timestamp
		FROM   session_entries
		WHERE  session_id = $1
		ORDER  BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session store: entries: %w", err)
	}
	return collectEntries(rows)
}

// Search implements [memory.SessionStore]. It performs a PostgreSQL full-text
// search over the text column and applies optional filters from opts.
//
// The 'simple' configuration is used because transcripts are not necessarily
// English. The query is passed to plainto_tsquery so no operator syntax is
// required.
func (s *Store) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('simple', text) @@ plainto_tsquery('simple', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "timestamp > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "timestamp < "+next(opts.Before))
	}
	if opts.Speaker != "" {
		conditions = append(conditions, "speaker = "+next(string(opts.Speaker)))
	}

	q := "SELECT speaker, text, timestamp\n" +
		"FROM   session_entries\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY timestamp, id"

	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("session store: search: %w", err)
	}
	return collectEntries(rows)
}

// collectEntries scans pgx rows into a slice of TranscriptEntry values.
func collectEntries(rows pgx.Rows) ([]memory.TranscriptEntry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.TranscriptEntry, error) {
		var (
			e       memory.TranscriptEntry
			speaker string
		)
		if err := row.Scan(&speaker, &e.Text, &e.Timestamp); err != nil {
			return memory.TranscriptEntry{}, err
		}
		e.Speaker = memory.Speaker(speaker)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []memory.TranscriptEntry{}
	}
	return entries, nil
}
