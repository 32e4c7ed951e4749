// Package memory defines the persistence interfaces of soelive.
//
// Two stores exist:
//
//   - [SessionStore]: an append-only, time-ordered log of transcript fragments
//     per live session.
//   - [ReportStore]: finished attendance reports.
//
// The interfaces are public so that external packages can supply alternative
// storage backends without depending on soelive internals.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// SearchOpts configures a full-text search over session entries.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	// An empty string searches across all sessions.
	SessionID string

	// After filters entries recorded after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters entries recorded before this instant (exclusive).
	// A zero Time disables the upper bound.
	Before time.Time

	// Speaker restricts results to one side of the conversation.
	// An empty value matches both.
	Speaker Speaker

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// SessionStore is a time-ordered, append-only log of [TranscriptEntry]
// records for one or more live sessions.
//
// Entries must be returned in chronological order.
type SessionStore interface {
	// WriteEntry appends entry to the log of sessionID.
	// sessionID must be non-empty.
	WriteEntry(ctx context.Context, sessionID string, entry TranscriptEntry) error

	// Entries returns every entry of sessionID, oldest first.
	// Returns an empty (non-nil) slice when the session has no entries.
	Entries(ctx context.Context, sessionID string) ([]TranscriptEntry, error)

	// Search performs full-text search over stored entries.
	// The query string is matched against the Text field.
	Search(ctx context.Context, query string, opts SearchOpts) ([]TranscriptEntry, error)
}

// ReportStore persists finished reports.
type ReportStore interface {
	// SaveReport inserts r, replacing any report with the same ID.
	SaveReport(ctx context.Context, r StoredReport) error

	// GetReport returns the report with the given ID, or an error wrapping
	// [ErrNotFound].
	GetReport(ctx context.Context, id string) (*StoredReport, error)
}
