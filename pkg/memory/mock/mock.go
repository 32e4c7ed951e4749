// Package mock provides in-memory test doubles for the memory layer interfaces.
//
// Each mock records every method call for assertion in tests and exposes
// exported fields that control failures. Unlike pure stubs, the mocks keep
// what was written so reads return it. All mocks are safe for concurrent use
// via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.SessionStore{}
//	// inject store into the system under test …
//	if got := store.CallCount("WriteEntry"); got != 1 {
//	    t.Errorf("expected 1 WriteEntry call, got %d", got)
//	}
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/soelive/pkg/memory"
)

// Compile-time interface assertions.
var (
	_ memory.SessionStore = (*SessionStore)(nil)
	_ memory.ReportStore  = (*ReportStore)(nil)
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// recorder is embedded by every mock to track calls.
type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (r *recorder) record(method string, args ...any) {
	r.calls = append(r.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of all recorded calls.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// SessionStore mock
// ─────────────────────────────────────────────────────────────────────────────

// SessionStore is a configurable test double for [memory.SessionStore].
type SessionStore struct {
	recorder

	// WriteEntryErr is returned by [SessionStore.WriteEntry] when non-nil.
	WriteEntryErr error

	// EntriesErr is returned by [SessionStore.Entries] when non-nil.
	EntriesErr error

	// SearchErr is returned by [SessionStore.Search] when non-nil.
	SearchErr error

	entries map[string][]memory.TranscriptEntry
}

// WriteEntry implements [memory.SessionStore].
func (m *SessionStore) WriteEntry(_ context.Context, sessionID string, entry memory.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("WriteEntry", sessionID, entry)
	if m.WriteEntryErr != nil {
		return m.WriteEntryErr
	}
	if sessionID == "" {
		return fmt.Errorf("mock session store: empty session id")
	}
	if m.entries == nil {
		m.entries = make(map[string][]memory.TranscriptEntry)
	}
	m.entries[sessionID] = append(m.entries[sessionID], entry)
	return nil
}

// Entries implements [memory.SessionStore].
func (m *SessionStore) Entries(_ context.Context, sessionID string) ([]memory.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Entries", sessionID)
	if m.EntriesErr != nil {
		return nil, m.EntriesErr
	}
	out := make([]memory.TranscriptEntry, len(m.entries[sessionID]))
	copy(out, m.entries[sessionID])
	return out, nil
}

// Search implements [memory.SessionStore] with a case-insensitive substring
// match, which is enough for tests.
func (m *SessionStore) Search(_ context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Search", query, opts)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	q := strings.ToLower(query)
	out := []memory.TranscriptEntry{}
	for sid, entries := range m.entries {
		if opts.SessionID != "" && sid != opts.SessionID {
			continue
		}
		for _, e := range entries {
			if opts.Speaker != "" && e.Speaker != opts.Speaker {
				continue
			}
			if !opts.After.IsZero() && !e.Timestamp.After(opts.After) {
				continue
			}
			if !opts.Before.IsZero() && !e.Timestamp.Before(opts.Before) {
				continue
			}
			if strings.Contains(strings.ToLower(e.Text), q) {
				out = append(out, e)
			}
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ReportStore mock
// ─────────────────────────────────────────────────────────────────────────────

// ReportStore is a configurable test double for [memory.ReportStore].
type ReportStore struct {
	recorder

	// SaveReportErr is returned by [ReportStore.SaveReport] when non-nil.
	SaveReportErr error

	reports map[string]memory.StoredReport
}

// SaveReport implements [memory.ReportStore].
func (m *ReportStore) SaveReport(_ context.Context, r memory.StoredReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SaveReport", r)
	if m.SaveReportErr != nil {
		return m.SaveReportErr
	}
	if m.reports == nil {
		m.reports = make(map[string]memory.StoredReport)
	}
	m.reports[r.ID] = r
	return nil
}

// GetReport implements [memory.ReportStore].
func (m *ReportStore) GetReport(_ context.Context, id string) (*memory.StoredReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetReport", id)
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("mock report store: %q: %w", id, memory.ErrNotFound)
	}
	return &r, nil
}
