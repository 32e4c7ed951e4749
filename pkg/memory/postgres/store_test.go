package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/soelive/pkg/memory"
	"github.com/MrWong99/soelive/pkg/memory/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if SOELIVE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SOELIVE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SOELIVE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS reports CASCADE",
		"DROP TABLE IF EXISTS session_entries CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestSessionStore_WriteAndEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	entries := []memory.TranscriptEntry{
		{Speaker: memory.SpeakerUser, Text: "o aluno chegou atrasado", Timestamp: base},
		{Speaker: memory.SpeakerAssistant, Text: "entendido", Timestamp: base.Add(time.Second)},
		{Speaker: memory.SpeakerUser, Text: "combinamos uma reunião", Timestamp: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := store.WriteEntry(ctx, "s1", e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}
	if err := store.WriteEntry(ctx, "s2", entries[0]); err != nil {
		t.Fatalf("WriteEntry other session: %v", err)
	}

	got, err := store.Entries(ctx, "s1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i].Text != entries[i].Text || got[i].Speaker != entries[i].Speaker {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], entries[i])
		}
	}

	empty, err := store.Entries(ctx, "missing")
	if err != nil {
		t.Fatalf("Entries missing: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestSessionStore_WriteEntryRejectsEmptySession(t *testing.T) {
	store := newTestStore(t)
	if err := store.WriteEntry(context.Background(), "", memory.TranscriptEntry{Text: "x"}); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestSessionStore_Search(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = store.WriteEntry(ctx, "s1", memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "reunião com a família", Timestamp: now})
	_ = store.WriteEntry(ctx, "s1", memory.TranscriptEntry{Speaker: memory.SpeakerAssistant, Text: "a reunião foi registrada", Timestamp: now.Add(time.Second)})
	_ = store.WriteEntry(ctx, "s2", memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "reunião cancelada", Timestamp: now})

	got, err := store.Search(ctx, "reunião", memory.SearchOpts{SessionID: "s1", Speaker: memory.SpeakerUser})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Text != "reunião com a família" {
		t.Errorf("unexpected search result: %+v", got)
	}

	limited, err := store.Search(ctx, "reunião", memory.SearchOpts{Limit: 2})
	if err != nil {
		t.Fatalf("Search with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d results, want 2", len(limited))
	}
}

func TestReportStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := memory.StoredReport{
		ID:          "r1",
		SessionID:   "s1",
		StudentName: "Ana",
		Body:        []byte(`{"formalReport":"texto"}`),
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := store.SaveReport(ctx, r); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	r.StudentName = "Ana Maria"
	if err := store.SaveReport(ctx, r); err != nil {
		t.Fatalf("SaveReport overwrite: %v", err)
	}

	got, err := store.GetReport(ctx, "r1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.StudentName != "Ana Maria" || got.SessionID != "s1" {
		t.Errorf("unexpected report: %+v", got)
	}

	_, err = store.GetReport(ctx, "missing")
	if !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
