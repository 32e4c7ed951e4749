// Package session persists the transcript of a live session while it runs.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/soelive/pkg/memory"
)

// DefaultInterval is the period between flushes when none is configured.
const DefaultInterval = 30 * time.Second

// Source yields the transcript entries recorded so far, oldest first.
// [transcript.Log] satisfies it.
type Source interface {
	Entries() []memory.TranscriptEntry
}

// Consolidator periodically copies new transcript entries to a
// [memory.SessionStore], so a crash loses at most one interval of speech.
//
// All methods are safe for concurrent use.
type Consolidator struct {
	store     memory.SessionStore
	source    Source
	sessionID func() string
	interval  time.Duration
	log       *slog.Logger

	mu sync.Mutex
	// written counts the entries of source already stored.
	written int
}

// Config configures a [Consolidator].
type Config struct {
	// Store receives the entries.
	Store memory.SessionStore

	// Source is read on every flush.
	Source Source

	// SessionID returns the ID entries are written under. It is evaluated
	// at flush time because the ID is assigned when the session connects.
	SessionID func() string

	// Interval between flushes. Defaults to [DefaultInterval].
	Interval time.Duration

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// NewConsolidator creates a [Consolidator].
func NewConsolidator(cfg Config) *Consolidator {
	c := &Consolidator{
		store:     cfg.Store,
		source:    cfg.Source,
		sessionID: cfg.SessionID,
		interval:  cfg.Interval,
		log:       cfg.Logger,
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Run flushes every interval until ctx is cancelled, then performs a final
// flush with a context detached from ctx. It always returns nil; write
// failures are logged.
func (c *Consolidator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := c.Flush(context.WithoutCancel(ctx)); err != nil {
				c.log.Warn("final transcript flush failed", "err", err)
			}
			return nil
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.log.Warn("periodic transcript flush failed", "err", err)
			}
		}
	}
}

// Flush writes the entries added since the previous flush. Entries that fail
// to write are skipped and reported in the returned error; the remaining
// entries are still attempted.
func (c *Consolidator) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.source.Entries()
	if c.written >= len(entries) {
		return nil
	}
	id := c.sessionID()
	if id == "" {
		return nil
	}

	var writeErr error
	failed := 0
	for i := c.written; i < len(entries); i++ {
		if err := c.store.WriteEntry(ctx, id, entries[i]); err != nil {
			failed++
			writeErr = fmt.Errorf("session: write entry %d: %w", i, err)
		}
	}
	if failed > 0 {
		c.log.Warn("transcript entries not stored", "session_id", id, "failed", failed)
	}
	c.written = len(entries)
	return writeErr
}

// Written returns how many entries have been handed to the store.
func (c *Consolidator) Written() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}
