// Package transcript keeps the host-side record of a live session's
// transcript.
//
// The live client hands over every fragment as it arrives and performs no
// merging. [Log] stores the fragments in arrival order and derives the two
// views the host needs: chat bubbles, where consecutive fragments of the same
// speaker are coalesced, and the user's speech as one block of text to be
// inserted into the meeting notes.
//
// Log is safe for concurrent use.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/soelive/pkg/memory"
)

// Bubble is a run of consecutive fragments from one speaker.
type Bubble struct {
	Speaker memory.Speaker `json:"speaker"`
	Text    string         `json:"text"`

	// Start is the timestamp of the first fragment in the run.
	Start time.Duration `json:"start"`
}

// Log is an append-only transcript.
type Log struct {
	start time.Time
	now   func() time.Time

	mu      sync.Mutex
	entries []memory.TranscriptEntry
}

// LogOption configures a [Log].
type LogOption func(*Log)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) LogOption {
	return func(l *Log) { l.now = now }
}

// NewLog returns an empty Log whose timestamps are relative to now.
func NewLog(opts ...LogOption) *Log {
	l := &Log{now: time.Now}
	for _, o := range opts {
		o(l)
	}
	l.start = l.now()
	return l
}

// Add appends e. Entries with a zero Timestamp are stamped with the time
// elapsed since the Log was created. It returns the stored entry.
func (l *Log) Add(e memory.TranscriptEntry) memory.TranscriptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Timestamp == 0 {
		e.Timestamp = l.now().Sub(l.start)
	}
	l.entries = append(l.entries, e)
	return e
}

// Len returns the number of stored fragments.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of every fragment in arrival order.
func (l *Log) Entries() []memory.TranscriptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]memory.TranscriptEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// UserText returns the user's fragments, trimmed and joined by single
// spaces. Blank fragments are skipped.
func (l *Log) UserText() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var parts []string
	for _, e := range l.entries {
		if !e.IsUser() || e.IsBlank() {
			continue
		}
		parts = append(parts, strings.TrimSpace(e.Text))
	}
	return strings.Join(parts, " ")
}

// Bubbles coalesces consecutive fragments of the same speaker. Fragment text
// is concatenated as received, since providers carry word spacing inside the
// fragments, and each bubble is trimmed at the end.
func (l *Log) Bubbles() []Bubble {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		out []Bubble
		sb  strings.Builder
	)
	flush := func() {
		if len(out) == 0 {
			return
		}
		out[len(out)-1].Text = strings.TrimSpace(sb.String())
		sb.Reset()
	}
	for _, e := range l.entries {
		if e.IsBlank() {
			continue
		}
		if len(out) == 0 || out[len(out)-1].Speaker != e.Speaker {
			flush()
			out = append(out, Bubble{Speaker: e.Speaker, Start: e.Timestamp})
		}
		sb.WriteString(e.Text)
	}
	flush()
	return out
}
