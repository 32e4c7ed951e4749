package memory

import (
	"strings"
	"time"
)

// Speaker identifies which side of the live conversation produced a
// transcript fragment.
type Speaker string

const (
	// SpeakerUser is the person talking into the microphone.
	SpeakerUser Speaker = "user"

	// SpeakerAssistant is the remote model.
	SpeakerAssistant Speaker = "assistant"
)

// IsValid reports whether s is one of the known speakers.
func (s Speaker) IsValid() bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

// TranscriptEntry is one transcript fragment as reported by the remote
// model. Fragments are incremental: consecutive entries from the same speaker
// may continue the same sentence.
type TranscriptEntry struct {
	// Speaker tells user speech apart from model speech.
	Speaker Speaker

	// Text is the fragment exactly as received.
	Text string

	// Timestamp is when this fragment arrived.
	Timestamp time.Time
}

// IsUser reports whether the fragment was spoken by the user.
func (e TranscriptEntry) IsUser() bool { return e.Speaker == SpeakerUser }

// IsBlank reports whether the fragment carries no visible text.
func (e TranscriptEntry) IsBlank() bool { return strings.TrimSpace(e.Text) == "" }

// StoredReport is a finished attendance report as persisted by a
// [ReportStore]. The body is the JSON encoding produced by the report package.
type StoredReport struct {
	// ID uniquely identifies the report.
	ID string

	// SessionID links the report to the live session whose transcript fed
	// it. Empty when the notes were typed by hand.
	SessionID string

	// StudentName is duplicated out of Body for lookup.
	StudentName string

	// Body is the JSON-encoded report.
	Body []byte

	// CreatedAt is when the report was generated.
	CreatedAt time.Time
}
