// Package s2s defines the Provider interface for live speech-to-speech backends.
//
// An S2S provider wraps a real-time voice AI service that accepts raw microphone
// audio and returns synthesised audio together with transcripts of both sides of
// the conversation, all over a single stateful session. The Gemini Live API is
// the reference backend.
//
// The central abstraction is SessionHandle: a bidirectional channel pair that
// carries audio and transcripts concurrently. Sessions are long-lived (seconds
// to minutes) and are never reused once closed.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"

	"github.com/MrWong99/soelive/pkg/memory"
)

// ErrMalformedAudio is reported through [SessionHandle.OnError] when an audio
// payload from the provider could not be decoded. The offending chunk is
// dropped and the session continues.
var ErrMalformedAudio = errors.New("s2s: malformed audio payload")

// ErrSessionClosed is returned by [SessionHandle.SendAudio] once the session
// has been closed.
var ErrSessionClosed = errors.New("s2s: session closed")

// VoiceProfile names a prebuilt voice offered by a provider.
type VoiceProfile struct {
	// ID is the provider's voice identifier (e.g. "Kore").
	ID string

	// Name is the human-readable voice name.
	Name string
}

// SessionConfig is the initial configuration for a new S2S session.
type SessionConfig struct {
	// Voice is the prebuilt voice used for synthesised speech. Empty selects the
	// provider default.
	Voice string

	// Instructions is the system-level prompt that frames the model's role.
	Instructions string

	// InputSampleRate is the rate of the PCM sent through SendAudio. Zero means
	// 16000 Hz.
	InputSampleRate int

	// TranscribeInput asks the provider to transcribe the user's speech.
	TranscribeInput bool

	// TranscribeOutput asks the provider to transcribe its own speech.
	TranscribeOutput bool
}

// Capabilities describes static properties of the S2S provider.
// The values are assumed constant for the lifetime of the Provider instance.
type Capabilities struct {
	// MaxSessionDurationMs is the hard upper bound on session lifetime in
	// milliseconds, as imposed by the provider. Zero means no documented limit.
	MaxSessionDurationMs int

	// OutputSampleRate is the rate of audio delivered on the Audio channel when
	// a chunk does not state its own rate.
	OutputSampleRate int

	// Voices lists the voice profiles available for this provider.
	Voices []VoiceProfile
}

// AudioChunk is one decoded block of synthesised speech.
type AudioChunk struct {
	// Data is 16-bit signed little-endian mono PCM.
	Data []byte

	// SampleRate in Hz as stated by the provider.
	SampleRate int
}

// SessionHandle represents an open S2S session. It is an interface so that test
// code can supply mock implementations without a live provider connection.
//
// Audio I/O is channel-based to avoid blocking the caller's audio thread. All
// methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw 16-bit PCM chunk at the negotiated input rate.
	// Returns an error wrapping [ErrSessionClosed] once the session is closed, or
	// a transport error.
	SendAudio(chunk []byte) error

	// Audio returns a read-only channel that emits synthesised speech. The channel
	// is closed when the session ends for any reason. After it closes, call
	// [SessionHandle.Err] to learn whether the session ended cleanly.
	// Consumers must drain this channel promptly to prevent backpressure from
	// stalling the provider's receive loop.
	Audio() <-chan AudioChunk

	// Transcripts returns a read-only channel that emits transcript fragments for
	// both the user and the model, in arrival order. The channel is closed when
	// the session ends.
	Transcripts() <-chan memory.TranscriptEntry

	// Err returns the error that terminated the session, or nil if it ended
	// cleanly (local Close or a normal remote close).
	Err() error

	// OnError registers a handler for non-fatal errors such as undecodable audio
	// payloads. Passing nil clears the handler. The handler may be called from
	// the session's receive goroutine and must not block.
	OnError(handler func(error))

	// Close terminates the session, releases all resources, and closes the Audio
	// and Transcripts channels. Calling Close more than once is safe and returns
	// nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes a new S2S session with the given configuration and
	// returns once the provider has acknowledged the setup. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the session cannot be established (e.g., authentication
	// failure, network error, or ctx cancelled). The caller owns the
	// SessionHandle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about this provider.
	Capabilities() Capabilities
}
