// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and feed controlled S2S sessions.
// Use Session to drive the audio/transcript streams from the "server" side and
// inspect what the client sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "oi"})
//	sess.End(nil) // remote closed cleanly
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/soelive/pkg/memory"
	"github.com/MrWong99/soelive/pkg/provider/s2s"
)

var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*Session)(nil)
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect returns
	// a new default Session.
	Session s2s.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectHook, if set, runs before Connect returns. Tests use it to block
	// or to observe the state of the caller mid-connect.
	ConnectHook func(ctx context.Context) error

	// ProviderCapabilities is returned by Capabilities.
	ProviderCapabilities s2s.Capabilities

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	hook := p.ConnectHook
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Capabilities returns ProviderCapabilities.
func (p *Provider) Capabilities() s2s.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderCapabilities
}

// CallCount returns the number of Connect calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// Session is a mock implementation of s2s.SessionHandle.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	audioCh       chan s2s.AudioChunk
	transcriptsCh chan memory.TranscriptEntry
	errVal        error
	errHandler    func(error)
	sent          [][]byte
	closeCalls    int
	ended         bool
}

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		audioCh:       make(chan s2s.AudioChunk, 64),
		transcriptsCh: make(chan memory.TranscriptEntry, 64),
	}
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	if s.ended {
		return s2s.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.sent = append(s.sent, cp)
	return nil
}

// Audio implements s2s.SessionHandle.
func (s *Session) Audio() <-chan s2s.AudioChunk { return s.audioCh }

// Transcripts implements s2s.SessionHandle.
func (s *Session) Transcripts() <-chan memory.TranscriptEntry { return s.transcriptsCh }

// Err implements s2s.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// OnError implements s2s.SessionHandle.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errHandler = handler
}

// Close implements s2s.SessionHandle. It ends the session cleanly.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	s.endLocked(nil)
	return nil
}

// PushAudio delivers a chunk as if it came from the server. It reports false
// when the session has ended or the buffer is full.
func (s *Session) PushAudio(chunk s2s.AudioChunk) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	select {
	case s.audioCh <- chunk:
		return true
	default:
		return false
	}
}

// PushTranscript delivers a transcript fragment as if it came from the server.
func (s *Session) PushTranscript(e memory.TranscriptEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	select {
	case s.transcriptsCh <- e:
		return true
	default:
		return false
	}
}

// EmitError invokes the handler registered with OnError, if any.
func (s *Session) EmitError(err error) {
	s.mu.Lock()
	h := s.errHandler
	s.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// End simulates the server ending the session. A nil err is a clean close.
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(err)
}

func (s *Session) endLocked(err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.errVal = err
	close(s.audioCh)
	close(s.transcriptsCh)
}

// Sent returns a copy of every chunk passed to SendAudio.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// CloseCalls returns how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}
