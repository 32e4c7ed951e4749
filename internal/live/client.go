// Package live implements the live audio session client: it captures the
// microphone, streams it to a speech-to-speech provider, plays the synthesised
// reply gaplessly and surfaces transcripts of both speakers to the host.
//
// A [Client] owns at most one session at a time. Each session carries a
// generation number; device and network callbacks compare it with the
// client's active generation before touching anything, so callbacks that
// arrive after [Client.Disconnect] are inert. Host callbacks are delivered on a
// dedicated goroutine in the order the session produced them.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/soelive/internal/observe"
	"github.com/MrWong99/soelive/pkg/audio"
	"github.com/MrWong99/soelive/pkg/audio/playback"
	"github.com/MrWong99/soelive/pkg/memory"
	"github.com/MrWong99/soelive/pkg/provider/s2s"
)

var (
	// ErrSessionActive is returned by [Client.Connect] while another session
	// is connecting or connected.
	ErrSessionActive = errors.New("live: session already active")

	// ErrAborted is returned by [Client.Connect] when [Client.Disconnect] ran
	// before the session finished connecting.
	ErrAborted = errors.New("live: disconnected while connecting")
)

const defaultSendQueueSize = 8

// After a clean remote close the speaker keeps rendering what was already
// scheduled, for at most the scheduled remainder plus drainSlack and never
// longer than maxDrain.
const (
	drainSlack = 250 * time.Millisecond
	maxDrain   = 30 * time.Second
	drainPoll  = 10 * time.Millisecond
)

// Config holds the per-session parameters of a [Client].
type Config struct {
	// Voice selects the provider's prebuilt voice. Empty uses the provider default.
	Voice string

	// Instructions is the system instruction sent when the session opens.
	Instructions string

	// BlockSize is the number of samples per captured frame. Default 4096.
	BlockSize int

	// SendQueueSize bounds the frames waiting between the capture callback and
	// the network. A full queue drops the newest frame. Default 8.
	SendQueueSize int

	// InputSampleRate is the capture rate sent to the provider. Default 16000.
	InputSampleRate int

	// OutputSampleRate is the playback rate. Default 24000.
	OutputSampleRate int

	// ConnectTimeout bounds device and transport setup. Zero means no limit
	// beyond the context passed to Connect.
	ConnectTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BlockSize <= 0 {
		c.BlockSize = audio.DefaultBlockSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = audio.InputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = audio.OutputSampleRate
	}
}

// TranscriptFunc receives one transcript fragment. isUser is true for the
// user's speech and false for the assistant's.
type TranscriptFunc func(text string, isUser bool)

// StatusFunc receives every status transition of a session.
type StatusFunc func(Status)

// Option configures a [Client].
type Option func(*Client)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client connects the local audio devices to a speech-to-speech provider.
// All methods are safe for concurrent use.
type Client struct {
	platform audio.Platform
	provider s2s.Provider
	cfg      Config
	metrics  *observe.Metrics
	log      *slog.Logger

	mu      sync.Mutex
	nextGen uint64
	active  uint64 // generation of the live session, 0 when none
	sess    *session
	status  Status
}

// New returns an idle Client.
func New(platform audio.Platform, provider s2s.Provider, cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()
	c := &Client{
		platform: platform,
		provider: provider,
		cfg:      cfg,
		status:   StatusIdle,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// session is the state of one connection attempt. Device and transport
// fields are guarded by Client.mu and handed over to whoever tears the
// session down.
type session struct {
	id  string
	gen uint64
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	onTranscript TranscriptFunc
	onStatus     StatusFunc
	disp         *dispatcher

	timeline *playback.Timeline
	sched    *playback.Scheduler
	frames   chan audio.Frame

	// sourceRate is the provider's rate for chunks that do not state one.
	sourceRate int

	// detached is set by Disconnect; transcripts still queued for the host
	// are dropped from then on.
	detached atomic.Bool
	cut      chan struct{} // closed by Disconnect to stop a drain
	cutOnce  sync.Once
	released chan struct{} // closed once end has released every resource

	// guarded by Client.mu
	status  Status
	mic     audio.Capture
	speaker audio.Playback
	handle  s2s.SessionHandle
	counted bool

	streaming atomic.Bool
	wg        sync.WaitGroup
}

// Status returns the status of the current or most recent session.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the id of the current or most recent session, or "".
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

// Done returns a channel that is closed once the current or most recent
// session has ended and every host callback it produced has been delivered.
// Without any session the returned channel is already closed.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.sess.disp.done
}

// Connect opens the microphone, the speaker and a provider session, then
// starts streaming. onStatus observes connecting followed by connected, or
// by error on failure; on failure everything opened so far is released and
// the wrapped cause is returned. Connect returns [ErrSessionActive] without
// any status change if a session is already active.
func (c *Client) Connect(ctx context.Context, onTranscript TranscriptFunc, onStatus StatusFunc) error {
	if onTranscript == nil {
		onTranscript = func(string, bool) {}
	}
	if onStatus == nil {
		onStatus = func(Status) {}
	}

	c.mu.Lock()
	if c.active != 0 {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.nextGen++
	cfg := c.cfg
	s := c.newSession(ctx, c.nextGen, onTranscript, onStatus)
	c.active = s.gen
	c.sess = s
	c.setStatusLocked(s, StatusConnecting)
	c.mu.Unlock()

	started := time.Now()
	s.log.Debug("live: connecting")

	setupCtx, cancelSetup := context.WithCancel(ctx)
	defer cancelSetup()
	if cfg.ConnectTimeout > 0 {
		setupCtx, cancelSetup = context.WithTimeout(setupCtx, cfg.ConnectTimeout)
		defer cancelSetup()
	}
	stop := context.AfterFunc(s.ctx, cancelSetup)
	defer stop()

	mic, err := c.platform.OpenCapture(setupCtx, audio.CaptureConfig{
		SampleRate: cfg.InputSampleRate,
		BlockSize:  cfg.BlockSize,
	})
	if err != nil {
		return c.fail(s, fmt.Errorf("live: open microphone: %w", err))
	}
	if !c.attach(s, func() { s.mic = mic }) {
		_ = mic.Close()
		return ErrAborted
	}

	speaker, err := c.platform.OpenPlayback(setupCtx, audio.PlaybackConfig{
		SampleRate: cfg.OutputSampleRate,
	})
	if err != nil {
		return c.fail(s, fmt.Errorf("live: open speaker: %w", err))
	}
	c.checkCapabilities(s, cfg)
	if !c.attach(s, func() { s.speaker = speaker }) {
		_ = speaker.Close()
		return ErrAborted
	}

	handle, err := c.provider.Connect(setupCtx, s2s.SessionConfig{
		Voice:            cfg.Voice,
		Instructions:     cfg.Instructions,
		InputSampleRate:  cfg.InputSampleRate,
		TranscribeInput:  true,
		TranscribeOutput: true,
	})
	if err != nil {
		c.metrics.RecordProviderError(ctx, "s2s", "connect")
		if s.ctx.Err() != nil {
			return ErrAborted
		}
		return c.fail(s, fmt.Errorf("live: open session: %w", err))
	}
	if !c.attach(s, func() { s.handle = handle }) {
		_ = handle.Close()
		return ErrAborted
	}
	handle.OnError(func(err error) { c.onSessionError(s, err) })

	if err := speaker.Start(s.timeline.Render); err != nil {
		return c.fail(s, fmt.Errorf("live: start speaker: %w", err))
	}

	c.mu.Lock()
	if c.active != s.gen {
		c.mu.Unlock()
		return ErrAborted
	}
	c.setStatusLocked(s, StatusConnected)
	s.streaming.Store(true)
	s.counted = true
	s.wg.Add(2)
	go c.sendLoop(s, handle)
	go c.receiveLoop(s, handle)
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(ctx, 1)
	c.metrics.ConnectDuration.Record(ctx, time.Since(started).Seconds())

	if err := mic.Start(func(f audio.Frame) { c.onCapture(s, f) }); err != nil {
		return c.fail(s, fmt.Errorf("live: start microphone: %w", err))
	}
	s.log.Info("live: connected", "elapsed", time.Since(started))
	return nil
}

// SetPersona changes the voice and system instruction used by the next
// session. A session that is already open keeps its settings.
func (c *Client) SetPersona(voice, instructions string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Voice = voice
	c.cfg.Instructions = instructions
}

// Disconnect ends the active session: it stops and closes the microphone and
// the speaker, then closes the provider session. It is idempotent, safe in
// any state and safe to call from inside a host callback. Once it returns no
// more audio is sent or played, even when the session was already being torn
// down after a remote close.
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.sess
	if s == nil {
		if c.status == StatusIdle {
			c.status = StatusDisconnected
		}
		c.mu.Unlock()
		return
	}
	owner := c.active == s.gen
	c.mu.Unlock()

	s.detached.Store(true)
	s.cutOnce.Do(func() { close(s.cut) })
	if owner {
		c.end(s, StatusDisconnected, nil, false)
	}
	<-s.released
	s.wg.Wait()
}

// checkCapabilities warns about a voice the provider does not list and
// records the provider's default output rate.
func (c *Client) checkCapabilities(s *session, cfg Config) {
	caps := c.provider.Capabilities()
	s.sourceRate = caps.OutputSampleRate
	if cfg.Voice == "" || len(caps.Voices) == 0 {
		return
	}
	for _, v := range caps.Voices {
		if v.ID == cfg.Voice {
			return
		}
	}
	ids := make([]string, len(caps.Voices))
	for i, v := range caps.Voices {
		ids[i] = v.ID
	}
	s.log.Warn("live: voice not offered by provider", "voice", cfg.Voice, "voices", ids)
}

func (c *Client) newSession(parent context.Context, gen uint64, onTranscript TranscriptFunc, onStatus StatusFunc) *session {
	id := uuid.NewString()
	log := c.log.With("session_id", id)
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	timeline := playback.NewTimeline(c.cfg.OutputSampleRate, playback.WithOnPlayed(func() {
		c.metrics.FramesPlayed.Add(context.Background(), 1)
	}))
	return &session{
		id:           id,
		gen:          gen,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		onTranscript: onTranscript,
		onStatus:     onStatus,
		disp:         newDispatcher(log),
		timeline:     timeline,
		sched:        playback.NewScheduler(timeline),
		frames:       make(chan audio.Frame, c.cfg.SendQueueSize),
		cut:          make(chan struct{}),
		released:     make(chan struct{}),
		status:       StatusIdle,
	}
}

// setStatusLocked moves s to st and queues the host notification. Terminal
// states are final. c.mu must be held so that notifications are queued in
// transition order.
func (c *Client) setStatusLocked(s *session, st Status) {
	if s.status.Terminal() {
		return
	}
	s.status = st
	c.status = st
	onStatus := s.onStatus
	s.disp.post(func() { onStatus(st) })
}

// attach runs set under the lock if s is still the active session.
func (c *Client) attach(s *session, set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != s.gen {
		return false
	}
	set()
	return true
}

func (c *Client) current(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == s.gen
}

func (c *Client) fail(s *session, err error) error {
	s.log.Warn("live: session failed", "err", err)
	if !c.end(s, StatusError, err, false) {
		return ErrAborted
	}
	return err
}

// end tears s down exactly once and reports whether this call did it. The
// terminal status is the last host callback of the session; the dispatcher
// closes only after every resource is released. With drain set the speaker
// first plays out what is already scheduled.
func (c *Client) end(s *session, st Status, cause error, drain bool) bool {
	c.mu.Lock()
	if c.active != s.gen {
		c.mu.Unlock()
		return false
	}
	c.active = 0
	c.setStatusLocked(s, st)
	s.streaming.Store(false)
	mic, speaker, handle := s.mic, s.speaker, s.handle
	s.mic, s.speaker, s.handle = nil, nil, nil
	counted := s.counted
	s.counted = false
	c.mu.Unlock()

	s.cancel()
	stopMic(s, mic)
	if drain && speaker != nil {
		c.drain(s)
	}
	release(s, mic, speaker, handle)
	if counted {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	close(s.released)
	s.disp.close()
	if cause != nil {
		s.log.Info("live: session ended", "status", st, "err", cause)
	} else {
		s.log.Info("live: session ended", "status", st)
	}
	return true
}

func stopMic(s *session, mic audio.Capture) {
	if mic == nil {
		return
	}
	if err := mic.Stop(); err != nil {
		s.log.Debug("live: stop microphone", "err", err)
	}
}

// drain waits until the timeline has rendered every scheduled buffer, the
// scheduled audio should have ended, or Disconnect cuts it short.
func (c *Client) drain(s *session) {
	if s.timeline.Pending() == 0 {
		return
	}
	limit := min(s.sched.Next()-s.timeline.Now()+drainSlack, maxDrain)
	if limit <= 0 {
		return
	}
	s.log.Debug("live: draining playback", "pending", s.timeline.Pending(), "limit", limit)

	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	tick := time.NewTicker(drainPoll)
	defer tick.Stop()
	for s.timeline.Pending() > 0 {
		select {
		case <-s.cut:
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// release stops playback, drops what is still scheduled, closes both devices
// and finally the transport. The microphone is already stopped.
func release(s *session, mic audio.Capture, speaker audio.Playback, handle s2s.SessionHandle) {
	if speaker != nil {
		if err := speaker.Stop(); err != nil {
			s.log.Debug("live: stop speaker", "err", err)
		}
	}
	s.timeline.Clear()
	if mic != nil {
		if err := mic.Close(); err != nil {
			s.log.Debug("live: close microphone", "err", err)
		}
	}
	if speaker != nil {
		if err := speaker.Close(); err != nil {
			s.log.Debug("live: close speaker", "err", err)
		}
	}
	if handle != nil {
		if err := handle.Close(); err != nil {
			s.log.Debug("live: close session", "err", err)
		}
	}
}

// onCapture runs on the audio driver thread and must not block.
func (c *Client) onCapture(s *session, f audio.Frame) {
	if !s.streaming.Load() || !c.current(s) {
		c.metrics.RecordFrameDropped(s.ctx, "inactive")
		return
	}
	select {
	case s.frames <- f:
	default:
		c.metrics.RecordFrameDropped(s.ctx, "queue_full")
	}
}

// sendLoop encodes captured frames in capture order and hands them to the
// transport.
func (c *Client) sendLoop(s *session, handle s2s.SessionHandle) {
	defer s.wg.Done()
	conv := &audio.RateConverter{Target: c.cfg.InputSampleRate}
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.frames:
			if !c.current(s) {
				return
			}
			f = conv.Convert(f)
			if err := handle.SendAudio(audio.Float32ToPCM16(f.Samples)); err != nil {
				if errors.Is(err, s2s.ErrSessionClosed) || s.ctx.Err() != nil {
					return
				}
				s.log.Warn("live: send audio", "err", err)
				continue
			}
			c.metrics.FramesSent.Add(s.ctx, 1)
		}
	}
}

// receiveLoop drains the provider's audio and transcript streams until both
// close, then ends the session with disconnected or error depending on
// how the transport terminated.
func (c *Client) receiveLoop(s *session, handle s2s.SessionHandle) {
	defer s.wg.Done()
	audioCh := handle.Audio()
	transcripts := handle.Transcripts()
	for audioCh != nil || transcripts != nil {
		select {
		case chunk, ok := <-audioCh:
			if !ok {
				audioCh = nil
				continue
			}
			c.play(s, chunk)
		case e, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			c.deliverTranscript(s, e)
		}
	}

	if err := handle.Err(); err != nil {
		c.metrics.RecordProviderError(context.Background(), "s2s", "session")
		c.end(s, StatusError, err, false)
		return
	}
	c.end(s, StatusDisconnected, nil, true)
}

// play decodes one inbound chunk and places it on the playback timeline. A
// chunk that fails to decode is dropped without touching the scheduler.
func (c *Client) play(s *session, chunk s2s.AudioChunk) {
	samples, err := audio.PCM16ToFloat32(chunk.Data)
	if err != nil {
		c.metrics.DecodeErrors.Add(s.ctx, 1)
		s.log.Debug("live: drop undecodable audio", "err", err, "bytes", len(chunk.Data))
		return
	}
	if len(samples) == 0 {
		return
	}
	rate := s.timeline.SampleRate()
	src := chunk.SampleRate
	if src <= 0 {
		src = s.sourceRate
	}
	if src > 0 && src != rate {
		samples = audio.ResampleFloat32(samples, src, rate)
	}
	if !c.current(s) {
		return
	}
	start := s.sched.Schedule(audio.SamplesDuration(len(samples), rate))
	s.timeline.Enqueue(samples, start)
}

func (c *Client) deliverTranscript(s *session, e memory.TranscriptEntry) {
	if e.IsBlank() {
		return
	}
	isUser := e.IsUser()
	c.metrics.RecordTranscript(s.ctx, string(e.Speaker))

	text, onTranscript := e.Text, s.onTranscript
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != s.gen {
		return
	}
	s.disp.post(func() {
		if !s.detached.Load() {
			onTranscript(text, isUser)
		}
	})
}

// onSessionError handles non-fatal transport errors.
func (c *Client) onSessionError(s *session, err error) {
	if !c.current(s) {
		return
	}
	if errors.Is(err, s2s.ErrMalformedAudio) {
		c.metrics.DecodeErrors.Add(s.ctx, 1)
		s.log.Debug("live: provider sent malformed audio", "err", err)
		return
	}
	c.metrics.RecordProviderError(s.ctx, "s2s", "stream")
	s.log.Warn("live: provider error", "err", err)
}
