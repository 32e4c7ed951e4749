package live

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/soelive/internal/observe"
	"github.com/MrWong99/soelive/pkg/audio"
	audiomock "github.com/MrWong99/soelive/pkg/audio/mock"
	"github.com/MrWong99/soelive/pkg/memory"
	"github.com/MrWong99/soelive/pkg/provider/s2s"
	s2smock "github.com/MrWong99/soelive/pkg/provider/s2s/mock"
)

const waitFor = 2 * time.Second

type transcript struct {
	text   string
	isUser bool
}

// recorder collects host callbacks.
type recorder struct {
	mu          sync.Mutex
	statuses    []Status
	transcripts []transcript
}

func (r *recorder) onStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) onTranscript(text string, isUser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts = append(r.transcripts, transcript{text, isUser})
}

func (r *recorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.statuses)
}

func (r *recorder) Transcripts() []transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.transcripts)
}

type fixture struct {
	client   *Client
	platform *audiomock.Platform
	provider *s2smock.Provider
	session  *s2smock.Session
	rec      *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f := &fixture{
		platform: &audiomock.Platform{},
		session:  s2smock.NewSession(),
		rec:      &recorder{},
	}
	f.provider = &s2smock.Provider{Session: f.session}
	f.client = New(f.platform, f.provider, Config{Voice: "Kore", Instructions: "be formal"}, WithMetrics(metrics))
	t.Cleanup(f.client.Disconnect)
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	if err := f.client.Connect(context.Background(), f.rec.onTranscript, f.rec.onStatus); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

// waitDone blocks until the session's callbacks have all been delivered.
func (f *fixture) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-f.client.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not finish")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestConnect_OpensDevicesAndSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	eventually(t, "connected status", func() bool {
		return slices.Equal(f.rec.Statuses(), []Status{StatusConnecting, StatusConnected})
	})
	if got := f.client.Status(); got != StatusConnected {
		t.Errorf("Status = %q, want connected", got)
	}
	if len(f.platform.CaptureCalls) != 1 || f.platform.CaptureCalls[0] != (audio.CaptureConfig{SampleRate: 16000, BlockSize: 4096}) {
		t.Errorf("capture config = %+v", f.platform.CaptureCalls)
	}
	if len(f.platform.PlaybackCalls) != 1 || f.platform.PlaybackCalls[0].SampleRate != 24000 {
		t.Errorf("playback config = %+v", f.platform.PlaybackCalls)
	}
	cfg := f.provider.ConnectCalls[0].Cfg
	if !cfg.TranscribeInput || !cfg.TranscribeOutput {
		t.Errorf("transcription not enabled both ways: %+v", cfg)
	}
	if cfg.Voice != "Kore" || cfg.Instructions != "be formal" || cfg.InputSampleRate != 16000 {
		t.Errorf("session config = %+v", cfg)
	}
	if !f.platform.Mic().Running() || !f.platform.Speaker().Running() {
		t.Error("devices not started")
	}
	if f.client.SessionID() == "" {
		t.Error("SessionID is empty")
	}
}

func TestConnect_MicrophoneDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.platform.CaptureError = audio.ErrPermissionDenied

	err := f.client.Connect(context.Background(), f.rec.onTranscript, f.rec.onStatus)
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Connect error = %v, want ErrPermissionDenied", err)
	}
	f.waitDone(t)

	if got, want := f.rec.Statuses(), []Status{StatusConnecting, StatusError}; !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if len(f.platform.PlaybackCalls) != 0 {
		t.Error("speaker opened after microphone failure")
	}
	if f.provider.CallCount() != 0 {
		t.Error("provider dialled after microphone failure")
	}

	// Disconnect after a failed connect is harmless.
	f.client.Disconnect()
	if got := f.client.Status(); got != StatusError {
		t.Errorf("Status = %q, want error", got)
	}
}

func TestConnect_ProviderFailureReleasesDevices(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.provider.ConnectErr = errors.New("dial refused")

	if err := f.client.Connect(context.Background(), f.rec.onTranscript, f.rec.onStatus); err == nil {
		t.Fatal("Connect succeeded, want error")
	}
	f.waitDone(t)

	if got, want := f.rec.Statuses(), []Status{StatusConnecting, StatusError}; !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if f.platform.Mic().CallCountClose != 1 {
		t.Errorf("mic closed %d times, want 1", f.platform.Mic().CallCountClose)
	}
	if f.platform.Speaker().CallCountClose != 1 {
		t.Errorf("speaker closed %d times, want 1", f.platform.Speaker().CallCountClose)
	}
}

func TestConnect_WhileActive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	err := f.client.Connect(context.Background(), nil, nil)
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Connect = %v, want ErrSessionActive", err)
	}
	if f.provider.CallCount() != 1 {
		t.Errorf("provider dialled %d times, want 1", f.provider.CallCount())
	}
}

func TestConnect_NewSessionAfterTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	f.client.Disconnect()
	first := f.client.SessionID()

	f.provider.Session = s2smock.NewSession()
	f.connect(t)
	if f.client.SessionID() == first {
		t.Error("terminated session was reused")
	}
	if got := f.client.Status(); got != StatusConnected {
		t.Errorf("Status = %q, want connected", got)
	}
}

func TestSetPersona_AppliesToNextSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	f.client.SetPersona("Puck", "be brief")
	f.client.Disconnect()

	f.provider.Session = s2smock.NewSession()
	f.connect(t)

	first, second := f.provider.ConnectCalls[0].Cfg, f.provider.ConnectCalls[1].Cfg
	if first.Voice != "Kore" || first.Instructions != "be formal" {
		t.Errorf("first session config = %+v", first)
	}
	if second.Voice != "Puck" || second.Instructions != "be brief" {
		t.Errorf("second session config = %+v", second)
	}
}

func TestDisconnect_BeforeConnect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.client.Disconnect()
	f.client.Disconnect()

	if got := f.client.Status(); !got.Terminal() {
		t.Errorf("Status = %q, want terminal", got)
	}
}

func TestDisconnect_WhileConnecting(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	entered := make(chan struct{})
	f.provider.ConnectHook = func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}

	errc := make(chan error, 1)
	go func() { errc <- f.client.Connect(context.Background(), f.rec.onTranscript, f.rec.onStatus) }()

	<-entered
	f.client.Disconnect()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrAborted) {
			t.Errorf("Connect error = %v, want ErrAborted", err)
		}
	case <-time.After(waitFor):
		t.Fatal("Connect did not return after Disconnect")
	}
	f.waitDone(t)

	if got := f.client.Status(); got != StatusDisconnected {
		t.Errorf("Status = %q, want disconnected", got)
	}
	if got, want := f.rec.Statuses(), []Status{StatusConnecting, StatusDisconnected}; !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if f.platform.Mic().CallCountClose != 1 || f.platform.Speaker().CallCountClose != 1 {
		t.Error("devices opened during connect were not closed")
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	f.client.Disconnect()
	f.client.Disconnect()
	f.waitDone(t)

	want := []Status{StatusConnecting, StatusConnected, StatusDisconnected}
	if got := f.rec.Statuses(); !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	mic, speaker := f.platform.Mic(), f.platform.Speaker()
	if mic.CallCountStop != 1 || mic.CallCountClose != 1 {
		t.Errorf("mic stop/close = %d/%d, want 1/1", mic.CallCountStop, mic.CallCountClose)
	}
	if speaker.CallCountStop != 1 || speaker.CallCountClose != 1 {
		t.Errorf("speaker stop/close = %d/%d, want 1/1", speaker.CallCountStop, speaker.CallCountClose)
	}
	if f.session.CloseCalls() != 1 {
		t.Errorf("session closed %d times, want 1", f.session.CloseCalls())
	}
}

func TestDisconnect_FromStatusCallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.client.Connect(context.Background(), nil, func(s Status) {
		f.rec.onStatus(s)
		if s == StatusConnected {
			f.client.Disconnect()
		}
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.waitDone(t)

	want := []Status{StatusConnecting, StatusConnected, StatusDisconnected}
	if got := f.rec.Statuses(); !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestCapture_FramesSentOnlyWhileConnected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	mic := f.platform.Mic()

	if !mic.Emit(audio.Frame{Samples: make([]float32, 4096), SampleRate: 16000}) {
		t.Fatal("mic not running after connect")
	}
	eventually(t, "frame sent", func() bool { return len(f.session.Sent()) == 1 })

	sent := f.session.Sent()[0]
	if len(sent) != 8192 {
		t.Errorf("sent %d bytes, want 8192", len(sent))
	}
	if got := len(base64.StdEncoding.EncodeToString(sent)); got != 10924 {
		t.Errorf("base64 length = %d, want 10924", got)
	}

	f.client.Disconnect()
	if mic.Emit(audio.Frame{Samples: make([]float32, 4096), SampleRate: 16000}) {
		t.Error("mic still delivering after Disconnect")
	}
	if got := len(f.session.Sent()); got != 1 {
		t.Errorf("sent %d frames after Disconnect, want 1", got)
	}
}

func TestCapture_PreservesOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	mic := f.platform.Mic()

	for i := range 5 {
		samples := make([]float32, 4)
		samples[0] = float32(i) / 10
		mic.Emit(audio.Frame{Samples: samples, SampleRate: 16000})
		// Give the send loop room so the bounded queue never overflows.
		eventually(t, "frame sent", func() bool { return len(f.session.Sent()) == i+1 })
	}

	for i, chunk := range f.session.Sent() {
		got, err := audio.PCM16ToFloat32(chunk)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		want := float32(i) / 10
		if diff := got[0] - want; diff > 2.0/32768 || diff < -2.0/32768 {
			t.Errorf("chunk %d first sample = %v, want %v", i, got[0], want)
		}
	}
}

func TestTranscripts_DeliveredInOrderWithoutBlanks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "   "})
	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "Bom dia"})
	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerAssistant, Text: ""})
	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerAssistant, Text: "Olá"})
	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "\n\t"})
	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: " tudo bem"})

	want := []transcript{{"Bom dia", true}, {"Olá", false}, {" tudo bem", true}}
	eventually(t, "transcripts", func() bool { return len(f.rec.Transcripts()) == len(want) })
	if got := f.rec.Transcripts(); !slices.Equal(got, want) {
		t.Errorf("transcripts = %v, want %v", got, want)
	}
}

func TestTranscripts_NotDeliveredAfterDisconnect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	f.client.Disconnect()
	f.waitDone(t)

	if f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "late"}) {
		t.Error("closed session accepted a transcript")
	}
	if got := f.rec.Transcripts(); len(got) != 0 {
		t.Errorf("transcripts after Disconnect = %v", got)
	}
}

func TestPlayback_SchedulesChunksBackToBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	half := audio.Float32ToPCM16(constantSamples(12000, 0.5))
	f.session.PushAudio(s2s.AudioChunk{Data: half, SampleRate: 24000})
	f.session.PushAudio(s2s.AudioChunk{Data: half, SampleRate: 24000})

	tl := f.client.sess.timeline
	eventually(t, "two scheduled buffers", func() bool { return tl.Pending() == 2 })
	if got := f.client.sess.sched.Next(); got != time.Second {
		t.Errorf("scheduler cursor = %v, want 1s", got)
	}

	out := f.platform.Speaker().Pull(24000)
	for i, v := range out {
		if v < 0.49 || v > 0.51 {
			t.Fatalf("sample %d = %v, want ~0.5 (gap or overlap)", i, v)
		}
	}
}

func TestPlayback_BadChunkDoesNotStopSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	f.session.PushAudio(s2s.AudioChunk{Data: []byte{1, 2, 3}, SampleRate: 24000})
	f.session.EmitError(s2s.ErrMalformedAudio)
	f.session.PushAudio(s2s.AudioChunk{Data: make([]byte, 480), SampleRate: 24000})

	tl := f.client.sess.timeline
	eventually(t, "valid chunk scheduled", func() bool { return tl.Pending() == 1 })
	if got := f.client.sess.sched.Next(); got != 10*time.Millisecond {
		t.Errorf("scheduler cursor = %v, want 10ms", got)
	}
	if got := f.client.Status(); got != StatusConnected {
		t.Errorf("Status = %q, want connected", got)
	}
}

func TestPlayback_ResamplesForeignRate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	f.session.PushAudio(s2s.AudioChunk{Data: make([]byte, 3200), SampleRate: 16000})

	eventually(t, "chunk scheduled", func() bool { return f.client.sess.timeline.Pending() == 1 })
	if got := f.client.sess.sched.Next(); got != 100*time.Millisecond {
		t.Errorf("scheduler cursor = %v, want 100ms", got)
	}
}

func TestRemoteEnd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{name: "clean close", err: nil, want: StatusDisconnected},
		{name: "dropped", err: errors.New("connection reset"), want: StatusError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.connect(t)

			f.session.End(tc.err)
			f.waitDone(t)

			want := []Status{StatusConnecting, StatusConnected, tc.want}
			if got := f.rec.Statuses(); !slices.Equal(got, want) {
				t.Errorf("statuses = %v, want %v", got, want)
			}
			if f.platform.Mic().Running() || f.platform.Speaker().Running() {
				t.Error("devices still running after remote end")
			}
			if f.platform.Mic().CallCountClose != 1 {
				t.Errorf("mic closed %d times, want 1", f.platform.Mic().CallCountClose)
			}

			f.client.Disconnect()
			if got := f.client.Status(); got != tc.want {
				t.Errorf("Status after Disconnect = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRemoteEnd_DeliversQueuedTranscripts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "quer mudar"})
	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: " de turma"})
	f.session.End(nil)
	f.waitDone(t)

	want := []transcript{{"quer mudar", true}, {" de turma", true}}
	if got := f.rec.Transcripts(); !slices.Equal(got, want) {
		t.Errorf("transcripts = %v, want %v", got, want)
	}
	if got := f.rec.Statuses(); got[len(got)-1] != StatusDisconnected {
		t.Errorf("statuses = %v, want disconnected last", got)
	}
}

func TestDisconnect_RacingRemoteEnd(t *testing.T) {
	t.Parallel()
	for i := range 20 {
		f := newFixture(t)
		f.connect(t)
		mic, speaker := f.platform.Mic(), f.platform.Speaker()

		start := make(chan struct{})
		ended := make(chan struct{})
		go func() {
			defer close(ended)
			<-start
			f.session.End(nil)
		}()
		close(start)
		f.client.Disconnect()

		if mic.Running() || speaker.Running() {
			t.Fatalf("run %d: devices still running after Disconnect returned", i)
		}
		if speaker.CallCountClose != 1 || mic.CallCountClose != 1 {
			t.Fatalf("run %d: closes mic=%d speaker=%d, want 1 each", i, mic.CallCountClose, speaker.CallCountClose)
		}
		<-ended
		f.waitDone(t)
	}
}

func TestRemoteEnd_DrainsScheduledAudio(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	speaker := f.platform.Speaker()

	f.session.PushAudio(s2s.AudioChunk{Data: audio.Float32ToPCM16(constantSamples(24000, 0.5)), SampleRate: 24000})
	tl := f.client.sess.timeline
	eventually(t, "chunk scheduled", func() bool { return tl.Pending() == 1 })

	f.session.End(nil)
	eventually(t, "disconnected", func() bool { return f.client.Status() == StatusDisconnected })
	if !speaker.Running() {
		t.Fatal("speaker stopped before scheduled audio played")
	}
	if f.platform.Mic().Running() {
		t.Error("mic still capturing after remote close")
	}

	out := speaker.Pull(24000)
	if len(out) != 24000 || out[0] < 0.49 || out[23999] < 0.49 {
		t.Fatalf("drained %d samples, want 24000 at ~0.5", len(out))
	}
	f.waitDone(t)
	if speaker.Running() || speaker.CallCountClose != 1 {
		t.Errorf("speaker running=%v closes=%d after drain", speaker.Running(), speaker.CallCountClose)
	}
}

func TestDisconnect_CutsDrain(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	speaker := f.platform.Speaker()

	// Ten seconds of audio that nobody renders.
	f.session.PushAudio(s2s.AudioChunk{Data: make([]byte, 2*240000), SampleRate: 24000})
	tl := f.client.sess.timeline
	eventually(t, "chunk scheduled", func() bool { return tl.Pending() == 1 })

	f.session.End(nil)
	eventually(t, "disconnected", func() bool { return f.client.Status() == StatusDisconnected })

	begin := time.Now()
	f.client.Disconnect()
	if d := time.Since(begin); d > time.Second {
		t.Errorf("Disconnect took %v while draining", d)
	}
	if speaker.Running() {
		t.Error("speaker still running after Disconnect")
	}
	if tl.Pending() != 0 {
		t.Errorf("Pending = %d after Disconnect, want 0", tl.Pending())
	}
	f.waitDone(t)
}

func TestConnect_UsesProviderCapabilities(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.provider.ProviderCapabilities = s2s.Capabilities{
		OutputSampleRate: 16000,
		Voices:           []s2s.VoiceProfile{{ID: "Puck"}, {ID: "Charon"}},
	}
	var logs syncLog
	f.client.log = slog.New(slog.NewTextHandler(&logs, nil))
	f.connect(t)

	if !strings.Contains(logs.String(), "voice not offered by provider") || !strings.Contains(logs.String(), "voice=Kore") {
		t.Errorf("log = %q, want warning about voice Kore", logs.String())
	}

	// A chunk without a rate is read at the provider's rate.
	f.session.PushAudio(s2s.AudioChunk{Data: make([]byte, 3200)})
	eventually(t, "chunk scheduled", func() bool { return f.client.sess.timeline.Pending() == 1 })
	if got := f.client.sess.sched.Next(); got != 100*time.Millisecond {
		t.Errorf("scheduler cursor = %v, want 100ms", got)
	}
}

// syncLog is a log sink safe for concurrent writes.
type syncLog struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (l *syncLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *syncLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func TestCallbackPanicIsContained(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.client.Connect(context.Background(), func(string, bool) { panic("host bug") }, f.rec.onStatus)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.session.PushTranscript(memory.TranscriptEntry{Speaker: memory.SpeakerUser, Text: "oi"})
	f.session.End(nil)
	f.waitDone(t)

	want := []Status{StatusConnecting, StatusConnected, StatusDisconnected}
	if got := f.rec.Statuses(); !slices.Equal(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func constantSamples(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}
