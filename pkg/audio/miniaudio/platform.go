// Package miniaudio implements [audio.Platform] on top of miniaudio through
// the gen2brain/malgo bindings.
//
// Every opened device owns its own driver context so that capture and
// playback can be released independently. Devices run in 32-bit float mono;
// miniaudio converts to and from the native hardware rate.
package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/soelive/pkg/audio"
	"github.com/gen2brain/malgo"
)

var _ audio.Platform = (*Platform)(nil)

const (
	captureFormat  = malgo.FormatF32
	playbackFormat = malgo.FormatF32
)

// Platform opens miniaudio devices. The zero value is ready to use.
type Platform struct{}

// New returns a miniaudio Platform.
func New() *Platform { return &Platform{} }

// OpenCapture initialises the default microphone at cfg.SampleRate. Periods
// are sized to cfg.BlockSize and regrouped into exact blocks before delivery.
func (p *Platform) OpenCapture(_ context.Context, cfg audio.CaptureConfig) (audio.Capture, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.InputSampleRate
	}
	block := cfg.BlockSize
	if block <= 0 {
		block = audio.DefaultBlockSize
	}

	actx, err := initContext()
	if err != nil {
		return nil, err
	}

	c := &capture{
		actx:    actx,
		rate:    rate,
		blocker: audio.NewBlocker(block),
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.SampleRate = uint32(rate)
	dc.Capture.Format = captureFormat
	dc.Capture.Channels = 1
	dc.Alsa.NoMMap = 1
	dc.PerformanceProfile = malgo.LowLatency
	dc.PeriodSizeInFrames = uint32(block)
	dc.Periods = 2

	bytesPerFrame := malgo.SampleSizeInBytes(captureFormat)
	c.device, err = malgo.InitDevice(actx.Context, dc, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			c.deliver(pInput[:n])
		},
	})
	if err != nil {
		releaseContext(actx)
		return nil, classify("init capture device", err)
	}
	slog.Debug("miniaudio: capture device ready",
		"rateHz", rate,
		"blockSize", block,
		"buffer", latency(dc.PeriodSizeInFrames, dc.Periods, rate),
	)
	return c, nil
}

// OpenPlayback initialises the default output device at cfg.SampleRate.
func (p *Platform) OpenPlayback(_ context.Context, cfg audio.PlaybackConfig) (audio.Playback, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.OutputSampleRate
	}

	actx, err := initContext()
	if err != nil {
		return nil, err
	}

	pb := &playback{actx: actx}

	dc := malgo.DefaultDeviceConfig(malgo.Playback)
	dc.SampleRate = uint32(rate)
	dc.Playback.Format = playbackFormat
	dc.Playback.Channels = 1
	dc.Alsa.NoMMap = 1
	dc.PeriodSizeInFrames = uint32(rate / 50) // 20 ms
	dc.Periods = 4

	bytesPerFrame := malgo.SampleSizeInBytes(playbackFormat)
	pb.device, err = malgo.InitDevice(actx.Context, dc, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pOutput) < n {
				return
			}
			pb.fill(pOutput[:n], int(frameCount))
		},
	})
	if err != nil {
		releaseContext(actx)
		return nil, classify("init playback device", err)
	}
	slog.Debug("miniaudio: playback device ready",
		"rateHz", rate,
		"buffer", latency(dc.PeriodSizeInFrames, dc.Periods, rate),
	)
	return pb, nil
}

func initContext() (*malgo.AllocatedContext, error) {
	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, classify("init context", err)
	}
	return actx, nil
}

func releaseContext(actx *malgo.AllocatedContext) {
	_ = actx.Uninit()
	actx.Free()
}

// classify wraps a driver error with the matching audio sentinel. miniaudio
// reports a refused microphone as an access-denied result.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("miniaudio: %s: %w: %w", op, audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("miniaudio: %s: %w: %w", op, audio.ErrDeviceUnavailable, err)
}

// ── capture ──────────────────────────────────────────────────────────────────

type capture struct {
	actx   *malgo.AllocatedContext
	device *malgo.Device
	rate   int

	mu      sync.Mutex
	onBlock func(audio.Frame)
	blocker *audio.Blocker
	scratch []float32
	emitted int64
	closed  bool
}

func (c *capture) Start(onBlock func(audio.Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("miniaudio: capture closed")
	}
	if c.device.IsStarted() {
		return nil
	}
	c.onBlock = onBlock
	if err := c.device.Start(); err != nil {
		c.onBlock = nil
		return classify("start capture device", err)
	}
	return nil
}

// deliver runs on the driver thread.
func (c *capture) deliver(raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onBlock == nil {
		return
	}
	c.scratch = bytesToFloats(raw, c.scratch)
	c.blocker.Write(c.scratch, func(block []float32) {
		f := audio.Frame{
			Samples:    block,
			SampleRate: c.rate,
			Timestamp:  audio.SamplesDuration(int(c.emitted), c.rate),
		}
		c.emitted += int64(len(block))
		c.onBlock(f)
	})
}

func (c *capture) Stop() error {
	c.mu.Lock()
	c.onBlock = nil
	c.blocker.Reset()
	dev := c.device
	closed := c.closed
	c.mu.Unlock()

	// Stop waits for the driver thread, which may be blocked on c.mu.
	if closed || !dev.IsStarted() {
		return nil
	}
	if err := dev.Stop(); err != nil {
		return fmt.Errorf("miniaudio: stop capture device: %w", err)
	}
	return nil
}

func (c *capture) Close() error {
	if err := c.Stop(); err != nil {
		slog.Debug("miniaudio: stop before close failed", "err", err)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.device.Uninit()
	releaseContext(c.actx)
	return nil
}

// ── playback ─────────────────────────────────────────────────────────────────

type playback struct {
	actx   *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	render  func([]float32)
	scratch []float32
	closed  bool
}

func (p *playback) Start(render func(out []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("miniaudio: playback closed")
	}
	if p.device.IsStarted() {
		return nil
	}
	p.render = render
	if err := p.device.Start(); err != nil {
		p.render = nil
		return classify("start playback device", err)
	}
	return nil
}

// fill runs on the driver thread.
func (p *playback) fill(out []byte, frames int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap(p.scratch) < frames {
		p.scratch = make([]float32, frames)
	}
	buf := p.scratch[:frames]
	if p.render == nil {
		clear(buf)
	} else {
		p.render(buf)
	}
	for i, v := range buf {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
}

func (p *playback) Stop() error {
	p.mu.Lock()
	p.render = nil
	dev := p.device
	closed := p.closed
	p.mu.Unlock()

	if closed || !dev.IsStarted() {
		return nil
	}
	if err := dev.Stop(); err != nil {
		return fmt.Errorf("miniaudio: stop playback device: %w", err)
	}
	return nil
}

func (p *playback) Close() error {
	if err := p.Stop(); err != nil {
		slog.Debug("miniaudio: stop before close failed", "err", err)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.device.Uninit()
	releaseContext(p.actx)
	return nil
}

// bytesToFloats decodes little-endian float32 samples into dst, reusing its
// backing array when large enough.
func bytesToFloats(raw []byte, dst []float32) []float32 {
	n := len(raw) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return dst
}

// latency reports the configured buffering of a device for logging.
func latency(periodFrames, periods uint32, rate int) time.Duration {
	return audio.SamplesDuration(int(periodFrames*periods), rate)
}
