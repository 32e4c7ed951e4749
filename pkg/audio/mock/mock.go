// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Capture], and [audio.Playback] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	mic := &mock.Capture{}
//	platform := &mock.Platform{CaptureResult: mic}
//	// ... start a session ...
//	mic.Emit(audio.Frame{Samples: make([]float32, 4096), SampleRate: 16000})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/soelive/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform = (*Platform)(nil)
	_ audio.Capture  = (*Capture)(nil)
	_ audio.Playback = (*Playback)(nil)
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture]. Blocks are injected
// with [Capture.Emit].
type Capture struct {
	mu sync.Mutex

	// StartError is returned by [Capture.Start].
	StartError error

	// CallCountStart, CallCountStop and CallCountClose record invocations.
	CallCountStart int
	CallCountStop  int
	CallCountClose int

	onBlock func(audio.Frame)
	running bool
}

// Start implements [audio.Capture].
func (c *Capture) Start(onBlock func(audio.Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	if c.StartError != nil {
		return c.StartError
	}
	c.onBlock = onBlock
	c.running = true
	return nil
}

// Stop implements [audio.Capture].
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	c.running = false
	return nil
}

// Close implements [audio.Capture].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	c.running = false
	return nil
}

// Running reports whether the device is started.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Emit delivers f to the registered callback as the driver thread would.
// It reports false when the device is not running.
func (c *Capture) Emit(f audio.Frame) bool {
	c.mu.Lock()
	cb, running := c.onBlock, c.running
	c.mu.Unlock()
	if !running || cb == nil {
		return false
	}
	cb(f)
	return true
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Playback is a mock implementation of [audio.Playback]. Output is pulled with
// [Playback.Pull].
type Playback struct {
	mu sync.Mutex

	// StartError is returned by [Playback.Start].
	StartError error

	// CallCountStart, CallCountStop and CallCountClose record invocations.
	CallCountStart int
	CallCountStop  int
	CallCountClose int

	render  func([]float32)
	running bool
}

// Start implements [audio.Playback].
func (p *Playback) Start(render func(out []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStart++
	if p.StartError != nil {
		return p.StartError
	}
	p.render = render
	p.running = true
	return nil
}

// Stop implements [audio.Playback].
func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	p.running = false
	return nil
}

// Close implements [audio.Playback].
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	p.running = false
	return nil
}

// Running reports whether the device is started.
func (p *Playback) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Pull asks the render callback for n samples, as the driver thread would.
// It returns nil when the device is not running.
func (p *Playback) Pull(n int) []float32 {
	p.mu.Lock()
	render, running := p.render, p.running
	p.mu.Unlock()
	if !running || render == nil {
		return nil
	}
	out := make([]float32, n)
	render(out)
	return out
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// CaptureResult is returned by [Platform.OpenCapture]. A fresh [Capture]
	// is created when nil.
	CaptureResult *Capture

	// PlaybackResult is returned by [Platform.OpenPlayback]. A fresh
	// [Playback] is created when nil.
	PlaybackResult *Playback

	// CaptureError and PlaybackError make the corresponding open fail.
	CaptureError  error
	PlaybackError error

	// CaptureCalls and PlaybackCalls record the configs passed in.
	CaptureCalls  []audio.CaptureConfig
	PlaybackCalls []audio.PlaybackConfig
}

// OpenCapture implements [audio.Platform].
func (p *Platform) OpenCapture(_ context.Context, cfg audio.CaptureConfig) (audio.Capture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CaptureCalls = append(p.CaptureCalls, cfg)
	if p.CaptureError != nil {
		return nil, p.CaptureError
	}
	if p.CaptureResult == nil {
		p.CaptureResult = &Capture{}
	}
	return p.CaptureResult, nil
}

// OpenPlayback implements [audio.Platform].
func (p *Platform) OpenPlayback(_ context.Context, cfg audio.PlaybackConfig) (audio.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlaybackCalls = append(p.PlaybackCalls, cfg)
	if p.PlaybackError != nil {
		return nil, p.PlaybackError
	}
	if p.PlaybackResult == nil {
		p.PlaybackResult = &Playback{}
	}
	return p.PlaybackResult, nil
}

// Mic returns the capture device handed out so far, or nil.
func (p *Platform) Mic() *Capture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CaptureResult
}

// Speaker returns the playback device handed out so far, or nil.
func (p *Platform) Speaker() *Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PlaybackResult
}
