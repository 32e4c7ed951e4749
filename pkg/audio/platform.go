// Package audio defines the device abstractions and sample conversions used by
// the live session pipeline.
//
// The primary abstractions are:
//
//   - [Platform]: opens the microphone and the speaker.
//   - [Capture]: a started microphone delivering fixed-size [Frame] blocks.
//   - [Playback]: an output device pulling samples from a render callback.
//
// Implementations are provided by adapter packages (audio/malgo for real
// hardware, audio/mock for tests). The interfaces stay narrow so the session
// client does not depend on a particular driver.
//
// This package lives under pkg/ because external code is expected to provide
// its own [Platform] implementations.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrDeviceUnavailable is returned when no usable audio device exists or
	// the driver failed to initialise it.
	ErrDeviceUnavailable = errors.New("audio: device unavailable")

	// ErrPermissionDenied is returned when the operating system refused access
	// to the microphone.
	ErrPermissionDenied = errors.New("audio: permission denied")
)

// CaptureConfig describes the microphone stream requested by the session.
type CaptureConfig struct {
	// SampleRate in Hz. The driver converts from the native device rate.
	SampleRate int

	// BlockSize is the exact number of samples in every delivered [Frame].
	BlockSize int
}

// PlaybackConfig describes the speaker stream requested by the session.
type PlaybackConfig struct {
	// SampleRate in Hz. The driver converts to the native device rate.
	SampleRate int
}

// Platform opens audio devices. Implementations must be safe for concurrent
// use.
type Platform interface {
	// OpenCapture acquires the microphone. The device is initialised but not
	// running until [Capture.Start] is called. Failures wrap
	// [ErrPermissionDenied] or [ErrDeviceUnavailable].
	OpenCapture(ctx context.Context, cfg CaptureConfig) (Capture, error)

	// OpenPlayback acquires the default output device. The device is
	// initialised but silent until [Playback.Start] is called.
	OpenPlayback(ctx context.Context, cfg PlaybackConfig) (Playback, error)
}

// Capture is an acquired microphone.
//
// The onBlock callback runs on the driver's audio thread and must not block.
// Stop and Close are idempotent; after Stop returns onBlock is not called again.
type Capture interface {
	// Start begins delivering blocks to onBlock.
	Start(onBlock func(Frame)) error

	// Stop halts delivery.
	Stop() error

	// Close releases the device and its driver context.
	Close() error
}

// Playback is an acquired output device.
//
// The render callback runs on the driver's audio thread. It must fill out
// completely (silence where nothing is scheduled) and must not block.
// Stop and Close are idempotent; after Stop returns render is not called again.
type Playback interface {
	// Start begins pulling samples from render.
	Start(render func(out []float32)) error

	// Stop halts output.
	Stop() error

	// Close releases the device and its driver context.
	Close() error
}
