package audio

import "time"

// Fixed stream rates of the live pipeline.
const (
	// InputSampleRate is the microphone rate sent to the remote model.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of synthesised audio returned by the model.
	OutputSampleRate = 24000

	// DefaultBlockSize is the number of samples per captured block.
	DefaultBlockSize = 4096
)

// Frame is a block of mono float32 samples in the nominal range [-1, 1].
// Frames are the unit handed from capture devices to the session and from
// the session to the playback timeline.
type Frame struct {
	// Samples holds one float32 per sample. The receiver owns the slice.
	Samples []float32

	// SampleRate in Hz (16000 for capture, 24000 for playback).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	// Zero for frames that did not originate from a capture device.
	Timestamp time.Duration
}

// Duration returns how long the frame plays at its sample rate.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// SamplesDuration converts a sample count at rate Hz into a duration.
// A non-positive rate yields zero.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}
