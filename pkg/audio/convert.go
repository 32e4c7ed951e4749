package audio

import (
	"log/slog"
	"sync"
)

// RateConverter brings frames to a target sample rate. It logs a warning on
// the first rate mismatch. Create one per stream; not designed for shared use
// across goroutines.
type RateConverter struct {
	Target         int
	warnedMismatch sync.Once
}

// Convert resamples frame to the target rate. If the rate already matches, or
// the frame carries no rate, the frame is returned unchanged.
func (c *RateConverter) Convert(frame Frame) Frame {
	if frame.SampleRate == c.Target || frame.SampleRate <= 0 || c.Target <= 0 {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio rate mismatch: resampling",
			"fromHz", frame.SampleRate,
			"toHz", c.Target,
		)
	})

	return Frame{
		Samples:    ResampleFloat32(frame.Samples, frame.SampleRate, c.Target),
		SampleRate: c.Target,
		Timestamp:  frame.Timestamp,
	}
}

// ResampleFloat32 resamples mono float samples from srcRate to dstRate using
// linear interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleFloat32(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Blocker slices an arbitrary sequence of samples into fixed-size blocks.
// Device drivers deliver periods of varying length; the session expects
// exact blocks. Not safe for concurrent use.
type Blocker struct {
	size int
	buf  []float32
}

// NewBlocker returns a Blocker emitting blocks of size samples. A non-positive
// size falls back to DefaultBlockSize.
func NewBlocker(size int) *Blocker {
	if size <= 0 {
		size = DefaultBlockSize
	}
	return &Blocker{size: size, buf: make([]float32, 0, size)}
}

// Write appends samples and calls emit once per completed block. Each emitted
// slice is freshly allocated and owned by the callee.
func (b *Blocker) Write(samples []float32, emit func([]float32)) {
	for len(samples) > 0 {
		n := min(b.size-len(b.buf), len(samples))
		b.buf = append(b.buf, samples[:n]...)
		samples = samples[n:]
		if len(b.buf) == b.size {
			block := make([]float32, b.size)
			copy(block, b.buf)
			b.buf = b.buf[:0]
			emit(block)
		}
	}
}

// Reset discards any partially filled block.
func (b *Blocker) Reset() { b.buf = b.buf[:0] }
