package playback

import (
	"container/heap"
	"sync"
	"time"
)

// Compile-time interface assertion.
var _ Clock = (*Timeline)(nil)

// defaultQueueCap is the initial capacity hint for the buffer heap.
const defaultQueueCap = 16

// Option configures a [Timeline] during construction.
type Option func(*Timeline)

// WithOnPlayed registers a callback invoked once for every buffer that has been
// fully rendered. It runs on the render goroutine and must not block.
func WithOnPlayed(fn func()) Option {
	return func(t *Timeline) { t.onPlayed = fn }
}

// Timeline holds buffers placed at absolute times and renders them into an
// output device. The number of samples rendered so far is the playback clock
// reported by [Timeline.Now]; it starts at zero when the Timeline is created
// and advances only inside [Timeline.Render].
//
// All exported methods are safe for concurrent use.
type Timeline struct {
	rate     int
	onPlayed func()

	mu    sync.Mutex
	queue entryHeap
	seq   uint64
	pos   int64 // samples rendered so far
}

// NewTimeline creates a Timeline for mono output at sampleRate Hz.
func NewTimeline(sampleRate int, opts ...Option) *Timeline {
	t := &Timeline{
		rate:  sampleRate,
		queue: make(entryHeap, 0, defaultQueueCap),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SampleRate returns the output rate in Hz.
func (t *Timeline) SampleRate() int { return t.rate }

// Now returns the playback clock.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samplesToDuration(t.pos)
}

// Enqueue places samples on the timeline starting at start. A start that the
// clock has already passed is moved to the current position so the buffer is
// played in full.
func (t *Timeline) Enqueue(samples []float32, start time.Duration) {
	if len(samples) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.durationToSamples(start)
	if s < t.pos {
		s = t.pos
	}
	t.seq++
	heap.Push(&t.queue, entry{samples: samples, start: s, seq: t.seq})
}

// Render fills out with the audio scheduled for the next len(out) samples and
// advances the clock. Positions without scheduled audio are silent.
func (t *Timeline) Render(out []float32) {
	clear(out)

	t.mu.Lock()
	from := t.pos
	to := from + int64(len(out))
	for _, e := range t.queue {
		lo := max(e.start, from)
		hi := min(e.end(), to)
		for p := lo; p < hi; p++ {
			out[p-from] += e.samples[p-e.start]
		}
	}
	t.pos = to

	played := 0
	for len(t.queue) > 0 && t.queue[0].end() <= t.pos {
		heap.Pop(&t.queue)
		played++
	}
	t.mu.Unlock()

	for i, v := range out {
		out[i] = min(max(v, -1), 1)
	}
	if t.onPlayed != nil {
		for range played {
			t.onPlayed()
		}
	}
}

// Pending returns the number of buffers not yet fully rendered.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Clear drops every scheduled buffer. The clock keeps its position.
func (t *Timeline) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.queue)
	t.queue = t.queue[:0]
}

func (t *Timeline) samplesToDuration(n int64) time.Duration {
	if t.rate <= 0 {
		return 0
	}
	return time.Duration(n * int64(time.Second) / int64(t.rate))
}

// durationToSamples rounds d to the nearest sample position.
func (t *Timeline) durationToSamples(d time.Duration) int64 {
	if t.rate <= 0 || d <= 0 {
		return 0
	}
	return (int64(d)*int64(t.rate) + int64(time.Second)/2) / int64(time.Second)
}
