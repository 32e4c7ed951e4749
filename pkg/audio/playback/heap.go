// Package playback schedules synthesised audio for gapless, non-overlapping
// output. A [Scheduler] assigns start times on the playback clock; a
// [Timeline] holds the scheduled buffers and renders them into the output
// device callback, advancing that clock as it goes.
package playback

// entry is a buffer placed on the timeline. The seq field breaks ties between
// buffers that start on the same sample.
type entry struct {
	samples []float32
	start   int64 // absolute sample position of the first sample
	seq     uint64
}

func (e entry) end() int64 { return e.start + int64(len(e.samples)) }

// entryHeap implements [container/heap.Interface] as a min-heap ordered by
// start sample (ascending), with FIFO tie-breaking on seq.
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].start != h[j].start {
		return h[i].start < h[j].start
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}
