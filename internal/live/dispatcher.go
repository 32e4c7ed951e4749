package live

import (
	"log/slog"
	"sync"
)

// dispatcher delivers host callbacks on a single goroutine in post order.
// The queue is unbounded so posting never blocks a device or network
// goroutine. Once closed, the remaining queue is drained and the goroutine
// exits; later posts are rejected.
type dispatcher struct {
	log *slog.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newDispatcher(log *slog.Logger) *dispatcher {
	d := &dispatcher{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// post appends fn to the queue. It reports false after close.
func (d *dispatcher) post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	d.signal()
	return true
}

// close stops accepting posts. Already queued callbacks are still delivered.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			d.call(fn)
		}
		if closed {
			return
		}
		if len(batch) == 0 {
			<-d.wake
		}
	}
}

func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("live: host callback panicked", "panic", r)
		}
	}()
	fn()
}
