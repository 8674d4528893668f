package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Bridge is a bounded FIFO between the acquisition loop and the display.
// Publish never blocks: when full, the oldest snapshot is overwritten.
type Bridge struct {
	mu      sync.Mutex
	buf     []Snapshot
	head    int
	size    int
	dropped prometheus.Counter
}

// NewBridge creates a bridge holding at most capacity snapshots. dropped may
// be nil.
func NewBridge(capacity int, dropped prometheus.Counter) *Bridge {
	if capacity <= 0 {
		capacity = defaultBridgeCapacity
	}
	return &Bridge{
		buf:     make([]Snapshot, capacity),
		dropped: dropped,
	}
}

func (b *Bridge) Publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % len(b.buf)
	b.buf[tail] = s

	if b.size == len(b.buf) {
		b.head = (b.head + 1) % len(b.buf)
		if b.dropped != nil {
			b.dropped.Inc()
		}
		return
	}
	b.size++
}

// DrainAll removes and returns every pending snapshot, oldest first.
func (b *Bridge) DrainAll() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}

	out := make([]Snapshot, b.size)
	for i := range out {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	b.head = 0
	b.size = 0

	return out
}

// Len returns the number of pending snapshots.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
