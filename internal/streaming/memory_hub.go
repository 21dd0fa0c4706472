package streaming

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

type subscription struct {
	ch     chan Event
	filter EventFilter
	once   sync.Once
}

// MemoryHub fans events out to in-process subscribers. A subscriber whose
// queue is full misses the event; Dropped counts those misses.
type MemoryHub struct {
	buffer int

	mu   sync.RWMutex
	subs map[*subscription]struct{}

	dropped atomic.Uint64
}

// MemoryOption configures a MemoryHub.
type MemoryOption func(*MemoryHub)

// WithBuffer sets the per-subscriber queue length. Values below 1 are ignored.
func WithBuffer(n int) MemoryOption {
	return func(h *MemoryHub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func NewMemoryHub(opts ...MemoryOption) *MemoryHub {
	h := &MemoryHub{buffer: DefaultBuffer, subs: make(map[*subscription]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish never blocks on a slow subscriber.
func (h *MemoryHub) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.deliver(stamp(event))
	return nil
}

func (h *MemoryHub) deliver(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. The returned func unsubscribes and closes
// the channel; calling it again is a no-op.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan Event, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{ch: make(chan Event, h.buffer), filter: filter}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() { h.unsubscribe(sub) }, nil
}

func (h *MemoryHub) unsubscribe(sub *subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		close(sub.ch)
	})
}

// Subscribers returns the number of live subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a queue was full.
func (h *MemoryHub) Dropped() uint64 {
	return h.dropped.Load()
}
