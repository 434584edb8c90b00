package fanout

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Publisher/Subscriber. It backs single-instance
// deployments and tests; per-channel delivery order matches publish order.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string][]chan Event
	closed bool
}

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]chan Event)}
}

// Publish implements Publisher. Slow subscribers do not block the pipeline:
// when a subscriber's buffer is full the event is dropped for that
// subscriber only (at-least-once holds per healthy consumer).
func (b *MemoryBus) Publish(_ context.Context, channel string, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe implements Subscriber. The subscription is dropped when ctx is
// cancelled.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		list := b.subs[channel]
		for i, c := range list {
			if c == ch {
				b.subs[channel] = append(list[:i], list[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch, nil
}

// Close implements Publisher.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, list := range b.subs {
		for _, ch := range list {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Event)
	return nil
}
