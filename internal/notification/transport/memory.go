package transport

import (
	"context"
	"sync"
)

// Broker is an in-process topic broker. Slow subscribers lose messages
// rather than stall publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

type subscription struct {
	ch chan []byte
}

// NewBroker creates a broker whose subscriptions buffer up to buffer messages.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{subs: make(map[string]map[*subscription]struct{}), buffer: buffer}
}

// Publish copies payload to every current subscriber of channel.
func (b *Broker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Open registers a subscription and returns its message channel together
// with a cancel func that must be called to release it.
func (b *Broker) Open(channel string) (<-chan []byte, func()) {
	sub := &subscription{ch: make(chan []byte, b.buffer)}
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], sub)
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribe implements Subscriber.
func (b *Broker) Subscribe(ctx context.Context, channel string, handle Handler) error {
	ch, cancel := b.Open(channel)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			handle(msg)
		}
	}
}

// Subscribers returns the number of open subscriptions on channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
