// Package broker provides a simple fan-out message broker, used to
// distribute transmission engine events to multiple consumers.
package broker

import (
	"sync"
)

// Broker fans published messages out to named subscribers. Delivery is in
// publish order per subscriber: a subscriber whose buffer is full misses
// the message rather than blocking the publisher or receiving it out of
// order.
type Broker[T any] struct {
	mu          sync.Mutex
	subscribers map[string]chan T
	closed      bool
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subscribers: make(map[string]chan T),
	}
}

// Subscribe registers a new subscriber with the given name and channel
// buffer size, replacing any previous subscriber with the same name. The
// returned channel is closed by Unsubscribe or Close; after Close it is
// returned already closed.
func (b *Broker[T]) Subscribe(name string, size int) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, size)
	if b.closed {
		close(ch)
		return ch
	}
	if old, ok := b.subscribers[name]; ok {
		close(old)
	}
	b.subscribers[name] = ch
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker[T]) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[name]; ok {
		close(ch)
		delete(b.subscribers, name)
	}
}

// Publish sends a message to every subscriber with buffer room and returns
// the number of subscribers that received it.
func (b *Broker[T]) Publish(t T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subscribers {
		select {
		case ch <- t:
			delivered++
		default:
		}
	}
	return delivered
}

// Close closes all subscriber channels, signaling that no more messages
// will be published.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[string]chan T)
	b.closed = true
}
