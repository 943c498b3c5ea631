package pubsub

import (
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// PubSub fans values out to topic subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the value.
type PubSub[T any] struct {
	mu     sync.Mutex
	subs   map[string][]chan T
	buffer int
	closed bool
}

func NewPubSub[T any]() *PubSub[T] {
	return NewBufferedPubSub[T](DefaultBuffer)
}

func NewBufferedPubSub[T any](buffer int) *PubSub[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &PubSub[T]{
		subs:   make(map[string][]chan T),
		buffer: buffer,
	}
}

func (ps *PubSub[T]) Subscribe(topic string) <-chan T {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ch := make(chan T, ps.buffer)
	if ps.closed {
		close(ch)
		return ch
	}
	ps.subs[topic] = append(ps.subs[topic], ch)
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (ps *PubSub[T]) Unsubscribe(topic string, ch <-chan T) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	subs := ps.subs[topic]
	for i, sub := range subs {
		if sub == ch {
			close(sub)
			ps.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(ps.subs[topic]) == 0 {
		delete(ps.subs, topic)
	}
}

// Publish delivers data to every subscriber of topic with room in its buffer
// and returns how many received it.
func (ps *PubSub[T]) Publish(topic string, data T) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delivered := 0
	for _, ch := range ps.subs[topic] {
		select {
		case ch <- data:
			delivered++
		default:
		}
	}
	return delivered
}

func (ps *PubSub[T]) Subscribers(topic string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.subs[topic])
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (ps *PubSub[T]) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}
	ps.closed = true
	for topic, subs := range ps.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(ps.subs, topic)
	}
}
