// Package pubsub provides an in-process fan-out topic used for store
// notifications and the in-memory change feed.
package pubsub

import "sync"

// Topic fans published values out to every current subscriber.
type Topic[T any] struct {
	mu     sync.Mutex
	subs   map[*sub[T]]struct{}
	closed bool
}

type sub[T any] struct {
	mu    sync.Mutex
	ch    chan T
	done  chan struct{}
	once  sync.Once
	lossy bool
}

// New creates an empty topic.
func New[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[*sub[T]]struct{})}
}

// Subscribe registers a subscriber with the given buffer. A lossy subscriber
// never blocks publishers: when its buffer is full the oldest value is dropped.
// The returned cancel func closes the channel and is safe to call twice.
func (t *Topic[T]) Subscribe(buffer int, lossy bool) (<-chan T, func()) {
	if lossy && buffer < 1 {
		buffer = 1
	}
	s := &sub[T]{ch: make(chan T, buffer), done: make(chan struct{}), lossy: lossy}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	t.subs[s] = struct{}{}
	t.mu.Unlock()

	return s.ch, func() { t.cancel(s) }
}

func (t *Topic[T]) cancel(s *sub[T]) {
	s.once.Do(func() {
		close(s.done)
		t.mu.Lock()
		delete(t.subs, s)
		t.mu.Unlock()
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

// Publish delivers v to all subscribers. Non-lossy subscribers are delivered
// in order and may block the publisher until they read or cancel.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	subs := make([]*sub[T], 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.send(v)
	}
}

func (s *sub[T]) send(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	if !s.lossy {
		select {
		case s.ch <- v:
		case <-s.done:
		}
		return
	}
	select {
	case s.ch <- v:
		return
	default:
	}
	// buffer full: drop the oldest value and retry once
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
}

// Len returns the number of active subscribers.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close cancels every subscriber. Later subscriptions receive a closed channel.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	subs := make([]*sub[T], 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		t.cancel(s)
	}
}
