// Package eventbus provides a typed push-notification bus.
//
// DESIGN: Subscribers are kept in subscription order and receive events
// synchronously on the publishing goroutine. A subscriber that panics is
// logged and skipped so one faulty extension cannot starve the others.
package eventbus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler is a callback for events of type T.
type Handler[T any] func(T)

type subscriber[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus delivers events of type T to its subscribers.
type Bus[T any] struct {
	name   string
	subs   []subscriber[T]
	nextID uint64
	mu     sync.RWMutex
}

// New creates a bus. The name only appears in log lines.
func New[T any](name string) *Bus[T] {
	return &Bus[T]{name: name}
}

// Subscribe registers a handler and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus[T]) Subscribe(handler Handler[T]) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber[T]{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish sends an event to every subscriber in subscription order.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	snapshot := make([]subscriber[T], len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.deliver(s, event)
	}
}

func (b *Bus[T]) deliver(s subscriber[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("bus", b.name).
				Uint64("subscriber", s.id).
				Interface("panic", r).
				Msg("subscriber_panic")
		}
	}()
	s.handler(event)
}

// Count returns the number of subscribers.
func (b *Bus[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
