package store

import "sync"

// EventEmitter receives change notifications.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter is a no-op implementation of EventEmitter.
type NoopEmitter struct{}

// Emit implements EventEmitter.Emit as a no-op.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates a new no-op emitter.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// LinkChanged is emitted whenever link pointers, order records, or the
// records they join are written by the sync core.
type LinkChanged struct {
	PairKey    string
	PrimaryID  string
	CategoryID string
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(event any)

// Emit calls f(event).
func (f EmitterFunc) Emit(event any) { f(event) }

// MultiEmitter fans an event out to several emitters.
type MultiEmitter []EventEmitter

// Emit forwards event to every emitter.
func (m MultiEmitter) Emit(event any) {
	for _, e := range m {
		e.Emit(event)
	}
}

// Bus fans events out to subscribers that may register after the bus has
// been handed to producers.
type Bus struct {
	mu   sync.RWMutex
	subs []EventEmitter
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe adds e to the bus.
func (b *Bus) Subscribe(e EventEmitter) {
	b.mu.Lock()
	b.subs = append(b.subs, e)
	b.mu.Unlock()
}

// Emit forwards event to every subscriber.
func (b *Bus) Emit(event any) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, s := range subs {
		s.Emit(event)
	}
}
