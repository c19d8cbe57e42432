package events

import (
	"log"
	"sync"
	"time"
)

// Handler receives events from the bus.
type Handler func(Event)

type subscription struct {
	id    uint64
	fn    Handler
	once  bool
	fired bool
}

// Bus is a synchronous typed pub/sub dispatcher. Emit fans an event out to
// every handler subscribed to its type, in subscription order, and returns
// only after the last handler has run. A handler that panics is recovered
// and logged without disturbing its siblings.
//
// This is deliberately not a message broker: there is no queue, no
// backpressure and no delivery retry. The engine's ordering guarantees
// (handlers for one event finish before the next event is emitted) fall
// directly out of Emit being a plain synchronous call.
type Bus struct {
	mu       sync.Mutex
	handlers map[Type][]*subscription
	nextID   uint64
	lastTS   time.Time
	now      func() time.Time
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]*subscription),
		now:      time.Now,
	}
}

// Subscribe registers a handler for an event type and returns a function
// that removes it. Duplicate registrations are allowed and each fires.
func (b *Bus) Subscribe(t Type, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscription{id: b.nextID, fn: fn}
	b.handlers[t] = append(b.handlers[t], sub)
	id := sub.id
	return func() { b.remove(t, id) }
}

// Once registers a handler that is removed after its first invocation.
// The removal happens before the handler body runs, so an Emit issued
// reentrantly from inside the handler cannot fire it a second time.
func (b *Bus) Once(t Type, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscription{id: b.nextID, fn: fn, once: true}
	b.handlers[t] = append(b.handlers[t], sub)
	id := sub.id
	return func() { b.remove(t, id) }
}

func (b *Bus) remove(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[t]
	for i, s := range subs {
		if s.id == id {
			b.handlers[t] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[t]) == 0 {
		delete(b.handlers, t)
	}
}

// Emit delivers ev to every live handler for ev.Type in subscription order.
// If ev carries no timestamp the bus stamps it; timestamps are forced to be
// non-decreasing across emissions.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	if ev.Timestamp.Before(b.lastTS) {
		ev.Timestamp = b.lastTS
	}
	b.lastTS = ev.Timestamp

	subs := b.handlers[ev.Type]
	run := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s.once {
			if s.fired {
				continue
			}
			s.fired = true
		}
		run = append(run, s)
	}
	b.mu.Unlock()

	for _, s := range run {
		if s.once {
			b.remove(ev.Type, s.id)
		}
		b.invoke(s.fn, ev)
	}
}

func (b *Bus) invoke(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("BUS: handler for %s panicked: %v", ev.Type, r)
		}
	}()
	fn(ev)
}

// HandlerCount returns the number of live handlers for an event type.
func (b *Bus) HandlerCount(t Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[t])
}
