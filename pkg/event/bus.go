// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package event

import "sync"

// HandlerID identifies a registered handler for later unregistration.
type HandlerID uint32

// Handler receives dispatched events.
type Handler func(Event)

type handlerRegistration struct {
	id       HandlerID
	category Category
	code     Code
	fn       Handler
	active   bool
}

// Bus is the bounded event queue plus handler registry of spec.md's event
// bus component: post() enqueues, process() drains and dispatches by
// linear-scanning registered handlers whose category/code filter matches.
type Bus struct {
	mu          sync.Mutex
	handlers    []handlerRegistration
	maxHandlers int
	nextID      HandlerID

	queue    []Event
	queueCap int
}

// New constructs a Bus bounded to maxHandlers registrations and queueCap
// buffered events (spec.md default config: MaxEventHandlers=16,
// EventQueueSize=64).
func New(maxHandlers, queueCap int) *Bus {
	return &Bus{
		maxHandlers: maxHandlers,
		queue:       make([]Event, 0, queueCap),
		queueCap:    queueCap,
	}
}

// RegisterHandler adds fn as a listener for events matching category and
// code (use CategoryAny / CodeAny as wildcards). It returns false if the
// handler table is full.
func (b *Bus) RegisterHandler(category Category, code Code, fn Handler) (HandlerID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handlers) >= b.maxHandlers {
		return 0, false
	}
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, handlerRegistration{id: id, category: category, code: code, fn: fn, active: true})
	return id, true
}

// UnregisterHandler soft-deletes the handler with the given id, matching
// the original's active=false tombstone rather than compacting the slice.
func (b *Bus) UnregisterHandler(id HandlerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.handlers {
		if b.handlers[i].id == id && b.handlers[i].active {
			b.handlers[i].active = false
			return true
		}
	}
	return false
}

// Post enqueues evt for later dispatch by Process. It reports false if the
// queue is already at capacity (the event is dropped).
func (b *Bus) Post(evt Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= b.queueCap {
		return false
	}
	b.queue = append(b.queue, evt)
	return true
}

// PostEvent is the convenience builder matching post(cat, code, severity, flags).
func (b *Bus) PostEvent(cat Category, code Code, sev Severity, flags Flags) bool {
	return b.Post(Make(cat, code, sev, flags))
}

// Process drains up to maxEvents queued events, dispatching each to every
// matching active handler, and returns how many were processed.
func (b *Bus) Process(maxEvents int) int {
	b.mu.Lock()
	n := len(b.queue)
	if n > maxEvents {
		n = maxEvents
	}
	batch := make([]Event, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]
	b.mu.Unlock()

	for _, evt := range batch {
		b.dispatch(evt)
	}
	return n
}

func (b *Bus) dispatch(evt Event) {
	b.mu.Lock()
	matches := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		if !h.active {
			continue
		}
		if (h.category == CategoryAny || h.category == evt.ID.Category) &&
			(h.code == CodeAny || h.code == evt.ID.Code) {
			matches = append(matches, h.fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range matches {
		fn(evt)
	}
}

// Pending reports how many events are queued but not yet processed.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// ActiveHandlers reports how many handler registrations are still active.
func (b *Bus) ActiveHandlers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, h := range b.handlers {
		if h.active {
			n++
		}
	}
	return n
}
