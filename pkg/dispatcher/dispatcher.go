// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dispatcher implements the opcode-to-handler table described in
// spec.md section 4.5, grounded on
// original_source/protocol/command_dispatcher.hpp: a fixed-capacity table,
// replace-on-register semantics, and swap-compact deregistration.
package dispatcher

import "github.com/Thermoquad/emcore/pkg/packet"

// Handler processes one dispatched packet.
type Handler func(pkt packet.Packet)

// RegisterResult reports what try_register_handler did.
type RegisterResult uint8

const (
	RegisteredNew RegisterResult = iota
	RegisteredReplaced
	RegisterFull
)

type entry struct {
	opcode  uint8
	handler Handler
}

// Dispatcher is a fixed-capacity opcode->handler table.
type Dispatcher struct {
	entries []entry
	cap     int
	unknown Handler
}

// New creates a Dispatcher with room for capacity distinct opcodes.
func New(capacity int) *Dispatcher {
	return &Dispatcher{entries: make([]entry, 0, capacity), cap: capacity}
}

// TryRegisterHandler installs h for opcode, replacing any existing handler
// for that opcode. It reports RegisterFull if the table has no room for a
// new opcode.
func (d *Dispatcher) TryRegisterHandler(opcode uint8, h Handler) RegisterResult {
	for i := range d.entries {
		if d.entries[i].opcode == opcode {
			d.entries[i].handler = h
			return RegisteredReplaced
		}
	}
	if len(d.entries) >= d.cap {
		return RegisterFull
	}
	d.entries = append(d.entries, entry{opcode: opcode, handler: h})
	return RegisteredNew
}

// RegisterHandler is the boolean-returning convenience wrapper over
// TryRegisterHandler.
func (d *Dispatcher) RegisterHandler(opcode uint8, h Handler) bool {
	return d.TryRegisterHandler(opcode, h) != RegisterFull
}

// DeregisterHandler removes opcode's handler, compacting by swapping the
// last live entry into the removed slot.
func (d *Dispatcher) DeregisterHandler(opcode uint8) bool {
	for i := range d.entries {
		if d.entries[i].opcode == opcode {
			last := len(d.entries) - 1
			d.entries[i] = d.entries[last]
			d.entries = d.entries[:last]
			return true
		}
	}
	return false
}

// HasHandler reports whether opcode currently has a registered handler.
func (d *Dispatcher) HasHandler(opcode uint8) bool {
	_, ok := d.GetHandler(opcode)
	return ok
}

// GetHandler returns opcode's handler, if any.
func (d *Dispatcher) GetHandler(opcode uint8) (Handler, bool) {
	for _, e := range d.entries {
		if e.opcode == opcode {
			return e.handler, true
		}
	}
	return nil, false
}

// SetUnknownHandler installs the fallback invoked when Dispatch finds no
// matching opcode.
func (d *Dispatcher) SetUnknownHandler(h Handler) { d.unknown = h }

// Clear removes every registered handler.
func (d *Dispatcher) Clear() { d.entries = d.entries[:0] }

// Size returns the number of registered opcodes.
func (d *Dispatcher) Size() int { return len(d.entries) }

// Dispatch finds pkt.Opcode's handler by linear scan and invokes it,
// falling back to the unknown handler (if set) on a miss.
func (d *Dispatcher) Dispatch(pkt packet.Packet) {
	if h, ok := d.GetHandler(pkt.Opcode); ok {
		h(pkt)
		return
	}
	if d.unknown != nil {
		d.unknown(pkt)
	}
}
