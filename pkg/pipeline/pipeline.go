// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pipeline wires the byte ring, framing parser, and command
// dispatcher together (spec.md section 4.5, component H): pop bytes from
// the ring, feed the parser, and dispatch every completed packet, bounded
// by a packet or byte budget per call so one pipeline tick never starves
// the rest of the cooperative scheduler.
package pipeline

import (
	"github.com/Thermoquad/emcore/pkg/dispatcher"
	"github.com/Thermoquad/emcore/pkg/packet"
	"github.com/Thermoquad/emcore/pkg/ring"
)

// Pipeline is the Ring -> Parser -> Dispatcher wiring.
type Pipeline struct {
	Ring       *ring.Ring
	Parser     *packet.Parser
	Dispatcher *dispatcher.Dispatcher
}

// New builds a Pipeline over the given components.
func New(r *ring.Ring, p *packet.Parser, d *dispatcher.Dispatcher) *Pipeline {
	return &Pipeline{Ring: r, Parser: p, Dispatcher: d}
}

// ProcessAvailablePackets pops bytes from the ring and feeds the parser
// until maxPackets packets have been dispatched or the ring drains,
// whichever comes first. It returns the number of packets dispatched.
func (p *Pipeline) ProcessAvailablePackets(maxPackets int) int {
	dispatched := 0
	for dispatched < maxPackets {
		b, ok := p.Ring.Pop()
		if !ok {
			break
		}
		if p.Parser.Decode(b) {
			pkt, ok := p.Parser.GetPacket()
			if ok {
				p.Dispatcher.Dispatch(pkt)
				dispatched++
			}
		}
	}
	return dispatched
}

// ProcessAvailableBytes behaves like ProcessAvailablePackets but bounds
// the work by the number of ring bytes consumed instead of packets
// dispatched.
func (p *Pipeline) ProcessAvailableBytes(maxBytes int) int {
	consumed := 0
	for consumed < maxBytes {
		b, ok := p.Ring.Pop()
		if !ok {
			break
		}
		consumed++
		if p.Parser.Decode(b) {
			if pkt, ok := p.Parser.GetPacket(); ok {
				p.Dispatcher.Dispatch(pkt)
			}
		}
	}
	return consumed
}
