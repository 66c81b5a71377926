// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package packet implements the emCore wire packet and its framing state
// machine (spec.md section 4.5, components E and D). The wire format is
// SYNC[N] | opcode | length(1 or 2 bytes BE) | payload | fletcher16(BE),
// grounded directly on original_source/protocol/packet_parser.hpp —
// intentionally not the teacher's byte-stuffed START/END/ESC framing,
// which this spec's partial-overlap sync matching replaces.
package packet

// Packet is a parsed, checksum-validated frame.
type Packet struct {
	Opcode     uint8
	Length     uint16
	Data       []byte // len(Data) == Length, a view into the parser's scratch buffer unless the Packet was cloned
	ChecksumRX uint16
}

// Clone returns a Packet whose Data is an independent copy, safe to hold
// onto after the next Decode call reuses the parser's scratch buffer.
func (p Packet) Clone() Packet {
	out := p
	out.Data = append([]byte(nil), p.Data...)
	return out
}
