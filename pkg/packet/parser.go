// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package packet

import "github.com/Thermoquad/emcore/pkg/fletcher16"

// ParserError is the parser's last-error field (spec.md section 7); the
// parser never returns an error value directly, matching "the pipeline
// never throws, never allocates, never blocks."
type ParserError uint8

const (
	ErrNone ParserError = iota
	ErrBoundary
	ErrLengthOverflow
	ErrChecksumMismatch
)

func (e ParserError) String() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrBoundary:
		return "boundary_error"
	case ErrLengthOverflow:
		return "length_overflow"
	case ErrChecksumMismatch:
		return "checksum_mismatch"
	default:
		return "unknown"
	}
}

// rxState is the framing state machine's state (spec.md section 4.5).
type rxState uint8

const (
	stateSync rxState = iota
	stateOpcode
	stateLength
	stateData
	stateChecksum
	stateEnd // sentinel; state >= stateEnd is a boundary error
)

// Parser is a table-driven framing state machine: feed it bytes one at a
// time via Decode; when it returns true a validated Packet is available
// via GetPacket.
type Parser struct {
	sync        []byte
	length16Bit bool
	maxPayload  int

	state     rxState
	syncIndex int

	opcode       uint8
	length       uint16
	lenBytesRead int
	data         []byte
	dataIndex    int
	checksumRX   uint16
	chkBytesRead int

	acc         fletcher16.Accumulator
	err         ParserError
	packetReady bool
}

// NewParser builds a Parser for the given sync pattern, payload bound, and
// length-field width.
func NewParser(syncPattern []byte, maxPayload int, length16Bit bool) *Parser {
	p := &Parser{
		sync:        append([]byte(nil), syncPattern...),
		length16Bit: length16Bit,
		maxPayload:  maxPayload,
		data:        make([]byte, maxPayload),
	}
	p.Reset()
	return p
}

// Reset returns the parser to its initial SYNC-hunting state.
func (p *Parser) Reset() {
	p.state = stateSync
	p.syncIndex = 0
	p.length = 0
	p.dataIndex = 0
	p.checksumRX = 0
	p.acc.Reset()
	p.err = ErrNone
	p.packetReady = false
}

// LastError returns the error, if any, that caused the most recent reset.
func (p *Parser) LastError() ParserError { return p.err }

// HasPacket reports whether a validated packet is waiting in GetPacket.
func (p *Parser) HasPacket() bool { return p.packetReady }

// GetPacket copies out the ready packet and clears the ready flag. The
// returned Packet's Data aliases the parser's scratch buffer and is only
// valid until the next Decode call; call Packet.Clone to keep it longer.
func (p *Parser) GetPacket() (Packet, bool) {
	if !p.packetReady {
		return Packet{}, false
	}
	p.packetReady = false
	return Packet{
		Opcode:     p.opcode,
		Length:     p.length,
		Data:       p.data[:p.length],
		ChecksumRX: p.checksumRX,
	}, true
}

// Decode feeds one byte through the state machine. It returns true exactly
// when that byte completed a validated packet.
func (p *Parser) Decode(b byte) bool {
	if p.state >= stateEnd {
		p.Reset()
		p.err = ErrBoundary
		return false
	}
	switch p.state {
	case stateSync:
		return p.onSync(b)
	case stateOpcode:
		return p.onOpcode(b)
	case stateLength:
		return p.onLength(b)
	case stateData:
		return p.onData(b)
	case stateChecksum:
		return p.onChecksum(b)
	default:
		p.Reset()
		p.err = ErrBoundary
		return false
	}
}

func (p *Parser) onSync(b byte) bool {
	if b == p.sync[p.syncIndex] {
		p.syncIndex++
		if p.syncIndex == len(p.sync) {
			p.state = stateOpcode
			p.acc.Reset()
			p.syncIndex = 0
		}
	} else if b == p.sync[0] {
		p.syncIndex = 1
	} else {
		p.syncIndex = 0
	}
	return false
}

func (p *Parser) onOpcode(b byte) bool {
	p.opcode = b
	p.acc.Add(b)
	p.state = stateLength
	p.lenBytesRead = 0
	p.length = 0
	return false
}

func (p *Parser) onLength(b byte) bool {
	if p.length16Bit {
		if p.lenBytesRead == 0 {
			p.length = uint16(b) << 8
			p.acc.Add(b)
			p.lenBytesRead = 1
			return false
		}
		p.length |= uint16(b)
		p.acc.Add(b)
	} else {
		p.length = uint16(b)
		p.acc.Add(b)
	}
	if int(p.length) > p.maxPayload {
		p.Reset()
		p.err = ErrLengthOverflow
		return false
	}
	if p.length == 0 {
		p.state = stateChecksum
		p.chkBytesRead = 0
	} else {
		p.state = stateData
		p.dataIndex = 0
	}
	return false
}

func (p *Parser) onData(b byte) bool {
	p.data[p.dataIndex] = b
	p.acc.Add(b)
	p.dataIndex++
	if p.dataIndex >= int(p.length) {
		p.state = stateChecksum
		p.chkBytesRead = 0
	}
	return false
}

func (p *Parser) onChecksum(b byte) bool {
	if p.chkBytesRead == 0 {
		p.checksumRX = uint16(b) << 8
		p.chkBytesRead = 1
		return false
	}
	p.checksumRX |= uint16(b)
	calc := p.acc.Value()
	if calc == p.checksumRX {
		p.packetReady = true
		p.state = stateSync
		p.acc.Reset()
		p.dataIndex = 0
		p.err = ErrNone
		return true
	}
	p.Reset()
	p.err = ErrChecksumMismatch
	return false
}
