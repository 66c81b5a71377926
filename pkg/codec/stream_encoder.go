// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package codec

import "github.com/Thermoquad/emcore/pkg/fletcher16"

// encodeState is the stateful streaming encoder's FSM state, grounded on
// original_source/protocol/encoder.hpp's encode_state enum.
type encodeState uint8

const (
	encSync encodeState = iota
	encOpcode
	encLengthHigh
	encLengthLow
	encPayload
	encChecksumHigh
	encChecksumLow
	encComplete
)

// StreamEncoder drives one byte of output per Step call, so a caller can
// push bytes into a UART/DMA FIFO without building the whole frame first.
type StreamEncoder struct {
	sync        []byte
	length16Bit bool

	state     encodeState
	syncIdx   int
	opcode    uint8
	payload   []byte
	payloadIx int
	acc       fletcher16.Accumulator
}

// StartEncode arms the encoder to stream opcode's frame for payload, which
// must already be the wire-order bytes for opcode's layout (typically
// produced by building a Layout-ordered []byte the same way EncodeCommand
// does internally).
func (c *Codec) StartEncode(s *StreamEncoder, opcode uint8, payload []byte, syncPattern []byte, length16Bit bool) {
	s.sync = syncPattern
	s.length16Bit = length16Bit
	s.state = encSync
	s.syncIdx = 0
	s.opcode = opcode
	s.payload = payload
	s.payloadIx = 0
	s.acc.Reset()
}

// Step emits the next output byte. done is true once the frame (including
// its checksum) has been fully emitted; Step must not be called again
// until StartEncode is called for a new frame.
func (s *StreamEncoder) Step() (b byte, done bool) {
	switch s.state {
	case encSync:
		b = s.sync[s.syncIdx]
		s.syncIdx++
		if s.syncIdx == len(s.sync) {
			s.state = encOpcode
		}
		return b, false
	case encOpcode:
		b = s.opcode
		s.acc.Add(b)
		if s.length16Bit {
			s.state = encLengthHigh
		} else {
			s.state = encLengthLow
		}
		return b, false
	case encLengthHigh:
		b = byte(len(s.payload) >> 8)
		s.acc.Add(b)
		s.state = encLengthLow
		return b, false
	case encLengthLow:
		b = byte(len(s.payload))
		s.acc.Add(b)
		if len(s.payload) == 0 {
			s.state = encChecksumHigh
		} else {
			s.state = encPayload
		}
		return b, false
	case encPayload:
		b = s.payload[s.payloadIx]
		s.acc.Add(b)
		s.payloadIx++
		if s.payloadIx >= len(s.payload) {
			s.state = encChecksumHigh
		}
		return b, false
	case encChecksumHigh:
		sum := s.acc.Value()
		b = byte(sum >> 8)
		s.state = encChecksumLow
		return b, false
	case encChecksumLow:
		sum := s.acc.Value()
		b = byte(sum)
		s.state = encComplete
		return b, true
	default:
		return 0, true
	}
}
