// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package codec implements the layout-driven big-endian field encoder and
// decoder of spec.md section 4.5, component G, grounded on
// original_source/protocol/decoder.hpp and protocol/encoder.hpp. Each
// opcode owns a compile-time-bounded list of {field type, target struct
// offset} entries; the decoder walks the wire payload once, writing each
// field into the caller's struct at its declared offset, and the encoder
// walks the same layout in the same order, reading the struct and
// streaming fletcher16-checked bytes onto the wire one at a time so
// callers can drive DMA-style outputs.
//
// Offsets are real struct field offsets (unsafe.Offsetof), the direct Go
// analogue of the original's offsetof() — there is no reflection, and the
// decoder does not allocate; EncodeCommand builds its payload in a
// freshly allocated slice.
package codec

import (
	"unsafe"

	"github.com/Thermoquad/emcore/pkg/fletcher16"
	"github.com/Thermoquad/emcore/pkg/packet"
)

// FieldType names the wire representation of one struct field.
type FieldType uint8

const (
	U8 FieldType = iota
	U16
	U32
	U8Array
)

// FieldDef places one wire field at a target struct's byte offset. Build
// Offset with unsafe.Offsetof(s.Field) against the same struct type passed
// to DecodeFields/EncodeFields.
type FieldDef struct {
	Type   FieldType
	Offset uintptr
	Name   string
}

// Layout is the ordered field list for one opcode; wire bytes are consumed
// in this order regardless of target offset order.
type Layout []FieldDef

// Codec holds one Layout per opcode.
type Codec struct {
	layouts   map[uint8]Layout
	maxFields int
}

// New creates a Codec allowing up to maxFieldsPerOpcode fields in any one
// layout, mirroring the original's MaxFields template parameter.
func New(maxFieldsPerOpcode int) *Codec {
	return &Codec{layouts: make(map[uint8]Layout), maxFields: maxFieldsPerOpcode}
}

// SetFieldLayout installs fields as opcode's wire layout.
func (c *Codec) SetFieldLayout(opcode uint8, fields Layout) bool {
	if len(fields) > c.maxFields {
		return false
	}
	cp := make(Layout, len(fields))
	copy(cp, fields)
	c.layouts[opcode] = cp
	return true
}

// DecodeFields maps pkt's payload into target (a pointer to a struct)
// according to pkt.Opcode's layout. It fails if no layout is registered
// for the opcode or if the payload is too short for the declared fields.
func (c *Codec) DecodeFields(pkt packet.Packet, target unsafe.Pointer) bool {
	layout, ok := c.layouts[pkt.Opcode]
	if !ok || len(layout) == 0 {
		return false
	}
	offset := 0
	for _, field := range layout {
		if !decodeSingleField(pkt.Data, &offset, field, target) {
			return false
		}
	}
	return true
}

func decodeSingleField(data []byte, offset *int, field FieldDef, target unsafe.Pointer) bool {
	fieldPtr := unsafe.Add(target, field.Offset)
	switch field.Type {
	case U8:
		if *offset >= len(data) {
			return false
		}
		*(*uint8)(fieldPtr) = data[*offset]
		*offset++
	case U16:
		if *offset+1 >= len(data) {
			return false
		}
		*(*uint16)(fieldPtr) = uint16(data[*offset])<<8 | uint16(data[*offset+1])
		*offset += 2
	case U32:
		if *offset+3 >= len(data) {
			return false
		}
		*(*uint32)(fieldPtr) = uint32(data[*offset])<<24 |
			uint32(data[*offset+1])<<16 |
			uint32(data[*offset+2])<<8 |
			uint32(data[*offset+3])
		*offset += 4
	case U8Array:
		if *offset >= len(data) {
			return false
		}
		*(*[]byte)(fieldPtr) = data[*offset:]
		*offset = len(data)
	}
	return true
}

// EncodeCommand builds a complete frame for opcode from source (a pointer
// to the struct backing opcode's layout), writing each byte via out, and
// returns the number of payload bytes written. syncPattern and
// length16Bit mirror the Parser's configuration and must match it.
func (c *Codec) EncodeCommand(opcode uint8, source unsafe.Pointer, syncPattern []byte, length16Bit bool, out func(byte)) (int, bool) {
	layout, ok := c.layouts[opcode]
	if !ok {
		return 0, false
	}

	payload := make([]byte, 0, 32)
	for _, field := range layout {
		fieldPtr := unsafe.Add(source, field.Offset)
		switch field.Type {
		case U8:
			payload = append(payload, *(*uint8)(fieldPtr))
		case U16:
			v := *(*uint16)(fieldPtr)
			payload = append(payload, byte(v>>8), byte(v))
		case U32:
			v := *(*uint32)(fieldPtr)
			payload = append(payload, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
		case U8Array:
			payload = append(payload, *(*[]byte)(fieldPtr)...)
		}
	}

	var acc fletcher16.Accumulator
	for _, b := range syncPattern {
		out(b)
	}
	out(opcode)
	acc.Add(opcode)
	if length16Bit {
		out(byte(len(payload) >> 8))
		out(byte(len(payload)))
		acc.Add(byte(len(payload) >> 8))
		acc.Add(byte(len(payload)))
	} else {
		out(byte(len(payload)))
		acc.Add(byte(len(payload)))
	}
	for _, b := range payload {
		out(b)
		acc.Add(b)
	}
	sum := acc.Value()
	out(byte(sum >> 8))
	out(byte(sum))

	return len(payload), true
}
