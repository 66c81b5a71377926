// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package codec

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/Thermoquad/emcore/pkg/packet"
)

type motorCommand struct {
	ID    uint8
	Speed uint16
	Pos   uint32
	Name  []byte
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var src motorCommand
	src.ID = 7
	src.Speed = 0x1234
	src.Pos = 0xDEADBEEF
	src.Name = []byte("m1")

	c := New(8)
	var layoutBase motorCommand
	layout := Layout{
		{Type: U8, Offset: unsafe.Offsetof(layoutBase.ID)},
		{Type: U16, Offset: unsafe.Offsetof(layoutBase.Speed)},
		{Type: U32, Offset: unsafe.Offsetof(layoutBase.Pos)},
		{Type: U8Array, Offset: unsafe.Offsetof(layoutBase.Name)},
	}
	if !c.SetFieldLayout(0x10, layout) {
		t.Fatalf("SetFieldLayout should succeed within capacity")
	}

	var out bytes.Buffer
	syncPattern := []byte{0x55, 0xAA}
	n, ok := c.EncodeCommand(0x10, unsafe.Pointer(&src), syncPattern, true, func(b byte) { out.WriteByte(b) })
	if !ok {
		t.Fatalf("EncodeCommand failed")
	}
	if n == 0 {
		t.Fatalf("expected non-zero payload length")
	}

	frame := out.Bytes()
	// Strip sync + opcode + length to hand the parser-equivalent payload
	// straight to the decoder via a synthetic packet.
	payloadLen := int(frame[len(syncPattern)+1])<<8 | int(frame[len(syncPattern)+2])
	payloadStart := len(syncPattern) + 3
	payload := frame[payloadStart : payloadStart+payloadLen]

	pkt := packet.Packet{Opcode: 0x10, Length: uint16(payloadLen), Data: payload}
	var dst motorCommand
	if !c.DecodeFields(pkt, unsafe.Pointer(&dst)) {
		t.Fatalf("DecodeFields failed")
	}

	if dst.ID != src.ID || dst.Speed != src.Speed || dst.Pos != src.Pos {
		t.Fatalf("decoded scalar fields mismatch: got %+v want id=%d speed=%d pos=%d", dst, src.ID, src.Speed, src.Pos)
	}
	if string(dst.Name) != string(src.Name) {
		t.Fatalf("decoded array field = %q, want %q", dst.Name, src.Name)
	}
}

func TestSetFieldLayoutRejectsOverCapacity(t *testing.T) {
	c := New(1)
	layout := Layout{{Type: U8, Offset: 0}, {Type: U8, Offset: 1}}
	if c.SetFieldLayout(1, layout) {
		t.Fatalf("layout exceeding maxFields should be rejected")
	}
}

func TestDecodeFieldsUnknownOpcodeFails(t *testing.T) {
	c := New(4)
	var dst motorCommand
	ok := c.DecodeFields(packet.Packet{Opcode: 0xFF}, unsafe.Pointer(&dst))
	if ok {
		t.Fatalf("decode with no registered layout should fail")
	}
}

func TestStreamEncoderMatchesWholeFrame(t *testing.T) {
	c := New(4)
	var base motorCommand
	layout := Layout{
		{Type: U8, Offset: unsafe.Offsetof(base.ID)},
		{Type: U16, Offset: unsafe.Offsetof(base.Speed)},
	}
	c.SetFieldLayout(0x20, layout)

	src := motorCommand{ID: 9, Speed: 0xBEEF}
	var whole bytes.Buffer
	sync := []byte{0x55, 0xAA}
	c.EncodeCommand(0x20, unsafe.Pointer(&src), sync, true, func(b byte) { whole.WriteByte(b) })

	payload := []byte{src.ID, byte(src.Speed >> 8), byte(src.Speed)}
	var se StreamEncoder
	c.StartEncode(&se, 0x20, payload, sync, true)
	var streamed []byte
	for {
		b, done := se.Step()
		streamed = append(streamed, b)
		if done {
			break
		}
	}
	if !bytes.Equal(streamed, whole.Bytes()) {
		t.Fatalf("stream encoder output %v, want %v", streamed, whole.Bytes())
	}
}
