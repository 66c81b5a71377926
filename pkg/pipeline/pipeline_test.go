// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pipeline

import (
	"testing"

	"github.com/Thermoquad/emcore/pkg/dispatcher"
	"github.com/Thermoquad/emcore/pkg/fletcher16"
	"github.com/Thermoquad/emcore/pkg/packet"
	"github.com/Thermoquad/emcore/pkg/ring"
)

func buildFrame(opcode uint8, payload []byte) []byte {
	body := append([]byte{opcode, byte(len(payload) >> 8), byte(len(payload))}, payload...)
	ck := fletcher16.Checksum(body)
	frame := append([]byte{0x55, 0xAA}, body...)
	return append(frame, byte(ck>>8), byte(ck))
}

func TestPipelineDispatchesCompletedPackets(t *testing.T) {
	r := ring.New(64)
	p := packet.NewParser([]byte{0x55, 0xAA}, 32, true)
	d := dispatcher.New(4)

	var got []uint8
	d.RegisterHandler(1, func(pkt packet.Packet) { got = append(got, pkt.Opcode) })
	d.RegisterHandler(2, func(pkt packet.Packet) { got = append(got, pkt.Opcode) })

	frame1 := buildFrame(1, []byte{0xAA})
	frame2 := buildFrame(2, []byte{0xBB})
	r.PushBytes(frame1)
	r.PushBytes(frame2)

	pl := New(r, p, d)
	n := pl.ProcessAvailablePackets(10)
	if n != 2 {
		t.Fatalf("dispatched %d packets, want 2", n)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected dispatch order: %v", got)
	}
}

func TestPipelineStopsAtMaxPackets(t *testing.T) {
	r := ring.New(256)
	p := packet.NewParser([]byte{0x55, 0xAA}, 32, true)
	d := dispatcher.New(4)
	count := 0
	d.RegisterHandler(1, func(packet.Packet) { count++ })

	for i := 0; i < 5; i++ {
		r.PushBytes(buildFrame(1, []byte{byte(i)}))
	}

	pl := New(r, p, d)
	n := pl.ProcessAvailablePackets(2)
	if n != 2 || count != 2 {
		t.Fatalf("expected exactly 2 dispatched, got n=%d count=%d", n, count)
	}
}
