// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import "testing"

func TestEventLogDisabledByDefaultDropsRecords(t *testing.T) {
	l := NewEventLog(4, 4, 2)
	l.RecordSmall(SmallMessage(), 1)
	if len(l.Small()) != 0 {
		t.Fatalf("expected no records while disabled")
	}
}

func TestEventLogOverwritesOldestWhenFull(t *testing.T) {
	l := NewEventLog(2, 4, 2)
	l.SetEnabled(true)
	for i := 0; i < 3; i++ {
		msg := SmallMessage()
		msg.Payload = append(msg.Payload, byte('a'+i))
		l.RecordSmall(msg, uint64(i))
	}
	entries := l.Small()
	if len(entries) != 2 {
		t.Fatalf("expected ring capped at 2 entries, got %d", len(entries))
	}
	if entries[0].Envelope.Payload[0] != 'b' || entries[1].Envelope.Payload[0] != 'c' {
		t.Fatalf("expected oldest entry dropped, got %q then %q",
			entries[0].Envelope.Payload, entries[1].Envelope.Payload)
	}
}
