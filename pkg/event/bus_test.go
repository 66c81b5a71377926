// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package event

import "testing"

func TestDispatchMatchesCategoryAndCodeFilters(t *testing.T) {
	b := New(8, 8)
	var gotSpecific, gotWildcard, gotOther int
	b.RegisterHandler(CategorySensor, 42, func(Event) { gotSpecific++ })
	b.RegisterHandler(CategoryAny, CodeAny, func(Event) { gotWildcard++ })
	b.RegisterHandler(CategoryNetwork, CodeAny, func(Event) { gotOther++ })

	b.PostEvent(CategorySensor, 42, SeverityInfo, FlagNone)
	if n := b.Process(8); n != 1 {
		t.Fatalf("processed %d, want 1", n)
	}
	if gotSpecific != 1 || gotWildcard != 1 || gotOther != 0 {
		t.Fatalf("specific=%d wildcard=%d other=%d", gotSpecific, gotWildcard, gotOther)
	}
}

func TestUnregisterHandlerStopsDispatch(t *testing.T) {
	b := New(4, 4)
	calls := 0
	id, ok := b.RegisterHandler(CategoryAny, CodeAny, func(Event) { calls++ })
	if !ok {
		t.Fatalf("register failed")
	}
	if !b.UnregisterHandler(id) {
		t.Fatalf("unregister failed")
	}
	b.PostEvent(CategorySystem, 1, SeverityInfo, FlagNone)
	b.Process(8)
	if calls != 0 {
		t.Fatalf("handler still invoked after unregister")
	}
}

func TestPostRejectsOverCapacityQueue(t *testing.T) {
	b := New(4, 2)
	if !b.PostEvent(CategorySystem, 1, SeverityInfo, FlagNone) {
		t.Fatalf("first post rejected")
	}
	if !b.PostEvent(CategorySystem, 2, SeverityInfo, FlagNone) {
		t.Fatalf("second post rejected")
	}
	if b.PostEvent(CategorySystem, 3, SeverityInfo, FlagNone) {
		t.Fatalf("expected third post to be dropped at capacity")
	}
	if b.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", b.Pending())
	}
}

func TestRegisterHandlerRejectsOverCapacity(t *testing.T) {
	b := New(1, 4)
	if _, ok := b.RegisterHandler(CategoryAny, CodeAny, func(Event) {}); !ok {
		t.Fatalf("first register failed")
	}
	if _, ok := b.RegisterHandler(CategoryAny, CodeAny, func(Event) {}); ok {
		t.Fatalf("expected second register to fail at capacity")
	}
}
