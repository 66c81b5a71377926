// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import "testing"

func TestBlockPoolAcquireReleaseCycle(t *testing.T) {
	p := NewBlockPool(16, 2)
	h1, ok := p.Acquire()
	if !ok {
		t.Fatalf("acquire 1 failed")
	}
	h2, ok := p.Acquire()
	if !ok {
		t.Fatalf("acquire 2 failed")
	}
	if _, ok := p.Acquire(); ok {
		t.Fatalf("expected pool exhaustion on third acquire")
	}
	if p.AllocatedCount() != 2 || p.FreeCount() != 0 {
		t.Fatalf("allocated=%d free=%d, want 2/0", p.AllocatedCount(), p.FreeCount())
	}

	h1.Release()
	if p.FreeCount() != 1 {
		t.Fatalf("free count after release = %d, want 1", p.FreeCount())
	}
	h2.Release()
	if p.FreeCount() != 2 {
		t.Fatalf("free count after second release = %d, want 2", p.FreeCount())
	}
}

func TestBlockHandleRetainDelaysRelease(t *testing.T) {
	p := NewBlockPool(8, 1)
	h, ok := p.Acquire()
	if !ok {
		t.Fatalf("acquire failed")
	}
	shared := h.Retain()

	h.Release()
	if p.FreeCount() != 0 {
		t.Fatalf("block freed while a retained handle is still live")
	}
	shared.Release()
	if p.FreeCount() != 1 {
		t.Fatalf("block not freed after last release")
	}
}

func TestMemoryManagerRoutesBySize(t *testing.T) {
	m := NewMemoryManager(32, 2, 128, 2, 512, 2)
	small, ok := m.Allocate(16)
	if !ok || len(small.Bytes()) != 32 {
		t.Fatalf("expected small-tier allocation")
	}
	medium, ok := m.Allocate(100)
	if !ok || len(medium.Bytes()) != 128 {
		t.Fatalf("expected medium-tier allocation")
	}
	if _, ok := m.Allocate(1000); ok {
		t.Fatalf("expected allocation over the largest tier to fail")
	}
	stats := m.Stats()
	if stats.SmallAllocated != 1 || stats.MediumAllocated != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
