// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ring

import "testing"

func TestPushPopOrder(t *testing.T) {
	r := New(4)
	for _, b := range []byte{1, 2, 3} {
		if !r.Push(b) {
			t.Fatalf("push %d failed unexpectedly", b)
		}
	}
	for _, want := range []byte{1, 2, 3} {
		got, ok := r.Pop()
		if !ok || got != want {
			t.Fatalf("pop = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if !r.Empty() {
		t.Fatalf("ring should be empty after draining")
	}
}

func TestPushReturnsFalseWhenFull(t *testing.T) {
	r := New(2)
	if !r.Push(1) || !r.Push(2) {
		t.Fatalf("expected first two pushes to succeed")
	}
	if r.Push(3) {
		t.Fatalf("push into full ring should return false")
	}
}

func TestPushBytesPartialAcceptance(t *testing.T) {
	r := New(2)
	n := r.PushBytes([]byte{1, 2, 3, 4})
	if n != 2 {
		t.Fatalf("PushBytes accepted %d bytes, want 2", n)
	}
	if !r.Full() {
		t.Fatalf("ring should report full")
	}
}

func TestResetDropsBufferedBytes(t *testing.T) {
	r := New(4)
	r.Push(9)
	r.Reset()
	if !r.Empty() {
		t.Fatalf("ring should be empty after Reset")
	}
}

func TestWraparound(t *testing.T) {
	r := New(2)
	for i := 0; i < 100; i++ {
		if !r.Push(byte(i)) {
			t.Fatalf("push %d failed", i)
		}
		got, ok := r.Pop()
		if !ok || got != byte(i) {
			t.Fatalf("pop = (%d, %v), want (%d, true)", got, ok, byte(i))
		}
	}
}
