// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package watchdog

import (
	"testing"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

// fakeClock lets tests advance time deterministically without sleeping.
type fakeClock struct {
	platform.Platform
	us uint64
}

func (f *fakeClock) NowUS() uint64 { return f.us }

func TestFeedKeepsTaskAlive(t *testing.T) {
	clk := &fakeClock{Platform: platform.Default()}
	w := New(clk, nil, 4)
	if code := w.RegisterTask(1, 1000, ActionLogWarning); code != emtypes.Success {
		t.Fatalf("register: %v", code)
	}
	clk.us = 500 * 1000 // 500ms elapsed, under the 1000ms timeout
	if !w.IsAlive(1) {
		t.Fatalf("expected task alive before timeout")
	}
	clk.us = 1500 * 1000
	if w.IsAlive(1) {
		t.Fatalf("expected task dead past timeout")
	}
	w.Feed(1)
	if !w.IsAlive(1) {
		t.Fatalf("expected task alive immediately after feed")
	}
}

func TestCheckAllInvokesRecoveryOnResetAction(t *testing.T) {
	clk := &fakeClock{Platform: platform.Default()}
	w := New(clk, nil, 4)
	w.RegisterTask(1, 100, ActionResetTask)

	recovered := false
	w.RegisterRecoveryAction(1, func(emtypes.TaskID) { recovered = true })

	clk.us = 200 * 1000
	w.CheckAll()
	if !recovered {
		t.Fatalf("expected recovery action invoked on timeout")
	}
	if w.TimeoutCount(1) != 1 {
		t.Fatalf("timeout count = %d, want 1", w.TimeoutCount(1))
	}
}

func TestDisabledTaskIsNeverAlive(t *testing.T) {
	clk := &fakeClock{Platform: platform.Default()}
	w := New(clk, nil, 4)
	w.RegisterTask(1, 1000, ActionLogWarning)
	w.EnableTask(1, false)
	if w.IsAlive(1) {
		t.Fatalf("expected disabled task to report not alive")
	}
}

func TestRegisterTaskRejectsOverCapacity(t *testing.T) {
	clk := &fakeClock{Platform: platform.Default()}
	w := New(clk, nil, 1)
	if code := w.RegisterTask(1, 1000, ActionNone); code != emtypes.Success {
		t.Fatalf("register 1: %v", code)
	}
	if code := w.RegisterTask(2, 1000, ActionNone); code != emtypes.OutOfMemory {
		t.Fatalf("expected OutOfMemory on second register, got %v", code)
	}
}
