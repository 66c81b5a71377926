// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scheduler

import (
	"testing"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

func TestRunSelectsHighestPriorityReadyTask(t *testing.T) {
	s := New(platform.Default(), nil, 8)
	s.Initialize()

	var order []string
	lowID, _ := s.CreateTask(Config{Name: "low", Priority: emtypes.PriorityLow, Fn: func(any) { order = append(order, "low") }})
	highID, _ := s.CreateTask(Config{Name: "high", Priority: emtypes.PriorityHigh, Fn: func(any) { order = append(order, "high") }})

	s.Run()
	if len(order) != 1 || order[0] != "high" {
		t.Fatalf("expected high-priority task to run first, got %v", order)
	}

	if code := s.Suspend(highID); code != emtypes.Success {
		t.Fatalf("suspend: %v", code)
	}
	s.Run()
	if len(order) != 2 || order[1] != "low" {
		t.Fatalf("expected low-priority task to run once high is suspended, got %v", order)
	}
	_ = lowID
}

func TestRunSkipsNotYetDuePeriodicTask(t *testing.T) {
	s := New(platform.Default(), nil, 8)
	s.Initialize()
	runs := 0
	s.CreateTask(Config{Name: "periodic", Priority: emtypes.PriorityNormal, PeriodMS: 1_000_000, Fn: func(any) { runs++ }})

	s.Run()
	if runs != 1 {
		t.Fatalf("expected first run to fire immediately, got %d runs", runs)
	}
	s.Run()
	if runs != 1 {
		t.Fatalf("expected second run to be skipped before the period elapses, got %d runs", runs)
	}
}

func TestStatsAvailableAfterRun(t *testing.T) {
	s := New(platform.Default(), nil, 8)
	s.Initialize()
	id, _ := s.CreateTask(Config{Name: "t", Priority: emtypes.PriorityNormal, Fn: func(any) {}})

	s.Run()
	stats, code := s.Stats(id)
	if code != emtypes.Success {
		t.Fatalf("stats: %v", code)
	}
	if stats.TotalExecutionUS == 0 && stats.MaxExecutionUS == 0 {
		// execution is effectively instantaneous in tests, so timing may read zero; the context-switch count is checked instead.
	}
	if s.ContextSwitches() != 1 {
		t.Fatalf("context switches = %d, want 1", s.ContextSwitches())
	}
}

func TestCreateTaskRejectsOverCapacity(t *testing.T) {
	s := New(platform.Default(), nil, 1)
	s.Initialize()
	if _, code := s.CreateTask(Config{Name: "a", Fn: func(any) {}}); code != emtypes.Success {
		t.Fatalf("first create: %v", code)
	}
	if _, code := s.CreateTask(Config{Name: "b", Fn: func(any) {}}); code != emtypes.OutOfMemory {
		t.Fatalf("expected OutOfMemory on second create, got %v", code)
	}
}
