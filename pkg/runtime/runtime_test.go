// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"testing"

	"github.com/Thermoquad/emcore/pkg/config"
	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
	"github.com/Thermoquad/emcore/pkg/scheduler"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxTasks = 0
	if _, err := New(cfg, nil, nil); err == nil {
		t.Fatalf("expected error for MaxTasks=0")
	}
}

func TestNewRejectsOverBudgetConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BudgetBytes = 1
	if _, err := New(cfg, nil, nil); err == nil {
		t.Fatalf("expected arena budget error")
	}
}

func TestNewWiresEveryEnabledSubsystem(t *testing.T) {
	cfg := config.Default()
	rt, err := New(cfg, platform.Default(), NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.Broker == nil || rt.EventBus == nil || rt.Scheduler == nil || rt.Watchdog == nil || rt.Errors == nil {
		t.Fatalf("expected every enabled subsystem constructed, got %+v", rt)
	}
	if rt.ZeroCopy == nil {
		t.Fatalf("expected zero-copy block pool constructed when EnableZeroCopy is true")
	}
	if rt.Pools == nil {
		t.Fatalf("expected three-tier pool manager constructed when EnablePoolsRegion is true")
	}
}

func TestNewSkipsDisabledSubsystems(t *testing.T) {
	cfg := config.Default()
	cfg.EnableMessaging = false
	cfg.EnableEvents = false
	cfg.EnableZeroCopy = false
	rt, err := New(cfg, platform.Default(), NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.Broker != nil || rt.EventBus != nil || rt.ZeroCopy != nil {
		t.Fatalf("expected disabled subsystems left nil, got %+v", rt)
	}
}

func TestFeedWatchdogReportsUnknownTaskAsNotFoundWithoutError(t *testing.T) {
	cfg := config.Default()
	rt, err := New(cfg, platform.Default(), NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt.feedWatchdog(emtypes.TaskID(99))
	if rt.Errors.ErrorCount() != 0 {
		t.Fatalf("expected NotFound to be silently ignored, got error count %d", rt.Errors.ErrorCount())
	}
}

func TestTickDrivesSchedulerWatchdogAndEventBus(t *testing.T) {
	cfg := config.Default()
	rt, err := New(cfg, platform.Default(), NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ran := false
	id, code := rt.Scheduler.CreateTask(scheduler.Config{Name: "t", Fn: func(any) { ran = true }, Priority: emtypes.PriorityNormal})
	if code != emtypes.Success {
		t.Fatalf("create task: %v", code)
	}
	rt.Watchdog.RegisterTask(id, 1000, 0)
	rt.Tick()
	if !ran {
		t.Fatalf("expected Tick to run the ready task")
	}
}
