// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scheduler implements the emCore task scheduler (system-overview
// component O), grounded on original_source/task/taskmaster.hpp: a
// cooperative priority scheduler for Run-driven tasks, plus a native-task
// trampoline for tasks that want their own goroutine and periodic loop.
package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

// State is a task's lifecycle stage.
type State uint8

const (
	StateIdle State = iota
	StateReady
	StateRunning
	StateSuspended
	StateCompleted
)

// Func is a task's body. For periodic native tasks the trampoline calls it
// once per period; for cooperative tasks Run calls it once per invocation.
type Func func(params any)

// Statistics accumulates per-task timing, mirroring task_statistics.
type Statistics struct {
	MinExecutionUS   uint32
	MaxExecutionUS   uint32
	AvgExecutionUS   uint32
	TotalExecutionUS uint32
	MissedDeadlines  uint32
}

// Config describes one task at creation time, mirroring task_config.
type Config struct {
	Name         string
	Fn           Func
	Params       any
	Priority     emtypes.Priority
	PeriodMS     uint32
	DeadlineMS   uint32
	CreateNative bool
	StackBytes   int
	PinToCore    bool
	CoreID       int
}

type tcb struct {
	id           emtypes.TaskID
	name         string
	fn           Func
	params       any
	priority     emtypes.Priority
	state        State
	createdTime  uint64
	lastRunTime  uint64
	nextRunTime  uint64
	periodMS     uint32
	deadlineMS   uint32
	executionUS  uint32
	runCount     uint32
	stats        Statistics
	isNative     bool
	nativeHandle platform.NativeTaskHandle
}

// FeedFunc lets the native trampoline feed a watchdog entry after each
// run (every periodic iteration, or the single run of a one-shot native
// task), decoupling scheduler from the watchdog package.
type FeedFunc func(emtypes.TaskID)

// Scheduler is the direct-index task table plus cooperative run loop.
type Scheduler struct {
	platform        platform.Platform
	feed            FeedFunc
	maxTasks        int
	tasks           []tcb
	nextID          emtypes.TaskID
	startTime       uint64
	contextSwitches uint32
	totalIdleUS     uint64
	ready           atomic.Bool
}

// New constructs a Scheduler bounded to maxTasks entries, driven by p for
// timestamps and native-task creation. feed, if non-nil, is invoked after
// every native-task run, periodic or one-shot (the watchdog feed call in
// the original's trampoline).
func New(p platform.Platform, feed FeedFunc, maxTasks int) *Scheduler {
	if feed == nil {
		feed = func(emtypes.TaskID) {}
	}
	return &Scheduler{platform: p, feed: feed, maxTasks: maxTasks}
}

// Initialize resets the task table and starts the uptime clock.
func (s *Scheduler) Initialize() emtypes.ErrorCode {
	s.tasks = s.tasks[:0]
	s.nextID = 0
	s.startTime = s.now()
	s.contextSwitches = 0
	s.totalIdleUS = 0
	return emtypes.Success
}

func (s *Scheduler) now() uint64 {
	if s.platform != nil {
		return s.platform.NowUS()
	}
	return 0
}

// CreateTask registers a cooperative task (driven by repeated Run calls).
func (s *Scheduler) CreateTask(cfg Config) (emtypes.TaskID, emtypes.ErrorCode) {
	if len(s.tasks) >= s.maxTasks {
		return emtypes.InvalidTaskID, emtypes.OutOfMemory
	}
	id := s.nextID
	s.nextID++
	now := s.now()
	s.tasks = append(s.tasks, tcb{
		id: id, name: cfg.Name, fn: cfg.Fn, params: cfg.Params,
		priority: cfg.Priority, state: StateReady,
		createdTime: now, nextRunTime: now,
		periodMS: cfg.PeriodMS, deadlineMS: cfg.DeadlineMS,
	})
	return id, emtypes.Success
}

// CreateNativeTask registers a task and immediately spawns it on its own
// goroutine via the platform, running the native trampoline: it waits for
// WaitUntilReady, then loops the user function at cfg.PeriodMS (or calls
// it once if PeriodMS is zero), feeding the watchdog and updating
// statistics after every iteration.
func (s *Scheduler) CreateNativeTask(cfg Config) (emtypes.TaskID, emtypes.ErrorCode) {
	if len(s.tasks) >= s.maxTasks {
		return emtypes.InvalidTaskID, emtypes.OutOfMemory
	}
	id := s.nextID
	s.nextID++
	now := s.now()
	s.tasks = append(s.tasks, tcb{
		id: id, name: cfg.Name, fn: cfg.Fn, params: cfg.Params,
		priority: cfg.Priority, state: StateReady,
		createdTime: now, nextRunTime: now,
		periodMS: cfg.PeriodMS, deadlineMS: cfg.DeadlineMS,
		isNative: true,
	})
	idx := len(s.tasks) - 1

	if s.platform == nil {
		return id, emtypes.Success
	}
	handle, err := s.platform.CreateNativeTask(platform.NativeTaskParams{
		Entry: func(ctx context.Context, userPtr any) {
			s.nativeTrampoline(ctx, id)
		},
		Name:       cfg.Name,
		StackBytes: cfg.StackBytes,
		Priority:   cfg.Priority,
		PinToCore:  cfg.PinToCore,
		CoreID:     cfg.CoreID,
	})
	if err != nil {
		s.tasks = s.tasks[:idx]
		return emtypes.InvalidTaskID, emtypes.InvalidParameter
	}
	s.tasks[idx].nativeHandle = handle
	return id, emtypes.Success
}

// nativeTrampoline enforces periodic scheduling and statistics for a
// native task, the Go analogue of taskmaster::native_task_trampoline.
func (s *Scheduler) nativeTrampoline(ctx context.Context, id emtypes.TaskID) {
	s.WaitUntilReady(ctx)

	t := s.findTask(id)
	if t == nil || t.fn == nil {
		return
	}
	fn, params, periodMS := t.fn, t.params, t.periodMS

	if periodMS == 0 {
		s.timeExecution(id, func() { fn(params) })
		s.feed(id)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.timeExecution(id, func() { fn(params) })
		s.feed(id)
		if s.platform != nil {
			s.platform.DelayMS(periodMS)
		}
	}
}

func (s *Scheduler) timeExecution(id emtypes.TaskID, run func()) {
	start := s.now()
	run()
	end := s.now()
	elapsed := uint32(end - start)

	t := s.findTask(id)
	if t == nil {
		return
	}
	t.executionUS = elapsed
	t.runCount++
	if t.stats.MinExecutionUS == 0 || elapsed < t.stats.MinExecutionUS {
		t.stats.MinExecutionUS = elapsed
	}
	if elapsed > t.stats.MaxExecutionUS {
		t.stats.MaxExecutionUS = elapsed
	}
	t.stats.TotalExecutionUS += elapsed
	t.stats.AvgExecutionUS = t.stats.TotalExecutionUS / t.runCount
	if t.deadlineMS > 0 && uint64(elapsed) > uint64(t.deadlineMS)*1000 {
		t.stats.MissedDeadlines++
	}
}

func (s *Scheduler) findTask(id emtypes.TaskID) *tcb {
	if int(id) >= len(s.tasks) {
		return nil
	}
	t := &s.tasks[id]
	if t.id != id {
		return nil
	}
	return t
}

// Run executes one scheduling tick: it selects the highest-priority ready
// cooperative task whose period has elapsed and runs it once, mirroring
// taskmaster::run's single-slot round.
func (s *Scheduler) Run() {
	now := s.now()
	var selected *tcb
	highest := emtypes.PriorityIdle

	for i := range s.tasks {
		t := &s.tasks[i]
		if t.isNative || t.state != StateReady {
			continue
		}
		if t.periodMS > 0 && now < t.nextRunTime {
			continue
		}
		if selected == nil || t.priority > highest {
			highest = t.priority
			selected = t
		}
	}

	if selected == nil || selected.fn == nil {
		s.totalIdleUS += 1000
		return
	}

	selected.state = StateRunning
	selected.lastRunTime = now
	start := s.now()
	selected.fn(selected.params)
	end := s.now()

	selected.executionUS = uint32(end - start)
	selected.runCount++
	s.contextSwitches++
	if selected.stats.MinExecutionUS == 0 || selected.executionUS < selected.stats.MinExecutionUS {
		selected.stats.MinExecutionUS = selected.executionUS
	}
	if selected.executionUS > selected.stats.MaxExecutionUS {
		selected.stats.MaxExecutionUS = selected.executionUS
	}
	selected.stats.TotalExecutionUS += selected.executionUS
	selected.stats.AvgExecutionUS = selected.stats.TotalExecutionUS / selected.runCount
	if selected.deadlineMS > 0 && uint64(selected.executionUS) > uint64(selected.deadlineMS)*1000 {
		selected.stats.MissedDeadlines++
	}

	if selected.periodMS > 0 {
		selected.nextRunTime = now + uint64(selected.periodMS)*1000
		selected.state = StateReady
	} else {
		selected.state = StateCompleted
	}
}

// SetPriority updates a task's scheduling priority.
func (s *Scheduler) SetPriority(id emtypes.TaskID, p emtypes.Priority) emtypes.ErrorCode {
	t := s.findTask(id)
	if t == nil {
		return emtypes.NotFound
	}
	t.priority = p
	return emtypes.Success
}

// Suspend marks a task suspended; it will not be selected by Run until
// Resume is called.
func (s *Scheduler) Suspend(id emtypes.TaskID) emtypes.ErrorCode {
	t := s.findTask(id)
	if t == nil {
		return emtypes.NotFound
	}
	t.state = StateSuspended
	return emtypes.Success
}

// Resume un-suspends a task, making it ready again.
func (s *Scheduler) Resume(id emtypes.TaskID) emtypes.ErrorCode {
	t := s.findTask(id)
	if t == nil {
		return emtypes.NotFound
	}
	if t.state != StateSuspended {
		return emtypes.InvalidParameter
	}
	t.state = StateReady
	return emtypes.Success
}

// TaskCount reports how many tasks are registered.
func (s *Scheduler) TaskCount() int { return len(s.tasks) }

// Stats returns a copy of id's accumulated execution statistics.
func (s *Scheduler) Stats(id emtypes.TaskID) (Statistics, emtypes.ErrorCode) {
	t := s.findTask(id)
	if t == nil {
		return Statistics{}, emtypes.NotFound
	}
	return t.stats, emtypes.Success
}

// ContextSwitches reports how many cooperative Run calls executed a task.
func (s *Scheduler) ContextSwitches() uint32 { return s.contextSwitches }

// Uptime reports elapsed microseconds since Initialize.
func (s *Scheduler) Uptime() uint64 { return s.now() - s.startTime }

// CPUUtilization reports busy time as a 0-100 percentage of uptime.
func (s *Scheduler) CPUUtilization() uint8 {
	uptime := s.Uptime()
	if uptime == 0 || s.totalIdleUS >= uptime {
		return 0
	}
	busy := uptime - s.totalIdleUS
	return uint8((busy * 100) / uptime)
}

// MarkReady signals native tasks blocked in WaitUntilReady to proceed.
func (s *Scheduler) MarkReady() { s.ready.Store(true) }

// WaitUntilReady blocks (polling, like the original's spin-wait) until
// MarkReady has been called.
func (s *Scheduler) WaitUntilReady(ctx context.Context) {
	for !s.ready.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if s.platform != nil {
			s.platform.DelayMS(10)
		}
	}
}
