// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package watchdog implements the emCore task watchdog (system-overview
// component N), grounded on original_source/task/watchdog.hpp: per-task
// feed timestamps checked against a configurable timeout, with a
// configurable action taken on expiry.
package watchdog

import (
	"sync"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

// Action selects what happens when a task's watchdog entry expires.
type Action uint8

const (
	ActionNone Action = iota
	ActionLogWarning
	ActionResetTask
	ActionSystemReset
)

// DefaultTimeoutMS is the per-task timeout applied when none is given
// explicitly (watchdog_entry's default in the original header).
const DefaultTimeoutMS uint32 = 5000

type entry struct {
	taskID         emtypes.TaskID
	lastFeedUS     uint64
	timeoutMS      uint32
	action         Action
	recoveryAction func(emtypes.TaskID)
	timeoutCount   uint32
	enabled        bool
}

// Logf is the structured log hook invoked on watchdog warnings, matching
// the original's platform::logf call.
type Logf func(format string, args ...any)

// Watchdog tracks per-task liveness and an optional system-wide liveness
// timer, dispatching Action on expiry.
type Watchdog struct {
	platform platform.Platform
	logf     Logf
	maxTasks int

	mu      sync.Mutex
	entries []entry

	systemEnabled   bool
	systemTimeoutMS uint32
	lastSystemFeed  uint64
}

// New constructs a Watchdog bounded to maxTasks entries, driven by p for
// timestamps and resets, logging warnings via logf.
func New(p platform.Platform, logf Logf, maxTasks int) *Watchdog {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Watchdog{platform: p, logf: logf, maxTasks: maxTasks, systemTimeoutMS: DefaultTimeoutMS}
}

func (w *Watchdog) now() uint64 {
	if w.platform != nil {
		return w.platform.NowUS()
	}
	return 0
}

func (w *Watchdog) findEntryUnlocked(taskID emtypes.TaskID) *entry {
	for i := range w.entries {
		if w.entries[i].taskID == taskID && w.entries[i].enabled {
			return &w.entries[i]
		}
	}
	return nil
}

// RegisterTask adds a watchdog entry for taskID with the given timeout and
// action. It returns OutOfMemory if the entry table is full.
func (w *Watchdog) RegisterTask(taskID emtypes.TaskID, timeoutMS uint32, action Action) emtypes.ErrorCode {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e := w.findEntryUnlocked(taskID); e != nil {
		e.timeoutMS = timeoutMS
		e.action = action
		e.lastFeedUS = w.now()
		return emtypes.Success
	}
	if len(w.entries) >= w.maxTasks {
		return emtypes.OutOfMemory
	}
	w.entries = append(w.entries, entry{
		taskID:     taskID,
		lastFeedUS: w.now(),
		timeoutMS:  timeoutMS,
		action:     action,
		enabled:    true,
	})
	return emtypes.Success
}

// Feed resets taskID's last-seen timestamp to now.
func (w *Watchdog) Feed(taskID emtypes.TaskID) emtypes.ErrorCode {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.findEntryUnlocked(taskID)
	if e == nil {
		return emtypes.NotFound
	}
	e.lastFeedUS = w.now()
	return emtypes.Success
}

// SetTimeout updates taskID's timeout.
func (w *Watchdog) SetTimeout(taskID emtypes.TaskID, timeoutMS uint32) emtypes.ErrorCode {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.findEntryUnlocked(taskID)
	if e == nil {
		return emtypes.NotFound
	}
	e.timeoutMS = timeoutMS
	return emtypes.Success
}

// SetAction updates taskID's expiry action.
func (w *Watchdog) SetAction(taskID emtypes.TaskID, action Action) emtypes.ErrorCode {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.findEntryUnlocked(taskID)
	if e == nil {
		return emtypes.NotFound
	}
	e.action = action
	return emtypes.Success
}

// RegisterRecoveryAction installs the callback invoked when a
// ActionResetTask entry expires.
func (w *Watchdog) RegisterRecoveryAction(taskID emtypes.TaskID, recover func(emtypes.TaskID)) emtypes.ErrorCode {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.findEntryUnlocked(taskID)
	if e == nil {
		return emtypes.NotFound
	}
	e.recoveryAction = recover
	return emtypes.Success
}

// EnableTask toggles whether taskID's entry is checked at all.
func (w *Watchdog) EnableTask(taskID emtypes.TaskID, enabled bool) emtypes.ErrorCode {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.entries {
		if w.entries[i].taskID == taskID {
			w.entries[i].enabled = enabled
			return emtypes.Success
		}
	}
	return emtypes.NotFound
}

// IsAlive reports whether taskID has fed within its configured timeout.
func (w *Watchdog) IsAlive(taskID emtypes.TaskID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.findEntryUnlocked(taskID)
	if e == nil {
		return false
	}
	elapsedMS := (w.now() - e.lastFeedUS) / 1000
	return elapsedMS < uint64(e.timeoutMS)
}

func (w *Watchdog) triggerTimeout(e *entry) {
	e.timeoutCount++
	w.logf("watchdog: task %d exceeded timeout (%d ms), action=%d", e.taskID, e.timeoutMS, e.action)

	switch e.action {
	case ActionLogWarning:
		// already logged above
	case ActionResetTask:
		if e.recoveryAction != nil {
			e.recoveryAction(e.taskID)
		}
	case ActionSystemReset:
		if w.platform != nil {
			w.platform.DelayMS(100)
			w.platform.SystemReset()
		}
	}
}

// CheckAll scans every enabled task entry and the system-wide timer,
// triggering the configured action for anything that has expired, and
// resetting its feed timestamp so it does not fire again until the next
// full timeout period.
func (w *Watchdog) CheckAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for i := range w.entries {
		e := &w.entries[i]
		if !e.enabled {
			continue
		}
		elapsedMS := (now - e.lastFeedUS) / 1000
		if elapsedMS >= uint64(e.timeoutMS) {
			w.triggerTimeout(e)
			e.lastFeedUS = now
		}
	}

	if w.systemEnabled {
		elapsedMS := (now - w.lastSystemFeed) / 1000
		if elapsedMS >= uint64(w.systemTimeoutMS) {
			w.logf("watchdog: system-wide timeout exceeded (%d ms)", w.systemTimeoutMS)
			if w.platform != nil {
				w.platform.DelayMS(100)
				w.platform.SystemReset()
			}
			w.lastSystemFeed = now
		}
	}
}

// EnableSystemWatchdog arms the system-wide liveness timer at timeoutMS.
func (w *Watchdog) EnableSystemWatchdog(timeoutMS uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.systemEnabled = true
	w.systemTimeoutMS = timeoutMS
	w.lastSystemFeed = w.now()
}

// FeedSystem resets the system-wide liveness timer.
func (w *Watchdog) FeedSystem() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSystemFeed = w.now()
}

// TimeoutCount reports how many times taskID's entry has expired.
func (w *Watchdog) TimeoutCount(taskID emtypes.TaskID) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := w.findEntryUnlocked(taskID)
	if e == nil {
		return 0
	}
	return e.timeoutCount
}
