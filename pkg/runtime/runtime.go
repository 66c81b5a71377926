// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package runtime

import (
	"fmt"

	"github.com/Thermoquad/emcore/pkg/arena"
	"github.com/Thermoquad/emcore/pkg/config"
	"github.com/Thermoquad/emcore/pkg/diagnostics"
	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/event"
	"github.com/Thermoquad/emcore/pkg/messaging"
	"github.com/Thermoquad/emcore/pkg/platform"
	"github.com/Thermoquad/emcore/pkg/scheduler"
	"github.com/Thermoquad/emcore/pkg/watchdog"
)

// Runtime is the single construction point tying every subsystem to one
// validated Config and platform.Platform, the Go analogue of the original
// header-only library's collection of globally-constructed singletons
// (core/config.hpp's compile-time knobs realized as one runtime object
// graph instead).
type Runtime struct {
	Config   config.Config
	Layout   arena.Layout
	Platform platform.Platform
	Log      Logger

	Broker    *messaging.Broker
	EventBus  *event.Bus
	EventLog  *messaging.EventLog
	Scheduler *scheduler.Scheduler
	Watchdog  *watchdog.Watchdog
	Errors    *diagnostics.ErrorHandler
	Stats     *diagnostics.Statistics

	// ZeroCopy is the reference-counted block pool backing zero-copy
	// message payloads (component T). Pools is the separate three-tier
	// small/medium/large allocator used for diagnostic pool bookkeeping.
	ZeroCopy *messaging.BlockPool
	Pools    *messaging.MemoryManager
}

// New validates cfg, plans the arena layout, and constructs every
// subsystem wired to p and log. It fails closed: a budget violation or an
// invalid config returns an error rather than a partially built Runtime.
func New(cfg config.Config, p platform.Platform, log Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("runtime: invalid config: %w", err)
	}
	layout, err := arena.Plan(cfg)
	if err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}
	if p == nil {
		p = platform.Default()
	}
	if log == nil {
		log = NopLogger()
	}

	rt := &Runtime{Config: cfg, Layout: layout, Platform: p, Log: log}

	rt.Watchdog = watchdog.New(p, func(format string, args ...any) { log.Warnf(format, args...) }, cfg.MaxTasks)
	rt.Errors = diagnostics.New(p, func(format string, args ...any) { log.Errorf(format, args...) })
	rt.Stats = diagnostics.NewStatistics(p.NowUS())

	if cfg.EnableMessaging {
		rt.Broker = messaging.New(cfg, p)
		if cfg.EnableEventLogs {
			rt.EventLog = messaging.NewEventLog(cfg.EventLogSmlCap, cfg.EventLogMedCap, cfg.EventLogZCCap)
			rt.EventLog.SetEnabled(true)
		}
	}
	if cfg.EnableEvents {
		rt.EventBus = event.New(cfg.MaxEventHandlers, cfg.EventQueueSize)
	}
	if cfg.EnableZeroCopy {
		rt.ZeroCopy = messaging.NewBlockPool(cfg.ZCBlockSize, cfg.ZCBlockCount)
	}
	if cfg.EnablePoolsRegion {
		rt.Pools = messaging.NewMemoryManager(
			cfg.SmallBlockSize, cfg.SmallPoolCount,
			cfg.MediumBlockSize, cfg.MediumPoolCount,
			cfg.LargeBlockSize, cfg.LargePoolCount,
		)
	}

	rt.Scheduler = scheduler.New(p, rt.feedWatchdog, cfg.MaxTasks)
	rt.Scheduler.Initialize()

	return rt, nil
}

// feedWatchdog is the scheduler's FeedFunc: it reports failures to the
// error handler instead of dropping them, since the scheduler's native
// trampoline has no return path for them.
func (rt *Runtime) feedWatchdog(id emtypes.TaskID) {
	if code := rt.Watchdog.Feed(id); code != emtypes.Success && code != emtypes.NotFound {
		rt.Errors.ReportError(rt.Errors.MakeContext(diagnostics.EventWatchdogTimeout, diagnostics.SeverityWarning, id, code))
	}
}

// ReportError forwards ctx to the runtime's error handler and mirrors it
// into the statistics tracker, then logs anything error-severity or worse.
func (rt *Runtime) ReportError(ctx diagnostics.Context) {
	rt.Errors.ReportError(ctx)
	rt.Stats.Update(ctx)
	if ctx.Severity >= diagnostics.SeverityError {
		rt.Log.Errorf("event=%d task=%d code=%s", ctx.Event, ctx.TaskID, ctx.Code)
	}
}

// Tick runs one cooperative scheduler round, one watchdog sweep, and (when
// the event bus is enabled) up to MaxEvents queued bus events, the unit of
// work a CLI "run" loop or test harness repeatedly drives.
func (rt *Runtime) Tick() {
	rt.Scheduler.Run()
	rt.Watchdog.CheckAll()
	if rt.EventBus != nil {
		rt.EventBus.Process(rt.Config.MaxEvents)
	}
}
