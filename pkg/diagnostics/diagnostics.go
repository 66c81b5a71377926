// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package diagnostics implements the emCore error handler (system-overview
// component V): a bounded-severity error sink with an optional callback,
// retry-policy backoff calculation, and a last-error snapshot, grounded on
// original_source/error/error_handler.hpp.
package diagnostics

import (
	"sync"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

// EventKind classifies what went wrong, mirroring error_event.
type EventKind uint8

const (
	EventMessageDropped EventKind = iota
	EventQueueOverflow
	EventTaskDeadlineMiss
	EventTaskFault
	EventTaskTimeout
	EventTaskStackOverflow
	EventMemoryExhaustion
	EventInvalidState
	EventWatchdogTimeout
)

// Severity ranks how urgently an error needs attention, mirroring
// error_severity.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
	SeverityFatal
)

// Context is one reported error occurrence, mirroring error_context.
type Context struct {
	Event     EventKind
	Severity  Severity
	Code      emtypes.ErrorCode
	TaskID    emtypes.TaskID
	Timestamp uint64
	Data      [4]uint32
}

// Handler receives every reported Context while installed.
type Handler func(Context)

// RetryPolicy computes the delay before a retry attempt, mirroring
// retry_policy::get_delay's exponential backoff.
type RetryPolicy struct {
	MaxRetries         uint8
	InitialDelayMS     uint32
	MaxDelayMS         uint32
	ExponentialBackoff bool
	BackoffMultiplier  float32
}

// DefaultRetryPolicy mirrors retry_policy's in-class defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelayMS: 100, MaxDelayMS: 5000, ExponentialBackoff: true, BackoffMultiplier: 2.0}
}

// Delay returns the backoff delay for the given zero-based attempt number.
func (p RetryPolicy) Delay(attempt uint8) uint32 {
	if attempt >= p.MaxRetries {
		return 0
	}
	if !p.ExponentialBackoff {
		return p.InitialDelayMS
	}
	delay := p.InitialDelayMS
	for i := uint8(0); i < attempt; i++ {
		delay = uint32(float32(delay) * p.BackoffMultiplier)
		if delay > p.MaxDelayMS {
			return p.MaxDelayMS
		}
	}
	return delay
}

// ErrorHandler is the global error sink: it counts errors, remembers the
// last one, forwards to an optional callback, and logs critical/fatal
// errors through the logf function passed to New, mirroring
// error::error_handler.
type ErrorHandler struct {
	platform platform.Platform
	logf     func(format string, args ...any)

	mu         sync.Mutex
	callback   Handler
	enabled    bool
	retry      RetryPolicy
	errorCount uint32
	lastError  Context
}

// New constructs an ErrorHandler with the default retry policy and no
// callback installed.
func New(p platform.Platform, logf func(format string, args ...any)) *ErrorHandler {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &ErrorHandler{platform: p, logf: logf, retry: DefaultRetryPolicy()}
}

// SetCallback installs fn as the error callback; passing nil disables
// callback delivery (enabled tracks whether a callback is installed, as in
// the original).
func (h *ErrorHandler) SetCallback(fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callback = fn
	h.enabled = fn != nil
}

// SetRetryPolicy replaces the active retry policy.
func (h *ErrorHandler) SetRetryPolicy(p RetryPolicy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retry = p
}

// RetryPolicy returns the active retry policy.
func (h *ErrorHandler) RetryPolicy() RetryPolicy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retry
}

func (h *ErrorHandler) now() uint64 {
	if h.platform != nil {
		return h.platform.NowUS()
	}
	return 0
}

// MakeContext builds a Context stamped with the current time, mirroring
// error_handler::make_context.
func (h *ErrorHandler) MakeContext(event EventKind, severity Severity, taskID emtypes.TaskID, code emtypes.ErrorCode) Context {
	return Context{Event: event, Severity: severity, Code: code, TaskID: taskID, Timestamp: h.now()}
}

// ReportError records ctx, forwards it to the installed callback, and logs
// it through logf if its severity is critical or worse.
func (h *ErrorHandler) ReportError(ctx Context) {
	h.mu.Lock()
	h.errorCount++
	h.lastError = ctx
	callback := h.callback
	enabled := h.enabled
	h.mu.Unlock()

	if enabled && callback != nil {
		callback(ctx)
	}
	if ctx.Severity >= SeverityCritical {
		h.logf("CRITICAL ERROR: event=%d task=%d code=%s", ctx.Event, ctx.TaskID, ctx.Code)
	}
}

// ErrorCount reports how many errors have been reported since the last
// Reset.
func (h *ErrorHandler) ErrorCount() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errorCount
}

// LastError returns the most recently reported Context.
func (h *ErrorHandler) LastError() Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// Reset zeroes the error counter; the last-error snapshot is left intact,
// matching error_handler::reset.
func (h *ErrorHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorCount = 0
}
