// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package platform is the narrow interface emCore's core consumes instead
// of talking to an RTOS or a POSIX thread API directly (spec.md section
// 6.1). Everything outside this package — timer glue, CMSIS/FreeRTOS/POSIX
// bindings — is explicitly out of scope; Default provides a
// goroutine-and-channel-backed implementation suitable for hosted testing
// and for any target where goroutines already map onto OS threads.
package platform

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/emcore/pkg/emtypes"
)

// NotifyBitReceive is the only notification bit the core ever uses
// (spec.md section 5, "Exactly bit 0x01 is used by the broker").
const NotifyBitReceive uint32 = 0x01

// NativeTaskHandle identifies a goroutine-backed native task.
type NativeTaskHandle uint32

// NativeTaskParams mirrors create_native_task's parameter list from
// spec.md section 6.1.
type NativeTaskParams struct {
	Entry          func(ctx context.Context, userPtr any)
	Name           string
	StackBytes     int
	UserPtr        any
	Priority       emtypes.Priority
	StartSuspended bool
	PinToCore      bool
	CoreID         int
}

// Platform is the full set of primitives the core requires from its host.
type Platform interface {
	NowUS() uint64
	NowMS() uint64
	DelayMS(d uint32)
	DelayUS(d uint32)

	CriticalSectionEnter() func() // returns the matching Exit

	SemaphoreCreate() uint32
	SemaphoreDelete(id uint32)
	SemaphoreGive(id uint32)
	SemaphoreTake(id uint32, timeoutUS uint32) bool

	CreateNativeTask(params NativeTaskParams) (NativeTaskHandle, error)
	SuspendNativeTask(h NativeTaskHandle) error
	ResumeNativeTask(h NativeTaskHandle) error
	DeleteNativeTask(h NativeTaskHandle) error

	// RegisterNotifyHandle lazily creates a notification target for a
	// cooperative (non-native) task so mailboxes can wake it without it
	// ever having been spawned as a native goroutine task.
	RegisterNotifyHandle(h NativeTaskHandle)

	TaskNotify(h NativeTaskHandle, bits uint32)
	WaitNotification(h NativeTaskHandle, timeoutMS uint32) (bits uint32, ok bool)
	ClearNotification(h NativeTaskHandle)

	CurrentTask() NativeTaskHandle
	TaskYield()

	SystemReset()
}

type semaphore struct {
	ch chan struct{}
}

type notifyState struct {
	mu   sync.Mutex
	bits uint32
	ch   chan struct{}
}

// hosted is the default Platform: real wall-clock time, goroutines for
// native tasks, and buffered channels standing in for binary semaphores
// and the task-notification bitset.
type hosted struct {
	mu          sync.Mutex
	nextSem     uint32
	semaphores  map[uint32]*semaphore
	nextHandle  uint32
	cancels     map[NativeTaskHandle]context.CancelFunc
	notify      map[NativeTaskHandle]*notifyState
	resetCalled atomic.Bool
	current     atomic.Value // NativeTaskHandle, best-effort for the calling goroutine
}

// Default returns the hosted, goroutine-backed Platform implementation.
func Default() Platform {
	return &hosted{
		semaphores: make(map[uint32]*semaphore),
		cancels:    make(map[NativeTaskHandle]context.CancelFunc),
		notify:     make(map[NativeTaskHandle]*notifyState),
	}
}

func (h *hosted) NowUS() uint64 { return uint64(time.Now().UnixMicro()) }
func (h *hosted) NowMS() uint64 { return uint64(time.Now().UnixMilli()) }

func (h *hosted) DelayMS(d uint32) { time.Sleep(time.Duration(d) * time.Millisecond) }
func (h *hosted) DelayUS(d uint32) { time.Sleep(time.Duration(d) * time.Microsecond) }

func (h *hosted) CriticalSectionEnter() func() {
	h.mu.Lock()
	return h.mu.Unlock
}

func (h *hosted) SemaphoreCreate() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSem++
	id := h.nextSem
	h.semaphores[id] = &semaphore{ch: make(chan struct{}, 1)}
	return id
}

func (h *hosted) SemaphoreDelete(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.semaphores, id)
}

func (h *hosted) SemaphoreGive(id uint32) {
	h.mu.Lock()
	s, ok := h.semaphores[id]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (h *hosted) SemaphoreTake(id uint32, timeoutUS uint32) bool {
	h.mu.Lock()
	s, ok := h.semaphores[id]
	h.mu.Unlock()
	if !ok {
		return false
	}
	if timeoutUS == emtypes.TimeoutInfinite {
		<-s.ch
		return true
	}
	select {
	case <-s.ch:
		return true
	case <-time.After(time.Duration(timeoutUS) * time.Microsecond):
		return false
	}
}

func (h *hosted) CreateNativeTask(params NativeTaskParams) (NativeTaskHandle, error) {
	h.mu.Lock()
	h.nextHandle++
	handle := NativeTaskHandle(h.nextHandle)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancels[handle] = cancel
	ns := &notifyState{ch: make(chan struct{}, 1)}
	h.notify[handle] = ns
	h.mu.Unlock()

	if params.StartSuspended {
		// On the hosted platform a task created suspended never runs its
		// entry: the goroutine only waits on the context used to cancel,
		// and ResumeNativeTask does not start it.
		go func() {
			<-ctx.Done()
		}()
		return handle, nil
	}

	go func() {
		h.current.Store(handle)
		params.Entry(ctx, params.UserPtr)
	}()
	return handle, nil
}

func (h *hosted) SuspendNativeTask(handle NativeTaskHandle) error {
	h.mu.Lock()
	cancel, ok := h.cancels[handle]
	h.mu.Unlock()
	if !ok {
		return emtypes.NotFound
	}
	cancel()
	return nil
}

func (h *hosted) ResumeNativeTask(handle NativeTaskHandle) error {
	h.mu.Lock()
	_, ok := h.cancels[handle]
	h.mu.Unlock()
	if !ok {
		return emtypes.NotFound
	}
	return nil
}

func (h *hosted) DeleteNativeTask(handle NativeTaskHandle) error {
	h.mu.Lock()
	cancel, ok := h.cancels[handle]
	if ok {
		delete(h.cancels, handle)
		delete(h.notify, handle)
	}
	h.mu.Unlock()
	if !ok {
		return emtypes.NotFound
	}
	cancel()
	return nil
}

func (h *hosted) RegisterNotifyHandle(handle NativeTaskHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.notify[handle]; !ok {
		h.notify[handle] = &notifyState{ch: make(chan struct{}, 1)}
	}
}

func (h *hosted) TaskNotify(handle NativeTaskHandle, bits uint32) {
	h.mu.Lock()
	ns, ok := h.notify[handle]
	h.mu.Unlock()
	if !ok {
		return
	}
	ns.mu.Lock()
	ns.bits |= bits
	ns.mu.Unlock()
	select {
	case ns.ch <- struct{}{}:
	default:
	}
}

func (h *hosted) WaitNotification(handle NativeTaskHandle, timeoutMS uint32) (uint32, bool) {
	h.mu.Lock()
	ns, ok := h.notify[handle]
	h.mu.Unlock()
	if !ok {
		return 0, false
	}

	ns.mu.Lock()
	if ns.bits != 0 {
		bits := ns.bits
		ns.mu.Unlock()
		return bits, true
	}
	ns.mu.Unlock()

	var timer <-chan time.Time
	if timeoutMS != emtypes.TimeoutInfinite {
		timer = time.After(time.Duration(timeoutMS) * time.Millisecond)
	}
	select {
	case <-ns.ch:
		ns.mu.Lock()
		bits := ns.bits
		ns.mu.Unlock()
		return bits, true
	case <-timer:
		return 0, false
	}
}

func (h *hosted) ClearNotification(handle NativeTaskHandle) {
	h.mu.Lock()
	ns, ok := h.notify[handle]
	h.mu.Unlock()
	if !ok {
		return
	}
	ns.mu.Lock()
	ns.bits = 0
	ns.mu.Unlock()
}

func (h *hosted) CurrentTask() NativeTaskHandle {
	if v := h.current.Load(); v != nil {
		return v.(NativeTaskHandle)
	}
	return 0
}

func (h *hosted) TaskYield() { time.Sleep(0) }

func (h *hosted) SystemReset() { h.resetCalled.Store(true) }
