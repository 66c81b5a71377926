// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package arena reproduces the compile-time budget planner of
// original_source/memory/budget.hpp as a runtime check: given a Config, it
// computes a conservative upper-bound byte requirement per subsystem
// region and fails with a named offending knob if the configured budget
// cannot cover them. Regions are not literally byte slices here (Go has no
// placement-new), but the planner still gives every subsystem a
// non-overlapping, monotonically offset "region" to report for auditing,
// and every heavy subsystem object is constructed exactly once by
// runtime.New, the same "lifecycle" contract as spec.md section 3.
package arena

import (
	"fmt"

	"github.com/Thermoquad/emcore/pkg/config"
)

// Region names the subsystem regions of the arena layout.
type Region int

const (
	RegionMessaging Region = iota
	RegionEvents
	RegionTasks
	RegionOS
	RegionProtocol
	RegionDiagnostics
	RegionPools
	regionCount
)

func (r Region) String() string {
	names := [...]string{"messaging", "events", "tasks", "os", "protocol", "diagnostics", "pools"}
	if int(r) < len(names) {
		return names[r]
	}
	return "unknown"
}

// alignment matches the original header's 8-byte aligned offsets.
const alignment = 8

func align(n int) int {
	if r := n % alignment; r != 0 {
		n += alignment - r
	}
	return n
}

// Layout is the computed, non-overlapping placement of every region plus
// the upper-bound size that drove it.
type Layout struct {
	Offsets     [regionCount]int
	Sizes       [regionCount]int
	TotalBytes  int
	BudgetBytes int
}

// Report mirrors original_source/memory/budget.hpp's budget_report: a
// snapshot suitable for logging or the CLI's "emcored run --print-budget".
type Report struct {
	Layout
	EffectiveBudget int
	HeadroomBytes   int
}

// Plan computes region sizes from cfg and validates the total against the
// configured budget, returning a Layout or the first violated knob. It is
// the runtime analogue of the original's static_assert(total <= budget).
func Plan(cfg config.Config) (Layout, error) {
	var sizes [regionCount]int

	if cfg.EnableMessaging {
		perTopic := maxInt(cfg.MailboxQueueCapacity/maxInt(cfg.TopicQueuesPerMailbox, 1), 2)
		envelopeBytes := 16 + cfg.MediumPayloadSize // header + payload, conservative upper bound
		mailboxBytes := cfg.MaxTasks * cfg.TopicQueuesPerMailbox * perTopic * envelopeBytes
		topicRegistryBytes := cfg.MaxTopics * (2 + cfg.MaxSubscribersPerTopic*2)
		qosBytes := cfg.MaxTasks * cfg.QoSPendingLimit * envelopeBytes
		sizes[RegionMessaging] = mailboxBytes + topicRegistryBytes + qosBytes + cfg.RepublishBuffer*envelopeBytes
	}

	if cfg.EnableEvents {
		const eventBytes = 32 // ID + severity + flags + timestamp + fixed payload, conservative upper bound
		sizes[RegionEvents] = cfg.EventQueueSize*eventBytes + cfg.MaxEventHandlers*16
	}

	tasksMin := cfg.TaskFixedOverheadBytes + cfg.MaxTasks*cfg.TaskPerTCBBytes + cfg.MaxTasks*cfg.TaskMailboxRefBytes
	sizes[RegionTasks] = tasksMin

	sizes[RegionOS] = cfg.MaxTasks * 64 // scheduler/native-task bookkeeping upper bound

	if cfg.EnableProtocol {
		protocolMin := cfg.ProtocolRingSize + cfg.ProtocolPacketSize*2 + cfg.ProtocolMaxHandlers*16
		sizes[RegionProtocol] = protocolMin
	}

	sizes[RegionDiagnostics] = cfg.MaxTasks * 64 // watchdog + error-context ring upper bound
	if cfg.EnableEventLogs {
		sizes[RegionDiagnostics] += (cfg.EventLogMedCap + cfg.EventLogSmlCap + cfg.EventLogZCCap) * 96
	}

	if cfg.EnablePoolsRegion {
		sizes[RegionPools] = cfg.SmallPoolCount*cfg.SmallBlockSize +
			cfg.MediumPoolCount*cfg.MediumBlockSize +
			cfg.LargePoolCount*cfg.LargeBlockSize
		if cfg.EnableZeroCopy {
			sizes[RegionPools] += cfg.ZCBlockCount * cfg.ZCBlockSize
		}
	}

	var layout Layout
	offset := 0
	total := 0
	for i := Region(0); i < regionCount; i++ {
		sz := align(sizes[i])
		layout.Offsets[i] = offset
		layout.Sizes[i] = sz
		offset += sz
		total += sz
	}
	layout.TotalBytes = total
	layout.BudgetBytes = cfg.BudgetBytes

	effective := cfg.BudgetBytes - cfg.NonEmcoreRAMHeadroomBytes
	if cfg.BudgetBytes > 0 && total > effective {
		return layout, fmt.Errorf("arena: required %d bytes exceeds effective budget %d (budget %d - headroom %d); "+
			"largest region is %q at %d bytes — reduce its caps or raise BudgetBytes",
			total, effective, cfg.BudgetBytes, cfg.NonEmcoreRAMHeadroomBytes, largestRegion(sizes), largestSize(sizes))
	}

	tasksMinRequired := cfg.TaskFixedOverheadBytes + cfg.MaxTasks*cfg.TaskPerTCBBytes + cfg.MaxTasks*cfg.TaskMailboxRefBytes
	if layout.Sizes[RegionTasks] < tasksMinRequired {
		return layout, fmt.Errorf("arena: tasks region %d bytes is below derived minimum %d (fixed_overhead=%d + MaxTasks*per_tcb=%d + mailbox_refs)",
			layout.Sizes[RegionTasks], tasksMinRequired, cfg.TaskFixedOverheadBytes, cfg.MaxTasks*cfg.TaskPerTCBBytes)
	}

	return layout, nil
}

// ReportFor computes Plan and wraps it with the effective budget for display.
func ReportFor(cfg config.Config) (Report, error) {
	layout, err := Plan(cfg)
	rep := Report{
		Layout:          layout,
		EffectiveBudget: cfg.BudgetBytes - cfg.NonEmcoreRAMHeadroomBytes,
		HeadroomBytes:   cfg.NonEmcoreRAMHeadroomBytes,
	}
	return rep, err
}

func largestRegion(sizes [regionCount]int) Region {
	best := Region(0)
	for i := Region(1); i < regionCount; i++ {
		if sizes[i] > sizes[best] {
			best = i
		}
	}
	return best
}

func largestSize(sizes [regionCount]int) int {
	return sizes[largestRegion(sizes)]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
