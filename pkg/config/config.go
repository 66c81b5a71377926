// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the compile-time knobs of the original emCore
// headers as runtime-configured, validated values. Every field has the
// same default as the C++ build (see original_source/core/config.hpp) and
// every cross-field constraint enforced there by static_assert is
// re-checked by Validate.
package config

import "fmt"

// Config is the single source of capacity knobs consumed by the arena
// budget planner and every subsystem it places.
type Config struct {
	// Task system
	MaxTasks          int
	MaxTaskNameLength int

	// Events
	MaxEvents        int
	MaxEventHandlers int
	EventQueueSize   int
	EnableEvents     bool

	// Messaging
	EnableMessaging        bool
	MailboxQueueCapacity   int
	MaxTopics              int
	MaxSubscribersPerTopic int
	TopicQueuesPerMailbox  int
	TopicHighRatioNum      int
	TopicHighRatioDen      int
	QoSPendingLimit        int
	QoSAckTimeoutUS        uint32
	RepublishBuffer        int
	SmallPayloadSize       int
	MediumPayloadSize      int
	LargePayloadSize       int

	// Zero-copy pool
	EnableZeroCopy bool
	ZCBlockSize    int
	ZCBlockCount   int

	// Event logs (component U); gated by a single flag per SPEC_FULL.md 4.7
	EnableEventLogs bool
	EventLogMedCap  int
	EventLogSmlCap  int
	EventLogZCCap   int

	// Protocol
	EnableProtocol      bool
	ProtocolPacketSize  int
	ProtocolMaxHandlers int
	ProtocolRingSize    int
	ProtocolSyncLength  int
	ProtocolLength16Bit bool

	// Memory pools (diagnostic-only bookkeeping, not a real allocator)
	EnablePoolsRegion bool
	SmallBlockSize    int
	MediumBlockSize   int
	LargeBlockSize    int
	SmallPoolCount    int
	MediumPoolCount   int
	LargePoolCount    int

	// Arena budget
	BudgetBytes               int
	NonEmcoreRAMHeadroomBytes int

	// Per-subsystem task accounting (mirrors budget.hpp sizing minimums)
	TaskPerTCBBytes        int
	TaskFixedOverheadBytes int
	TaskMailboxRefBytes    int
}

// Default returns the same defaults as original_source/core/config.hpp.
func Default() Config {
	return Config{
		MaxTasks:          8,
		MaxTaskNameLength: 32,

		MaxEvents:        16,
		MaxEventHandlers: 16,
		EventQueueSize:   64,
		EnableEvents:     true,

		EnableMessaging:        true,
		MailboxQueueCapacity:   4,
		MaxTopics:              6,
		MaxSubscribersPerTopic: 3,
		TopicQueuesPerMailbox:  1,
		TopicHighRatioNum:      1,
		TopicHighRatioDen:      4,
		QoSPendingLimit:        4,
		QoSAckTimeoutUS:        500000,
		RepublishBuffer:        4,
		SmallPayloadSize:       16,
		MediumPayloadSize:      64,
		LargePayloadSize:       256,

		EnableZeroCopy: true,
		ZCBlockSize:    16,
		ZCBlockCount:   4,

		EnableEventLogs: false,
		EventLogMedCap:  4,
		EventLogSmlCap:  4,
		EventLogZCCap:   2,

		EnableProtocol:      true,
		ProtocolPacketSize:  64,
		ProtocolMaxHandlers: 16,
		ProtocolRingSize:    512,
		ProtocolSyncLength:  2,
		ProtocolLength16Bit: true,

		EnablePoolsRegion: true,
		SmallBlockSize:    32,
		MediumBlockSize:   128,
		LargeBlockSize:    512,
		SmallPoolCount:    16,
		MediumPoolCount:   8,
		LargePoolCount:    4,

		BudgetBytes:               1 << 20,
		NonEmcoreRAMHeadroomBytes: 1 << 16,

		TaskPerTCBBytes:        256,
		TaskFixedOverheadBytes: 512,
		TaskMailboxRefBytes:    8,
	}
}

// Validate re-checks every cross-field constraint the original header
// enforced with static_assert. It returns the first violation found.
func (c Config) Validate() error {
	if c.MaxTasks < 1 {
		return fmt.Errorf("config: MaxTasks must be >= 1")
	}
	if c.MaxEvents < 1 {
		return fmt.Errorf("config: MaxEvents must be >= 1")
	}
	if c.EnableMessaging {
		if c.MailboxQueueCapacity < 1 {
			return fmt.Errorf("config: MailboxQueueCapacity must be >= 1 when messaging is enabled")
		}
		if c.MaxTopics < 1 {
			return fmt.Errorf("config: MaxTopics must be >= 1 when messaging is enabled")
		}
		if c.MaxSubscribersPerTopic < 1 {
			return fmt.Errorf("config: MaxSubscribersPerTopic must be >= 1 when messaging is enabled")
		}
		if c.MaxSubscribersPerTopic > c.MaxTasks {
			return fmt.Errorf("config: MaxSubscribersPerTopic must be <= MaxTasks")
		}
		if c.TopicQueuesPerMailbox < 1 {
			return fmt.Errorf("config: TopicQueuesPerMailbox must be >= 1 when messaging is enabled")
		}
		if c.TopicQueuesPerMailbox > c.MailboxQueueCapacity {
			return fmt.Errorf("config: TopicQueuesPerMailbox must not exceed MailboxQueueCapacity")
		}
	}
	if c.TopicHighRatioDen == 0 {
		return fmt.Errorf("config: TopicHighRatioDen must not be 0")
	}
	if c.TopicHighRatioNum > c.TopicHighRatioDen {
		return fmt.Errorf("config: TopicHighRatioNum must be <= TopicHighRatioDen")
	}
	if c.EnableProtocol {
		if c.ProtocolMaxHandlers < 1 {
			return fmt.Errorf("config: ProtocolMaxHandlers must be >= 1 when protocol is enabled")
		}
		if c.ProtocolPacketSize < 1 {
			return fmt.Errorf("config: ProtocolPacketSize must be >= 1 when protocol is enabled")
		}
		if c.ProtocolRingSize < c.ProtocolPacketSize {
			return fmt.Errorf("config: ProtocolRingSize must be >= ProtocolPacketSize")
		}
		if c.ProtocolSyncLength < 1 {
			return fmt.Errorf("config: ProtocolSyncLength must be >= 1")
		}
	}
	if c.EnablePoolsRegion {
		if c.SmallBlockSize <= 0 || c.MediumBlockSize <= 0 || c.LargeBlockSize <= 0 {
			return fmt.Errorf("config: pool block sizes must be > 0 when pools region is enabled")
		}
	}
	if c.EnableEvents && c.MaxEvents < 1 {
		return fmt.Errorf("config: MaxEvents must be >= 1 when events are enabled")
	}
	return nil
}
