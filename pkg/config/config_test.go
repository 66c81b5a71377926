// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate: %v", err)
	}
}

func TestValidateRejectsZeroMaxTasks(t *testing.T) {
	cfg := Default()
	cfg.MaxTasks = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for MaxTasks=0")
	}
}

func TestValidateRejectsSubscribersOverTaskCount(t *testing.T) {
	cfg := Default()
	cfg.MaxSubscribersPerTopic = cfg.MaxTasks + 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when MaxSubscribersPerTopic > MaxTasks")
	}
}

func TestValidateRejectsTopicQueuesOverMailboxCapacity(t *testing.T) {
	cfg := Default()
	cfg.TopicQueuesPerMailbox = cfg.MailboxQueueCapacity + 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when TopicQueuesPerMailbox > MailboxQueueCapacity")
	}
}

func TestValidateSkipsMessagingConstraintsWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.EnableMessaging = false
	cfg.MailboxQueueCapacity = 0
	cfg.MaxTopics = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected messaging constraints skipped when disabled: %v", err)
	}
}

func TestValidateRejectsZeroTopicHighRatioDenominator(t *testing.T) {
	cfg := Default()
	cfg.TopicHighRatioDen = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero TopicHighRatioDen")
	}
}

func TestValidateRejectsRingSmallerThanPacket(t *testing.T) {
	cfg := Default()
	cfg.ProtocolRingSize = cfg.ProtocolPacketSize - 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when ProtocolRingSize < ProtocolPacketSize")
	}
}

func TestValidateRejectsNonPositivePoolSizesWhenPoolsEnabled(t *testing.T) {
	cfg := Default()
	cfg.EnablePoolsRegion = true
	cfg.SmallBlockSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for non-positive SmallBlockSize when pools region enabled")
	}
}
