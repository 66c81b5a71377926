// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"testing"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

const (
	dataTopic    emtypes.TopicID = 10
	ackTestTopic emtypes.TopicID = 11
)

func TestQoSPublishTracksPendingUntilAck(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTasks = 2
	cfg.MaxTopics = 2
	p := platform.Default()
	b := New(cfg, p)

	b.RegisterTask(1) // publisher
	b.RegisterTask(2) // subscriber
	b.Subscribe(dataTopic, 2)
	b.Subscribe(ackTestTopic, 1)

	pub := NewQoSPublisher(b, p, 1, ackTestTopic, 4)
	sub := NewQoSSubscriber(b, p, 2, ackTestTopic, 8)

	msg := SmallMessage()
	msg.Payload = append(msg.Payload, 'x')
	if code := pub.Publish(dataTopic, msg); code != emtypes.Success {
		t.Fatalf("publish: %v", code)
	}
	if pub.PendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", pub.PendingCount())
	}

	received, code := sub.Receive(0)
	if code != emtypes.Success {
		t.Fatalf("subscriber receive: %v", code)
	}
	if len(received.Payload) != 1 || received.Payload[0] != 'x' {
		t.Fatalf("payload mismatch: %q", received.Payload)
	}

	ackMsg, code := b.TryReceive(1)
	if code != emtypes.Success {
		t.Fatalf("publisher did not receive ack: %v", code)
	}
	if !pub.TryHandleAckMessage(ackMsg) {
		t.Fatalf("expected ack message to be consumed")
	}
	if pub.PendingCount() != 0 {
		t.Fatalf("pending count after ack = %d, want 0", pub.PendingCount())
	}
}

func TestQoSSubscriberRejectsDuplicateSequence(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTasks = 2
	cfg.MaxTopics = 2
	p := platform.Default()
	b := New(cfg, p)

	b.RegisterTask(1)
	b.RegisterTask(2)
	b.Subscribe(dataTopic, 2)
	b.Subscribe(ackTestTopic, 1)

	sub := NewQoSSubscriber(b, p, 2, ackTestTopic, 8)

	msg := SmallMessage()
	msg.Header.SequenceNumber = 5
	msg.Header.SenderID = 1
	msg.Header.Type = uint16(dataTopic)
	b.Publish(1, dataTopic, msg)

	dup := SmallMessage()
	dup.Header.SequenceNumber = 5
	dup.Header.SenderID = 1
	dup.Header.Type = uint16(dataTopic)
	b.Publish(1, dataTopic, dup)

	if _, code := sub.Receive(0); code != emtypes.Success {
		t.Fatalf("first receive: %v", code)
	}
	if _, code := sub.Receive(0); code != emtypes.NotFound {
		t.Fatalf("expected duplicate sequence rejected as NotFound, got %v", code)
	}
}

func TestQoSSubscriberAcceptsSequenceAfterWraparound(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTasks = 2
	cfg.MaxTopics = 2
	p := platform.Default()
	b := New(cfg, p)

	b.RegisterTask(1)
	b.RegisterTask(2)
	b.Subscribe(dataTopic, 2)
	b.Subscribe(ackTestTopic, 1)

	sub := NewQoSSubscriber(b, p, 2, ackTestTopic, 8)

	last := SmallMessage()
	last.Header.SequenceNumber = 65535
	last.Header.SenderID = 1
	last.Header.Type = uint16(dataTopic)
	b.Publish(1, dataTopic, last)

	wrapped := SmallMessage()
	wrapped.Header.SequenceNumber = 1
	wrapped.Header.SenderID = 1
	wrapped.Header.Type = uint16(dataTopic)
	b.Publish(1, dataTopic, wrapped)

	if _, code := sub.Receive(0); code != emtypes.Success {
		t.Fatalf("receive at seq 65535: %v", code)
	}
	if _, code := sub.Receive(0); code != emtypes.Success {
		t.Fatalf("expected seq 1 after wraparound to be accepted as newer, got %v", code)
	}
}
