// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"testing"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

type counterState struct{ value uint32 }

func encodeCounter(s counterState) []byte {
	return []byte{byte(s.value), byte(s.value >> 8), byte(s.value >> 16), byte(s.value >> 24)}
}

func decodeCounter(b []byte) (counterState, bool) {
	if len(b) < 4 {
		return counterState{}, false
	}
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return counterState{value: v}, true
}

const (
	proposeTopic emtypes.TopicID = 100
	ackTopic     emtypes.TopicID = 101
	commitTopic  emtypes.TopicID = 102
)

// newPeer wires taskID into the broker's distributed-state topics. The
// leader subscribes to ack and commit (not propose, so its own proposal is
// never echoed back); followers subscribe to propose and commit so they
// can vote.
func newPeer(b *Broker, p platform.Platform, id emtypes.TaskID, maxPeers int, asLeader bool) *DistributedState[counterState] {
	b.RegisterTask(id)
	if asLeader {
		b.Subscribe(ackTopic, id)
	} else {
		b.Subscribe(proposeTopic, id)
	}
	b.Subscribe(commitTopic, id)
	return NewDistributedState[counterState](b, p, id, proposeTopic, ackTopic, commitTopic, maxPeers, 4,
		counterState{}, encodeCounter, decodeCounter)
}

func acceptAll(_, _ counterState) bool { return true }

// TestDistributedStateReachesQuorumAndCommits exercises the full
// propose -> ack -> commit cycle across three peers with a majority
// quorum of (3/2)+1 = 2.
func TestDistributedStateReachesQuorumAndCommits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTasks = 3
	cfg.MaxTopics = 3
	cfg.TopicQueuesPerMailbox = 3
	cfg.MailboxQueueCapacity = 12
	p := platform.Default()
	b := New(cfg, p)

	leader := newPeer(b, p, 1, 3, true)
	peerA := newPeer(b, p, 2, 3, false)
	peerB := newPeer(b, p, 3, 3, false)

	seq := leader.Propose(counterState{value: 7})
	if seq == 0 {
		t.Fatalf("propose returned 0")
	}

	// Peers receive and ack the proposal.
	for _, peer := range []*DistributedState[counterState]{peerA, peerB} {
		msg, code := b.TryReceive(taskIDOf(peer))
		if code != emtypes.Success {
			t.Fatalf("peer did not receive proposal: %v", code)
		}
		peer.ProcessMessage(msg, acceptAll)
	}

	// Leader drains its mailbox: two acks should arrive and trigger commit.
	for i := 0; i < 2; i++ {
		msg, code := b.TryReceive(1)
		if code != emtypes.Success {
			t.Fatalf("leader did not receive ack %d: %v", i, code)
		}
		leader.ProcessMessage(msg, acceptAll)
	}

	if leader.Current().value != 7 {
		t.Fatalf("leader state = %d, want 7", leader.Current().value)
	}

	// Peers receive the commit broadcast and adopt the new state.
	for _, peer := range []*DistributedState[counterState]{peerA, peerB} {
		msg, code := b.TryReceive(taskIDOf(peer))
		if code != emtypes.Success {
			t.Fatalf("peer did not receive commit: %v", code)
		}
		peer.ProcessMessage(msg, acceptAll)
		if peer.Current().value != 7 {
			t.Fatalf("peer state = %d, want 7", peer.Current().value)
		}
	}
}

func taskIDOf(d *DistributedState[counterState]) emtypes.TaskID { return d.selfTaskID }
