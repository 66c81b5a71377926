// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"sync"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

type topicQueueEntry struct {
	topicID emtypes.TopicID
	high    envQueue
	normal  envQueue
}

// Mailbox is the per-task receiver: an ordered set of per-topic sub-queue
// pairs, guarded by its own critical section (spec.md section 5: "Each
// mailbox owns its own critical section").
type Mailbox struct {
	owner  emtypes.TaskID
	handle platform.NativeTaskHandle

	mu     sync.Mutex
	topics []topicQueueEntry // registration order; linear-scan searched

	maxTopics         int
	highCapacity      int
	normalCapacity    int
	depthLimit        int
	dropOldest        bool
	notifyOnEmptyOnly bool

	receivedCount   uint64
	droppedOverflow uint64
}

func newMailbox(owner emtypes.TaskID, maxTopics, queueCapacity, highRatioNum, highRatioDen int) *Mailbox {
	perTopicTotal := queueCapacity / maxInt(maxTopics, 1)
	perTopicTotal = maxInt(perTopicTotal, 2)
	highCap := maxInt(perTopicTotal*highRatioNum/maxInt(highRatioDen, 1), 1)
	normalCap := maxInt(perTopicTotal-highCap, 1)

	return &Mailbox{
		owner:             owner,
		handle:            platform.NativeTaskHandle(owner),
		maxTopics:         maxTopics,
		highCapacity:      highCap,
		normalCapacity:    normalCap,
		depthLimit:        queueCapacity,
		notifyOnEmptyOnly: false,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// totalSizeUnlocked sums every sub-queue's current depth; caller must hold mu.
func (m *Mailbox) totalSizeUnlocked() int {
	total := 0
	for i := range m.topics {
		total += m.topics[i].high.size() + m.topics[i].normal.size()
	}
	return total
}

// TotalSize is the synchronized accessor used by tests and diagnostics.
func (m *Mailbox) TotalSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalSizeUnlocked()
}

func (m *Mailbox) isEmptyUnlocked() bool { return m.totalSizeUnlocked() == 0 }

func (m *Mailbox) findTopicIndexUnlocked(topicID emtypes.TopicID) int {
	for i := range m.topics {
		if m.topics[i].topicID == topicID {
			return i
		}
	}
	return -1
}

// getOrCreateTopicUnlocked returns the topic's sub-queue pair, creating it
// if this is the first message for that topic in this mailbox. ok is
// false if the mailbox's topic-slot table is already full.
func (m *Mailbox) getOrCreateTopicUnlocked(topicID emtypes.TopicID) (*topicQueueEntry, bool) {
	if idx := m.findTopicIndexUnlocked(topicID); idx >= 0 {
		return &m.topics[idx], true
	}
	if len(m.topics) >= m.maxTopics {
		return nil, false
	}
	m.topics = append(m.topics, topicQueueEntry{
		topicID: topicID,
		high:    newEnvQueue(m.highCapacity),
		normal:  newEnvQueue(m.normalCapacity),
	})
	return &m.topics[len(m.topics)-1], true
}

// dropOneAnyUnlocked drops exactly one message, preferring normal
// sub-queues across all topics before high sub-queues across all topics —
// the exact preference spec.md section 9 documents as intentional.
func (m *Mailbox) dropOneAnyUnlocked() bool {
	for i := range m.topics {
		if _, ok := m.topics[i].normal.popOldest(); ok {
			return true
		}
	}
	for i := range m.topics {
		if _, ok := m.topics[i].high.popOldest(); ok {
			return true
		}
	}
	return false
}

// send implements spec.md section 4.3's Mailbox.send contract, including
// the documented drop-first-then-push ordering (section 9, Open Questions).
func (m *Mailbox) send(msg Envelope, p platform.Platform) emtypes.ErrorCode {
	urgent := msg.Header.Flags.Has(emtypes.FlagUrgent) || msg.Header.Priority >= emtypes.MessagePriorityHigh

	m.mu.Lock()
	wasEmpty := m.isEmptyUnlocked()

	topic, ok := m.getOrCreateTopicUnlocked(emtypes.TopicID(msg.Header.Type))
	if !ok {
		m.mu.Unlock()
		return emtypes.OutOfMemory
	}

	target, other := &topic.normal, &topic.high
	if urgent {
		target, other = &topic.high, &topic.normal
	}

	targetFull := target.full()
	depthReached := m.totalSizeUnlocked() >= m.depthLimit
	if targetFull || depthReached {
		if msg.Header.Flags.Has(emtypes.FlagPersistent) {
			m.mu.Unlock()
			return emtypes.OutOfMemory
		}
		if m.dropOldest {
			if m.dropOneAnyUnlocked() {
				m.droppedOverflow++
			}
		} else {
			m.mu.Unlock()
			return emtypes.OutOfMemory
		}
	}

	switch {
	case !target.full():
		target.push(msg)
	case !other.full():
		other.push(msg)
	default:
		m.mu.Unlock()
		return emtypes.OutOfMemory
	}

	shouldNotify := wasEmpty || !m.notifyOnEmptyOnly
	m.mu.Unlock()

	if shouldNotify && p != nil {
		p.TaskNotify(m.handle, platform.NotifyBitReceive)
	}
	return emtypes.Success
}

// receive drains exactly one message: every topic's high sub-queue is
// scanned in registration order first (first non-empty wins), then, only
// if no high message was found, every topic's normal sub-queue.
func (m *Mailbox) receive(p platform.Platform) (Envelope, emtypes.ErrorCode) {
	m.mu.Lock()
	if m.isEmptyUnlocked() {
		m.mu.Unlock()
		return Envelope{}, emtypes.NotFound
	}

	var msg Envelope
	found := false
	for i := range m.topics {
		if v, ok := m.topics[i].high.pop(); ok {
			msg, found = v, true
			break
		}
	}
	if !found {
		for i := range m.topics {
			if v, ok := m.topics[i].normal.pop(); ok {
				msg, found = v, true
				break
			}
		}
	}
	if !found {
		m.mu.Unlock()
		return Envelope{}, emtypes.NotFound
	}

	m.receivedCount++
	becameEmpty := m.isEmptyUnlocked()
	m.mu.Unlock()

	if becameEmpty && p != nil {
		p.ClearNotification(m.handle)
	}
	return msg, emtypes.Success
}
