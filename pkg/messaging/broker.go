// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"sort"
	"sync"

	"github.com/Thermoquad/emcore/pkg/config"
	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

type topicSubscription struct {
	topicID     emtypes.TopicID
	maxSubs     int
	subscribers []emtypes.TaskID
}

// Broker is the pub/sub message broker of spec.md section 4.3: a mailbox
// table indexed directly by TaskID, and a topic registry kept sorted by
// TopicID for binary-search lookup.
type Broker struct {
	cfg      config.Config
	platform platform.Platform

	mu           sync.Mutex
	mailboxes    []*Mailbox          // direct index by TaskID
	topics       []topicSubscription // sorted by topicID
	nextSequence uint16

	notifyOnEmptyOnly bool
}

// New creates a Broker governed by cfg and driven by p for notifications.
func New(cfg config.Config, p platform.Platform) *Broker {
	return &Broker{cfg: cfg, platform: p, nextSequence: 1}
}

// RegisterTask installs task_id's mailbox, expanding the mailbox table if
// necessary (spec.md section 3 invariant: mailbox[TaskId].owner == TaskId).
func (b *Broker) RegisterTask(taskID emtypes.TaskID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.mailboxes) <= int(taskID) {
		b.mailboxes = append(b.mailboxes, nil)
	}
	mb := newMailbox(taskID, b.cfg.TopicQueuesPerMailbox, b.cfg.MailboxQueueCapacity, b.cfg.TopicHighRatioNum, b.cfg.TopicHighRatioDen)
	mb.notifyOnEmptyOnly = b.notifyOnEmptyOnly
	b.mailboxes[taskID] = mb
	if b.platform != nil {
		b.platform.RegisterNotifyHandle(mb.handle)
	}
}

// DeregisterTask releases taskID's mailbox slot to its invalid sentinel.
func (b *Broker) DeregisterTask(taskID emtypes.TaskID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(taskID) < len(b.mailboxes) {
		b.mailboxes[taskID] = nil
	}
}

// FindMailbox is the O(1) direct-index lookup with an owner-equality
// liveness check.
func (b *Broker) FindMailbox(taskID emtypes.TaskID) (*Mailbox, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(taskID) >= len(b.mailboxes) {
		return nil, false
	}
	mb := b.mailboxes[taskID]
	if mb == nil || mb.owner != taskID {
		return nil, false
	}
	return mb, true
}

// findTopicIndex performs the O(log T) binary search over the sorted
// topic registry. It returns the insertion point via sort.Search even on
// a miss, matching the original's lower_bound/upper_bound usage.
func (b *Broker) findTopicIndex(topicID emtypes.TopicID) (idx int, found bool) {
	idx = sort.Search(len(b.topics), func(i int) bool { return b.topics[i].topicID >= topicID })
	found = idx < len(b.topics) && b.topics[idx].topicID == topicID
	return idx, found
}

// Subscribe adds taskID as a subscriber of topicID. Subscriptions are
// idempotent; the topic is created lazily if it does not exist yet.
func (b *Broker) Subscribe(topicID emtypes.TopicID, taskID emtypes.TaskID) emtypes.ErrorCode {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, found := b.findTopicIndex(topicID)
	if !found {
		sub := topicSubscription{topicID: topicID, maxSubs: b.cfg.MaxSubscribersPerTopic}
		b.topics = append(b.topics, topicSubscription{})
		copy(b.topics[idx+1:], b.topics[idx:])
		b.topics[idx] = sub
	}

	sub := &b.topics[idx]
	for _, s := range sub.subscribers {
		if s == taskID {
			return emtypes.Success // idempotent
		}
	}
	if len(sub.subscribers) >= sub.maxSubs {
		return emtypes.OutOfMemory
	}
	sub.subscribers = append(sub.subscribers, taskID)
	return emtypes.Success
}

// SetTopicCapacity creates topicID lazily and clamps its subscriber cap to
// at most SUBS_PER_TOPIC.
func (b *Broker) SetTopicCapacity(topicID emtypes.TopicID, maxSubs int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if maxSubs > b.cfg.MaxSubscribersPerTopic {
		maxSubs = b.cfg.MaxSubscribersPerTopic
	}
	idx, found := b.findTopicIndex(topicID)
	if !found {
		sub := topicSubscription{topicID: topicID, maxSubs: maxSubs}
		b.topics = append(b.topics, topicSubscription{})
		copy(b.topics[idx+1:], b.topics[idx:])
		b.topics[idx] = sub
		return
	}
	b.topics[idx].maxSubs = maxSubs
}

func (b *Broker) subscriberSnapshot(topicID emtypes.TopicID) []emtypes.TaskID {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx, found := b.findTopicIndex(topicID)
	if !found {
		return nil
	}
	return append([]emtypes.TaskID(nil), b.topics[idx].subscribers...)
}

func (b *Broker) allocSequence() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq := b.nextSequence
	b.nextSequence++
	if b.nextSequence == 0 {
		b.nextSequence = 1
	}
	return seq
}

// Publish delivers msg to every subscriber of topicID. It sets sender,
// sequence (if zero), timestamp (if zero), and header type, then calls
// Mailbox.send per subscriber. It returns NotFound if the topic has no
// subscribers, OutOfMemory if every send failed, and Success otherwise.
func (b *Broker) Publish(senderID emtypes.TaskID, topicID emtypes.TopicID, msg Envelope) emtypes.ErrorCode {
	msg.Header.SenderID = uint16(senderID)
	if msg.Header.SequenceNumber == 0 {
		msg.Header.SequenceNumber = b.allocSequence()
	}
	if msg.Header.Timestamp == 0 && b.platform != nil {
		msg.Header.Timestamp = b.platform.NowUS()
	}
	msg.Header.Type = uint16(topicID)

	subs := b.subscriberSnapshot(topicID)
	if len(subs) == 0 {
		return emtypes.NotFound
	}

	sentAny := false
	for _, taskID := range subs {
		mb, ok := b.FindMailbox(taskID)
		if !ok {
			continue
		}
		if mb.send(msg, b.platform) == emtypes.Success {
			sentAny = true
		}
	}
	if sentAny {
		return emtypes.Success
	}
	return emtypes.OutOfMemory
}

// Broadcast sends msg to every registered mailbox, independent of topic
// subscription.
func (b *Broker) Broadcast(senderID emtypes.TaskID, msg Envelope) {
	msg.Header.SenderID = uint16(senderID)
	msg.Header.ReceiverID = 0xFFFF
	if msg.Header.SequenceNumber == 0 {
		msg.Header.SequenceNumber = b.allocSequence()
	}
	if msg.Header.Timestamp == 0 && b.platform != nil {
		msg.Header.Timestamp = b.platform.NowUS()
	}

	b.mu.Lock()
	targets := make([]*Mailbox, 0, len(b.mailboxes))
	for _, mb := range b.mailboxes {
		if mb != nil {
			targets = append(targets, mb)
		}
	}
	b.mu.Unlock()

	for _, mb := range targets {
		mb.send(msg, b.platform)
	}
}

// TryReceive attempts one non-blocking receive from taskID's mailbox.
func (b *Broker) TryReceive(taskID emtypes.TaskID) (Envelope, emtypes.ErrorCode) {
	mb, ok := b.FindMailbox(taskID)
	if !ok {
		return Envelope{}, emtypes.NotFound
	}
	return mb.receive(b.platform)
}

// Receive blocks up to timeoutMS waiting for a message. It tries once
// immediately, then waits on the task notification and retries once more.
func (b *Broker) Receive(taskID emtypes.TaskID, timeoutMS uint32) (Envelope, emtypes.ErrorCode) {
	mb, ok := b.FindMailbox(taskID)
	if !ok {
		return Envelope{}, emtypes.NotFound
	}
	if msg, code := mb.receive(b.platform); code == emtypes.Success {
		return msg, code
	}
	if b.platform == nil {
		return Envelope{}, emtypes.Timeout
	}
	if _, ok := b.platform.WaitNotification(mb.handle, timeoutMS); !ok {
		return Envelope{}, emtypes.Timeout
	}
	if msg, code := mb.receive(b.platform); code == emtypes.Success {
		return msg, code
	}
	return Envelope{}, emtypes.Timeout
}

// SetMailboxDepth clamps depth to the mailbox's total queue capacity.
func (b *Broker) SetMailboxDepth(taskID emtypes.TaskID, depth int) emtypes.ErrorCode {
	mb, ok := b.FindMailbox(taskID)
	if !ok {
		return emtypes.NotFound
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if depth > b.cfg.MailboxQueueCapacity {
		depth = b.cfg.MailboxQueueCapacity
	}
	mb.depthLimit = depth
	return emtypes.Success
}

// SetOverflowPolicy selects drop-oldest (true) or reject-new (false) for
// taskID's mailbox.
func (b *Broker) SetOverflowPolicy(taskID emtypes.TaskID, dropOldest bool) emtypes.ErrorCode {
	mb, ok := b.FindMailbox(taskID)
	if !ok {
		return emtypes.NotFound
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.dropOldest = dropOldest
	return emtypes.Success
}

// SetNotifyOnEmptyOnly applies enabled to every currently registered
// mailbox and to mailboxes registered afterward.
func (b *Broker) SetNotifyOnEmptyOnly(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifyOnEmptyOnly = enabled
	for _, mb := range b.mailboxes {
		if mb != nil {
			mb.mu.Lock()
			mb.notifyOnEmptyOnly = enabled
			mb.mu.Unlock()
		}
	}
}

// DroppedOverflow returns taskID's mailbox overflow-drop counter.
func (b *Broker) DroppedOverflow(taskID emtypes.TaskID) uint64 {
	mb, ok := b.FindMailbox(taskID)
	if !ok {
		return 0
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.droppedOverflow
}

// TopicCount reports how many topics currently have at least one
// subscriber registered.
func (b *Broker) TopicCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.topics {
		if len(t.subscribers) > 0 {
			n++
		}
	}
	return n
}
