// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"encoding/binary"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

// DefaultAckTimeoutUS is the retransmit interval from spec.md's default
// config table (default_ack_timeout_us).
const DefaultAckTimeoutUS uint64 = 500000

type pendingEntry struct {
	msg      Envelope
	topicID  emtypes.TopicID
	lastSend uint64
	attempts uint16
}

// QoSPublisher adds ACK-based delivery with retransmission on top of a
// Broker, grounded on qos_pubsub.hpp's qos_publisher.
type QoSPublisher struct {
	broker     *Broker
	platform   platform.Platform
	fromTaskID emtypes.TaskID
	ackTopicID emtypes.TopicID
	pendingCap int
	pending    map[uint16]*pendingEntry
	localSeq   uint16
}

// NewQoSPublisher constructs a publisher bound to broker, sending as
// fromTaskID, with acks expected on ackTopicID.
func NewQoSPublisher(broker *Broker, p platform.Platform, fromTaskID emtypes.TaskID, ackTopicID emtypes.TopicID, pendingLimit int) *QoSPublisher {
	if pendingLimit < 1 {
		pendingLimit = 1
	}
	return &QoSPublisher{
		broker:     broker,
		platform:   p,
		fromTaskID: fromTaskID,
		ackTopicID: ackTopicID,
		pendingCap: pendingLimit,
		pending:    make(map[uint16]*pendingEntry),
		localSeq:   1,
	}
}

func (q *QoSPublisher) nextSeq() uint16 {
	s := q.localSeq
	q.localSeq++
	if q.localSeq == 0 {
		q.localSeq = 1
	}
	return s
}

func (q *QoSPublisher) now() uint64 {
	if q.platform != nil {
		return q.platform.NowUS()
	}
	return 0
}

// Publish marks msg as requiring an ack, assigns a sequence number and
// timestamp if unset, tracks it in the pending table, and forwards it to
// the broker. It returns OutOfMemory if the pending table is already full
// or already holds that sequence number.
func (q *QoSPublisher) Publish(topicID emtypes.TopicID, msg Envelope) emtypes.ErrorCode {
	msg.Header.Flags |= emtypes.FlagRequiresAck
	if msg.Header.Timestamp == 0 {
		msg.Header.Timestamp = q.now()
	}
	if msg.Header.SequenceNumber == 0 {
		msg.Header.SequenceNumber = q.nextSeq()
	}
	msg.Header.Type = uint16(topicID)

	if len(q.pending) >= q.pendingCap {
		return emtypes.OutOfMemory
	}
	if _, exists := q.pending[msg.Header.SequenceNumber]; exists {
		return emtypes.OutOfMemory
	}
	q.pending[msg.Header.SequenceNumber] = &pendingEntry{
		msg:      msg.Clone(),
		topicID:  topicID,
		lastSend: msg.Header.Timestamp,
		attempts: 1,
	}
	return q.broker.Publish(q.fromTaskID, topicID, msg)
}

// PumpRetransmit republishes every pending message whose last send exceeded
// DefaultAckTimeoutUS, bumping its attempt counter.
func (q *QoSPublisher) PumpRetransmit() {
	now := q.now()
	for _, entry := range q.pending {
		if now-entry.lastSend >= DefaultAckTimeoutUS {
			entry.lastSend = now
			entry.attempts++
			q.broker.Publish(q.fromTaskID, entry.topicID, entry.msg)
		}
	}
}

// OnAck removes the acknowledged sequence number from the pending table.
func (q *QoSPublisher) OnAck(ack Ack) {
	delete(q.pending, ack.SequenceNumber)
}

// PendingCount reports the number of unacknowledged in-flight messages.
func (q *QoSPublisher) PendingCount() int { return len(q.pending) }

// TryHandleAckMessage decodes msg as an Ack if its type matches the
// configured ack topic, applying it via OnAck. It reports whether msg was
// consumed as an ack.
func (q *QoSPublisher) TryHandleAckMessage(msg Envelope) bool {
	if emtypes.TopicID(msg.Header.Type) != q.ackTopicID {
		return false
	}
	ack, ok := decodeAck(msg.Payload)
	if !ok {
		return false
	}
	q.OnAck(ack)
	return true
}

const ackWireSize = 6 // seq(2) + sender(2) + success(1) + error_code(1)

func encodeAck(ack Ack) []byte {
	buf := make([]byte, ackWireSize)
	binary.BigEndian.PutUint16(buf[0:2], ack.SequenceNumber)
	binary.BigEndian.PutUint16(buf[2:4], ack.SenderID)
	if ack.Success {
		buf[4] = 1
	}
	buf[5] = ack.ErrorCode
	return buf
}

func decodeAck(payload []byte) (Ack, bool) {
	if len(payload) != ackWireSize {
		return Ack{}, false
	}
	return Ack{
		SequenceNumber: binary.BigEndian.Uint16(payload[0:2]),
		SenderID:       binary.BigEndian.Uint16(payload[2:4]),
		Success:        payload[4] != 0,
		ErrorCode:      payload[5],
	}, true
}

// QoSSubscriber enforces per-(sender,topic) monotonic sequence ordering and
// replies with an Ack when a message requests one, grounded on
// qos_pubsub.hpp's qos_subscriber.
type QoSSubscriber struct {
	broker     *Broker
	platform   platform.Platform
	selfTaskID emtypes.TaskID
	ackTopicID emtypes.TopicID
	trackLimit int
	lastSeq    map[uint32]uint16
}

// NewQoSSubscriber constructs a subscriber receiving as selfTaskID and
// acking on ackTopicID.
func NewQoSSubscriber(broker *Broker, p platform.Platform, selfTaskID emtypes.TaskID, ackTopicID emtypes.TopicID, trackLimit int) *QoSSubscriber {
	if trackLimit < 1 {
		trackLimit = 32
	}
	return &QoSSubscriber{
		broker:     broker,
		platform:   p,
		selfTaskID: selfTaskID,
		ackTopicID: ackTopicID,
		trackLimit: trackLimit,
		lastSeq:    make(map[uint32]uint16),
	}
}

func seqTrackKey(senderID uint16, msgType uint16) uint32 {
	return uint32(senderID)<<16 | uint32(msgType)
}

// Receive blocks up to timeoutMS for the next message on the mailbox,
// rejecting stale or duplicate deliveries (per the wraparound-safe signed
// difference comparison) as NotFound, and replying with an Ack whenever
// the message carries FlagRequiresAck or was itself rejected as stale.
func (s *QoSSubscriber) Receive(timeoutMS uint32) (Envelope, emtypes.ErrorCode) {
	msg, code := s.broker.Receive(s.selfTaskID, timeoutMS)
	if code != emtypes.Success {
		return Envelope{}, code
	}

	key := seqTrackKey(msg.Header.SenderID, msg.Header.Type)
	seq := msg.Header.SequenceNumber
	if last, tracked := s.lastSeq[key]; tracked {
		if int16(seq-last) <= 0 {
			s.sendAck(seq, msg.Header.SenderID, true)
			return Envelope{}, emtypes.NotFound
		}
		s.lastSeq[key] = seq
	} else if len(s.lastSeq) < s.trackLimit {
		s.lastSeq[key] = seq
	}

	if msg.Header.HasFlag(emtypes.FlagRequiresAck) {
		s.sendAck(seq, msg.Header.SenderID, true)
	}
	return msg, emtypes.Success
}

func (s *QoSSubscriber) sendAck(seq uint16, toSender uint16, success bool) {
	ack := Ack{SequenceNumber: seq, SenderID: uint16(s.selfTaskID), Success: success}
	ackMsg := SmallMessage()
	ackMsg.Header.Type = uint16(s.ackTopicID)
	ackMsg.Header.SenderID = uint16(s.selfTaskID)
	ackMsg.Header.ReceiverID = toSender
	if s.platform != nil {
		ackMsg.Header.Timestamp = s.platform.NowUS()
	}
	ackMsg.Payload = encodeAck(ack)
	ackMsg.Header.PayloadSize = uint16(len(ackMsg.Payload))
	s.broker.Publish(s.selfTaskID, s.ackTopicID, ackMsg)
}
