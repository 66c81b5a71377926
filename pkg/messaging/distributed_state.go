// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package messaging

import (
	"encoding/binary"

	"github.com/Thermoquad/emcore/pkg/emtypes"
	"github.com/Thermoquad/emcore/pkg/platform"
)

// GuardFunc decides whether a peer should accept a proposed state
// transition from current to proposed.
type GuardFunc[S any] func(current, proposed S) bool

type pendingProposal[S any] struct {
	state S
	acks  int
}

// DistributedState is the propose/ack/commit coordination protocol of
// spec.md section 4.4, grounded on distributed_state.hpp. S is encoded and
// decoded via the Encode/Decode functions supplied to New, the Go analogue
// of the original's fixed-layout reinterpret_cast byte copy.
type DistributedState[S any] struct {
	broker         *Broker
	platform       platform.Platform
	selfTaskID     emtypes.TaskID
	proposeTopic   emtypes.TopicID
	ackTopic       emtypes.TopicID
	commitTopic    emtypes.TopicID
	maxPeers       int
	maxOutstanding int

	encode func(S) []byte
	decode func([]byte) (S, bool)

	state    S
	pending  map[uint16]*pendingProposal[S]
	localSeq uint16
}

// NewDistributedState constructs a coordinator seeded with initial state,
// communicating on the three given topics, with maxPeers participants
// (the quorum is (maxPeers/2)+1).
func NewDistributedState[S any](
	broker *Broker,
	p platform.Platform,
	selfTaskID emtypes.TaskID,
	proposeTopic, ackTopic, commitTopic emtypes.TopicID,
	maxPeers, maxOutstanding int,
	initial S,
	encode func(S) []byte,
	decode func([]byte) (S, bool),
) *DistributedState[S] {
	if maxOutstanding < 1 {
		maxOutstanding = 4
	}
	return &DistributedState[S]{
		broker:         broker,
		platform:       p,
		selfTaskID:     selfTaskID,
		proposeTopic:   proposeTopic,
		ackTopic:       ackTopic,
		commitTopic:    commitTopic,
		maxPeers:       maxPeers,
		maxOutstanding: maxOutstanding,
		encode:         encode,
		decode:         decode,
		state:          initial,
		pending:        make(map[uint16]*pendingProposal[S], maxOutstanding),
		localSeq:       1,
	}
}

func (d *DistributedState[S]) now() uint64 {
	if d.platform != nil {
		return d.platform.NowUS()
	}
	return 0
}

func (d *DistributedState[S]) nextSeq() uint16 {
	s := d.localSeq
	d.localSeq++
	if d.localSeq == 0 {
		d.localSeq = 1
	}
	return s
}

// Propose starts a new proposal, broadcasting it on proposeTopic. It
// returns the assigned sequence number, or 0 if the pending table is full.
func (d *DistributedState[S]) Propose(newState S) uint16 {
	if len(d.pending) >= d.maxOutstanding {
		return 0
	}
	seq := d.nextSeq()
	d.pending[seq] = &pendingProposal[S]{state: newState, acks: 1}

	msg := SmallMessage()
	msg.Header.Type = uint16(d.proposeTopic)
	msg.Header.SenderID = uint16(d.selfTaskID)
	msg.Header.ReceiverID = 0xFFFF
	msg.Header.SequenceNumber = seq
	msg.Header.Timestamp = d.now()
	msg.Payload = encodeProposal(seq, uint16(d.selfTaskID), d.encode(newState))
	msg.Header.PayloadSize = uint16(len(msg.Payload))

	d.broker.Publish(d.selfTaskID, d.proposeTopic, msg)
	return seq
}

// ProcessMessage dispatches msg to the propose/ack/commit handler matching
// its header type; guard decides whether this peer accepts a proposal.
func (d *DistributedState[S]) ProcessMessage(msg Envelope, guard GuardFunc[S]) {
	switch emtypes.TopicID(msg.Header.Type) {
	case d.proposeTopic:
		d.onPropose(msg, guard)
	case d.ackTopic:
		d.onAck(msg)
	case d.commitTopic:
		d.onCommit(msg)
	}
}

// Current returns the coordinator's committed state.
func (d *DistributedState[S]) Current() S { return d.state }

func (d *DistributedState[S]) onPropose(msg Envelope, guard GuardFunc[S]) {
	seq, from, stateBytes, ok := decodeProposal(msg.Payload)
	if !ok || from == uint16(d.selfTaskID) {
		return
	}
	proposed, ok := d.decode(stateBytes)
	if !ok {
		return
	}
	if !guard(d.state, proposed) {
		return
	}

	ack := SmallMessage()
	ack.Header.Type = uint16(d.ackTopic)
	ack.Header.SenderID = uint16(d.selfTaskID)
	ack.Header.ReceiverID = from
	ack.Header.SequenceNumber = seq
	ack.Header.Timestamp = d.now()
	ack.Payload = encodeAckVote(seq, uint16(d.selfTaskID), true)
	ack.Header.PayloadSize = uint16(len(ack.Payload))
	d.broker.Publish(d.selfTaskID, d.ackTopic, ack)
}

func (d *DistributedState[S]) onAck(msg Envelope) {
	seq, _, accept, ok := decodeAckVote(msg.Payload)
	if !ok || !accept {
		return
	}
	info, exists := d.pending[seq]
	if !exists {
		return
	}
	info.acks++
	majority := d.maxPeers/2 + 1
	if info.acks < majority {
		return
	}

	d.state = info.state
	commit := SmallMessage()
	commit.Header.Type = uint16(d.commitTopic)
	commit.Header.SenderID = uint16(d.selfTaskID)
	commit.Header.ReceiverID = 0xFFFF
	commit.Header.SequenceNumber = seq
	commit.Header.Timestamp = d.now()
	commit.Payload = encodeCommit(seq, d.encode(d.state))
	commit.Header.PayloadSize = uint16(len(commit.Payload))
	d.broker.Publish(d.selfTaskID, d.commitTopic, commit)
	delete(d.pending, seq)
}

func (d *DistributedState[S]) onCommit(msg Envelope) {
	_, stateBytes, ok := decodeCommit(msg.Payload)
	if !ok {
		return
	}
	if committed, ok := d.decode(stateBytes); ok {
		d.state = committed
	}
}

func encodeProposal(seq, from uint16, state []byte) []byte {
	buf := make([]byte, 4+len(state))
	binary.LittleEndian.PutUint16(buf[0:2], seq)
	binary.LittleEndian.PutUint16(buf[2:4], from)
	copy(buf[4:], state)
	return buf
}

func decodeProposal(payload []byte) (seq, from uint16, state []byte, ok bool) {
	if len(payload) < 4 {
		return 0, 0, nil, false
	}
	seq = binary.LittleEndian.Uint16(payload[0:2])
	from = binary.LittleEndian.Uint16(payload[2:4])
	return seq, from, payload[4:], true
}

func encodeAckVote(seq, from uint16, accept bool) []byte {
	buf := make([]byte, 5)
	binary.LittleEndian.PutUint16(buf[0:2], seq)
	binary.LittleEndian.PutUint16(buf[2:4], from)
	if accept {
		buf[4] = 1
	}
	return buf
}

func decodeAckVote(payload []byte) (seq, from uint16, accept bool, ok bool) {
	if len(payload) < 5 {
		return 0, 0, false, false
	}
	seq = binary.LittleEndian.Uint16(payload[0:2])
	from = binary.LittleEndian.Uint16(payload[2:4])
	return seq, from, payload[4] != 0, true
}

func encodeCommit(seq uint16, state []byte) []byte {
	buf := make([]byte, 2+len(state))
	binary.LittleEndian.PutUint16(buf[0:2], seq)
	copy(buf[2:], state)
	return buf
}

func decodeCommit(payload []byte) (seq uint16, state []byte, ok bool) {
	if len(payload) < 2 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint16(payload[0:2]), payload[2:], true
}
