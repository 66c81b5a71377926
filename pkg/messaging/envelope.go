// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package messaging implements the emCore message envelope, broker,
// QoS layer, and distributed-state protocol (spec.md sections 3 and 4.3,
// 4.4; system-overview components I, J, K, L). It is grounded on
// original_source/messaging/message_types.hpp and message_broker.hpp,
// the single richest reference file in the original source tree.
package messaging

import "github.com/Thermoquad/emcore/pkg/emtypes"

// Header is the fixed message header present on every envelope.
type Header struct {
	Type           uint16 // message type ID; set to the topic ID on publish
	SenderID       uint16
	ReceiverID     uint16 // 0xFFFF = broadcast
	Priority       emtypes.MessagePriority
	Flags          emtypes.MessageFlags
	Timestamp      uint64
	PayloadSize    uint16
	SequenceNumber uint16
}

// HasFlag reports whether every bit of check is set in the header's flags.
func (h Header) HasFlag(check emtypes.MessageFlags) bool { return h.Flags.Has(check) }

const (
	// SmallPayloadSize is the default small-envelope payload capacity.
	SmallPayloadSize = 16
	// MediumPayloadSize is the default medium-envelope payload capacity.
	MediumPayloadSize = 64
	// LargePayloadSize is the default large-envelope payload capacity.
	LargePayloadSize = 256
)

// Envelope is a fixed-size message: a header plus an inline payload
// buffer. Three standard sizes exist (Small/Medium/Large message below);
// all three share this representation, so a single Broker carries every
// size class; the class only fixes the payload buffer's preallocated
// capacity.
type Envelope struct {
	Header  Header
	Payload []byte // len(Payload) <= the envelope class's capacity
}

// Clone returns an Envelope with an independently-owned payload slice,
// safe to hold after the source envelope is reused.
func (e Envelope) Clone() Envelope {
	out := e
	out.Payload = append([]byte(nil), e.Payload...)
	return out
}

// SmallMessage returns an empty envelope whose payload has capacity
// SmallPayloadSize; appending past it is not prevented.
func SmallMessage() Envelope { return Envelope{Payload: make([]byte, 0, SmallPayloadSize)} }

// MediumMessage returns an empty envelope whose payload has capacity
// MediumPayloadSize; appending past it is not prevented.
func MediumMessage() Envelope { return Envelope{Payload: make([]byte, 0, MediumPayloadSize)} }

// LargeMessage returns an empty envelope whose payload has capacity
// LargePayloadSize; appending past it is not prevented.
func LargeMessage() Envelope { return Envelope{Payload: make([]byte, 0, LargePayloadSize)} }

// Ack is the small fixed-size acknowledgement payload carried on a
// qos_publisher's configured ACK topic.
type Ack struct {
	SequenceNumber uint16
	SenderID       uint16
	Success        bool
	ErrorCode      uint8
}
