// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// Message is a single protocol message: a type discriminant plus the
// payload fields. On the wire the payload is flattened into the same
// JSON object as the type:
//
//	{"type":"updateParam","name":"height","value":2.5}
//
// Payload holds the message minus the "type" key, so consumers decode
// it directly into a payload struct with [Message.Decode].
type Message struct {
	// Type is the message type discriminant (e.g. "updateParam").
	Type string

	// Payload is the JSON object holding the payload fields. Never
	// nil: a message with no payload carries "{}".
	Payload json.RawMessage
}

// New builds a Message from a type and a payload value. The payload
// must marshal to a JSON object (or be nil for an empty payload).
func New(messageType string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: messageType, Payload: json.RawMessage("{}")}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: marshaling %s payload: %w", messageType, err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		return Message{}, fmt.Errorf("protocol: %s payload must be a JSON object, got %s", messageType, raw)
	}
	return Message{Type: messageType, Payload: raw}, nil
}

// MustNew is New for payload values that are known to marshal cleanly
// (the typed payload structs in this package). Panics on error; only
// for use with static payload types, never with caller-supplied data.
func MustNew(messageType string, payload any) Message {
	message, err := New(messageType, payload)
	if err != nil {
		panic(err)
	}
	return message
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("protocol: decoding %s payload: %w", m.Type, err)
	}
	return nil
}

// Marshal encodes a message to its wire form: one JSON object with
// the "type" key merged into the payload fields.
func Marshal(message Message) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(message.Payload) > 0 {
		if err := json.Unmarshal(message.Payload, &fields); err != nil {
			return nil, fmt.Errorf("protocol: payload of %s is not a JSON object: %w", message.Type, err)
		}
	}
	typeRaw, err := json.Marshal(message.Type)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshaling type: %w", err)
	}
	fields["type"] = typeRaw
	return json.Marshal(fields)
}

// Unmarshal decodes a wire-form JSON object into a Message. The
// "type" key must be present and a string; everything else becomes
// the payload. A missing or non-string type is a malformed message
// (callers drop it, per the protocol-noise policy).
func Unmarshal(data []byte) (Message, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("protocol: malformed message: %w", err)
	}

	typeRaw, ok := fields["type"]
	if !ok {
		return Message{}, fmt.Errorf("protocol: message has no type field")
	}
	var messageType string
	if err := json.Unmarshal(typeRaw, &messageType); err != nil {
		return Message{}, fmt.Errorf("protocol: message type is not a string: %w", err)
	}
	delete(fields, "type")

	payload, err := json.Marshal(fields)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: re-encoding payload: %w", err)
	}
	return Message{Type: messageType, Payload: payload}, nil
}
