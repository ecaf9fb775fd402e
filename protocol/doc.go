// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the message envelope and transport for the
// host/sandbox boundary.
//
// Every message is a JSON object with a "type" discriminant and the
// payload fields flattened alongside it. Two disjoint channels exist:
// host→sandbox commands (imperative) and sandbox→host events
// (descriptive). Delivery is at-most-once, FIFO within a channel, and
// unordered across channels. There is no acknowledgment or retry
// layer: a lost command has no visible effect until the next state
// broadcast, which re-establishes consistency.
//
// Unknown message types are a forward-compatible no-op on both ends.
// Malformed messages are dropped, never fatal. Consumers must treat
// every incoming state snapshot as authoritative and discard stale
// local assumptions.
//
// The package is organized as:
//
//   - message.go: envelope encoding and decoding
//   - types.go: the command/event table and payload shapes
//   - conn.go: the Conn transport interface and stream transport
//   - pipe.go: in-memory bounded transport for same-process sandboxes
package protocol
