// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"io"
	"sync"
	"sync/atomic"
)

// DefaultPipeBuffer is the per-direction message buffer for in-memory
// pipes. Large enough that drops only happen when a consumer has
// genuinely stalled.
const DefaultPipeBuffer = 256

// Pipe creates a connected pair of in-memory transports for running
// the sandbox in the same process. Messages still cross the boundary
// as serialized JSON bytes: no object graph is ever shared between
// the two ends, which keeps the one-way ownership property intact
// even in-process.
//
// Each direction is an independent FIFO with the given buffer (0
// means DefaultPipeBuffer). A full buffer drops the message, keeping
// delivery at-most-once; drops are counted on the sending end.
func Pipe(buffer int) (host, sandbox Conn) {
	if buffer <= 0 {
		buffer = DefaultPipeBuffer
	}
	shared := &pipeShared{closed: make(chan struct{})}
	hostToSandbox := make(chan []byte, buffer)
	sandboxToHost := make(chan []byte, buffer)

	host = &pipeEnd{shared: shared, send: hostToSandbox, receive: sandboxToHost}
	sandbox = &pipeEnd{shared: shared, send: sandboxToHost, receive: hostToSandbox}
	return host, sandbox
}

// pipeShared is the state common to both ends: closing either end
// closes the whole pipe, mirroring a torn-down execution context.
type pipeShared struct {
	closeOnce sync.Once
	closed    chan struct{}
}

type pipeEnd struct {
	shared  *pipeShared
	send    chan []byte
	receive chan []byte
	dropped atomic.Uint64
}

func (p *pipeEnd) Send(message Message) error {
	select {
	case <-p.shared.closed:
		return ErrClosed
	default:
	}

	data, err := Marshal(message)
	if err != nil {
		return err
	}

	select {
	case p.send <- data:
	default:
		// Buffer full: at-most-once means drop, not block. The next
		// state broadcast re-establishes consistency.
		p.dropped.Add(1)
	}
	return nil
}

func (p *pipeEnd) Receive() (Message, error) {
	select {
	case data := <-p.receive:
		return Unmarshal(data)
	case <-p.shared.closed:
		// Drain anything buffered before reporting EOF.
		select {
		case data := <-p.receive:
			return Unmarshal(data)
		default:
			return Message{}, io.EOF
		}
	}
}

func (p *pipeEnd) Close() error {
	p.shared.closeOnce.Do(func() { close(p.shared.closed) })
	return nil
}

// Dropped returns how many messages this end discarded because the
// peer's buffer was full. Diagnostic only.
func (p *pipeEnd) Dropped() uint64 { return p.dropped.Load() }
