// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Send on a closed transport.
var ErrClosed = errors.New("protocol: connection closed")

// maxLineBytes bounds a single wire message. Program sources ride in
// loadProgram payloads, so the bound is generous; anything larger is
// protocol noise.
const maxLineBytes = 8 * 1024 * 1024

// Conn is one end of the host/sandbox boundary. Send is at-most-once:
// it never blocks on a slow peer and may drop when the transport is
// saturated. Receive blocks until the next message arrives and returns
// io.EOF once the transport is closed and drained.
//
// Send is safe for concurrent use; Receive is not (one pump goroutine
// per end).
type Conn interface {
	Send(message Message) error
	Receive() (Message, error)
	Close() error
}

// NewStreamConn builds a Conn over a byte stream carrying
// newline-delimited JSON messages, one object per line. This is the
// transport for the easel-sandbox subprocess (stdin carries commands,
// stdout carries events).
//
// Malformed lines are dropped with a debug log, never surfaced:
// protocol noise must not kill the stream. Lines exceeding the size
// bound are likewise skipped.
func NewStreamConn(reader io.Reader, writer io.Writer, logger *slog.Logger) Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamConn{
		reader:    bufio.NewReaderSize(reader, 64*1024),
		rawReader: reader,
		writer:    writer,
		logger:    logger,
		closed:    make(chan struct{}),
	}
}

type streamConn struct {
	reader    *bufio.Reader
	rawReader io.Reader
	writer    io.Writer
	logger    *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func (c *streamConn) Send(message Message) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	data, err := Marshal(message)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("protocol: writing message: %w", err)
	}
	return nil
}

func (c *streamConn) Receive() (Message, error) {
	for {
		select {
		case <-c.closed:
			return Message{}, io.EOF
		default:
		}

		line, err := c.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Message{}, io.EOF
			}
			return Message{}, fmt.Errorf("protocol: reading message: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		message, err := Unmarshal(line)
		if err != nil {
			// Protocol noise: drop and keep reading.
			c.logger.Debug("dropping malformed message", "error", err)
			continue
		}
		return message, nil
	}
}

// readLine reads one newline-terminated line, enforcing the size
// bound. Oversized lines are consumed and discarded; the caller sees
// an empty line and keeps going.
func (c *streamConn) readLine() ([]byte, error) {
	var line []byte
	oversized := false
	for {
		fragment, isPrefix, err := readLineFragment(c.reader)
		if err != nil {
			return nil, err
		}
		if !oversized {
			line = append(line, fragment...)
			if len(line) > maxLineBytes {
				c.logger.Debug("dropping oversized message", "bytes_so_far", len(line))
				line = nil
				oversized = true
			}
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func readLineFragment(reader *bufio.Reader) ([]byte, bool, error) {
	fragment, err := reader.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return fragment, true, nil
	}
	if err != nil {
		if len(fragment) > 0 && err == io.EOF {
			// Final unterminated line still counts.
			return fragment, false, nil
		}
		return nil, false, err
	}
	return fragment[:len(fragment)-1], false, nil
}

func (c *streamConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	var err error
	if closer, ok := c.writer.(io.Closer); ok {
		err = closer.Close()
	}
	if closer, ok := c.rawReader.(io.Closer); ok {
		closeErr := closer.Close()
		if err == nil {
			err = closeErr
		}
	}
	return err
}
