// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/easel-foundation/easel/lib/testutil"
)

func TestPipeDeliversInOrder(t *testing.T) {
	host, sandbox := Pipe(8)
	defer host.Close()

	for i := 0; i < 5; i++ {
		if err := host.Send(NewUpdateParamCommand("n", i)); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		message, err := sandbox.Receive()
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		var payload UpdateParamPayload
		if err := message.Decode(&payload); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		// JSON numbers decode as float64.
		if payload.Value != float64(i) {
			t.Errorf("message %d carried value %v, want %d (FIFO violated)", i, payload.Value, i)
		}
	}
}

func TestPipeDropsWhenFull(t *testing.T) {
	host, sandbox := Pipe(2)
	defer host.Close()
	_ = sandbox

	for i := 0; i < 5; i++ {
		if err := host.Send(NewUpdateParamCommand("n", i)); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	end := host.(*pipeEnd)
	if got := end.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3 (buffer 2, sent 5)", got)
	}

	// The two buffered messages are the oldest: at-most-once drops
	// new sends, it never evicts delivered order.
	first, err := sandbox.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	var payload UpdateParamPayload
	if err := first.Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Value != float64(0) {
		t.Errorf("first delivered value = %v, want 0", payload.Value)
	}
}

func TestPipeCloseUnblocksReceive(t *testing.T) {
	host, sandbox := Pipe(0)

	received := make(chan error, 1)
	go func() {
		_, err := sandbox.Receive()
		received <- err
	}()

	host.Close()
	err := testutil.RequireReceive(t, received, 5*time.Second, "Receive should return after Close")
	if !errors.Is(err, io.EOF) {
		t.Errorf("Receive after Close = %v, want io.EOF", err)
	}
}

func TestPipeSendAfterClose(t *testing.T) {
	host, sandbox := Pipe(0)
	sandbox.Close()

	if err := host.Send(NewErrorEvent("x", "")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestPipeDrainsBufferedAfterClose(t *testing.T) {
	host, sandbox := Pipe(4)

	if err := host.Send(NewUpdateParamCommand("n", 1)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	host.Close()

	message, err := sandbox.Receive()
	if err != nil {
		t.Fatalf("Receive buffered after close: %v", err)
	}
	if message.Type != TypeUpdateParam {
		t.Errorf("Type = %q, want %q", message.Type, TypeUpdateParam)
	}
	if _, err := sandbox.Receive(); !errors.Is(err, io.EOF) {
		t.Errorf("second Receive = %v, want io.EOF", err)
	}
}

func TestPipeChannelsAreIndependent(t *testing.T) {
	host, sandbox := Pipe(1)
	defer host.Close()

	// Saturate host→sandbox; sandbox→host must still deliver.
	for i := 0; i < 3; i++ {
		if err := host.Send(NewUpdateParamCommand("n", i)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if err := sandbox.Send(NewErrorEvent("independent", "")); err != nil {
		t.Fatalf("sandbox Send: %v", err)
	}

	message, err := host.Receive()
	if err != nil {
		t.Fatalf("host Receive: %v", err)
	}
	if message.Type != TypeError {
		t.Errorf("Type = %q, want %q", message.Type, TypeError)
	}
	if got := sandbox.(*pipeEnd).Dropped(); got != 0 {
		t.Errorf("sandbox end dropped %d messages; channels should be independent", got)
	}
}

func TestPipeSerializesAcrossBoundary(t *testing.T) {
	// A mutable value sent through the pipe must not alias the
	// sender's copy: only serialized bytes cross the boundary.
	host, sandbox := Pipe(1)
	defer host.Close()

	graph := []SceneNode{{ID: "a", Name: "cube", Kind: "box", Visible: true}}
	if err := sandbox.Send(NewSceneGraphUpdateEvent(graph)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	graph[0].Name = "mutated-after-send"

	message, err := host.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	var payload SceneGraphUpdatePayload
	if err := message.Decode(&payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if payload.Graph[0].Name != "cube" {
		t.Errorf("Name = %q; sender-side mutation leaked across the boundary", payload.Graph[0].Name)
	}
}

func BenchmarkPipeRoundTrip(b *testing.B) {
	host, sandbox := Pipe(1)
	defer host.Close()

	message := NewUpdateParamCommand("height", 2.5)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := host.Send(message); err != nil {
			b.Fatal(err)
		}
		if _, err := sandbox.Receive(); err != nil {
			b.Fatal(err)
		}
	}
}
