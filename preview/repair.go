// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the repair loop's state.
type Phase string

const (
	// PhaseIdle: no program loaded yet.
	PhaseIdle Phase = "idle"

	// PhaseGenerating: waiting on the generation service for a fresh
	// program.
	PhaseGenerating Phase = "generating"

	// PhaseRunning: a program is loaded. It counts as good only once
	// the grace window passes without an error event; absence of an
	// error is the success signal, there is no positive health check.
	PhaseRunning Phase = "running"

	// PhaseRepairing: a runtime error arrived and a corrective
	// rewrite is in flight.
	PhaseRepairing Phase = "repairing"

	// PhaseExhausted: the attempt bound was hit without a clean run.
	// The active program has been reverted to the last known good
	// snapshot and automated recovery has stopped; only an explicit
	// user action leaves this phase.
	PhaseExhausted Phase = "exhausted"
)

// Repair loop defaults.
const (
	// DefaultMaxAttempts bounds consecutive automated repairs since
	// the last user commit.
	DefaultMaxAttempts = 3

	// DefaultGraceWindow is how long a loaded program must run
	// without an error event to be recorded as last known good.
	DefaultGraceWindow = 2 * time.Second

	// DefaultMaxFixLog bounds the in-memory fix-attempt log. Older
	// attempts fall off the front.
	DefaultMaxFixLog = 20
)

// FixAttempt records one automated repair cycle.
type FixAttempt struct {
	// ID identifies the attempt across journal writes.
	ID string `json:"id"`

	// At is when the repair was triggered.
	At time.Time `json:"at"`

	// Attempt is the 1-based attempt number within the current run
	// of consecutive repairs.
	Attempt int `json:"attempt"`

	// ErrorBefore is the runtime error that triggered the repair.
	ErrorBefore string `json:"errorBefore"`

	// ErrorSource is the failing position, when the trap knew one.
	ErrorSource string `json:"errorSource,omitempty"`

	// Snapshot is the program the corrective rewrite produced. Empty
	// while generation is still in flight or when it failed outright.
	Snapshot string `json:"snapshot,omitempty"`

	// ErrorAfter is the error that followed the corrective rewrite.
	// Nil while the attempt is pending and nil forever if the rewrite
	// ran cleanly; a pointer to the final error once the attempt is
	// known to have failed.
	ErrorAfter *string `json:"errorAfter"`
}

// fixLog is the bounded attempt ring. Appending past the bound drops
// the oldest entry.
type fixLog struct {
	attempts []FixAttempt
	bound    int
}

func newFixLog(bound int) *fixLog {
	if bound <= 0 {
		bound = DefaultMaxFixLog
	}
	return &fixLog{bound: bound}
}

func (log *fixLog) append(attempt FixAttempt) {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	log.attempts = append(log.attempts, attempt)
	if len(log.attempts) > log.bound {
		log.attempts = log.attempts[len(log.attempts)-log.bound:]
	}
}

// markLatest sets ErrorAfter on the most recent attempt.
func (log *fixLog) markLatest(errorAfter string) {
	if len(log.attempts) == 0 {
		return
	}
	log.attempts[len(log.attempts)-1].ErrorAfter = &errorAfter
}

// setLatestSnapshot records the program the most recent attempt's
// rewrite produced.
func (log *fixLog) setLatestSnapshot(snapshot string) {
	if len(log.attempts) == 0 {
		return
	}
	log.attempts[len(log.attempts)-1].Snapshot = snapshot
}

func (log *fixLog) all() []FixAttempt {
	return append([]FixAttempt(nil), log.attempts...)
}
