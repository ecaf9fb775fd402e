// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/easel-foundation/easel/generate"
	"github.com/easel-foundation/easel/lib/clock"
	"github.com/easel-foundation/easel/lib/testutil"
	"github.com/easel-foundation/easel/protocol"
	"github.com/easel-foundation/easel/sandbox"
)

const testTimeout = 5 * time.Second

const (
	goodProgram  = "box(size=[10, 10, 10], name=\"stable\")"
	otherProgram = "sphere(radius=8, name=\"round\")"
	// Parses but fails during evaluation, like typical generated
	// mistakes.
	brokenProgram = "box()\nsphere(radius=-1)"
)

type sessionHarness struct {
	session  *Session
	service  *generate.ScriptedService
	clock    *clock.FakeClock
	statuses chan Status
}

type harnessConfig struct {
	steps      []generate.ScriptStep
	noService  bool
	autoRepair bool
	journal    *Journal
}

// startSession wires a Session to a real in-process sandbox. The
// sandbox runs on a fake clock that is never advanced, so broadcasts
// happen only on load and on demand; the session runs on its own fake
// clock so tests control the grace window.
func startSession(t *testing.T, config harnessConfig) *sessionHarness {
	t.Helper()

	hostConn, sandboxConn := protocol.Pipe(256)
	sandboxClock := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	box, err := sandbox.New(sandbox.Options{
		Conn:      sandboxConn,
		Clock:     sandboxClock,
		ExportDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("sandbox.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sandboxDone := make(chan struct{})
	go func() {
		defer close(sandboxDone)
		_ = box.Run(ctx)
	}()

	statuses := make(chan Status, 1024)
	var service *generate.ScriptedService
	options := Options{
		Conn:              hostConn,
		Clock:             clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
		DisableAutoRepair: !config.autoRepair,
		Journal:           config.journal,
		OnUpdate:          func(status Status) { statuses <- status },
	}
	if !config.noService {
		service = generate.NewScriptedService(config.steps...)
		options.Service = service
	}
	sessionClock := options.Clock.(*clock.FakeClock)

	session, err := NewSession(options)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		_ = session.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		session.Close()
		testutil.RequireClosed(t, sessionDone, testTimeout, "session shutdown")
		testutil.RequireClosed(t, sandboxDone, testTimeout, "sandbox shutdown")
	})

	return &sessionHarness{
		session:  session,
		service:  service,
		clock:    sessionClock,
		statuses: statuses,
	}
}

// waitStatus drains status updates until condition holds.
func (h *sessionHarness) waitStatus(t *testing.T, description string, condition func(Status) bool) Status {
	t.Helper()
	for {
		status := testutil.RequireReceive(t, h.statuses, testTimeout, "waiting for %s", description)
		if condition(status) {
			return status
		}
	}
}

// settle advances the session clock through the grace window and
// waits for the active program to be recorded as known good.
func (h *sessionHarness) settle(t *testing.T, code string) {
	t.Helper()
	h.waitStatus(t, "program running", func(s Status) bool {
		return s.Phase == PhaseRunning && s.ActiveCode == code
	})
	h.clock.Advance(DefaultGraceWindow)
	h.waitStatus(t, "program recorded as good", func(s Status) bool {
		return s.LastKnownGood == code
	})
}

func TestGenerateCommitsAndRuns(t *testing.T) {
	h := startSession(t, harnessConfig{
		autoRepair: true,
		steps:      []generate.ScriptStep{{Code: goodProgram}},
	})

	if err := h.session.Generate(context.Background(), "a stable box"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	status := h.waitStatus(t, "scene graph", func(s Status) bool {
		return s.Phase == PhaseRunning && len(s.Graph) == 1
	})
	if status.Graph[0].Name != "stable" {
		t.Errorf("graph = %+v", status.Graph)
	}
	if status.HistoryLength != 1 || status.HistoryCursor != 0 {
		t.Errorf("history len=%d cursor=%d, want 1/0", status.HistoryLength, status.HistoryCursor)
	}

	entries := h.session.HistoryEntries()
	if entries[0].OriginPrompt != "a stable box" || entries[0].Snapshot != goodProgram {
		t.Errorf("entry = %+v", entries[0])
	}

	h.settle(t, goodProgram)
}

func TestRepairLoopFixesBrokenProgram(t *testing.T) {
	h := startSession(t, harnessConfig{
		autoRepair: true,
		steps:      []generate.ScriptStep{{Code: goodProgram}},
	})

	if err := h.session.ApplyCode(otherProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.settle(t, otherProgram)

	if err := h.session.ApplyCode(brokenProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}

	h.waitStatus(t, "repair in flight or done", func(s Status) bool {
		return s.Attempts == 1
	})
	h.settle(t, goodProgram)

	status := h.session.Status()
	if status.Phase != PhaseRunning || status.ActiveCode != goodProgram {
		t.Errorf("phase=%s active=%q after repair", status.Phase, status.ActiveCode)
	}
	if len(status.FixAttempts) != 1 {
		t.Fatalf("fix log has %d attempts, want 1", len(status.FixAttempts))
	}
	if status.FixAttempts[0].ErrorAfter != nil {
		t.Errorf("successful fix marked failed: %v", *status.FixAttempts[0].ErrorAfter)
	}

	// The repair request must carry the failing program, the error,
	// and the last good program for diff context.
	requests := h.service.Requests()
	repair := requests[len(requests)-1].Repair
	if repair == nil {
		t.Fatal("repair request had no repair context")
	}
	if repair.FailingCode != brokenProgram || repair.LastGoodCode != otherProgram {
		t.Errorf("repair context = %+v", repair)
	}
	if repair.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", repair.Attempt)
	}
}

// A repair whose rewrite errors again must be recorded as failed in
// the ledger: ErrorAfter nil is the success marker, so only the
// attempt that finally runs clean may keep it nil.
func TestIntermediateFailedAttemptMarkedInLedger(t *testing.T) {
	retryProgram := brokenProgram + " # retry"
	h := startSession(t, harnessConfig{
		autoRepair: true,
		steps: []generate.ScriptStep{
			{Code: retryProgram},
			{Code: otherProgram},
		},
	})

	if err := h.session.ApplyCode(goodProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.settle(t, goodProgram)
	if err := h.session.ApplyCode(brokenProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.waitStatus(t, "second attempt", func(s Status) bool { return s.Attempts == 2 })
	h.settle(t, otherProgram)

	attempts := h.session.Status().FixAttempts
	if len(attempts) != 2 {
		t.Fatalf("fix log has %d attempts, want 2", len(attempts))
	}
	first, second := attempts[0], attempts[1]
	if first.ErrorAfter == nil {
		t.Fatal("failed attempt has nil ErrorAfter, recorded as a success")
	}
	if first.Snapshot != retryProgram {
		t.Errorf("first attempt snapshot = %q, want the rewrite it produced", first.Snapshot)
	}
	if second.ErrorAfter != nil {
		t.Errorf("clean attempt marked failed: %v", *second.ErrorAfter)
	}
	if second.Snapshot != otherProgram {
		t.Errorf("second attempt snapshot = %q, want %q", second.Snapshot, otherProgram)
	}
	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Errorf("attempt ids = %q and %q, want distinct non-empty ids", first.ID, second.ID)
	}
}

// The bound scenario: a broken program whose every "fix" is broken
// too. The loop must stop after three attempts, revert to the last
// known good snapshot, and park in Exhausted.
func TestRepairLoopExhaustsAndReverts(t *testing.T) {
	journal := NewJournal(filepath.Join(t.TempDir(), "fixes.cbor"))
	h := startSession(t, harnessConfig{
		autoRepair: true,
		journal:    journal,
		steps: []generate.ScriptStep{
			{Code: brokenProgram + " # fix 1"},
			{Code: brokenProgram + " # fix 2"},
			{Code: brokenProgram + " # fix 3"},
		},
	})

	if err := h.session.ApplyCode(goodProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.settle(t, goodProgram)

	if err := h.session.ApplyCode(brokenProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}

	status := h.waitStatus(t, "exhaustion", func(s Status) bool {
		return s.Phase == PhaseExhausted
	})

	if !status.Reverted {
		t.Error("exhausted session did not report a revert")
	}
	if status.ActiveCode != goodProgram {
		t.Errorf("active after revert = %q, want the pre-error snapshot", status.ActiveCode)
	}
	if status.LastError == nil {
		t.Error("exhausted session surfaced no error")
	}
	if status.Attempts != DefaultMaxAttempts {
		t.Errorf("attempts = %d, want %d", status.Attempts, DefaultMaxAttempts)
	}
	if h.service.Calls() != DefaultMaxAttempts {
		t.Errorf("service called %d times, want exactly %d", h.service.Calls(), DefaultMaxAttempts)
	}

	if len(status.FixAttempts) != DefaultMaxAttempts {
		t.Fatalf("fix log has %d attempts, want %d", len(status.FixAttempts), DefaultMaxAttempts)
	}
	// Every rewrite errored, so every attempt must be marked failed.
	for i, attempt := range status.FixAttempts {
		if attempt.ErrorAfter == nil {
			t.Errorf("attempt %d not marked failed", i+1)
		}
	}

	// The revert reloaded the good program; the sandbox must be
	// showing its scene again.
	h.waitStatus(t, "reverted scene", func(s Status) bool {
		return len(s.Graph) == 1 && s.Graph[0].Name == "stable"
	})

	// Exhausted is sticky: further errors must not trigger loads.
	// (A revert loop would show up as service calls past the bound.)
	if h.service.Calls() != DefaultMaxAttempts {
		t.Errorf("service called again after exhaustion")
	}

	// The journal captured the full attempt log.
	persisted, err := journal.Read()
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	if len(persisted) != DefaultMaxAttempts {
		t.Errorf("journal has %d attempts, want %d", len(persisted), DefaultMaxAttempts)
	}
	if persisted[len(persisted)-1].ErrorAfter == nil {
		t.Error("journal's final attempt not marked failed")
	}
}

func TestUserCommitResetsAttemptCounter(t *testing.T) {
	h := startSession(t, harnessConfig{
		autoRepair: true,
		steps: []generate.ScriptStep{
			{Code: brokenProgram + " # fix 1"},
			{Code: brokenProgram + " # fix 2"},
			{Code: brokenProgram + " # fix 3"},
		},
	})

	if err := h.session.ApplyCode(goodProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.settle(t, goodProgram)
	if err := h.session.ApplyCode(brokenProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.waitStatus(t, "exhaustion", func(s Status) bool { return s.Phase == PhaseExhausted })

	// An explicit human action abandons the automated recovery.
	if err := h.session.ApplyCode(otherProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	status := h.waitStatus(t, "running after manual commit", func(s Status) bool {
		return s.Phase == PhaseRunning && s.ActiveCode == otherProgram
	})
	if status.Attempts != 0 {
		t.Errorf("attempts = %d after manual commit, want 0", status.Attempts)
	}
	if status.Reverted {
		t.Error("reverted flag survived a manual commit")
	}
}

func TestAutoRepairDisabledSurfacesErrorOnly(t *testing.T) {
	h := startSession(t, harnessConfig{noService: true})

	if err := h.session.ApplyCode(brokenProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}

	status := h.waitStatus(t, "surfaced error", func(s Status) bool {
		return s.LastError != nil
	})
	if status.Phase == PhaseRepairing || status.Phase == PhaseExhausted {
		t.Errorf("phase = %s without a repair service", status.Phase)
	}
	if status.Attempts != 0 {
		t.Errorf("attempts = %d without auto repair, want 0", status.Attempts)
	}
}

func TestUndoRedoReloadPrograms(t *testing.T) {
	h := startSession(t, harnessConfig{noService: true})

	if err := h.session.ApplyCode(goodProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.waitStatus(t, "first program", func(s Status) bool {
		return len(s.Graph) == 1 && s.Graph[0].Name == "stable"
	})
	if err := h.session.ApplyCode(otherProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.waitStatus(t, "second program", func(s Status) bool {
		return len(s.Graph) == 1 && s.Graph[0].Name == "round"
	})

	h.session.Undo()
	status := h.waitStatus(t, "undo reload", func(s Status) bool {
		return len(s.Graph) == 1 && s.Graph[0].Name == "stable"
	})
	if status.ActiveCode != goodProgram || !status.CanRedo {
		t.Errorf("after undo: active=%q canRedo=%v", status.ActiveCode, status.CanRedo)
	}

	// At the bottom, undo is a silent no-op.
	h.session.Undo()
	if got := h.session.Status(); got.HistoryCursor != 0 {
		t.Errorf("cursor = %d after bottom undo, want 0", got.HistoryCursor)
	}

	h.session.Redo()
	h.waitStatus(t, "redo reload", func(s Status) bool {
		return len(s.Graph) == 1 && s.Graph[0].Name == "round"
	})
}

func TestRestoreTruncatedEntryThroughSession(t *testing.T) {
	h := startSession(t, harnessConfig{noService: true})

	if err := h.session.ApplyCode(goodProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	if err := h.session.ApplyCode(otherProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	truncated := h.session.HistoryEntries()[1]

	h.session.Undo()
	if err := h.session.ApplyCode("cylinder(radius=2, height=9, name=\"post\")"); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}

	h.session.Restore(truncated.ID)
	status := h.waitStatus(t, "restored program", func(s Status) bool {
		return len(s.Graph) == 1 && s.Graph[0].Name == "round"
	})
	if status.ActiveCode != otherProgram {
		t.Errorf("active = %q after restore, want the truncated snapshot", status.ActiveCode)
	}
	if status.HistoryLength != 3 {
		t.Errorf("history length = %d, want the snapshot re-appended", status.HistoryLength)
	}
}

// gatedService parks repair generations until released and fails user
// generations outright, so tests can hold the session mid-repair.
type gatedService struct {
	repairStarted chan struct{}
	release       chan struct{}
}

func (service *gatedService) Generate(ctx context.Context, request generate.Request) (generate.Result, error) {
	if request.Repair == nil {
		return generate.Result{}, fmt.Errorf("model offline")
	}
	close(service.repairStarted)
	select {
	case <-service.release:
		return generate.Result{Code: "box()"}, nil
	case <-ctx.Done():
		return generate.Result{}, ctx.Err()
	}
}

// A user generation that fails while a repair is in flight must not
// park the session in Repairing: the user action abandoned that
// repair, so there is nothing left to wait for.
func TestFailedGenerateDoesNotReenterRepairing(t *testing.T) {
	service := &gatedService{
		repairStarted: make(chan struct{}),
		release:       make(chan struct{}),
	}
	hostConn, farConn := protocol.Pipe(16)
	statuses := make(chan Status, 64)
	session, err := NewSession(Options{
		Conn:     hostConn,
		Service:  service,
		Clock:    clock.Fake(time.Now()),
		OnUpdate: func(status Status) { statuses <- status },
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()
	t.Cleanup(func() {
		close(service.release)
		cancel()
		session.Close()
		testutil.RequireClosed(t, done, testTimeout, "session shutdown")
	})

	if err := session.ApplyCode(goodProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	if err := farConn.Send(protocol.NewErrorEvent("boom", "program.star:1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	testutil.RequireClosed(t, service.repairStarted, testTimeout, "repair generation")
	if got := session.Status().Phase; got != PhaseRepairing {
		t.Fatalf("phase = %s with a repair in flight, want %s", got, PhaseRepairing)
	}

	if err := session.Generate(context.Background(), "something new"); err == nil {
		t.Fatal("Generate succeeded, want the scripted failure")
	}
	if got := session.Status().Phase; got != PhaseRunning {
		t.Errorf("phase = %s after failed generate, want %s", got, PhaseRunning)
	}
}

func TestSessionIgnoresUnknownMessages(t *testing.T) {
	// No sandbox here: the test drives the session's end of a bare
	// pipe directly.
	hostConn, farConn := protocol.Pipe(16)
	statuses := make(chan Status, 64)
	session, err := NewSession(Options{
		Conn:              hostConn,
		Clock:             clock.Fake(time.Now()),
		DisableAutoRepair: true,
		OnUpdate:          func(status Status) { statuses <- status },
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		session.Close()
		testutil.RequireClosed(t, done, testTimeout, "session shutdown")
	})

	before := session.Status()

	if err := farConn.Send(protocol.MustNew("futureEventType", map[string]any{"x": 1})); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// A command type arriving on the event channel is also noise.
	if err := farConn.Send(protocol.NewLoadProgramCommand("box()")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	// Then a real event, to prove the pump survived the noise.
	if err := farConn.Send(protocol.NewGeometryStatsEvent(protocol.GeometryStatsPayload{Tris: 7})); err != nil {
		t.Fatalf("Send: %v", err)
	}

	status := testutil.RequireReceive(t, statuses, testTimeout, "stats update")
	if status.Stats.Tris != 7 {
		t.Errorf("stats = %+v, want the real event applied", status.Stats)
	}
	if status.Phase != before.Phase || status.ActiveCode != before.ActiveCode || status.HistoryLength != before.HistoryLength {
		t.Error("unknown messages changed session state")
	}
}
