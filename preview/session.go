// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/easel-foundation/easel/generate"
	"github.com/easel-foundation/easel/lib/clock"
	"github.com/easel-foundation/easel/protocol"
)

// Options configures a Session.
type Options struct {
	// Conn is the sandbox connection. Required.
	Conn protocol.Conn

	// Service produces programs. Optional; without it Generate fails
	// and runtime errors are surfaced without automated repair.
	Service generate.Service

	// Clock drives the grace window. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// DisableAutoRepair turns the repair loop off; runtime errors are
	// only surfaced.
	DisableAutoRepair bool

	// MaxAttempts bounds consecutive automated repairs. Defaults to
	// DefaultMaxAttempts.
	MaxAttempts int

	// GraceWindow is how long a program must run without an error
	// event to count as good. Defaults to DefaultGraceWindow.
	GraceWindow time.Duration

	// MaxFixLog bounds the fix-attempt log. Defaults to
	// DefaultMaxFixLog.
	MaxFixLog int

	// Journal, when set, persists the fix-attempt log after every
	// change.
	Journal *Journal

	// OnUpdate is called with a fresh Status after every state
	// change. Called from session goroutines; implementations must
	// not block for long and may call Session methods.
	OnUpdate func(Status)
}

// Status is a point-in-time projection of the session for UIs. All
// slices are copies.
type Status struct {
	Phase      Phase
	AutoRepair bool

	// ActiveCode is the program the sandbox is (or will shortly be)
	// running.
	ActiveCode string

	// LastKnownGood is the most recent program that survived the
	// grace window without an error event. Empty until a program has
	// run cleanly once.
	LastKnownGood string

	// Attempts is the number of automated repairs since the last
	// user commit.
	Attempts int

	// Reverted is true when the repair loop gave up and rolled the
	// active program back to the last known good snapshot.
	Reverted bool

	// LastError is the most recent runtime error, nil after a clean
	// run.
	LastError *protocol.ErrorPayload

	Graph    []protocol.SceneNode
	Stats    protocol.GeometryStatsPayload
	Controls []protocol.ParameterControl
	Camera   protocol.CameraStatePayload

	// LastExport is the most recent export acknowledgment.
	LastExport *protocol.ExportCompletePayload

	CanUndo       bool
	CanRedo       bool
	HistoryLength int
	HistoryCursor int

	FixAttempts []FixAttempt
}

// Session supervises one sandbox over one connection.
type Session struct {
	conn        protocol.Conn
	service     generate.Service
	clock       clock.Clock
	logger      *slog.Logger
	graceWindow time.Duration
	maxAttempts int
	journal     *Journal
	onUpdate    func(Status)

	// background is the lifetime context for repair generations;
	// Close cancels it.
	background context.Context
	stop       context.CancelFunc

	mu            sync.Mutex
	phase         Phase
	autoRepair    bool
	activeCode    string
	lastKnownGood string
	attempts      int
	reverted      bool
	graceSeq      uint64
	// repairPending is true while the latest fix attempt's outcome is
	// unknown: its rewrite has loaded but the grace window has not
	// passed. The next error event belongs to that attempt.
	repairPending bool
	history       *History
	fixes         *fixLog
	lastError     *protocol.ErrorPayload
	lastExport    *protocol.ExportCompletePayload
	graph         []protocol.SceneNode
	stats         protocol.GeometryStatsPayload
	controls      []protocol.ParameterControl
	camera        protocol.CameraStatePayload
}

// NewSession creates a Session. Call Run to start the event pump.
func NewSession(options Options) (*Session, error) {
	if options.Conn == nil {
		return nil, fmt.Errorf("preview: Options.Conn is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = DefaultMaxAttempts
	}
	if options.GraceWindow <= 0 {
		options.GraceWindow = DefaultGraceWindow
	}

	background, stop := context.WithCancel(context.Background())
	return &Session{
		conn:        options.Conn,
		service:     options.Service,
		clock:       options.Clock,
		logger:      options.Logger,
		graceWindow: options.GraceWindow,
		maxAttempts: options.MaxAttempts,
		journal:     options.Journal,
		onUpdate:    options.OnUpdate,
		background:  background,
		stop:        stop,
		phase:       PhaseIdle,
		autoRepair:  !options.DisableAutoRepair && options.Service != nil,
		history:     NewHistory(),
		fixes:       newFixLog(options.MaxFixLog),
	}, nil
}

// Run pumps sandbox events until the context is cancelled or the
// connection closes.
func (s *Session) Run(ctx context.Context) error {
	events := make(chan protocol.Message)
	pumpDone := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			message, err := s.conn.Receive()
			if err != nil {
				pumpDone <- err
				return
			}
			select {
			case events <- message:
			case <-ctx.Done():
				pumpDone <- ctx.Err()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message, ok := <-events:
			if !ok {
				err := <-pumpDone
				if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrClosed) {
					return nil
				}
				return err
			}
			s.handleEvent(message)
		}
	}
}

// Close stops in-flight repair generations and closes the connection.
func (s *Session) Close() error {
	s.stop()
	return s.conn.Close()
}

// handleEvent applies one sandbox event. Unknown types are dropped;
// event noise must never disturb session state.
func (s *Session) handleEvent(message protocol.Message) {
	switch message.Type {
	case protocol.TypeError:
		var payload protocol.ErrorPayload
		if err := message.Decode(&payload); err != nil {
			s.logger.Debug("dropping malformed error event", "error", err)
			return
		}
		s.handleError(payload)

	case protocol.TypeSceneGraphUpdate:
		var payload protocol.SceneGraphUpdatePayload
		if err := message.Decode(&payload); err != nil {
			s.logger.Debug("dropping malformed graph event", "error", err)
			return
		}
		s.mu.Lock()
		s.graph = payload.Graph
		s.mu.Unlock()
		s.notify()

	case protocol.TypeGeometryStats:
		var payload protocol.GeometryStatsPayload
		if err := message.Decode(&payload); err != nil {
			s.logger.Debug("dropping malformed stats event", "error", err)
			return
		}
		s.mu.Lock()
		s.stats = payload
		s.mu.Unlock()
		s.notify()

	case protocol.TypeGUIConfig:
		var payload protocol.GUIConfigPayload
		if err := message.Decode(&payload); err != nil {
			s.logger.Debug("dropping malformed controls event", "error", err)
			return
		}
		s.mu.Lock()
		s.controls = payload.Controls
		s.mu.Unlock()
		s.notify()

	case protocol.TypeCameraState:
		var payload protocol.CameraStatePayload
		if err := message.Decode(&payload); err != nil {
			s.logger.Debug("dropping malformed camera event", "error", err)
			return
		}
		s.mu.Lock()
		s.camera = payload
		s.mu.Unlock()
		s.notify()

	case protocol.TypeExportComplete:
		var payload protocol.ExportCompletePayload
		if err := message.Decode(&payload); err != nil {
			s.logger.Debug("dropping malformed export event", "error", err)
			return
		}
		s.mu.Lock()
		s.lastExport = &payload
		s.mu.Unlock()
		s.notify()

	default:
		s.logger.Debug("ignoring unknown event", "type", message.Type)
	}
}

// handleError drives the repair loop. Every runtime error lands here,
// including errors from programs the loop itself loaded.
func (s *Session) handleError(payload protocol.ErrorPayload) {
	s.mu.Lock()

	s.lastError = &payload
	// Whatever grace timer was pending, this error voids it.
	s.graceSeq++

	switch {
	case s.phase == PhaseExhausted:
		// Already gave up; surface only. Reloading again here would
		// loop on revert -> error -> revert.

	case !s.autoRepair || s.service == nil:
		// Supervision without repair: surface and stand still.

	case s.phase == PhaseRepairing || s.phase == PhaseGenerating:
		// A rewrite is in flight; this error belongs to the program
		// it is already replacing.

	case s.attempts >= s.maxAttempts:
		s.exhaustLocked(payload.Message)

	default:
		// This error is the outcome of the previous attempt's rewrite,
		// if one is still pending; record it before opening the next.
		if s.repairPending {
			s.fixes.markLatest(payload.Message)
			s.repairPending = false
		}
		s.attempts++
		attempt := s.attempts
		s.phase = PhaseRepairing
		s.fixes.append(FixAttempt{
			At:          s.clock.Now(),
			Attempt:     attempt,
			ErrorBefore: payload.Message,
			ErrorSource: payload.Source,
		})
		s.writeJournalLocked()

		originPrompt := ""
		if entry, ok := s.history.Active(); ok {
			originPrompt = entry.OriginPrompt
		}
		request := generate.Request{Repair: &generate.RepairContext{
			FailingCode:  s.activeCode,
			ErrorMessage: payload.Message,
			ErrorSource:  payload.Source,
			LastGoodCode: s.lastKnownGood,
			OriginPrompt: originPrompt,
			Attempt:      attempt,
		}}
		go s.runRepair(request)
	}

	s.mu.Unlock()
	s.notify()
}

// runRepair asks the service for a corrective rewrite and loads it.
// Runs on its own goroutine; generation can take seconds.
func (s *Session) runRepair(request generate.Request) {
	result, err := s.service.Generate(s.background, request)

	s.mu.Lock()
	if s.phase != PhaseRepairing {
		// The user committed or closed while we were waiting; their
		// action wins and this result is dropped.
		s.mu.Unlock()
		return
	}

	if err != nil {
		// A generation failure is not retried; the loop ends here
		// rather than burning the remaining attempts on a broken
		// service.
		s.logger.Warn("repair generation failed", "error", err)
		s.exhaustLocked(fmt.Sprintf("generation failed: %v", err))
		s.mu.Unlock()
		s.notify()
		return
	}

	s.activeCode = result.Code
	s.phase = PhaseRunning
	s.fixes.setLatestSnapshot(result.Code)
	s.repairPending = true
	s.writeJournalLocked()
	s.sendLocked(protocol.NewLoadProgramCommand(result.Code))
	s.armGraceLocked()
	s.mu.Unlock()
	s.notify()
}

// exhaustLocked ends automated recovery: the latest fix attempt is
// marked failed, the active program reverts to the last known good
// snapshot, and the phase parks in Exhausted until a user acts.
func (s *Session) exhaustLocked(finalError string) {
	s.fixes.markLatest(finalError)
	s.repairPending = false
	s.phase = PhaseExhausted
	s.reverted = false
	if s.lastKnownGood != "" {
		s.activeCode = s.lastKnownGood
		s.sendLocked(protocol.NewLoadProgramCommand(s.lastKnownGood))
		s.reverted = true
	}
	s.writeJournalLocked()
}

// armGraceLocked starts the clean-run grace window for the program
// just loaded. The sequence number voids the timer if anything else
// happens first: an error event, another load, a user commit.
func (s *Session) armGraceLocked() {
	s.graceSeq++
	seq := s.graceSeq
	timer := s.clock.After(s.graceWindow)
	go func() {
		select {
		case <-timer:
			s.graceElapsed(seq)
		case <-s.background.Done():
		}
	}()
}

// graceElapsed fires when a loaded program survived the grace window.
// Absence of an error event is the success signal; there is no
// positive health check, so this is a heuristic, not proof.
func (s *Session) graceElapsed(seq uint64) {
	s.mu.Lock()
	if seq != s.graceSeq || s.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}
	s.lastKnownGood = s.activeCode
	s.lastError = nil
	s.reverted = false
	// A pending fix attempt that reached this point succeeded; its
	// ErrorAfter stays nil.
	s.repairPending = false
	s.mu.Unlock()
	s.notify()
}

// Generate asks the service for a fresh program from a user prompt
// and commits the result. A user-initiated generation always resets
// the repair attempt counter.
func (s *Session) Generate(ctx context.Context, prompt string) error {
	if s.service == nil {
		return fmt.Errorf("preview: session has no generation service")
	}

	s.mu.Lock()
	previousPhase := s.phase
	s.phase = PhaseGenerating
	currentCode := s.activeCode
	s.mu.Unlock()
	s.notify()

	result, err := s.service.Generate(ctx, generate.Request{
		Prompt:      prompt,
		CurrentCode: currentCode,
	})
	if err != nil {
		s.mu.Lock()
		if s.phase == PhaseGenerating {
			// Never fall back into Repairing: entering Generate
			// abandoned any rewrite that phase promised, and a phase
			// with no repair in flight would park the loop.
			if previousPhase == PhaseRepairing || previousPhase == PhaseGenerating {
				if s.activeCode != "" {
					previousPhase = PhaseRunning
				} else {
					previousPhase = PhaseIdle
				}
			}
			s.phase = previousPhase
		}
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("preview: generating program: %w", err)
	}

	s.commit(result.Code, prompt)
	return nil
}

// ApplyCode commits a directly edited program. Like Generate, this is
// an explicit human action: it abandons any in-flight repair and
// resets the attempt counter.
func (s *Session) ApplyCode(code string) error {
	if code == "" {
		return fmt.Errorf("preview: empty program")
	}
	s.commit(code, "")
	return nil
}

// commit appends a history entry, resets the repair loop, and loads
// the program.
func (s *Session) commit(code, originPrompt string) {
	s.mu.Lock()
	s.history.Commit(code, originPrompt, s.clock.Now())
	s.activeCode = code
	s.attempts = 0
	s.repairPending = false
	s.reverted = false
	s.lastError = nil
	s.phase = PhaseRunning
	s.sendLocked(protocol.NewLoadProgramCommand(code))
	s.armGraceLocked()
	s.mu.Unlock()
	s.notify()
}

// Undo steps the history cursor back and reloads. At the lower bound
// it is a silent no-op.
func (s *Session) Undo() {
	s.mu.Lock()
	entry, ok := s.history.Undo()
	if ok {
		s.loadEntryLocked(entry)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// Redo steps the history cursor forward and reloads. At the upper
// bound it is a silent no-op.
func (s *Session) Redo() {
	s.mu.Lock()
	entry, ok := s.history.Redo()
	if ok {
		s.loadEntryLocked(entry)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// Restore jumps to a prior history entry by id and reloads it. An
// entry truncated by an intervening commit is recommitted; an id that
// never existed is a silent no-op.
func (s *Session) Restore(entryID string) {
	s.mu.Lock()
	entry, ok := s.history.Restore(entryID, s.clock.Now())
	if ok {
		s.loadEntryLocked(entry)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// loadEntryLocked activates a history entry without committing.
func (s *Session) loadEntryLocked(entry Entry) {
	s.activeCode = entry.Snapshot
	s.reverted = false
	s.lastError = nil
	s.phase = PhaseRunning
	s.sendLocked(protocol.NewLoadProgramCommand(entry.Snapshot))
	s.armGraceLocked()
}

// SetAutoRepair toggles automated repair. Turning it off does not
// cancel a repair already in flight.
func (s *Session) SetAutoRepair(enabled bool) {
	s.mu.Lock()
	s.autoRepair = enabled && s.service != nil
	s.mu.Unlock()
	s.notify()
}

// Status returns a copy of the current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Phase:         s.phase,
		AutoRepair:    s.autoRepair,
		ActiveCode:    s.activeCode,
		LastKnownGood: s.lastKnownGood,
		Attempts:      s.attempts,
		Reverted:      s.reverted,
		LastError:     s.lastError,
		Graph:         append([]protocol.SceneNode(nil), s.graph...),
		Stats:         s.stats,
		Controls:      append([]protocol.ParameterControl(nil), s.controls...),
		Camera:        s.camera,
		LastExport:    s.lastExport,
		CanUndo:       s.history.CanUndo(),
		CanRedo:       s.history.CanRedo(),
		HistoryLength: s.history.Len(),
		HistoryCursor: s.history.Cursor(),
		FixAttempts:   s.fixes.all(),
	}
}

// HistoryEntries returns a copy of the live edit stack.
func (s *Session) HistoryEntries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Entries()
}

// HistorySnapshot returns an independent copy of the full history for
// persistence, commit log and cursor included.
func (s *Session) HistorySnapshot() *History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clone()
}

// LoadHistory replaces the session history with persisted state and
// activates its cursor entry, if any. Used when opening a saved
// project.
func (s *Session) LoadHistory(history *History) {
	s.mu.Lock()
	s.history = history
	entry, ok := history.Active()
	if ok {
		s.attempts = 0
		s.repairPending = false
		s.loadEntryLocked(entry)
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

func (s *Session) sendLocked(message protocol.Message) {
	if err := s.conn.Send(message); err != nil {
		s.logger.Warn("sending command failed", "type", message.Type, "error", err)
	}
}

func (s *Session) writeJournalLocked() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Write(s.fixes.all(), s.clock.Now()); err != nil {
		s.logger.Warn("writing fix journal failed", "error", err)
	}
}

func (s *Session) notify() {
	if s.onUpdate == nil {
		return
	}
	s.onUpdate(s.Status())
}
