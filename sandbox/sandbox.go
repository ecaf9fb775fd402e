// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/easel-foundation/easel/lib/clock"
	"github.com/easel-foundation/easel/protocol"
)

// Render modes accepted by setRenderMode.
const (
	RenderSolid     = "solid"
	RenderWireframe = "wireframe"
	RenderRealistic = "realistic"
)

// Options configures a Sandbox.
type Options struct {
	// Conn is the host-facing message channel. Required.
	Conn protocol.Conn

	// Clock drives the broadcast ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// SyncInterval is the broadcast period. Defaults to
	// DefaultSyncInterval milliseconds.
	SyncInterval time.Duration

	// StepLimit bounds program evaluation. Defaults to
	// DefaultStepLimit.
	StepLimit uint64

	// ExportDir is where exportModel writes files. Defaults to the
	// working directory.
	ExportDir string
}

// universe is the full interpreter state created by one program load.
// A reload never patches a universe; it discards the whole thing and
// builds a fresh one, which is what guarantees that timers, handles,
// and program state from the previous code cannot leak into the next.
type universe struct {
	source string
	scene  *Scene
	bridge *Bridge
	params *paramRegistry
	camera *Camera

	renderMode  string
	gridVisible bool
	grid        *Object

	// Tools are instantiated lazily on first use.
	gizmo     *gizmoController
	evaluator *booleanEvaluator
}

// Sandbox runs the interpreter side of the protocol: it owns the
// scene graph exclusively, applies host commands one at a time, and
// pushes state snapshots on a fixed interval. The host never touches
// the graph directly; commands in, events out is the entire contract.
type Sandbox struct {
	conn      protocol.Conn
	clock     clock.Clock
	logger    *slog.Logger
	interval  time.Duration
	stepLimit uint64
	sync      *synchronizer
	export    *exporter

	universe *universe
}

// New creates a Sandbox. Run must be called to start processing.
func New(options Options) (*Sandbox, error) {
	if options.Conn == nil {
		return nil, fmt.Errorf("sandbox: Options.Conn is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.SyncInterval <= 0 {
		options.SyncInterval = DefaultSyncInterval * time.Millisecond
	}
	if options.StepLimit == 0 {
		options.StepLimit = DefaultStepLimit
	}
	if options.ExportDir == "" {
		options.ExportDir = "."
	}

	sandbox := &Sandbox{
		conn:      options.Conn,
		clock:     options.Clock,
		logger:    options.Logger,
		interval:  options.SyncInterval,
		stepLimit: options.StepLimit,
		export:    newExporter(options.ExportDir, options.Clock.Now),
	}
	sandbox.sync = newSynchronizer(sandbox.send, options.Logger)
	return sandbox, nil
}

// Run processes commands and broadcasts state until the context is
// cancelled or the connection closes. It is the single goroutine that
// touches the universe; everything it does is serialized by
// construction.
func (sandbox *Sandbox) Run(ctx context.Context) error {
	commands := make(chan protocol.Message)
	pumpDone := make(chan error, 1)
	go func() {
		defer close(commands)
		for {
			message, err := sandbox.conn.Receive()
			if err != nil {
				pumpDone <- err
				return
			}
			select {
			case commands <- message:
			case <-ctx.Done():
				pumpDone <- ctx.Err()
				return
			}
		}
	}()

	ticker := sandbox.clock.NewTicker(sandbox.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if sandbox.universe != nil {
				sandbox.sync.BroadcastAll(sandbox.universe)
			}
		case message, ok := <-commands:
			if !ok {
				err := <-pumpDone
				if errors.Is(err, io.EOF) || errors.Is(err, protocol.ErrClosed) {
					return nil
				}
				return err
			}
			sandbox.handle(message)
		}
	}
}

// send pushes an event to the host. Send failures are logged, not
// propagated: the synchronizer re-broadcasts, so a single lost event
// only delays convergence.
func (sandbox *Sandbox) send(message protocol.Message) {
	if err := sandbox.conn.Send(message); err != nil {
		sandbox.logger.Debug("dropping event", "type", message.Type, "error", err)
	}
}

// handle applies one command. Unknown types are ignored; a command
// that predates or postdates this build must not kill the loop.
// Panics inside a handler are converted to error events so a bad
// command can never take the sandbox down.
func (sandbox *Sandbox) handle(message protocol.Message) {
	defer func() {
		if recovered := recover(); recovered != nil {
			sandbox.logger.Error("command handler panicked",
				"type", message.Type, "panic", recovered)
			sandbox.send(protocol.NewErrorEvent(fmt.Sprintf("internal: %v", recovered), ""))
		}
	}()

	if !protocol.IsCommand(message.Type) {
		sandbox.logger.Debug("ignoring unknown message", "type", message.Type)
		return
	}

	var err error
	switch message.Type {
	case protocol.TypeLoadProgram:
		err = sandbox.handleLoadProgram(message)
	case protocol.TypeSetRenderMode:
		err = sandbox.handleSetRenderMode(message)
	case protocol.TypeToggleGrid:
		err = sandbox.handleToggleGrid()
	case protocol.TypeSetGizmoMode:
		err = sandbox.handleSetGizmoMode(message)
	case protocol.TypeSetCameraView:
		err = sandbox.handleSetCameraView(message)
	case protocol.TypePerformBoolean:
		err = sandbox.handlePerformBoolean(message)
	case protocol.TypeUpdateParam:
		err = sandbox.handleUpdateParam(message)
	case protocol.TypeUpdateMaterial:
		err = sandbox.handleUpdateMaterial(message)
	case protocol.TypeExportModel:
		err = sandbox.handleExportModel(message)
	case protocol.TypeRequestStats:
		err = sandbox.handleRequestStats()
	default:
		sandbox.logger.Debug("ignoring unhandled command", "type", message.Type)
	}
	if err != nil {
		sandbox.sendError(err)
	}
}

func (sandbox *Sandbox) sendError(err error) {
	var runError *RunError
	if errors.As(err, &runError) {
		sandbox.send(protocol.NewErrorEvent(runError.Message, runError.Source))
		return
	}
	sandbox.send(protocol.NewErrorEvent(err.Error(), ""))
}

// handleLoadProgram tears down the current universe and evaluates the
// new source into a fresh one. On evaluation failure the previous
// universe stays active; the host decides what to do with the error.
func (sandbox *Sandbox) handleLoadProgram(message protocol.Message) error {
	var payload protocol.LoadProgramPayload
	if err := message.Decode(&payload); err != nil {
		return fmt.Errorf("sandbox: loadProgram: %w", err)
	}

	fresh, runError := sandbox.evaluate(payload.Source, newParamRegistry())
	if runError != nil {
		return runError
	}
	sandbox.universe = fresh
	sandbox.sync.BroadcastAll(sandbox.universe)
	return nil
}

// evaluate runs a program against a fresh scene. The registry is
// passed in so re-evaluation after a parameter change can carry the
// overrides forward; a plain load passes a new one.
func (sandbox *Sandbox) evaluate(source string, params *paramRegistry) (*universe, *RunError) {
	scene := NewScene()
	bridge := newBridge(scene, params)

	if runError := runProgram(source, bridge.Predeclared(), sandbox.stepLimit); runError != nil {
		return nil, runError
	}
	bridge.Finish()

	fresh := &universe{
		source:     source,
		scene:      scene,
		bridge:     bridge,
		params:     params,
		camera:     NewCamera(scene.Radius()),
		renderMode: RenderSolid,
	}
	return fresh, nil
}

// requireUniverse guards handlers that need a loaded program.
func (sandbox *Sandbox) requireUniverse() (*universe, error) {
	if sandbox.universe == nil {
		return nil, fmt.Errorf("sandbox: no program loaded")
	}
	return sandbox.universe, nil
}

func (sandbox *Sandbox) handleSetRenderMode(message protocol.Message) error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	var payload protocol.SetRenderModePayload
	if err := message.Decode(&payload); err != nil {
		return fmt.Errorf("sandbox: setRenderMode: %w", err)
	}
	switch payload.Mode {
	case RenderSolid, RenderWireframe, RenderRealistic:
	default:
		return fmt.Errorf("sandbox: setRenderMode: unknown mode %q", payload.Mode)
	}
	universe.renderMode = payload.Mode
	wireframe := payload.Mode == RenderWireframe
	for _, object := range universe.scene.Objects() {
		object.Material.Wireframe = wireframe
	}
	return nil
}

// handleToggleGrid adds or removes the reference grid. The grid is a
// helper object, so it never shows up in the host projection or the
// statistics; toggling it only matters to the render side.
func (sandbox *Sandbox) handleToggleGrid() error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	if universe.gridVisible {
		universe.scene.Remove(universe.grid.ID)
		universe.grid = nil
		universe.gridVisible = false
		return nil
	}
	extent := universe.scene.Radius() * 4
	if extent < 100 {
		extent = 100
	}
	universe.grid = universe.scene.Add(&Object{
		Name:    "grid",
		Kind:    "grid",
		Helper:  true,
		Visible: true,
		Size:    [3]float64{extent, 0, extent},
	})
	universe.gridVisible = true
	return nil
}

func (sandbox *Sandbox) handleSetGizmoMode(message protocol.Message) error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	var payload protocol.SetGizmoModePayload
	if err := message.Decode(&payload); err != nil {
		return fmt.Errorf("sandbox: setGizmoMode: %w", err)
	}
	if universe.gizmo == nil {
		universe.gizmo = newGizmoController()
	}
	if err := universe.gizmo.SetMode(payload.Mode, universe.bridge.MainObject()); err != nil {
		return fmt.Errorf("sandbox: setGizmoMode: %w", err)
	}
	sandbox.sync.BroadcastGraph(universe)
	return nil
}

func (sandbox *Sandbox) handleSetCameraView(message protocol.Message) error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	var payload protocol.SetCameraViewPayload
	if err := message.Decode(&payload); err != nil {
		return fmt.Errorf("sandbox: setCameraView: %w", err)
	}
	if err := universe.camera.SnapTo(payload.View, universe.scene.Radius()); err != nil {
		return fmt.Errorf("sandbox: setCameraView: %w", err)
	}
	sandbox.sync.BroadcastCamera(universe)
	return nil
}

func (sandbox *Sandbox) handlePerformBoolean(message protocol.Message) error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	var payload protocol.PerformBooleanPayload
	if err := message.Decode(&payload); err != nil {
		return fmt.Errorf("sandbox: performBoolean: %w", err)
	}
	if universe.evaluator == nil {
		universe.evaluator = &booleanEvaluator{}
	}
	if _, err := universe.evaluator.Apply(universe.scene, payload.Op, payload.TargetID, payload.ToolID); err != nil {
		return fmt.Errorf("sandbox: performBoolean: %w", err)
	}
	sandbox.sync.BroadcastGraph(universe)
	sandbox.sync.BroadcastStats(universe)
	return nil
}

// handleUpdateParam stores the override and re-evaluates the whole
// program with it applied. Programs are cheap to re-run under the
// step limit, and whole-program re-evaluation is the only way to
// honor parameters that feed derived geometry.
func (sandbox *Sandbox) handleUpdateParam(message protocol.Message) error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	var payload protocol.UpdateParamPayload
	if err := message.Decode(&payload); err != nil {
		return fmt.Errorf("sandbox: updateParam: %w", err)
	}

	// Evaluate against a copy of the registry: a program that rejects
	// the new value must leave the active universe and its declared
	// controls untouched.
	params := universe.params.cloneOverrides()
	params.SetOverride(payload.Name, payload.Value)

	fresh, runError := sandbox.evaluate(universe.source, params)
	if runError != nil {
		return runError
	}
	fresh.renderMode = universe.renderMode
	sandbox.universe = fresh
	if universe.gridVisible {
		if err := sandbox.handleToggleGrid(); err != nil {
			return err
		}
	}
	sandbox.sync.BroadcastAll(sandbox.universe)
	return nil
}

func (sandbox *Sandbox) handleUpdateMaterial(message protocol.Message) error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	var payload protocol.UpdateMaterialPayload
	if err := message.Decode(&payload); err != nil {
		return fmt.Errorf("sandbox: updateMaterial: %w", err)
	}
	main := universe.bridge.MainObject()
	if main == nil {
		return fmt.Errorf("sandbox: updateMaterial: scene has no main object")
	}
	main.Material = payload.Config
	return nil
}

func (sandbox *Sandbox) handleExportModel(message protocol.Message) error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	var payload protocol.ExportModelPayload
	if err := message.Decode(&payload); err != nil {
		return fmt.Errorf("sandbox: exportModel: %w", err)
	}
	path, err := sandbox.export.Export(universe.scene, payload.Format)
	if err != nil {
		return err
	}
	sandbox.send(protocol.NewExportCompleteEvent(payload.Format, path))
	return nil
}

func (sandbox *Sandbox) handleRequestStats() error {
	universe, err := sandbox.requireUniverse()
	if err != nil {
		return err
	}
	sandbox.sync.BroadcastGraph(universe)
	sandbox.sync.BroadcastStats(universe)
	return nil
}

// StartInProcess runs a sandbox over an in-memory pipe on its own
// goroutine and returns the host end plus a stop function. Used when
// the control plane and sandbox share a process; the subprocess
// deployment uses a stream connection on stdio instead.
func StartInProcess(options Options) (protocol.Conn, func(), error) {
	host, side := protocol.Pipe(0)
	options.Conn = side
	sandbox, err := New(options)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sandbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			sandbox.logger.Error("sandbox loop exited", "error", err)
		}
	}()

	stop := func() {
		cancel()
		host.Close()
		<-done
	}
	return host, stop, nil
}
