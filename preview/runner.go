// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"bufio"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/easel-foundation/easel/lib/clock"
	"github.com/easel-foundation/easel/protocol"
	"github.com/easel-foundation/easel/sandbox"
)

// Runner starts a sandbox and hands back the host end of its
// connection. Two deployments exist: in-process for single-binary use
// and subprocess for real isolation between the control plane and the
// interpreter.
type Runner interface {
	// Start launches the sandbox. The returned stop function tears it
	// down; it is idempotent to the extent the underlying transport
	// allows and must be called exactly once.
	Start() (protocol.Conn, func() error, error)
}

// InProcessRunner runs the sandbox on a goroutine over an in-memory
// pipe.
type InProcessRunner struct {
	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger receives sandbox diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// SyncInterval overrides the sandbox broadcast period.
	SyncInterval time.Duration

	// ExportDir is where exports are written. Defaults to the working
	// directory.
	ExportDir string
}

// Start launches the in-process sandbox.
func (runner *InProcessRunner) Start() (protocol.Conn, func() error, error) {
	host, stop, err := sandbox.StartInProcess(sandbox.Options{
		Clock:        runner.Clock,
		Logger:       runner.Logger,
		SyncInterval: runner.SyncInterval,
		ExportDir:    runner.ExportDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("preview: starting in-process sandbox: %w", err)
	}
	return host, func() error { stop(); return nil }, nil
}

// SubprocessRunner launches the easel-sandbox binary and speaks the
// stream protocol over its stdio. This is the isolated deployment:
// the interpreter lives in its own process and a wedged or killed
// sandbox cannot take the control plane with it.
type SubprocessRunner struct {
	// Path is the sandbox binary. Required.
	Path string

	// Args are extra command-line arguments.
	Args []string

	// Logger receives the subprocess's stderr lines and transport
	// diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Start launches the subprocess.
func (runner *SubprocessRunner) Start() (protocol.Conn, func() error, error) {
	if runner.Path == "" {
		return nil, nil, fmt.Errorf("preview: SubprocessRunner.Path is required")
	}
	logger := runner.Logger
	if logger == nil {
		logger = slog.Default()
	}

	command := exec.Command(runner.Path, runner.Args...)
	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("preview: opening sandbox stdin: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("preview: opening sandbox stdout: %w", err)
	}
	stderr, err := command.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("preview: opening sandbox stderr: %w", err)
	}

	if err := command.Start(); err != nil {
		return nil, nil, fmt.Errorf("preview: starting %s: %w", runner.Path, err)
	}

	// The sandbox logs to stderr; relay it line by line so its
	// diagnostics land in the host log instead of vanishing.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Info("sandbox: " + scanner.Text())
		}
	}()

	conn := protocol.NewStreamConn(stdout, stdin, logger)
	stop := func() error {
		// Closing stdin is the shutdown signal; the sandbox exits on
		// EOF. Wait reaps the process.
		conn.Close()
		if err := command.Wait(); err != nil {
			return fmt.Errorf("preview: sandbox exited: %w", err)
		}
		return nil
	}
	return conn, stop, nil
}
