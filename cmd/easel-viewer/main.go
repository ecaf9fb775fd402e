// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// easel-viewer is a terminal UI for Easel. It runs a sandbox
// (in-process by default, or the easel-sandbox binary when configured)
// and a preview session over it: type a prompt, watch the scene graph
// and geometry stats update, and let the repair loop chase runtime
// errors.
//
// Stderr is not usable for logging while the TUI owns the terminal;
// diagnostics go to a log file under the configured log directory, or
// are discarded.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/easel-foundation/easel/generate"
	"github.com/easel-foundation/easel/lib/config"
	"github.com/easel-foundation/easel/lib/version"
	"github.com/easel-foundation/easel/preview"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("easel-viewer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file path (default: $EASEL_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("easel-viewer %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger, closeLog, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	var service generate.Service
	if cfg.Generation.BaseURL != "" {
		service, err = generate.NewHTTPService(generate.HTTPServiceOptions{
			BaseURL: cfg.Generation.BaseURL,
			APIKey:  cfg.APIKey(),
			Model:   cfg.Generation.Model,
		})
		if err != nil {
			return err
		}
	}

	syncInterval, err := cfg.Sandbox.Interval()
	if err != nil {
		return err
	}
	var runner preview.Runner
	if cfg.Sandbox.Binary != "" {
		args := []string{"--export-dir", cfg.Paths.Exports}
		if syncInterval > 0 {
			args = append(args, "--sync-interval", syncInterval.String())
		}
		runner = &preview.SubprocessRunner{Path: cfg.Sandbox.Binary, Args: args, Logger: logger}
	} else {
		runner = &preview.InProcessRunner{Logger: logger, SyncInterval: syncInterval, ExportDir: cfg.Paths.Exports}
	}

	conn, stopRunner, err := runner.Start()
	if err != nil {
		return err
	}
	defer stopRunner()

	graceWindow, err := cfg.Repair.Window()
	if err != nil {
		return err
	}

	// The session's OnUpdate feeds the TUI; program.Send is safe from
	// any goroutine. The program pointer is set before the session
	// pump starts, so no update can race it.
	var program *tea.Program

	session, err := preview.NewSession(preview.Options{
		Conn:              conn,
		Service:           service,
		Logger:            logger,
		DisableAutoRepair: cfg.Repair.Disabled,
		MaxAttempts:       cfg.Repair.MaxAttempts,
		GraceWindow:       graceWindow,
		Journal:           preview.NewJournal(filepath.Join(cfg.Paths.Journals, "viewer.cbor")),
		OnUpdate: func(status preview.Status) {
			program.Send(statusMsg(status))
		},
	})
	if err != nil {
		return err
	}
	defer session.Close()

	program = tea.NewProgram(newModel(session), tea.WithAltScreen())

	pumpCtx, cancelPump := context.WithCancel(context.Background())
	defer cancelPump()
	go func() {
		if err := session.Run(pumpCtx); err != nil && pumpCtx.Err() == nil {
			logger.Error("session pump failed", "error", err)
			program.Quit()
		}
	}()

	start := time.Now()
	_, err = program.Run()
	logger.Info("viewer exiting", "uptime", time.Since(start))
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildLogger writes JSON records to the configured log directory, or
// discards them. The TUI owns the terminal, so stderr is not an
// option.
func buildLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.Paths.Logs == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}

	if err := os.MkdirAll(cfg.Paths.Logs, 0o755); err != nil {
		return nil, nil, fmt.Errorf("easel-viewer: creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Paths.Logs, "easel-viewer.log"),
		os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("easel-viewer: opening log file: %w", err)
	}

	level := slog.LevelInfo
	if os.Getenv("EASEL_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))
	return logger, func() { logFile.Close() }, nil
}
