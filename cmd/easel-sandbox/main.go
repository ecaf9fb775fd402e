// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// easel-sandbox runs untrusted rendering programs in an isolated
// process. It speaks the Easel line protocol on stdin/stdout: commands
// in, events out, one JSON object per line. Diagnostics go to stderr
// so they never corrupt the protocol stream.
//
// The parent process (easeld, or any embedder using
// preview.SubprocessRunner) owns the lifecycle: the sandbox exits when
// stdin closes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/easel-foundation/easel/lib/clock"
	"github.com/easel-foundation/easel/lib/version"
	"github.com/easel-foundation/easel/protocol"
	"github.com/easel-foundation/easel/sandbox"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		syncInterval time.Duration
		stepLimit    uint64
		exportDir    string
		debug        bool
		showVersion  bool
	)

	flagSet := pflag.NewFlagSet("easel-sandbox", pflag.ContinueOnError)
	flagSet.DurationVar(&syncInterval, "sync-interval", sandbox.DefaultSyncInterval*time.Millisecond, "periodic scene broadcast interval")
	flagSet.Uint64Var(&stepLimit, "step-limit", 0, "Starlark execution step limit per run (0 = default)")
	flagSet.StringVar(&exportDir, "export-dir", ".", "directory for exported model files")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging on stderr")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("easel-sandbox %s\n", version.Info())
		return nil
	}

	logLevel := slog.LevelInfo
	if debug || os.Getenv("EASEL_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instance, err := sandbox.New(sandbox.Options{
		Conn:         protocol.NewStreamConn(os.Stdin, os.Stdout, logger),
		Clock:        clock.Real(),
		Logger:       logger,
		SyncInterval: syncInterval,
		StepLimit:    stepLimit,
		ExportDir:    exportDir,
	})
	if err != nil {
		return err
	}

	logger.Info("sandbox ready",
		"version", version.Info(),
		"syncInterval", syncInterval,
		"exportDir", exportDir)
	return instance.Run(ctx)
}
