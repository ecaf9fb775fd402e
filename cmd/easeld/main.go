// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// easeld is the Easel control-plane daemon. It exposes an HTTP API for
// managing preview sessions: each session owns a sandbox (in-process
// or the easel-sandbox subprocess), a prompt-driven generation
// pipeline with automatic repair, edit history, and persistence to the
// project database.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/pflag"

	"github.com/easel-foundation/easel/generate"
	"github.com/easel-foundation/easel/lib/config"
	"github.com/easel-foundation/easel/lib/version"
	"github.com/easel-foundation/easel/project"
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
		listen      string
		debug       bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("easeld", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file path (default: $EASEL_CONFIG)")
	flagSet.StringVar(&listen, "listen", "", "listen address (overrides config)")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("easeld %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger, closeLog, err := buildLogger(cfg, debug)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := project.Open(cfg.Paths.Database, project.Options{})
	if err != nil {
		return err
	}
	defer store.Close()

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
	} else {
		logger.Warn("no generation endpoint configured; prompt-driven generation is disabled")
	}

	server, err := newServer(cfg, logger, store, service)
	if err != nil {
		return err
	}
	defer server.closeSessions()

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Info("easeld listening",
		"address", cfg.Server.Listen,
		"version", version.Info(),
		"database", cfg.Paths.Database)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("easeld: serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("easeld: shutdown: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildLogger fans log records out to stderr and, when paths.logs is
// configured, a JSON log file.
func buildLogger(cfg *config.Config, debug bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if debug || os.Getenv("EASEL_DEBUG") != "" {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	closeLog := func() {}

	if cfg.Paths.Logs != "" {
		if err := os.MkdirAll(cfg.Paths.Logs, 0o755); err != nil {
			return nil, nil, fmt.Errorf("easeld: creating log directory: %w", err)
		}
		logFile, err := os.OpenFile(filepath.Join(cfg.Paths.Logs, "easeld.log"),
			os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("easeld: opening log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))
		closeLog = func() { logFile.Close() }
	}

	return slog.New(slogmulti.Fanout(handlers...)), closeLog, nil
}
