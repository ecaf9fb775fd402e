// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/easel-foundation/easel/generate"
	"github.com/easel-foundation/easel/lib/config"
	"github.com/easel-foundation/easel/preview"
	"github.com/easel-foundation/easel/project"
)

// server owns the daemon's state: the project store and the live
// preview sessions, one sandbox each.
type server struct {
	logger  *slog.Logger
	store   *project.Store
	service generate.Service

	journalDir        string
	disableAutoRepair bool
	maxAttempts       int
	graceWindow       time.Duration

	// newRunner builds the sandbox runner for each new session.
	// Swappable for tests.
	newRunner func() preview.Runner

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionHandle
}

// sessionHandle pairs a session with its sandbox lifecycle.
type sessionHandle struct {
	id      uuid.UUID
	session *preview.Session

	// projectID is set once the session has been saved to (or loaded
	// from) the project store.
	projectID uuid.UUID
	name      string

	stopRunner func() error
	cancel     context.CancelFunc
	done       chan struct{}
}

func newServer(cfg *config.Config, logger *slog.Logger, store *project.Store, service generate.Service) (*server, error) {
	graceWindow, err := cfg.Repair.Window()
	if err != nil {
		return nil, err
	}
	syncInterval, err := cfg.Sandbox.Interval()
	if err != nil {
		return nil, err
	}

	s := &server{
		logger:            logger,
		store:             store,
		service:           service,
		journalDir:        cfg.Paths.Journals,
		disableAutoRepair: cfg.Repair.Disabled,
		maxAttempts:       cfg.Repair.MaxAttempts,
		graceWindow:       graceWindow,
		sessions:          make(map[uuid.UUID]*sessionHandle),
	}

	binary := cfg.Sandbox.Binary
	exportDir := cfg.Paths.Exports
	s.newRunner = func() preview.Runner {
		if binary != "" {
			args := []string{"--export-dir", exportDir}
			if syncInterval > 0 {
				args = append(args, "--sync-interval", syncInterval.String())
			}
			return &preview.SubprocessRunner{Path: binary, Args: args, Logger: logger}
		}
		return &preview.InProcessRunner{Logger: logger, SyncInterval: syncInterval, ExportDir: exportDir}
	}
	return s, nil
}

func (s *server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", s.handleHealth)

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/sessions", s.handleListSessions)
		router.Post("/sessions", s.handleCreateSession)
		router.Route("/sessions/{sessionID}", func(router chi.Router) {
			router.Get("/", s.handleSessionStatus)
			router.Delete("/", s.handleCloseSession)
			router.Post("/generate", s.handleGenerate)
			router.Post("/code", s.handleApplyCode)
			router.Post("/undo", s.handleUndo)
			router.Post("/redo", s.handleRedo)
			router.Post("/restore", s.handleRestore)
			router.Get("/history", s.handleHistory)
			router.Post("/auto-repair", s.handleAutoRepair)
			router.Post("/command", s.handleCommand)
			router.Post("/save", s.handleSave)
		})

		router.Get("/projects", s.handleListProjects)
		router.Get("/projects/{projectID}", s.handleGetProject)
		router.Delete("/projects/{projectID}", s.handleDeleteProject)
	})

	return router
}

// createSession starts a sandbox and a session supervising it. When
// projectID is non-nil the saved project is loaded into the session.
func (s *server) createSession(ctx context.Context, projectID *uuid.UUID) (*sessionHandle, error) {
	conn, stopRunner, err := s.newRunner().Start()
	if err != nil {
		return nil, fmt.Errorf("easeld: starting sandbox: %w", err)
	}

	id := uuid.New()
	var journal *preview.Journal
	if s.journalDir != "" {
		journal = preview.NewJournal(filepath.Join(s.journalDir, id.String()+".cbor"))
	}

	session, err := preview.NewSession(preview.Options{
		Conn:              conn,
		Service:           s.service,
		Logger:            s.logger.With("session", id.String()),
		DisableAutoRepair: s.disableAutoRepair,
		MaxAttempts:       s.maxAttempts,
		GraceWindow:       s.graceWindow,
		Journal:           journal,
	})
	if err != nil {
		stopRunner()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &sessionHandle{
		id:         id,
		session:    session,
		stopRunner: stopRunner,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(handle.done)
		if err := session.Run(runCtx); err != nil && runCtx.Err() == nil {
			s.logger.Error("session pump failed", "session", id.String(), "error", err)
		}
	}()

	if projectID != nil {
		record, err := s.store.Load(ctx, *projectID)
		if err != nil {
			handle.teardown()
			return nil, err
		}
		handle.projectID = record.ID
		handle.name = record.Name
		if record.History != nil && record.History.Len() > 0 {
			session.LoadHistory(record.History)
		} else if err := session.ApplyCode(record.Code); err != nil {
			handle.teardown()
			return nil, err
		}
	}

	s.mu.Lock()
	s.sessions[id] = handle
	s.mu.Unlock()

	s.logger.Info("session created", "session", id.String())
	return handle, nil
}

// lookup returns the handle for a session id, nil when absent.
func (s *server) lookup(id uuid.UUID) *sessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// closeSession tears down one session and forgets it.
func (s *server) closeSession(id uuid.UUID) bool {
	s.mu.Lock()
	handle, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	handle.teardown()
	s.logger.Info("session closed", "session", id.String())
	return true
}

// closeSessions tears down every live session. Called on shutdown.
func (s *server) closeSessions() {
	s.mu.Lock()
	handles := make([]*sessionHandle, 0, len(s.sessions))
	for _, handle := range s.sessions {
		handles = append(handles, handle)
	}
	s.sessions = make(map[uuid.UUID]*sessionHandle)
	s.mu.Unlock()

	for _, handle := range handles {
		handle.teardown()
	}
}

func (h *sessionHandle) teardown() {
	h.cancel()
	h.session.Close()
	h.stopRunner()
	<-h.done
}
