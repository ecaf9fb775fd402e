// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/easel-foundation/easel/lib/version"
	"github.com/easel-foundation/easel/preview"
	"github.com/easel-foundation/easel/project"
	"github.com/easel-foundation/easel/protocol"
)

// sessionView is the JSON shape of a session's status.
type sessionView struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId,omitempty"`
	Name       string `json:"name,omitempty"`
	Phase      string `json:"phase"`
	AutoRepair bool   `json:"autoRepair"`

	ActiveCode    string                 `json:"activeCode"`
	LastKnownGood string                 `json:"lastKnownGood,omitempty"`
	Attempts      int                    `json:"attempts"`
	Reverted      bool                   `json:"reverted"`
	LastError     *protocol.ErrorPayload `json:"lastError,omitempty"`
	FixAttempts   []preview.FixAttempt   `json:"fixAttempts,omitempty"`

	Graph      []protocol.SceneNode            `json:"graph"`
	Stats      protocol.GeometryStatsPayload   `json:"stats"`
	Controls   []protocol.ParameterControl     `json:"controls"`
	Camera     protocol.CameraStatePayload     `json:"camera"`
	LastExport *protocol.ExportCompletePayload `json:"lastExport,omitempty"`

	CanUndo       bool `json:"canUndo"`
	CanRedo       bool `json:"canRedo"`
	HistoryLength int  `json:"historyLength"`
	HistoryCursor int  `json:"historyCursor"`
}

func viewOf(handle *sessionHandle) sessionView {
	status := handle.session.Status()
	view := sessionView{
		ID:            handle.id.String(),
		Name:          handle.name,
		Phase:         string(status.Phase),
		AutoRepair:    status.AutoRepair,
		ActiveCode:    status.ActiveCode,
		LastKnownGood: status.LastKnownGood,
		Attempts:      status.Attempts,
		Reverted:      status.Reverted,
		LastError:     status.LastError,
		FixAttempts:   status.FixAttempts,
		Graph:         status.Graph,
		Stats:         status.Stats,
		Controls:      status.Controls,
		Camera:        status.Camera,
		LastExport:    status.LastExport,
		CanUndo:       status.CanUndo,
		CanRedo:       status.CanRedo,
		HistoryLength: status.HistoryLength,
		HistoryCursor: status.HistoryCursor,
	}
	if handle.projectID != uuid.Nil {
		view.ProjectID = handle.projectID.String()
	}
	return view
}

func (s *server) handleHealth(writer http.ResponseWriter, request *http.Request) {
	respondJSON(writer, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Info(),
	})
}

func (s *server) handleListSessions(writer http.ResponseWriter, request *http.Request) {
	s.mu.Lock()
	handles := make([]*sessionHandle, 0, len(s.sessions))
	for _, handle := range s.sessions {
		handles = append(handles, handle)
	}
	s.mu.Unlock()

	views := make([]sessionView, 0, len(handles))
	for _, handle := range handles {
		views = append(views, viewOf(handle))
	}
	respondJSON(writer, http.StatusOK, views)
}

func (s *server) handleCreateSession(writer http.ResponseWriter, request *http.Request) {
	var body struct {
		ProjectID string `json:"projectId"`
	}
	if err := decodeBody(request, &body); err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}

	var projectID *uuid.UUID
	if body.ProjectID != "" {
		parsed, err := uuid.Parse(body.ProjectID)
		if err != nil {
			respondError(writer, http.StatusBadRequest, fmt.Errorf("invalid projectId: %w", err))
			return
		}
		projectID = &parsed
	}

	handle, err := s.createSession(request.Context(), projectID)
	if errors.Is(err, project.ErrNotFound) {
		respondError(writer, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(writer, http.StatusInternalServerError, err)
		return
	}
	respondJSON(writer, http.StatusCreated, viewOf(handle))
}

func (s *server) handleSessionStatus(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	respondJSON(writer, http.StatusOK, viewOf(handle))
}

func (s *server) handleCloseSession(writer http.ResponseWriter, request *http.Request) {
	id, err := uuid.Parse(chi.URLParam(request, "sessionID"))
	if err != nil {
		respondError(writer, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return
	}
	if !s.closeSession(id) {
		respondError(writer, http.StatusNotFound, fmt.Errorf("no session %s", id))
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGenerate(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(request, &body); err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}
	if body.Prompt == "" {
		respondError(writer, http.StatusBadRequest, fmt.Errorf("prompt is required"))
		return
	}
	if err := handle.session.Generate(request.Context(), body.Prompt); err != nil {
		respondError(writer, http.StatusBadGateway, err)
		return
	}
	respondJSON(writer, http.StatusOK, viewOf(handle))
}

func (s *server) handleApplyCode(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeBody(request, &body); err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}
	if err := handle.session.ApplyCode(body.Code); err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}
	respondJSON(writer, http.StatusOK, viewOf(handle))
}

func (s *server) handleUndo(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	handle.session.Undo()
	respondJSON(writer, http.StatusOK, viewOf(handle))
}

func (s *server) handleRedo(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	handle.session.Redo()
	respondJSON(writer, http.StatusOK, viewOf(handle))
}

func (s *server) handleRestore(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	var body struct {
		EntryID string `json:"entryId"`
	}
	if err := decodeBody(request, &body); err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}
	if body.EntryID == "" {
		respondError(writer, http.StatusBadRequest, fmt.Errorf("entryId is required"))
		return
	}
	handle.session.Restore(body.EntryID)
	respondJSON(writer, http.StatusOK, viewOf(handle))
}

func (s *server) handleHistory(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	respondJSON(writer, http.StatusOK, handle.session.HistoryEntries())
}

func (s *server) handleAutoRepair(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeBody(request, &body); err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}
	handle.session.SetAutoRepair(body.Enabled)
	respondJSON(writer, http.StatusOK, viewOf(handle))
}

// commandRequest is the wire shape for viewport and tool commands
// relayed to the sandbox.
type commandRequest struct {
	Action string `json:"action"`

	Mode   string `json:"mode,omitempty"`   // setRenderMode, setGizmoMode
	View   string `json:"view,omitempty"`   // setCameraView
	Format string `json:"format,omitempty"` // exportModel

	// performBoolean
	Op       string `json:"op,omitempty"`
	TargetID string `json:"targetId,omitempty"`
	ToolID   string `json:"toolId,omitempty"`

	// updateParam
	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`

	// updateMaterial: raw JSONC, comments and trailing commas allowed.
	Material json.RawMessage `json:"material,omitempty"`
}

func (s *server) handleCommand(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	var body commandRequest
	if err := decodeBody(request, &body); err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}

	session := handle.session
	var err error
	switch body.Action {
	case "setRenderMode":
		err = session.SetRenderMode(body.Mode)
	case "toggleGrid":
		err = session.ToggleGrid()
	case "setGizmoMode":
		err = session.SetGizmoMode(body.Mode)
	case "setCameraView":
		err = session.SetCameraView(body.View)
	case "performBoolean":
		err = session.PerformBoolean(body.Op, body.TargetID, body.ToolID)
	case "updateParam":
		err = session.UpdateParam(body.Name, body.Value)
	case "updateMaterial":
		err = session.UpdateMaterialFromJSONC(body.Material)
	case "exportModel":
		err = session.ExportModel(body.Format)
	case "requestStats":
		err = session.RequestStats()
	default:
		respondError(writer, http.StatusBadRequest, fmt.Errorf("unknown action %q", body.Action))
		return
	}
	if err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}
	writer.WriteHeader(http.StatusAccepted)
}

func (s *server) handleSave(writer http.ResponseWriter, request *http.Request) {
	handle := s.sessionFromRequest(writer, request)
	if handle == nil {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(request, &body); err != nil {
		respondError(writer, http.StatusBadRequest, err)
		return
	}

	status := handle.session.Status()
	if status.ActiveCode == "" {
		respondError(writer, http.StatusConflict, fmt.Errorf("session has no program to save"))
		return
	}
	name := body.Name
	if name == "" {
		name = handle.name
	}
	if name == "" {
		respondError(writer, http.StatusBadRequest, fmt.Errorf("name is required for the first save"))
		return
	}

	record := project.Record{
		ID:      handle.projectID,
		Name:    name,
		Code:    status.ActiveCode,
		History: handle.session.HistorySnapshot(),
	}
	if err := s.store.Save(request.Context(), &record); err != nil {
		respondError(writer, http.StatusInternalServerError, err)
		return
	}
	handle.projectID = record.ID
	handle.name = record.Name

	respondJSON(writer, http.StatusOK, projectViewOf(project.Summary{
		ID:        record.ID,
		Name:      record.Name,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}))
}

// projectView is the JSON shape of a project summary.
type projectView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CodeHash  string    `json:"codeHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func projectViewOf(summary project.Summary) projectView {
	return projectView{
		ID:        summary.ID.String(),
		Name:      summary.Name,
		CodeHash:  summary.CodeHash,
		CreatedAt: summary.CreatedAt,
		UpdatedAt: summary.UpdatedAt,
	}
}

func (s *server) handleListProjects(writer http.ResponseWriter, request *http.Request) {
	summaries, err := s.store.List(request.Context())
	if err != nil {
		respondError(writer, http.StatusInternalServerError, err)
		return
	}
	views := make([]projectView, 0, len(summaries))
	for _, summary := range summaries {
		views = append(views, projectViewOf(summary))
	}
	respondJSON(writer, http.StatusOK, views)
}

func (s *server) handleGetProject(writer http.ResponseWriter, request *http.Request) {
	id, err := uuid.Parse(chi.URLParam(request, "projectID"))
	if err != nil {
		respondError(writer, http.StatusBadRequest, fmt.Errorf("invalid project id: %w", err))
		return
	}
	record, err := s.store.Load(request.Context(), id)
	if errors.Is(err, project.ErrNotFound) {
		respondError(writer, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(writer, http.StatusInternalServerError, err)
		return
	}
	respondJSON(writer, http.StatusOK, struct {
		projectView
		Code    string          `json:"code"`
		History *preview.History `json:"history,omitempty"`
	}{
		projectView: projectView{
			ID:        record.ID.String(),
			Name:      record.Name,
			CreatedAt: record.CreatedAt,
			UpdatedAt: record.UpdatedAt,
		},
		Code:    record.Code,
		History: record.History,
	})
}

func (s *server) handleDeleteProject(writer http.ResponseWriter, request *http.Request) {
	id, err := uuid.Parse(chi.URLParam(request, "projectID"))
	if err != nil {
		respondError(writer, http.StatusBadRequest, fmt.Errorf("invalid project id: %w", err))
		return
	}
	err = s.store.Delete(request.Context(), id)
	if errors.Is(err, project.ErrNotFound) {
		respondError(writer, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(writer, http.StatusInternalServerError, err)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// sessionFromRequest resolves the {sessionID} route parameter, writing
// the error response itself when the session is missing.
func (s *server) sessionFromRequest(writer http.ResponseWriter, request *http.Request) *sessionHandle {
	id, err := uuid.Parse(chi.URLParam(request, "sessionID"))
	if err != nil {
		respondError(writer, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return nil
	}
	handle := s.lookup(id)
	if handle == nil {
		respondError(writer, http.StatusNotFound, fmt.Errorf("no session %s", id))
		return nil
	}
	return handle
}

// decodeBody decodes a JSON request body. An empty body decodes to the
// zero value.
func decodeBody(request *http.Request, destination any) error {
	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(destination); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func respondJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(payload)
}

func respondError(writer http.ResponseWriter, status int, err error) {
	respondJSON(writer, status, map[string]string{"error": err.Error()})
}
