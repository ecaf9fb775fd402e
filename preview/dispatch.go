// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/easel-foundation/easel/protocol"
)

// Direct-manipulation commands. These are fire-and-forget:
// the sandbox applies them on its own loop and the result shows up in
// the next state broadcast, never as a reply. A send error here means
// the connection is down; anything else the sandbox wants to say
// about the command comes back as an error event.

// SetRenderMode selects the render style (solid, wireframe,
// realistic).
func (s *Session) SetRenderMode(mode string) error {
	return s.send(protocol.MustNew(protocol.TypeSetRenderMode,
		protocol.SetRenderModePayload{Mode: mode}))
}

// ToggleGrid flips the reference grid.
func (s *Session) ToggleGrid() error {
	return s.send(protocol.MustNew(protocol.TypeToggleGrid, nil))
}

// SetGizmoMode selects the manipulation gizmo (none, translate,
// rotate, scale).
func (s *Session) SetGizmoMode(mode string) error {
	return s.send(protocol.MustNew(protocol.TypeSetGizmoMode,
		protocol.SetGizmoModePayload{Mode: mode}))
}

// SetCameraView snaps the camera to a named view (front, top, right,
// isometric, home).
func (s *Session) SetCameraView(view string) error {
	return s.send(protocol.MustNew(protocol.TypeSetCameraView,
		protocol.SetCameraViewPayload{View: view}))
}

// PerformBoolean applies a boolean operation between two scene nodes
// from the last graph broadcast. The ids are whatever the host last
// saw; if an id went stale the sandbox reports an error event rather
// than crashing.
func (s *Session) PerformBoolean(op, targetID, toolID string) error {
	return s.send(protocol.NewPerformBooleanCommand(op, targetID, toolID))
}

// UpdateParam sets a declared parameter. Value must be a JSON scalar
// matching the control's kind.
func (s *Session) UpdateParam(name string, value any) error {
	return s.send(protocol.NewUpdateParamCommand(name, value))
}

// UpdateMaterial replaces the main object's material.
func (s *Session) UpdateMaterial(config protocol.MaterialConfig) error {
	return s.send(protocol.MustNew(protocol.TypeUpdateMaterial,
		protocol.UpdateMaterialPayload{Config: config}))
}

// UpdateMaterialFromJSONC parses a material description in JSON with
// comments (the on-disk material preset format) and applies it.
func (s *Session) UpdateMaterialFromJSONC(data []byte) error {
	var config protocol.MaterialConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
		return fmt.Errorf("preview: parsing material preset: %w", err)
	}
	return s.UpdateMaterial(config)
}

// ExportModel asks the sandbox to write the scene in the named format
// (obj, stl, json). Completion arrives as an exportComplete event.
func (s *Session) ExportModel(format string) error {
	return s.send(protocol.MustNew(protocol.TypeExportModel,
		protocol.ExportModelPayload{Format: format}))
}

// RequestStats asks for an immediate graph and statistics broadcast,
// for responsiveness right after a known mutating operation.
func (s *Session) RequestStats() error {
	return s.send(protocol.MustNew(protocol.TypeRequestStats, nil))
}

func (s *Session) send(message protocol.Message) error {
	if err := s.conn.Send(message); err != nil {
		return fmt.Errorf("preview: sending %s: %w", message.Type, err)
	}
	return nil
}
