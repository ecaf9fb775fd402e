// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Host→sandbox command types. Commands are imperative and
// fire-and-forget: the sandbox applies them synchronously within its
// own event loop turn, and any visible change surfaces through the
// next state broadcast rather than a direct reply.
const (
	// TypeLoadProgram replaces the running program wholesale. The
	// sandbox tears down its entire universe (scene, parameters,
	// tools, camera) and evaluates the new source from scratch.
	TypeLoadProgram = "loadProgram"

	// TypeSetRenderMode switches the render style (solid, wireframe,
	// ghost).
	TypeSetRenderMode = "setRenderMode"

	// TypeToggleGrid flips the reference grid on or off.
	TypeToggleGrid = "toggleGrid"

	// TypeSetGizmoMode selects the active manipulation gizmo
	// (translate, rotate, scale, none).
	TypeSetGizmoMode = "setGizmoMode"

	// TypeSetCameraView moves the camera to a named view.
	TypeSetCameraView = "setCameraView"

	// TypePerformBoolean applies a boolean operation between two
	// scene nodes identified by id.
	TypePerformBoolean = "performBoolean"

	// TypeUpdateParam sets a named tunable exposed by the program.
	TypeUpdateParam = "updateParam"

	// TypeUpdateMaterial replaces the material configuration of the
	// main render object.
	TypeUpdateMaterial = "updateMaterial"

	// TypeExportModel requests an export in a named format.
	TypeExportModel = "exportModel"

	// TypeRequestStats forces an immediate state broadcast, ahead of
	// the next scheduled one.
	TypeRequestStats = "requestStats"
)

// Sandbox→host event types. Events are descriptive: serialized
// projections of sandbox-owned state. The host never owns sandbox
// objects, only these descriptions.
const (
	// TypeError reports a trapped runtime failure inside the sandbox.
	TypeError = "error"

	// TypeSceneGraphUpdate carries the serialized object hierarchy.
	TypeSceneGraphUpdate = "sceneGraphUpdate"

	// TypeGeometryStats carries bounding-box dimensions and triangle
	// counts for the whole scene.
	TypeGeometryStats = "geometryStats"

	// TypeGUIConfig carries the parameter controls the program
	// registered through the bridge's parameter proxy.
	TypeGUIConfig = "guiConfig"

	// TypeCameraState carries the current camera placement.
	TypeCameraState = "cameraState"

	// TypeExportComplete acknowledges a finished export.
	TypeExportComplete = "exportComplete"
)

// commandTypes is the set of known host→sandbox commands.
var commandTypes = map[string]bool{
	TypeLoadProgram:    true,
	TypeSetRenderMode:  true,
	TypeToggleGrid:     true,
	TypeSetGizmoMode:   true,
	TypeSetCameraView:  true,
	TypePerformBoolean: true,
	TypeUpdateParam:    true,
	TypeUpdateMaterial: true,
	TypeExportModel:    true,
	TypeRequestStats:   true,
}

// eventTypes is the set of known sandbox→host events.
var eventTypes = map[string]bool{
	TypeError:            true,
	TypeSceneGraphUpdate: true,
	TypeGeometryStats:    true,
	TypeGUIConfig:        true,
	TypeCameraState:      true,
	TypeExportComplete:   true,
}

// IsCommand reports whether messageType is a known host→sandbox
// command. Unknown types are dropped by the sandbox dispatcher.
func IsCommand(messageType string) bool { return commandTypes[messageType] }

// IsEvent reports whether messageType is a known sandbox→host event.
// Unknown types are dropped by the host dispatcher.
func IsEvent(messageType string) bool { return eventTypes[messageType] }

// SceneNode is a read-only projection of one sandbox-side object.
type SceneNode struct {
	// ID is the stable object identifier within the current program
	// universe. IDs do not survive a reload.
	ID string `json:"id"`

	// Name is the display name (object-provided or derived).
	Name string `json:"name"`

	// Kind is the object type tag (box, sphere, cylinder, group, csg).
	Kind string `json:"kind"`

	// Visible reports whether the object is currently rendered.
	Visible bool `json:"visible"`

	// Selected reports whether the object is the current selection.
	Selected bool `json:"selected"`
}

// ParameterControl describes a tunable exposed by the running program.
// The host treats it as a remote-controlled variable: mutated only via
// updateParam commands, never written directly.
type ParameterControl struct {
	// Name is the parameter identifier, unique within a program.
	Name string `json:"name"`

	// Value is the current value: a JSON number, bool, or string
	// depending on Kind.
	Value any `json:"value"`

	// Kind is the control type: "number", "toggle", or "choice".
	Kind string `json:"kind"`

	// Min, Max, and Step bound numeric controls. Nil when unbounded.
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`

	// Options lists the valid values for choice controls.
	Options []string `json:"options,omitempty"`

	// Group is an optional UI grouping hint.
	Group string `json:"group,omitempty"`
}

// MaterialConfig is the material description applied to the main
// render object.
type MaterialConfig struct {
	// Color is a hex color string like "#6699ff".
	Color string `json:"color,omitempty"`

	// Metalness and Roughness are PBR scalars in [0, 1].
	Metalness float64 `json:"metalness"`
	Roughness float64 `json:"roughness"`

	// Opacity in [0, 1]; 1 is fully opaque.
	Opacity float64 `json:"opacity"`

	// Wireframe renders edges only.
	Wireframe bool `json:"wireframe"`

	// FlatShading disables normal interpolation.
	FlatShading bool `json:"flatShading"`
}

// LoadProgramPayload carries the program source for a wholesale
// reload.
type LoadProgramPayload struct {
	// Source is the complete, self-contained program text.
	Source string `json:"source"`
}

// SetRenderModePayload selects a render style.
type SetRenderModePayload struct {
	Mode string `json:"mode"`
}

// ToggleGridPayload has no fields; toggling carries no state.
type ToggleGridPayload struct{}

// SetGizmoModePayload selects the manipulation gizmo.
type SetGizmoModePayload struct {
	Mode string `json:"mode"`
}

// SetCameraViewPayload names the target view (front, top, right,
// isometric, home).
type SetCameraViewPayload struct {
	View string `json:"view"`
}

// PerformBooleanPayload applies Op (union, subtract, intersect)
// between the target and tool nodes.
type PerformBooleanPayload struct {
	Op       string `json:"op"`
	TargetID string `json:"targetId"`
	ToolID   string `json:"toolId"`
}

// UpdateParamPayload sets a named parameter. Value is a JSON scalar
// matching the control's kind.
type UpdateParamPayload struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// UpdateMaterialPayload replaces the main object's material.
type UpdateMaterialPayload struct {
	Config MaterialConfig `json:"config"`
}

// ExportModelPayload requests an export in the named format
// (obj, stl, json).
type ExportModelPayload struct {
	Format string `json:"format"`
}

// RequestStatsPayload has no fields.
type RequestStatsPayload struct{}

// ErrorPayload reports a trapped runtime failure.
type ErrorPayload struct {
	// Message is the error text.
	Message string `json:"message"`

	// Source is the failing source position ("file:line:col") when
	// the trap could determine one. Empty otherwise.
	Source string `json:"source,omitempty"`
}

// SceneGraphUpdatePayload carries the full serialized hierarchy.
// Always the complete graph, never a delta: each broadcast is
// authoritative.
type SceneGraphUpdatePayload struct {
	Graph []SceneNode `json:"graph"`
}

// GeometryStatsPayload carries scene-level geometry bookkeeping.
type GeometryStatsPayload struct {
	// Width, Height, and Depth are the axis-aligned bounding box
	// dimensions of the visible scene.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`

	// Tris is the total triangle count.
	Tris int `json:"tris"`

	// Manifold reports whether every visible object is watertight.
	// Nil when not computable (e.g. after a boolean op on open
	// geometry).
	Manifold *bool `json:"manifold,omitempty"`
}

// GUIConfigPayload carries the registered parameter controls.
type GUIConfigPayload struct {
	Controls []ParameterControl `json:"controls"`
}

// CameraStatePayload carries the camera placement.
type CameraStatePayload struct {
	// View is the named view the camera last snapped to, or "" after
	// free movement.
	View string `json:"view,omitempty"`

	// Position and Target are world-space coordinates.
	Position [3]float64 `json:"position"`
	Target   [3]float64 `json:"target"`
}

// ExportCompletePayload acknowledges a finished export.
type ExportCompletePayload struct {
	// Format echoes the requested format.
	Format string `json:"format,omitempty"`

	// Path is where the sandbox wrote the export, when it wrote one.
	Path string `json:"path,omitempty"`
}

// NewErrorEvent creates an error event with the given message and
// optional source position.
func NewErrorEvent(message, source string) Message {
	return MustNew(TypeError, ErrorPayload{Message: message, Source: source})
}

// NewSceneGraphUpdateEvent creates a scene graph broadcast.
func NewSceneGraphUpdateEvent(graph []SceneNode) Message {
	if graph == nil {
		graph = []SceneNode{}
	}
	return MustNew(TypeSceneGraphUpdate, SceneGraphUpdatePayload{Graph: graph})
}

// NewGeometryStatsEvent creates a geometry statistics broadcast.
func NewGeometryStatsEvent(stats GeometryStatsPayload) Message {
	return MustNew(TypeGeometryStats, stats)
}

// NewGUIConfigEvent creates a parameter-controls broadcast.
func NewGUIConfigEvent(controls []ParameterControl) Message {
	if controls == nil {
		controls = []ParameterControl{}
	}
	return MustNew(TypeGUIConfig, GUIConfigPayload{Controls: controls})
}

// NewCameraStateEvent creates a camera placement broadcast.
func NewCameraStateEvent(state CameraStatePayload) Message {
	return MustNew(TypeCameraState, state)
}

// NewExportCompleteEvent acknowledges an export.
func NewExportCompleteEvent(format, path string) Message {
	return MustNew(TypeExportComplete, ExportCompletePayload{Format: format, Path: path})
}

// NewLoadProgramCommand creates a wholesale program reload command.
func NewLoadProgramCommand(source string) Message {
	return MustNew(TypeLoadProgram, LoadProgramPayload{Source: source})
}

// NewUpdateParamCommand creates a parameter update command.
func NewUpdateParamCommand(name string, value any) Message {
	return MustNew(TypeUpdateParam, UpdateParamPayload{Name: name, Value: value})
}

// NewPerformBooleanCommand creates a boolean operation command.
func NewPerformBooleanCommand(op, targetID, toolID string) Message {
	return MustNew(TypePerformBoolean, PerformBooleanPayload{Op: op, TargetID: targetID, ToolID: toolID})
}
