// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"math"
)

// Boolean operation names accepted by performBoolean.
const (
	BooleanUnion     = "union"
	BooleanSubtract  = "subtract"
	BooleanIntersect = "intersect"
)

// booleanEvaluator applies boolean operations to the scene's
// bookkeeping geometry. It is instantiated lazily on the first
// performBoolean command so idle sessions never pay for it.
type booleanEvaluator struct {
	applied int
}

// Apply replaces the target object with the boolean result and
// removes the tool object. The geometry is bookkeeping: bounding
// boxes combine analytically and triangle counts are estimates. The
// manifold property of a result is unknown.
func (evaluator *booleanEvaluator) Apply(scene *Scene, op, targetID, toolID string) (*Object, error) {
	target := scene.ByID(targetID)
	if target == nil {
		return nil, fmt.Errorf("boolean %s: no object with id %q", op, targetID)
	}
	tool := scene.ByID(toolID)
	if tool == nil {
		return nil, fmt.Errorf("boolean %s: no object with id %q", op, toolID)
	}
	if target == tool {
		return nil, fmt.Errorf("boolean %s: target and tool are the same object %q", op, targetID)
	}

	var center, size [3]float64
	triangles := 0
	switch op {
	case BooleanUnion:
		center, size = unionBox(target, tool)
		triangles = target.Triangles + tool.Triangles
	case BooleanSubtract:
		// Subtraction cannot grow the target.
		center, size = target.Center, target.Size
		triangles = target.Triangles + tool.Triangles/2
	case BooleanIntersect:
		var ok bool
		center, size, ok = intersectBox(target, tool)
		if !ok {
			return nil, fmt.Errorf("boolean intersect: %q and %q do not overlap", targetID, toolID)
		}
		triangles = minInt(target.Triangles, tool.Triangles)
	default:
		return nil, fmt.Errorf("boolean: unknown op %q", op)
	}

	evaluator.applied++
	result := &Object{
		Name:      fmt.Sprintf("%s(%s, %s)", op, target.Name, tool.Name),
		Kind:      "csg",
		Visible:   target.Visible,
		Selected:  target.Selected,
		Center:    center,
		Size:      size,
		Triangles: triangles,
		Material:  target.Material,
		// Watertightness is not computable from bookkeeping alone.
		ManifoldKnown: false,
	}

	scene.Remove(tool.ID)
	scene.Remove(target.ID)
	return scene.Add(result), nil
}

func unionBox(a, b *Object) (center, size [3]float64) {
	for axis := 0; axis < 3; axis++ {
		lower := math.Min(a.Center[axis]-a.Size[axis]/2, b.Center[axis]-b.Size[axis]/2)
		upper := math.Max(a.Center[axis]+a.Size[axis]/2, b.Center[axis]+b.Size[axis]/2)
		center[axis] = (lower + upper) / 2
		size[axis] = upper - lower
	}
	return center, size
}

func intersectBox(a, b *Object) (center, size [3]float64, ok bool) {
	for axis := 0; axis < 3; axis++ {
		lower := math.Max(a.Center[axis]-a.Size[axis]/2, b.Center[axis]-b.Size[axis]/2)
		upper := math.Min(a.Center[axis]+a.Size[axis]/2, b.Center[axis]+b.Size[axis]/2)
		if upper <= lower {
			return center, size, false
		}
		center[axis] = (lower + upper) / 2
		size[axis] = upper - lower
	}
	return center, size, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Gizmo modes accepted by setGizmoMode.
const (
	GizmoNone      = "none"
	GizmoTranslate = "translate"
	GizmoRotate    = "rotate"
	GizmoScale     = "scale"
)

// gizmoController tracks the active manipulation gizmo. Instantiated
// lazily on the first setGizmoMode command. Attaching marks the main
// object selected so the selection flag in the host projection
// follows the gizmo.
type gizmoController struct {
	mode     string
	attached *Object
}

func newGizmoController() *gizmoController {
	return &gizmoController{mode: GizmoNone}
}

// SetMode switches the gizmo mode and re-attaches to the given
// object (usually the main object). An unknown mode is rejected.
func (gizmo *gizmoController) SetMode(mode string, object *Object) error {
	switch mode {
	case GizmoNone, GizmoTranslate, GizmoRotate, GizmoScale:
	default:
		return fmt.Errorf("gizmo: unknown mode %q", mode)
	}

	if gizmo.attached != nil && gizmo.attached != object {
		gizmo.attached.Selected = false
	}
	gizmo.mode = mode
	gizmo.attached = nil
	if mode != GizmoNone && object != nil {
		gizmo.attached = object
		object.Selected = true
	} else if object != nil {
		object.Selected = false
	}
	return nil
}
