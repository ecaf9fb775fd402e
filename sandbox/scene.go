// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"math"

	"github.com/easel-foundation/easel/protocol"
)

// Object is one node of the sandbox-owned scene graph. Geometry is
// bookkeeping only (analytic bounding boxes and triangle counts):
// the control plane supervises rendering code, it does not render.
type Object struct {
	// ID is unique within one program universe. IDs are not stable
	// across reloads.
	ID string

	// Name is the display name, program-provided or derived from the
	// kind.
	Name string

	// Kind tags the object type: box, sphere, cylinder, group, csg.
	Kind string

	// Helper marks grids, gizmos, and other scaffolding that is not
	// part of the model. Helpers are excluded from the host
	// projection and from the main-object heuristic.
	Helper bool

	Visible  bool
	Selected bool

	// Center and Size describe the axis-aligned bounding box.
	Center [3]float64
	Size   [3]float64

	// Triangles is the approximate tessellation count.
	Triangles int

	// Manifold reports watertightness; ManifoldKnown is false when a
	// boolean op made the property uncomputable.
	Manifold      bool
	ManifoldKnown bool

	// Material is the object's material description.
	Material protocol.MaterialConfig
}

// Scene is the ordered collection of objects in one program universe.
// It is owned by the sandbox event loop and never accessed
// concurrently, so it carries no lock.
type Scene struct {
	objects []*Object
	byID    map[string]*Object
	nextID  int
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{byID: map[string]*Object{}}
}

// Add inserts an object, assigning its ID and a derived name when the
// program gave none.
func (s *Scene) Add(object *Object) *Object {
	s.nextID++
	object.ID = fmt.Sprintf("obj-%d", s.nextID)
	if object.Name == "" {
		object.Name = fmt.Sprintf("%s-%d", object.Kind, s.nextID)
	}
	s.objects = append(s.objects, object)
	s.byID[object.ID] = object
	return object
}

// Remove deletes an object by id. Removing an unknown id is a no-op.
func (s *Scene) Remove(id string) {
	object, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	for i, candidate := range s.objects {
		if candidate == object {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			break
		}
	}
}

// ByID returns the object with the given id, or nil.
func (s *Scene) ByID(id string) *Object { return s.byID[id] }

// Objects returns the objects in insertion order. The slice is the
// scene's own; callers inside the event loop must not retain it.
func (s *Scene) Objects() []*Object { return s.objects }

// Len returns the number of objects, helpers included.
func (s *Scene) Len() int { return len(s.objects) }

// Nodes returns the host-facing projection of the graph: every
// non-helper object, serialized. Helpers (grids, gizmo scaffolding)
// never appear in the projection.
func (s *Scene) Nodes() []protocol.SceneNode {
	nodes := make([]protocol.SceneNode, 0, len(s.objects))
	for _, object := range s.objects {
		if object.Helper {
			continue
		}
		nodes = append(nodes, protocol.SceneNode{
			ID:       object.ID,
			Name:     object.Name,
			Kind:     object.Kind,
			Visible:  object.Visible,
			Selected: object.Selected,
		})
	}
	return nodes
}

// Stats computes scene-level geometry statistics over visible,
// non-helper objects: the union bounding box, the total triangle
// count, and the manifold flag (nil when any contributing object's
// manifoldness is unknown).
func (s *Scene) Stats() protocol.GeometryStatsPayload {
	var stats protocol.GeometryStatsPayload

	first := true
	var min, max [3]float64
	allManifold := true
	manifoldKnown := true

	for _, object := range s.objects {
		if object.Helper || !object.Visible {
			continue
		}
		for axis := 0; axis < 3; axis++ {
			lower := object.Center[axis] - object.Size[axis]/2
			upper := object.Center[axis] + object.Size[axis]/2
			if first {
				min[axis], max[axis] = lower, upper
			} else {
				min[axis] = math.Min(min[axis], lower)
				max[axis] = math.Max(max[axis], upper)
			}
		}
		first = false
		stats.Tris += object.Triangles
		if !object.ManifoldKnown {
			manifoldKnown = false
		} else if !object.Manifold {
			allManifold = false
		}
	}

	if !first {
		stats.Width = max[0] - min[0]
		stats.Height = max[1] - min[1]
		stats.Depth = max[2] - min[2]
		if manifoldKnown {
			manifold := allManifold
			stats.Manifold = &manifold
		}
	}
	return stats
}

// Radius returns half the diagonal of the scene bounding box, used
// for camera distance. Zero for an empty scene.
func (s *Scene) Radius() float64 {
	stats := s.Stats()
	return math.Sqrt(stats.Width*stats.Width+stats.Height*stats.Height+stats.Depth*stats.Depth) / 2
}

// MainObject applies the main-render-object heuristic: the explicit
// handle when the program exported one, otherwise the first visible
// non-helper object in insertion order. Generated programs have no
// fixed structure, so this is best effort. Returns nil when the
// scene has no candidate.
func (s *Scene) MainObject(explicit *Object) *Object {
	if explicit != nil && s.byID[explicit.ID] == explicit {
		return explicit
	}
	for _, object := range s.objects {
		if !object.Helper && object.Visible {
			return object
		}
	}
	return nil
}
