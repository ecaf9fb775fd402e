// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"math"
	"testing"
)

func TestSceneAddAssignsIDsAndNames(t *testing.T) {
	scene := NewScene()
	first := scene.Add(&Object{Kind: "box", Visible: true})
	second := scene.Add(&Object{Kind: "sphere", Name: "ball", Visible: true})

	if first.ID != "obj-1" || second.ID != "obj-2" {
		t.Errorf("ids = %q, %q, want obj-1, obj-2", first.ID, second.ID)
	}
	if first.Name != "box-1" {
		t.Errorf("derived name = %q, want box-1", first.Name)
	}
	if second.Name != "ball" {
		t.Errorf("explicit name = %q, want ball", second.Name)
	}
	if scene.ByID("obj-2") != second {
		t.Error("ByID did not return the added object")
	}
}

func TestSceneRemoveUnknownIsNoOp(t *testing.T) {
	scene := NewScene()
	scene.Add(&Object{Kind: "box", Visible: true})
	scene.Remove("obj-99")
	if scene.Len() != 1 {
		t.Errorf("Len = %d after removing unknown id, want 1", scene.Len())
	}
}

func TestSceneNodesExcludesHelpers(t *testing.T) {
	scene := NewScene()
	scene.Add(&Object{Kind: "box", Visible: true})
	scene.Add(&Object{Kind: "grid", Helper: true, Visible: true})
	scene.Add(&Object{Kind: "sphere", Visible: false})

	nodes := scene.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("Nodes returned %d entries, want 2", len(nodes))
	}
	for _, node := range nodes {
		if node.Kind == "grid" {
			t.Error("helper object appeared in the projection")
		}
	}
	// Hidden objects stay in the graph; only helpers are filtered.
	if nodes[1].Visible {
		t.Error("hidden object reported as visible")
	}
}

func TestSceneStatsUnionBox(t *testing.T) {
	scene := NewScene()
	scene.Add(&Object{
		Kind: "box", Visible: true,
		Center: [3]float64{0, 0, 0}, Size: [3]float64{10, 10, 10},
		Triangles: 12, Manifold: true, ManifoldKnown: true,
	})
	scene.Add(&Object{
		Kind: "box", Visible: true,
		Center: [3]float64{10, 0, 0}, Size: [3]float64{10, 10, 10},
		Triangles: 12, Manifold: true, ManifoldKnown: true,
	})
	// Helpers and hidden objects must not contribute.
	scene.Add(&Object{
		Kind: "grid", Helper: true, Visible: true,
		Size: [3]float64{1000, 0, 1000}, Triangles: 2,
	})
	scene.Add(&Object{
		Kind: "sphere", Visible: false,
		Size: [3]float64{500, 500, 500}, Triangles: 960,
	})

	stats := scene.Stats()
	if stats.Width != 20 || stats.Height != 10 || stats.Depth != 10 {
		t.Errorf("bbox = %vx%vx%v, want 20x10x10", stats.Width, stats.Height, stats.Depth)
	}
	if stats.Tris != 24 {
		t.Errorf("Tris = %d, want 24", stats.Tris)
	}
	if stats.Manifold == nil || !*stats.Manifold {
		t.Errorf("Manifold = %v, want true", stats.Manifold)
	}
}

func TestSceneStatsManifoldUnknown(t *testing.T) {
	scene := NewScene()
	scene.Add(&Object{
		Kind: "box", Visible: true,
		Size: [3]float64{5, 5, 5}, Triangles: 12,
		Manifold: true, ManifoldKnown: true,
	})
	scene.Add(&Object{
		Kind: "csg", Visible: true,
		Size: [3]float64{5, 5, 5}, Triangles: 24,
		ManifoldKnown: false,
	})

	stats := scene.Stats()
	if stats.Manifold != nil {
		t.Errorf("Manifold = %v, want nil when any object is unknown", *stats.Manifold)
	}
}

func TestSceneStatsEmpty(t *testing.T) {
	stats := NewScene().Stats()
	if stats.Width != 0 || stats.Tris != 0 || stats.Manifold != nil {
		t.Errorf("empty scene stats = %+v, want zero", stats)
	}
}

func TestSceneRadius(t *testing.T) {
	scene := NewScene()
	scene.Add(&Object{
		Kind: "box", Visible: true,
		Size: [3]float64{2, 2, 2}, Triangles: 12,
		Manifold: true, ManifoldKnown: true,
	})
	want := math.Sqrt(12) / 2
	if got := scene.Radius(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Radius = %v, want %v", got, want)
	}
}

func TestSceneMainObjectHeuristic(t *testing.T) {
	scene := NewScene()
	helper := scene.Add(&Object{Kind: "grid", Helper: true, Visible: true})
	hidden := scene.Add(&Object{Kind: "box", Visible: false})
	visible := scene.Add(&Object{Kind: "sphere", Visible: true})

	if got := scene.MainObject(nil); got != visible {
		t.Errorf("MainObject(nil) = %v, want first visible non-helper", got)
	}
	if got := scene.MainObject(hidden); got != hidden {
		t.Errorf("MainObject(explicit) = %v, want the explicit handle", got)
	}

	// An explicit handle that left the scene falls back to the
	// heuristic.
	scene.Remove(hidden.ID)
	if got := scene.MainObject(hidden); got != visible {
		t.Errorf("MainObject(removed explicit) = %v, want fallback", got)
	}

	scene.Remove(visible.ID)
	if got := scene.MainObject(nil); got != nil {
		t.Errorf("MainObject with only %s left = %v, want nil", helper.Kind, got)
	}
}
