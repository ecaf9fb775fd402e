// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"testing"

	"github.com/easel-foundation/easel/sandbox"
)

func TestDispatchCameraAndParams(t *testing.T) {
	h := startSession(t, harnessConfig{noService: true})

	if err := h.session.ApplyCode(`
width = param(name="width", default=40, min=10, max=100)
box(size=[width, 10, 10], name="body")
`); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.waitStatus(t, "initial stats", func(s Status) bool { return s.Stats.Width == 40 })

	if err := h.session.UpdateParam("width", 75); err != nil {
		t.Fatalf("UpdateParam: %v", err)
	}
	h.waitStatus(t, "updated stats", func(s Status) bool { return s.Stats.Width == 75 })

	if err := h.session.SetCameraView(sandbox.ViewTop); err != nil {
		t.Fatalf("SetCameraView: %v", err)
	}
	h.waitStatus(t, "camera snap", func(s Status) bool { return s.Camera.View == sandbox.ViewTop })

	if err := h.session.SetGizmoMode(sandbox.GizmoTranslate); err != nil {
		t.Fatalf("SetGizmoMode: %v", err)
	}
	h.waitStatus(t, "selection", func(s Status) bool {
		return len(s.Graph) == 1 && s.Graph[0].Selected
	})
}

func TestDispatchBooleanWithStaleIDSurfacesError(t *testing.T) {
	h := startSession(t, harnessConfig{noService: true})

	if err := h.session.ApplyCode(`box(name="a")` + "\n" + `box(name="b", at=[5, 0, 0])`); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	status := h.waitStatus(t, "graph", func(s Status) bool { return len(s.Graph) == 2 })

	// An id from a stale broadcast. The sandbox must answer with an
	// error event, not die.
	if err := h.session.PerformBoolean(sandbox.BooleanUnion, status.Graph[0].ID, "obj-999"); err != nil {
		t.Fatalf("PerformBoolean: %v", err)
	}
	h.waitStatus(t, "boolean error", func(s Status) bool { return s.LastError != nil })

	// The sandbox survived; a valid boolean still works.
	if err := h.session.PerformBoolean(sandbox.BooleanUnion, status.Graph[0].ID, status.Graph[1].ID); err != nil {
		t.Fatalf("PerformBoolean: %v", err)
	}
	h.waitStatus(t, "union applied", func(s Status) bool {
		return len(s.Graph) == 1 && s.Graph[0].Kind == "csg"
	})
}

func TestDispatchExport(t *testing.T) {
	h := startSession(t, harnessConfig{noService: true})

	if err := h.session.ApplyCode(goodProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.waitStatus(t, "loaded", func(s Status) bool { return len(s.Graph) == 1 })

	if err := h.session.ExportModel(sandbox.FormatOBJ); err != nil {
		t.Fatalf("ExportModel: %v", err)
	}
	status := h.waitStatus(t, "export ack", func(s Status) bool { return s.LastExport != nil })
	if status.LastExport.Format != sandbox.FormatOBJ || status.LastExport.Path == "" {
		t.Errorf("export ack = %+v", status.LastExport)
	}
}

func TestUpdateMaterialFromJSONC(t *testing.T) {
	h := startSession(t, harnessConfig{noService: true})
	if err := h.session.ApplyCode(goodProgram); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}
	h.waitStatus(t, "loaded", func(s Status) bool { return len(s.Graph) == 1 })

	preset := []byte(`{
	// brushed metal preset
	"color": "#8899aa",
	"metalness": 0.9,
	"roughness": 0.35, // slightly satin
	"opacity": 1,
}`)
	if err := h.session.UpdateMaterialFromJSONC(preset); err != nil {
		t.Fatalf("UpdateMaterialFromJSONC: %v", err)
	}

	// Material state is not observable through events; this test
	// proves the preset parses and the command is accepted without an
	// error event.
	if err := h.session.RequestStats(); err != nil {
		t.Fatalf("RequestStats: %v", err)
	}
	status := h.waitStatus(t, "stats after material", func(s Status) bool { return s.Stats.Tris == 12 })
	if status.LastError != nil {
		t.Errorf("material update surfaced an error: %+v", status.LastError)
	}

	if err := h.session.UpdateMaterialFromJSONC([]byte("not a material")); err == nil {
		t.Error("malformed preset accepted")
	}
}
