// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/easel-foundation/easel/protocol"
)

// Export formats accepted by the exportModel command.
const (
	FormatOBJ  = "obj"
	FormatSTL  = "stl"
	FormatJSON = "json"
)

// exporter writes scene renditions to disk. Objects are written as
// their bounding boxes: the sandbox tracks analytic extents rather
// than tessellated meshes, so a box per object is the most faithful
// rendition it can produce. Helpers are never exported.
type exporter struct {
	dir   string
	now   func() time.Time
	nonce int
}

func newExporter(dir string, now func() time.Time) *exporter {
	return &exporter{dir: dir, now: now}
}

// Export writes the scene in the requested format and returns the
// path of the written file.
func (e *exporter) Export(scene *Scene, format string) (string, error) {
	objects := exportableObjects(scene)
	if len(objects) == 0 {
		return "", fmt.Errorf("sandbox: export: scene has no visible objects")
	}

	var body []byte
	var err error
	switch format {
	case FormatOBJ:
		body, err = encodeOBJ(objects)
	case FormatSTL:
		body, err = encodeSTL(objects)
	case FormatJSON:
		body, err = encodeSceneJSON(objects)
	default:
		return "", fmt.Errorf("sandbox: export: unsupported format %q", format)
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("sandbox: export: creating %s: %w", e.dir, err)
	}
	e.nonce++
	name := fmt.Sprintf("model-%s-%03d.%s", e.now().UTC().Format("20060102-150405"), e.nonce, format)
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("sandbox: export: writing %s: %w", path, err)
	}
	return path, nil
}

func exportableObjects(scene *Scene) []*Object {
	var objects []*Object
	for _, object := range scene.Objects() {
		if object.Helper || !object.Visible {
			continue
		}
		objects = append(objects, object)
	}
	return objects
}

// boxCorners returns the eight corners of an object's bounding box in
// the OBJ convention: bottom face first, counter-clockwise from the
// minimum corner, then the top face in the same order.
func boxCorners(object *Object) [8][3]float64 {
	half := [3]float64{object.Size[0] / 2, object.Size[1] / 2, object.Size[2] / 2}
	min := [3]float64{object.Center[0] - half[0], object.Center[1] - half[1], object.Center[2] - half[2]}
	max := [3]float64{object.Center[0] + half[0], object.Center[1] + half[1], object.Center[2] + half[2]}
	return [8][3]float64{
		{min[0], min[1], min[2]},
		{max[0], min[1], min[2]},
		{max[0], max[1], min[2]},
		{min[0], max[1], min[2]},
		{min[0], min[1], max[2]},
		{max[0], min[1], max[2]},
		{max[0], max[1], max[2]},
		{min[0], max[1], max[2]},
	}
}

// boxQuads indexes boxCorners into the six faces of the box.
var boxQuads = [6][4]int{
	{0, 3, 2, 1}, // bottom
	{4, 5, 6, 7}, // top
	{0, 1, 5, 4}, // front
	{2, 3, 7, 6}, // back
	{1, 2, 6, 5}, // right
	{0, 4, 7, 3}, // left
}

func encodeOBJ(objects []*Object) ([]byte, error) {
	var b strings.Builder
	b.WriteString("# exported by easel\n")
	vertexBase := 1 // OBJ indices are 1-based
	for _, object := range objects {
		fmt.Fprintf(&b, "o %s\n", sanitizeOBJName(object.Name))
		corners := boxCorners(object)
		for _, corner := range corners {
			fmt.Fprintf(&b, "v %g %g %g\n", corner[0], corner[1], corner[2])
		}
		for _, quad := range boxQuads {
			fmt.Fprintf(&b, "f %d %d %d %d\n",
				vertexBase+quad[0], vertexBase+quad[1], vertexBase+quad[2], vertexBase+quad[3])
		}
		vertexBase += len(corners)
	}
	return []byte(b.String()), nil
}

func sanitizeOBJName(name string) string {
	if name == "" {
		return "object"
	}
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return '_'
		}
		return r
	}, name)
}

func encodeSTL(objects []*Object) ([]byte, error) {
	var b strings.Builder
	b.WriteString("solid easel\n")
	for _, object := range objects {
		corners := boxCorners(object)
		for _, quad := range boxQuads {
			writeSTLTriangle(&b, corners[quad[0]], corners[quad[1]], corners[quad[2]])
			writeSTLTriangle(&b, corners[quad[0]], corners[quad[2]], corners[quad[3]])
		}
	}
	b.WriteString("endsolid easel\n")
	return []byte(b.String()), nil
}

func writeSTLTriangle(b *strings.Builder, v0, v1, v2 [3]float64) {
	// Normals are left zero; consumers recompute them from winding.
	b.WriteString("  facet normal 0 0 0\n    outer loop\n")
	for _, v := range [][3]float64{v0, v1, v2} {
		fmt.Fprintf(b, "      vertex %g %g %g\n", v[0], v[1], v[2])
	}
	b.WriteString("    endloop\n  endfacet\n")
}

type sceneExportRecord struct {
	Name      string                  `json:"name"`
	Kind      string                  `json:"kind"`
	Center    [3]float64              `json:"center"`
	Size      [3]float64              `json:"size"`
	Triangles int                     `json:"triangles"`
	Material  protocol.MaterialConfig `json:"material"`
}

func encodeSceneJSON(objects []*Object) ([]byte, error) {
	records := make([]sceneExportRecord, 0, len(objects))
	for _, object := range objects {
		records = append(records, sceneExportRecord{
			Name:      object.Name,
			Kind:      object.Kind,
			Center:    object.Center,
			Size:      object.Size,
			Triangles: object.Triangles,
			Material:  object.Material,
		})
	}
	body, err := json.MarshalIndent(map[string]any{"objects": records}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("sandbox: export: encoding scene: %w", err)
	}
	return append(body, '\n'), nil
}
