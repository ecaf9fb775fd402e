// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"math"

	"github.com/easel-foundation/easel/protocol"
)

// Named camera views accepted by setCameraView.
const (
	ViewFront     = "front"
	ViewTop       = "top"
	ViewRight     = "right"
	ViewIsometric = "isometric"

	// ViewHome is the isometric view at the default framing distance,
	// the position a fresh universe starts in.
	ViewHome = "home"
)

// minimumCameraDistance keeps the camera usable on empty or tiny
// scenes.
const minimumCameraDistance = 10.0

// Camera is the sandbox-side camera placement. Like everything else
// in the universe, it is rebuilt from scratch on reload.
type Camera struct {
	view     string
	position [3]float64
	target   [3]float64
}

// NewCamera returns a camera parked at the home view for a scene of
// the given radius.
func NewCamera(sceneRadius float64) *Camera {
	camera := &Camera{}
	// Home placement cannot fail.
	_ = camera.SnapTo(ViewHome, sceneRadius)
	return camera
}

// SnapTo moves the camera to a named view, framed for a scene of the
// given radius. Unknown view names are rejected.
func (camera *Camera) SnapTo(view string, sceneRadius float64) error {
	distance := sceneRadius * 2.5
	if distance < minimumCameraDistance {
		distance = minimumCameraDistance
	}

	switch view {
	case ViewFront:
		camera.position = [3]float64{0, 0, distance}
	case ViewTop:
		camera.position = [3]float64{0, distance, 0}
	case ViewRight:
		camera.position = [3]float64{distance, 0, 0}
	case ViewIsometric, ViewHome:
		component := distance / math.Sqrt(3)
		camera.position = [3]float64{component, component, component}
	default:
		return fmt.Errorf("camera: unknown view %q", view)
	}
	camera.view = view
	camera.target = [3]float64{0, 0, 0}
	return nil
}

// State returns the serialized camera placement.
func (camera *Camera) State() protocol.CameraStatePayload {
	return protocol.CameraStatePayload{
		View:     camera.view,
		Position: camera.position,
		Target:   camera.target,
	}
}
