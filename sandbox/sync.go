// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"log/slog"

	"github.com/easel-foundation/easel/protocol"
)

// DefaultSyncInterval is the scene-state broadcast period. The loop
// is host-agnostic push: the sandbox cannot know when the host needs
// fresh data, so it broadcasts unconditionally. Idle broadcasts are
// wasted messages; that is the accepted cost of having no
// request/response round-trip per UI action.
const DefaultSyncInterval = 500 // milliseconds; see Options.SyncInterval

// synchronizer serializes the universe's state and pushes it to the
// host as events. Each projection is its own event type so the host
// can consume them independently; every broadcast is authoritative
// and replaces whatever the host held before.
type synchronizer struct {
	send   func(protocol.Message)
	logger *slog.Logger
}

func newSynchronizer(send func(protocol.Message), logger *slog.Logger) *synchronizer {
	return &synchronizer{send: send, logger: logger}
}

// BroadcastAll pushes the full state: scene graph, geometry
// statistics, parameter controls, and camera placement.
func (sync *synchronizer) BroadcastAll(universe *universe) {
	sync.BroadcastGraph(universe)
	sync.BroadcastStats(universe)
	sync.BroadcastControls(universe)
	sync.BroadcastCamera(universe)
}

// BroadcastGraph pushes the serialized object hierarchy.
func (sync *synchronizer) BroadcastGraph(universe *universe) {
	sync.send(protocol.NewSceneGraphUpdateEvent(universe.scene.Nodes()))
}

// BroadcastStats pushes the geometry statistics.
func (sync *synchronizer) BroadcastStats(universe *universe) {
	sync.send(protocol.NewGeometryStatsEvent(universe.scene.Stats()))
}

// BroadcastControls pushes the registered parameter controls.
func (sync *synchronizer) BroadcastControls(universe *universe) {
	sync.send(protocol.NewGUIConfigEvent(universe.params.Controls()))
}

// BroadcastCamera pushes the camera placement.
func (sync *synchronizer) BroadcastCamera(universe *universe) {
	sync.send(protocol.NewCameraStateEvent(universe.camera.State()))
}
