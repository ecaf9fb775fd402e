// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// Package preview is the host side of the live-preview control plane.
// A [Session] owns one sandbox connection: it pumps events into local
// projections of the scene state, translates user actions into
// protocol commands, keeps the edit history, and runs the bounded
// auto-repair loop that supervises generated programs.
//
// File organization:
//
//   - session.go: Session lifecycle, event pump, generation, repair
//   - history.go: linear truncating edit stack with restore-by-id
//   - repair.go: repair phases and the fix-attempt log
//   - dispatch.go: command senders for direct user actions
//   - journal.go: on-disk diagnostics journal of fix attempts
//   - runner.go: sandbox process launchers
//
// The session never touches sandbox state directly. Commands go out,
// events come in, and every incoming snapshot replaces the local
// projection wholesale; there is no merging and no assumption that a
// command observed its effect before the next broadcast.
package preview
