// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox executes untrusted, generated scene programs in an
// isolated Starlark interpreter and supervises them through the wire
// protocol. It is the remote side of the control plane: it owns the
// object graph outright, and the host sees nothing but serialized
// projections.
//
// The package is organized around the lifecycle of a program:
//
//   - program.go: Starlark evaluation with error trapping and a step
//     budget
//   - bridge.go: the runtime bridge woven into every program: the
//     builtins a program uses to build geometry and register
//     parameters, the main-object heuristic, and the lazily created
//     manipulation tools
//   - scene.go: the sandbox-side object graph and its geometry
//     bookkeeping
//   - camera.go: named-view camera placement
//   - sync.go: the fixed-interval scene-state broadcast loop
//   - export.go: model export writers
//   - sandbox.go: the event loop tying commands, broadcasts, and
//     wholesale reloads together
//
// A reload never patches the running program: the entire universe
// (scene, parameters, tools, camera) is torn down and recreated, so a
// broken program can always be replaced cleanly. Nothing in this
// package may crash the process on program failure: every evaluation
// error and every command-induced exception is converted into a
// protocol error event.
package sandbox
