// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

// Package project persists preview sessions to a local SQLite
// database.
//
// A project row holds a name, the active program (content-addressed
// into a shared snapshot table keyed by BLAKE3 hash), and optionally
// the serialized edit history. Program text and history are
// zstd-compressed when compression pays for itself and stored raw
// otherwise.
//
// The store is safe for concurrent use; SQLite serializes writers and
// the database is opened in WAL mode so readers never block.
package project
