// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/easel-foundation/easel/lib/codec"
)

// Journal persists the fix-attempt log to disk so repair behavior can
// be inspected after a session ends. Records are CBOR; the journal is
// a local diagnostic artifact, not part of the project state, which
// stays JSON.
//
// Journal is not safe for concurrent use; Session serializes writes.
type Journal struct {
	path string
}

// journalRecord is the on-disk shape.
type journalRecord struct {
	WrittenAt time.Time    `cbor:"writtenAt"`
	Attempts  []FixAttempt `cbor:"attempts"`
}

// NewJournal creates a journal at path. The parent directory must
// exist.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Write replaces the journal contents with the given attempts. The
// file is written to a temporary path in the same directory, synced,
// and renamed into place so readers never see a partial record.
func (journal *Journal) Write(attempts []FixAttempt, now time.Time) error {
	data, err := codec.Marshal(journalRecord{WrittenAt: now, Attempts: attempts})
	if err != nil {
		return fmt.Errorf("preview: marshaling journal: %w", err)
	}

	temporaryPath := journal.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("preview: creating temporary journal file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("preview: writing temporary journal file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("preview: syncing temporary journal file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("preview: closing temporary journal file: %w", err)
	}

	if err := os.Rename(temporaryPath, journal.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("preview: renaming journal into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	if parentDirectory, err := os.Open(filepath.Dir(journal.path)); err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// Read loads the journal. A missing file returns an empty attempt
// list, not an error; a journal that was never written is a normal
// state.
func (journal *Journal) Read() ([]FixAttempt, error) {
	data, err := os.ReadFile(journal.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preview: reading journal: %w", err)
	}

	var record journalRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("preview: decoding journal: %w", err)
	}
	return record.Attempts, nil
}
