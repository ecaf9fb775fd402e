// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJournalRoundTrip(t *testing.T) {
	journal := NewJournal(filepath.Join(t.TempDir(), "fixes.cbor"))

	failed := "still broken"
	attempts := []FixAttempt{
		{ID: "fix-1", At: historyEpoch, Attempt: 1, ErrorBefore: "undefined: teapot", ErrorSource: "program.star:3:1", Snapshot: "box()"},
		{ID: "fix-2", At: historyEpoch.Add(time.Minute), Attempt: 2, ErrorBefore: "undefined: teapot", Snapshot: "box() # again", ErrorAfter: &failed},
	}
	if err := journal.Write(attempts, historyEpoch.Add(2*time.Minute)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	restored, err := journal.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(restored) != 2 {
		t.Fatalf("restored %d attempts, want 2", len(restored))
	}
	if restored[0].ID != "fix-1" || restored[0].ErrorBefore != "undefined: teapot" || restored[0].ErrorAfter != nil {
		t.Errorf("first attempt = %+v", restored[0])
	}
	if restored[0].Snapshot != "box()" {
		t.Errorf("first attempt snapshot = %q", restored[0].Snapshot)
	}
	if restored[1].ErrorAfter == nil || *restored[1].ErrorAfter != failed {
		t.Errorf("second attempt = %+v", restored[1])
	}
}

func TestJournalMissingFileIsEmpty(t *testing.T) {
	journal := NewJournal(filepath.Join(t.TempDir(), "never-written.cbor"))
	attempts, err := journal.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("missing journal returned %d attempts", len(attempts))
	}
}

func TestJournalWriteLeavesNoTemporaryFile(t *testing.T) {
	directory := t.TempDir()
	journal := NewJournal(filepath.Join(directory, "fixes.cbor"))
	if err := journal.Write([]FixAttempt{{At: historyEpoch, Attempt: 1, ErrorBefore: "x"}}, historyEpoch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "fixes.cbor" {
		names := make([]string, len(entries))
		for i, entry := range entries {
			names[i] = entry.Name()
		}
		t.Errorf("directory contents = %v, want only the journal", names)
	}
}

func TestFixLogBound(t *testing.T) {
	log := newFixLog(3)
	for i := 1; i <= 5; i++ {
		log.append(FixAttempt{Attempt: i})
	}
	attempts := log.all()
	if len(attempts) != 3 {
		t.Fatalf("log has %d attempts, want 3", len(attempts))
	}
	if attempts[0].Attempt != 3 || attempts[2].Attempt != 5 {
		t.Errorf("log kept %v, want the newest three", attempts)
	}
}

func TestFixLogMarkLatest(t *testing.T) {
	log := newFixLog(0)
	log.markLatest("no attempts yet") // no-op on an empty log

	log.append(FixAttempt{Attempt: 1})
	log.append(FixAttempt{Attempt: 2})
	log.markLatest("boom")

	attempts := log.all()
	if attempts[0].ErrorAfter != nil {
		t.Error("markLatest touched an older attempt")
	}
	if attempts[1].ErrorAfter == nil || *attempts[1].ErrorAfter != "boom" {
		t.Errorf("latest attempt = %+v", attempts[1])
	}
}
