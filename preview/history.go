// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Entry is one immutable program version in the edit history.
type Entry struct {
	// ID identifies the entry for out-of-order restoration.
	ID string `json:"id"`

	// Timestamp is when the entry was committed.
	Timestamp time.Time `json:"timestamp"`

	// OriginPrompt is the user prompt that produced the snapshot, or
	// empty for direct edits.
	OriginPrompt string `json:"originPrompt,omitempty"`

	// Snapshot is the complete program text.
	Snapshot string `json:"snapshot"`

	// Hash is the hex BLAKE3 digest of Snapshot. Lets consumers spot
	// identical versions without comparing full texts.
	Hash string `json:"hash"`
}

func snapshotHash(snapshot string) string {
	digest := blake3.Sum256([]byte(snapshot))
	return fmt.Sprintf("%x", digest)
}

// History is the linear truncating edit stack. Committing while the
// cursor sits behind the tail discards everything after the cursor,
// like an editor's undo buffer. A second, never-truncated log keeps
// every entry ever committed so restoring a truncated entry by id
// still works: the old snapshot is re-appended as a new tail entry.
//
// Boundary violations (undo at the bottom, redo at the top, restoring
// an id that never existed) are silent no-ops. The UI maps disabled
// buttons directly onto these no-ops, so they must stay deterministic
// and error-free.
//
// History is not safe for concurrent use; Session serializes access.
type History struct {
	entries []Entry
	cursor  int // index of the active entry, -1 when empty
	log     []Entry
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{cursor: -1}
}

// Commit truncates everything after the cursor, appends a new entry,
// and moves the cursor to it. This is the only way entries are
// created.
func (h *History) Commit(snapshot, originPrompt string, now time.Time) Entry {
	entry := Entry{
		ID:           uuid.NewString(),
		Timestamp:    now,
		OriginPrompt: originPrompt,
		Snapshot:     snapshot,
		Hash:         snapshotHash(snapshot),
	}
	h.entries = append(h.entries[:h.cursor+1], entry)
	h.cursor = len(h.entries) - 1
	h.log = append(h.log, entry)
	return entry
}

// Undo moves the cursor back one entry and returns the newly active
// entry. At the lower bound it returns false and changes nothing.
func (h *History) Undo() (Entry, bool) {
	if h.cursor <= 0 {
		return Entry{}, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Redo moves the cursor forward one entry and returns the newly
// active entry. At the upper bound it returns false and changes
// nothing.
func (h *History) Redo() (Entry, bool) {
	if h.cursor >= len(h.entries)-1 {
		return Entry{}, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

// Restore jumps to an arbitrary prior entry by id. If the entry is
// still in the live stack the cursor moves to it; if an intervening
// commit truncated it, the snapshot is recommitted as a new tail
// entry, so restoring from metadata history always succeeds. An id
// that never existed is a no-op.
func (h *History) Restore(id string, now time.Time) (Entry, bool) {
	for i, entry := range h.entries {
		if entry.ID == id {
			h.cursor = i
			return entry, true
		}
	}
	for _, entry := range h.log {
		if entry.ID == id {
			return h.Commit(entry.Snapshot, entry.OriginPrompt, now), true
		}
	}
	return Entry{}, false
}

// Active returns the entry under the cursor.
func (h *History) Active() (Entry, bool) {
	if h.cursor < 0 {
		return Entry{}, false
	}
	return h.entries[h.cursor], true
}

// CanUndo reports whether Undo would move the cursor.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether Redo would move the cursor.
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }

// Len returns the live stack length.
func (h *History) Len() int { return len(h.entries) }

// Cursor returns the active index, -1 when empty.
func (h *History) Cursor() int { return h.cursor }

// Entries returns a copy of the live stack.
func (h *History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

// Log returns a copy of the never-truncated commit log.
func (h *History) Log() []Entry {
	return append([]Entry(nil), h.log...)
}

// Clone returns an independent copy of the history.
func (h *History) Clone() *History {
	return &History{
		entries: append([]Entry(nil), h.entries...),
		cursor:  h.cursor,
		log:     append([]Entry(nil), h.log...),
	}
}

// historyState is the persisted form.
type historyState struct {
	Entries []Entry `json:"entries"`
	Cursor  int     `json:"cursor"`
	Log     []Entry `json:"log"`
}

// MarshalJSON serializes the full history, commit log included.
func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyState{Entries: h.entries, Cursor: h.cursor, Log: h.log})
}

// UnmarshalJSON restores a serialized history. A cursor outside the
// live stack is clamped rather than rejected; persisted state from an
// interrupted write should degrade, not brick the project.
func (h *History) UnmarshalJSON(data []byte) error {
	var state historyState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("preview: decoding history: %w", err)
	}
	h.entries = state.Entries
	h.log = state.Log
	h.cursor = state.Cursor
	if h.cursor >= len(h.entries) {
		h.cursor = len(h.entries) - 1
	}
	if h.cursor < -1 {
		h.cursor = -1
	}
	return nil
}
