// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/easel-foundation/easel/lib/clock"
	"github.com/easel-foundation/easel/preview"
)

var storeEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// openStore opens a store backed by a file in a temp directory. WAL
// mode needs a real file; :memory: is exercised separately.
func openStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(storeEpoch)
	store, err := Open(filepath.Join(t.TempDir(), "easel.db"), Options{Clock: fakeClock})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fakeClock
}

func TestSaveAssignsIdentityAndTimestamps(t *testing.T) {
	store, _ := openStore(t)

	record := Record{Name: "gearbox", Code: `box(size=[10, 10, 10])`}
	if err := store.Save(context.Background(), &record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if record.ID == uuid.Nil {
		t.Error("Save left ID unset")
	}
	if !record.CreatedAt.Equal(storeEpoch) || !record.UpdatedAt.Equal(storeEpoch) {
		t.Errorf("timestamps = %v / %v, want %v", record.CreatedAt, record.UpdatedAt, storeEpoch)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, _ := openStore(t)

	history := preview.NewHistory()
	history.Commit(`box(size=[10, 10, 10])`, "a box", storeEpoch)
	history.Commit(`sphere(radius=6)`, "make it round", storeEpoch.Add(time.Minute))
	history.Undo()

	record := Record{
		Name:    "gearbox",
		Code:    `box(size=[10, 10, 10])`,
		History: history,
	}
	if err := store.Save(context.Background(), &record); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != "gearbox" || loaded.Code != record.Code {
		t.Errorf("loaded = %q %q", loaded.Name, loaded.Code)
	}
	if loaded.History == nil {
		t.Fatal("loaded history is nil")
	}
	if loaded.History.Len() != 2 || loaded.History.Cursor() != 0 {
		t.Errorf("history len %d cursor %d, want 2 and 0", loaded.History.Len(), loaded.History.Cursor())
	}
	active, ok := loaded.History.Active()
	if !ok || active.Snapshot != record.Code {
		t.Errorf("active entry = %+v, %v", active, ok)
	}
	if !loaded.CreatedAt.Equal(record.CreatedAt) || !loaded.UpdatedAt.Equal(record.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", loaded.CreatedAt, loaded.UpdatedAt)
	}
}

func TestSaveWithoutHistory(t *testing.T) {
	store, _ := openStore(t)

	record := Record{Name: "plain", Code: `cylinder(radius=3, height=9)`}
	if err := store.Save(context.Background(), &record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.History != nil {
		t.Errorf("loaded history = %v, want nil", loaded.History)
	}
}

func TestSaveUpdatesExistingProject(t *testing.T) {
	store, fakeClock := openStore(t)

	record := Record{Name: "gearbox", Code: `box(size=[10, 10, 10])`}
	if err := store.Save(context.Background(), &record); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	created := record.CreatedAt

	fakeClock.Advance(time.Hour)
	record.Name = "gearbox v2"
	record.Code = `sphere(radius=6)`
	if err := store.Save(context.Background(), &record); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := store.Load(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != "gearbox v2" || loaded.Code != `sphere(radius=6)` {
		t.Errorf("loaded = %q %q", loaded.Name, loaded.Code)
	}
	if !loaded.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v, want %v", loaded.CreatedAt, created)
	}
	if !loaded.UpdatedAt.Equal(storeEpoch.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v, want %v", loaded.UpdatedAt, storeEpoch.Add(time.Hour))
	}

	summaries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("update created a second project: %d rows", len(summaries))
	}
}

func TestSaveValidation(t *testing.T) {
	store, _ := openStore(t)

	if err := store.Save(context.Background(), &Record{Name: "empty"}); err == nil {
		t.Error("Save accepted an empty program")
	}
	if err := store.Save(context.Background(), &Record{Code: "box()"}); err == nil {
		t.Error("Save accepted an empty name")
	}
}

func TestLoadUnknownProject(t *testing.T) {
	store, _ := openStore(t)

	if _, err := store.Load(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load unknown = %v, want ErrNotFound", err)
	}
}

func TestListOrdersByRecency(t *testing.T) {
	store, fakeClock := openStore(t)

	first := Record{Name: "first", Code: `box(size=[1, 1, 1])`}
	if err := store.Save(context.Background(), &first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	fakeClock.Advance(time.Minute)
	second := Record{Name: "second", Code: `sphere(radius=2)`}
	if err := store.Save(context.Background(), &second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	summaries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("List returned %d rows, want 2", len(summaries))
	}
	if summaries[0].Name != "second" || summaries[1].Name != "first" {
		t.Errorf("order = [%s, %s], want newest first", summaries[0].Name, summaries[1].Name)
	}
	if summaries[0].ID != second.ID {
		t.Errorf("summary id = %s, want %s", summaries[0].ID, second.ID)
	}
	if summaries[0].CodeHash == "" || summaries[0].CodeHash == summaries[1].CodeHash {
		t.Errorf("code hashes = %q / %q", summaries[0].CodeHash, summaries[1].CodeHash)
	}
}

func TestIdenticalProgramsShareSnapshot(t *testing.T) {
	store, _ := openStore(t)

	code := `box(size=[10, 10, 10], name="shared")`
	one := Record{Name: "one", Code: code}
	two := Record{Name: "two", Code: code}
	if err := store.Save(context.Background(), &one); err != nil {
		t.Fatalf("Save one: %v", err)
	}
	if err := store.Save(context.Background(), &two); err != nil {
		t.Fatalf("Save two: %v", err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
		t.Fatalf("counting snapshots: %v", err)
	}
	if count != 1 {
		t.Errorf("snapshot rows = %d, want 1", count)
	}
}

func TestDeleteRemovesProjectAndPrunesSnapshots(t *testing.T) {
	store, _ := openStore(t)

	shared := `box(size=[10, 10, 10], name="shared")`
	keep := Record{Name: "keep", Code: shared}
	drop := Record{Name: "drop", Code: shared}
	loner := Record{Name: "loner", Code: `sphere(radius=4)`}
	for _, record := range []*Record{&keep, &drop, &loner} {
		if err := store.Save(context.Background(), record); err != nil {
			t.Fatalf("Save %s: %v", record.Name, err)
		}
	}

	if err := store.Delete(context.Background(), drop.ID); err != nil {
		t.Fatalf("Delete drop: %v", err)
	}
	// The shared snapshot is still referenced by "keep".
	if _, err := store.Load(context.Background(), keep.ID); err != nil {
		t.Fatalf("Load keep after delete: %v", err)
	}

	if err := store.Delete(context.Background(), loner.ID); err != nil {
		t.Fatalf("Delete loner: %v", err)
	}
	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
		t.Fatalf("counting snapshots: %v", err)
	}
	if count != 1 {
		t.Errorf("snapshot rows after pruning = %d, want 1", count)
	}

	if err := store.Delete(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete unknown = %v, want ErrNotFound", err)
	}
}

func TestLargeProgramCompresses(t *testing.T) {
	store, _ := openStore(t)

	// Repetitive program text compresses well under zstd.
	code := strings.Repeat("box(size=[10, 10, 10], name=\"segment\")\n", 400)
	record := Record{Name: "tower", Code: code}
	if err := store.Save(context.Background(), &record); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var codec string
	var stored int
	if err := store.db.QueryRow(`SELECT codec, LENGTH(data) FROM snapshots`).Scan(&codec, &stored); err != nil {
		t.Fatalf("inspecting snapshot: %v", err)
	}
	if codec != codecZstd {
		t.Errorf("codec = %q, want %q", codec, codecZstd)
	}
	if stored >= len(code) {
		t.Errorf("stored %d bytes for %d bytes of program text", stored, len(code))
	}

	loaded, err := store.Load(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Code != code {
		t.Error("decompressed program differs from the original")
	}
}

func TestOpenInMemory(t *testing.T) {
	store, err := Open(":memory:", Options{Clock: clock.Fake(storeEpoch)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	record := Record{Name: "scratch", Code: `box(size=[2, 2, 2])`}
	if err := store.Save(context.Background(), &record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Load(context.Background(), record.ID); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestCompressBlobRoundTrip(t *testing.T) {
	tiny := []byte("box()")
	payload, codec := compressBlob(tiny)
	if codec != codecNone {
		t.Errorf("tiny blob codec = %q, want %q", codec, codecNone)
	}
	restored, err := decompressBlob(payload, codec, len(tiny))
	if err != nil {
		t.Fatalf("decompressBlob: %v", err)
	}
	if string(restored) != string(tiny) {
		t.Errorf("restored = %q", restored)
	}

	if _, err := decompressBlob(payload, "gzip", len(tiny)); err == nil {
		t.Error("unknown codec accepted")
	}
	if _, err := decompressBlob(payload, codecNone, len(tiny)+1); err == nil {
		t.Error("size mismatch accepted")
	}
}
