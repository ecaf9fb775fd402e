// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/easel-foundation/easel/lib/clock"
	"github.com/easel-foundation/easel/preview"
)

// ErrNotFound is returned by Load and Delete when no project has the
// given id.
var ErrNotFound = errors.New("project: not found")

// schema is applied on every Open. Statements are idempotent, so
// opening an existing database is a no-op.
//
// Program text is content-addressed: identical programs across
// projects (or across saves of one project) share a single snapshot
// row keyed by BLAKE3 hash.
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	hash  TEXT PRIMARY KEY,
	codec TEXT NOT NULL,
	size  INTEGER NOT NULL,
	data  BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	code_hash     TEXT NOT NULL REFERENCES snapshots(hash),
	history       BLOB,
	history_codec TEXT NOT NULL DEFAULT 'none',
	history_size  INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
`

// Record is a saved project. Code is the active program; History is
// optional and round-trips the full edit history including the cursor
// and the never-truncated log.
type Record struct {
	ID        uuid.UUID
	Name      string
	Code      string
	History   *preview.History
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is a Record without its payload, for listings.
type Summary struct {
	ID        uuid.UUID
	Name      string
	CodeHash  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Options configures a Store. The zero value is usable.
type Options struct {
	// Clock supplies Save timestamps. Defaults to the real clock.
	Clock clock.Clock

	// BusyTimeout is the SQLite busy timeout. Defaults to 10 seconds.
	BusyTimeout time.Duration
}

// Store persists projects in a SQLite database.
type Store struct {
	db  *sql.DB
	clk clock.Clock
}

// Open opens (or creates) the project database at path, creating
// parent directories as needed and applying the schema.
func Open(path string, options Options) (*Store, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.BusyTimeout <= 0 {
		options.BusyTimeout = 10 * time.Second
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("project: creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("project: opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", options.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("project: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("project: applying schema: %w", err)
	}

	return &Store{db: db, clk: options.Clock}, nil
}

// Close closes the database.
func (store *Store) Close() error {
	return store.db.Close()
}

// Save writes the record, assigning an id on first save and updating
// timestamps in place. An existing project with the same id is
// replaced; its creation time is preserved.
func (store *Store) Save(ctx context.Context, record *Record) error {
	if record.Code == "" {
		return fmt.Errorf("project: saving %q: empty program", record.Name)
	}
	if record.Name == "" {
		return fmt.Errorf("project: saving: empty name")
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
		record.CreatedAt = store.clk.Now().UTC()
	}
	record.UpdatedAt = store.clk.Now().UTC()

	codeBytes := []byte(record.Code)
	hashBytes := blake3.Sum256(codeBytes)
	codeHash := hex.EncodeToString(hashBytes[:])
	codePayload, codeCodec := compressBlob(codeBytes)

	var (
		historyPayload []byte
		historyCodec   = codecNone
		historySize    int
	)
	if record.History != nil {
		historyJSON, err := json.Marshal(record.History)
		if err != nil {
			return fmt.Errorf("project: serializing history for %q: %w", record.Name, err)
		}
		historyPayload, historyCodec = compressBlob(historyJSON)
		historySize = len(historyJSON)
	}

	transaction, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("project: beginning save transaction: %w", err)
	}
	defer transaction.Rollback()

	_, err = transaction.ExecContext(ctx,
		`INSERT OR IGNORE INTO snapshots (hash, codec, size, data) VALUES (?, ?, ?, ?)`,
		codeHash, codeCodec, len(codeBytes), codePayload)
	if err != nil {
		return fmt.Errorf("project: storing snapshot %s: %w", codeHash[:12], err)
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO projects (id, name, code_hash, history, history_codec, history_size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name          = excluded.name,
			code_hash     = excluded.code_hash,
			history       = excluded.history,
			history_codec = excluded.history_codec,
			history_size  = excluded.history_size,
			updated_at    = excluded.updated_at`,
		record.ID.String(), record.Name, codeHash,
		historyPayload, historyCodec, historySize,
		record.CreatedAt.Format(time.RFC3339Nano),
		record.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("project: storing project %q: %w", record.Name, err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("project: committing save: %w", err)
	}
	return nil
}

// Load reads the project with the given id.
func (store *Store) Load(ctx context.Context, id uuid.UUID) (Record, error) {
	row := store.db.QueryRowContext(ctx, `
		SELECT p.name, p.history, p.history_codec, p.history_size,
		       p.created_at, p.updated_at,
		       s.codec, s.size, s.data
		FROM projects p
		JOIN snapshots s ON s.hash = p.code_hash
		WHERE p.id = ?`, id.String())

	var (
		record         Record
		historyPayload []byte
		historyCodec   string
		historySize    int
		createdAt      string
		updatedAt      string
		codeCodec      string
		codeSize       int
		codePayload    []byte
	)
	err := row.Scan(&record.Name, &historyPayload, &historyCodec, &historySize,
		&createdAt, &updatedAt, &codeCodec, &codeSize, &codePayload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("project: loading %s: %w", id, err)
	}
	record.ID = id

	codeBytes, err := decompressBlob(codePayload, codeCodec, codeSize)
	if err != nil {
		return Record{}, fmt.Errorf("project: loading %s: %w", id, err)
	}
	record.Code = string(codeBytes)

	if len(historyPayload) > 0 {
		historyJSON, err := decompressBlob(historyPayload, historyCodec, historySize)
		if err != nil {
			return Record{}, fmt.Errorf("project: loading %s history: %w", id, err)
		}
		record.History = preview.NewHistory()
		if err := json.Unmarshal(historyJSON, record.History); err != nil {
			return Record{}, fmt.Errorf("project: decoding %s history: %w", id, err)
		}
	}

	record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("project: parsing %s created_at: %w", id, err)
	}
	record.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("project: parsing %s updated_at: %w", id, err)
	}
	return record, nil
}

// List returns summaries of every project, most recently updated
// first.
func (store *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := store.db.QueryContext(ctx, `
		SELECT id, name, code_hash, created_at, updated_at
		FROM projects
		ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("project: listing projects: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary   Summary
			id        string
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&id, &summary.Name, &summary.CodeHash, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("project: scanning project row: %w", err)
		}
		summary.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("project: parsing project id %q: %w", id, err)
		}
		summary.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("project: parsing %s created_at: %w", id, err)
		}
		summary.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("project: parsing %s updated_at: %w", id, err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project: listing projects: %w", err)
	}
	return summaries, nil
}

// Delete removes the project and any snapshots no longer referenced
// by a remaining project.
func (store *Store) Delete(ctx context.Context, id uuid.UUID) error {
	transaction, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("project: beginning delete transaction: %w", err)
	}
	defer transaction.Rollback()

	result, err := transaction.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("project: deleting %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("project: deleting %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	_, err = transaction.ExecContext(ctx,
		`DELETE FROM snapshots WHERE hash NOT IN (SELECT code_hash FROM projects)`)
	if err != nil {
		return fmt.Errorf("project: pruning snapshots after deleting %s: %w", id, err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("project: committing delete: %w", err)
	}
	return nil
}
