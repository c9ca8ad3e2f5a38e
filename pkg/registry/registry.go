// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry tracks thread lifecycle, ancestry, and continuation
// chains in SQLite. The registry is the queryable index; per-thread
// directories hold the authoritative transcript and state.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lillux/rye/internal/log"
	_ "github.com/lillux/rye/internal/sqlitedriver" // registers "sqlite3"
	"github.com/lillux/rye/pkg/types"
	"go.uber.org/zap"
)

// Registry is the SQLite-backed thread registry.
type Registry struct {
	db *sql.DB
}

// Open opens (and if needed creates) the registry database at path.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open thread registry: %w", err)
	}
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	r := &Registry{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error { return r.db.Close() }

// migrate applies the schema. Idempotent; safe to run on every open.
func (r *Registry) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			thread_id      TEXT PRIMARY KEY,
			parent_id      TEXT,
			directive_id   TEXT NOT NULL,
			status         TEXT NOT NULL,
			thread_mode    TEXT NOT NULL DEFAULT 'single',
			continued_from TEXT,
			continued_to   TEXT,
			chain_root     TEXT,
			chain_json     TEXT,
			cost_json      TEXT,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_threads_parent ON threads(parent_id);
		CREATE INDEX IF NOT EXISTS idx_threads_status ON threads(status);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate thread registry: %w", err)
	}
	return nil
}

// Record is one registry row.
type Record struct {
	ThreadID      string
	ParentID      string
	DirectiveID   string
	Status        types.ThreadStatus
	ThreadMode    types.ThreadMode
	ContinuedFrom string
	ContinuedTo   string
	Cost          *types.Cost
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Register inserts a new thread in created state.
func (r *Registry) Register(ctx context.Context, threadID, parentID, directiveID string, mode types.ThreadMode) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO threads (thread_id, parent_id, directive_id, status, thread_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, threadID, nullable(parentID), directiveID, string(types.StatusCreated), string(mode), now, now)
	if err != nil {
		return fmt.Errorf("failed to register thread %s: %w", threadID, err)
	}
	log.Debug("registered thread",
		zap.String("thread_id", threadID),
		zap.String("directive_id", directiveID),
	)
	return nil
}

// UpdateStatus transitions a thread's lifecycle state.
func (r *Registry) UpdateStatus(ctx context.Context, threadID string, status types.ThreadStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE threads SET status = ?, updated_at = ? WHERE thread_id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), threadID)
	if err != nil {
		return fmt.Errorf("failed to update thread %s status: %w", threadID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thread %s is not registered", threadID)
	}
	return nil
}

// UpdateCostSnapshot stores the thread's current cost accounting.
func (r *Registry) UpdateCostSnapshot(ctx context.Context, threadID string, cost *types.Cost) error {
	blob, err := json.Marshal(cost)
	if err != nil {
		return fmt.Errorf("failed to encode cost snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE threads SET cost_json = ?, updated_at = ? WHERE thread_id = ?`,
		string(blob), time.Now().UTC().Format(time.RFC3339), threadID)
	if err != nil {
		return fmt.Errorf("failed to update thread %s cost: %w", threadID, err)
	}
	return nil
}

// SetContinuation links a paused thread to its continuation. The old
// thread transitions to continued; the new one records its origin.
func (r *Registry) SetContinuation(ctx context.Context, oldID, newID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.Exec(
		`UPDATE threads SET continued_to = ?, status = ?, updated_at = ? WHERE thread_id = ?`,
		newID, string(types.StatusContinued), now, oldID)
	if err != nil {
		return fmt.Errorf("failed to link continuation from %s: %w", oldID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("thread %s is not registered", oldID)
	}
	if _, err := tx.Exec(
		`UPDATE threads SET continued_from = ?, updated_at = ? WHERE thread_id = ?`,
		oldID, now, newID); err != nil {
		return fmt.Errorf("failed to link continuation to %s: %w", newID, err)
	}
	return tx.Commit()
}

// SetChainInfo stores the resolved tool chain a thread executed under.
func (r *Registry) SetChainInfo(ctx context.Context, threadID, rootID string, links []types.ChainLink) error {
	blob, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("failed to encode chain info: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE threads SET chain_root = ?, chain_json = ?, updated_at = ? WHERE thread_id = ?`,
		rootID, string(blob), time.Now().UTC().Format(time.RFC3339), threadID)
	if err != nil {
		return fmt.Errorf("failed to update thread %s chain info: %w", threadID, err)
	}
	return nil
}

// Get returns one thread record.
func (r *Registry) Get(ctx context.Context, threadID string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, selectCols+` WHERE thread_id = ?`, threadID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("thread %s is not registered", threadID)
	}
	return rec, err
}

// ListActive returns all non-terminal threads, oldest first.
func (r *Registry) ListActive(ctx context.Context) ([]*Record, error) {
	return r.list(ctx, selectCols+` WHERE status IN (?, ?, ?) ORDER BY created_at`,
		string(types.StatusCreated), string(types.StatusRunning), string(types.StatusPaused))
}

// ListChildren returns a thread's direct children, oldest first.
func (r *Registry) ListChildren(ctx context.Context, parentID string) ([]*Record, error) {
	return r.list(ctx, selectCols+` WHERE parent_id = ? ORDER BY created_at`, parentID)
}

// GetChain walks a continuation chain from any member to its start, then
// returns the full chain oldest first.
func (r *Registry) GetChain(ctx context.Context, threadID string) ([]*Record, error) {
	rec, err := r.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for rec.ContinuedFrom != "" {
		prev, err := r.Get(ctx, rec.ContinuedFrom)
		if err != nil {
			return nil, err
		}
		rec = prev
	}
	chain := []*Record{rec}
	for rec.ContinuedTo != "" {
		next, err := r.Get(ctx, rec.ContinuedTo)
		if err != nil {
			return nil, err
		}
		chain = append(chain, next)
		rec = next
	}
	return chain, nil
}

const selectCols = `
	SELECT thread_id, parent_id, directive_id, status, thread_mode,
	       continued_from, continued_to, cost_json, created_at, updated_at
	FROM threads`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var parent, from, to, cost sql.NullString
	var created, updated string
	err := row.Scan(&rec.ThreadID, &parent, &rec.DirectiveID, &rec.Status, &rec.ThreadMode,
		&from, &to, &cost, &created, &updated)
	if err != nil {
		return nil, err
	}
	rec.ParentID = parent.String
	rec.ContinuedFrom = from.String
	rec.ContinuedTo = to.String
	if cost.Valid && cost.String != "" {
		var c types.Cost
		if jerr := json.Unmarshal([]byte(cost.String), &c); jerr == nil {
			rec.Cost = &c
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &rec, nil
}

func (r *Registry) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread registry: %w", err)
	}
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
