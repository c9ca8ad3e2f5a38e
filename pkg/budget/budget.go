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

// Package budget is the shared spend ledger for thread trees. All
// reservations go through BEGIN IMMEDIATE transactions so concurrent
// child spawns cannot oversubscribe a parent's remaining budget.
package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lillux/rye/internal/log"
	_ "github.com/lillux/rye/internal/sqlitedriver" // registers "sqlite3"
	"go.uber.org/zap"
)

// Ledger errors.
var (
	ErrNotRegistered      = errors.New("thread is not registered in the budget ledger")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrOverspend          = errors.New("actual spend exceeds the thread's budget")
	ErrLedgerLocked       = errors.New("budget ledger is locked")
)

// Ledger is the SQLite-backed budget ledger.
type Ledger struct {
	db *sql.DB
}

// Open opens (and if needed creates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open budget ledger: %w", err)
	}
	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS budget_ledger (
			thread_id    TEXT PRIMARY KEY,
			parent_id    TEXT,
			max_usd      REAL NOT NULL,
			reserved_usd REAL NOT NULL DEFAULT 0,
			actual_usd   REAL NOT NULL DEFAULT 0,
			status       TEXT NOT NULL DEFAULT 'active',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_budget_parent ON budget_ledger(parent_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate budget ledger: %w", err)
	}
	return nil
}

// Entry is one ledger row.
type Entry struct {
	ThreadID    string
	ParentID    string
	MaxUSD      float64
	ReservedUSD float64
	ActualUSD   float64
	Status      string
}

// Register creates a ledger row for a thread. Root registrations
// (parentID empty) first clear rows left by finished trees.
func (l *Ledger) Register(ctx context.Context, threadID, parentID string, maxUSD float64) error {
	if parentID == "" {
		if _, err := l.db.ExecContext(ctx,
			`DELETE FROM budget_ledger WHERE status != 'active'`); err != nil {
			return wrapLocked(fmt.Errorf("failed to prune budget ledger: %w", err))
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO budget_ledger (thread_id, parent_id, max_usd, reserved_usd, actual_usd, status, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, 'active', ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			max_usd = excluded.max_usd,
			status = 'active',
			updated_at = excluded.updated_at
	`, threadID, nullable(parentID), maxUSD, now, now)
	if err != nil {
		return wrapLocked(fmt.Errorf("failed to register thread %s: %w", threadID, err))
	}
	log.Debug("registered thread budget",
		zap.String("thread_id", threadID),
		zap.Float64("max_usd", maxUSD),
	)
	return nil
}

// Remaining computes a thread's spendable budget: max minus its own
// actual spend minus the reservations of its active children.
func (l *Ledger) Remaining(ctx context.Context, threadID string) (float64, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapLocked(err)
	}
	defer tx.Rollback()
	return remainingTx(tx, threadID)
}

func remainingTx(tx *sql.Tx, threadID string) (float64, error) {
	var maxUSD, actual float64
	err := tx.QueryRow(
		`SELECT max_usd, actual_usd FROM budget_ledger WHERE thread_id = ? AND status = 'active'`,
		threadID).Scan(&maxUSD, &actual)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, threadID)
	}
	if err != nil {
		return 0, wrapLocked(err)
	}
	var childReserved float64
	err = tx.QueryRow(
		`SELECT COALESCE(SUM(reserved_usd), 0) FROM budget_ledger WHERE parent_id = ? AND status = 'active'`,
		threadID).Scan(&childReserved)
	if err != nil {
		return 0, wrapLocked(err)
	}
	return maxUSD - actual - childReserved, nil
}

// Reserve atomically carves amount out of the parent's remaining budget
// and registers the child with that amount as its cap. The BEGIN
// IMMEDIATE lock makes concurrent reservations serialize, so the sum of
// granted reservations can never exceed the parent's remaining budget.
func (l *Ledger) Reserve(ctx context.Context, parentID, childID string, amount float64) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapLocked(err)
	}
	defer tx.Rollback()

	// Take the write lock up front; a read-then-upgrade pattern can
	// deadlock two concurrent reservers.
	if _, err := tx.Exec(`UPDATE budget_ledger SET updated_at = updated_at WHERE thread_id = ?`, parentID); err != nil {
		return wrapLocked(err)
	}

	remaining, err := remainingTx(tx, parentID)
	if err != nil {
		return err
	}
	if amount > remaining {
		return fmt.Errorf("%w: thread %s has %.4f USD remaining, requested %.4f",
			ErrInsufficientBudget, parentID, remaining, amount)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(`
		INSERT INTO budget_ledger (thread_id, parent_id, max_usd, reserved_usd, actual_usd, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 'active', ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			max_usd = excluded.max_usd,
			reserved_usd = excluded.reserved_usd,
			status = 'active',
			updated_at = excluded.updated_at
	`, childID, parentID, amount, amount, now, now)
	if err != nil {
		return wrapLocked(err)
	}
	if err := tx.Commit(); err != nil {
		return wrapLocked(err)
	}
	log.Debug("reserved child budget",
		zap.String("parent_id", parentID),
		zap.String("child_id", childID),
		zap.Float64("amount", amount),
	)
	return nil
}

// CanSpawn reports whether a thread could reserve amount for a child
// right now. Advisory only; Reserve remains the arbiter.
func (l *Ledger) CanSpawn(ctx context.Context, threadID string, amount float64) (bool, error) {
	remaining, err := l.Remaining(ctx, threadID)
	if err != nil {
		return false, err
	}
	return amount <= remaining, nil
}

// ReportActual sets a thread's actual spend. Exceeding the thread's cap
// is recorded and then reported as an overspend error so the caller can
// terminate the thread.
func (l *Ledger) ReportActual(ctx context.Context, threadID string, actual float64) error {
	return l.setActual(ctx, threadID, actual, false)
}

// IncrementActual adds delta to a thread's actual spend.
func (l *Ledger) IncrementActual(ctx context.Context, threadID string, delta float64) error {
	return l.setActual(ctx, threadID, delta, true)
}

func (l *Ledger) setActual(ctx context.Context, threadID string, amount float64, increment bool) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapLocked(err)
	}
	defer tx.Rollback()

	query := `UPDATE budget_ledger SET actual_usd = ?, updated_at = ? WHERE thread_id = ? AND status = 'active'`
	if increment {
		query = `UPDATE budget_ledger SET actual_usd = actual_usd + ?, updated_at = ? WHERE thread_id = ? AND status = 'active'`
	}
	res, err := tx.Exec(query, amount, time.Now().UTC().Format(time.RFC3339), threadID)
	if err != nil {
		return wrapLocked(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotRegistered, threadID)
	}

	var maxUSD, actual float64
	if err := tx.QueryRow(
		`SELECT max_usd, actual_usd FROM budget_ledger WHERE thread_id = ?`,
		threadID).Scan(&maxUSD, &actual); err != nil {
		return wrapLocked(err)
	}
	if err := tx.Commit(); err != nil {
		return wrapLocked(err)
	}
	if actual > maxUSD {
		return fmt.Errorf("%w: thread %s spent %.4f of %.4f USD", ErrOverspend, threadID, actual, maxUSD)
	}
	return nil
}

// Release settles a finished thread: its reservation collapses to the
// actual spend, returning the unspent remainder to the parent's pool,
// and the row records the thread's terminal status.
func (l *Ledger) Release(ctx context.Context, threadID, finalStatus string) error {
	switch finalStatus {
	case "completed", "error", "cancelled", "continued":
	default:
		return fmt.Errorf("invalid final status %q for thread %s", finalStatus, threadID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := l.db.ExecContext(ctx, `
		UPDATE budget_ledger
		SET reserved_usd = actual_usd, status = ?, updated_at = ?
		WHERE thread_id = ? AND status = 'active'
	`, finalStatus, now, threadID)
	if err != nil {
		return wrapLocked(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotRegistered, threadID)
	}
	log.Debug("released thread budget",
		zap.String("thread_id", threadID),
		zap.String("status", finalStatus),
	)
	return nil
}

// Get returns a thread's ledger entry.
func (l *Ledger) Get(ctx context.Context, threadID string) (*Entry, error) {
	var e Entry
	var parent sql.NullString
	err := l.db.QueryRowContext(ctx, `
		SELECT thread_id, parent_id, max_usd, reserved_usd, actual_usd, status
		FROM budget_ledger WHERE thread_id = ?
	`, threadID).Scan(&e.ThreadID, &parent, &e.MaxUSD, &e.ReservedUSD, &e.ActualUSD, &e.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, threadID)
	}
	if err != nil {
		return nil, wrapLocked(err)
	}
	e.ParentID = parent.String
	return &e, nil
}

// TreeSpend sums actual spend over a thread and all of its descendants.
func (l *Ledger) TreeSpend(ctx context.Context, threadID string) (float64, error) {
	var total float64
	err := l.db.QueryRowContext(ctx, `
		WITH RECURSIVE tree(id) AS (
			SELECT thread_id FROM budget_ledger WHERE thread_id = ?
			UNION ALL
			SELECT b.thread_id FROM budget_ledger b JOIN tree t ON b.parent_id = t.id
		)
		SELECT COALESCE(SUM(actual_usd), 0) FROM budget_ledger WHERE thread_id IN (SELECT id FROM tree)
	`, threadID).Scan(&total)
	if err != nil {
		return 0, wrapLocked(err)
	}
	return total, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func wrapLocked(err error) error {
	if err != nil && strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %v", ErrLedgerLocked, err)
	}
	return err
}
