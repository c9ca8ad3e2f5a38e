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

package budget

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "budget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRegisterAndRemaining(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Register(ctx, "root", "", 10))
	rem, err := l.Remaining(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 10.0, rem)

	_, err = l.Remaining(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestReserve_CarvesFromParent(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 10))

	require.NoError(t, l.Reserve(ctx, "root", "child", 4))

	rem, err := l.Remaining(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 6.0, rem)

	child, err := l.Get(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, 4.0, child.MaxUSD)
	assert.Equal(t, 4.0, child.ReservedUSD)
	assert.Equal(t, "root", child.ParentID)
}

func TestReserve_InsufficientBudget(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 10))
	require.NoError(t, l.Reserve(ctx, "root", "c1", 8))

	err := l.Reserve(ctx, "root", "c2", 5)
	assert.ErrorIs(t, err, ErrInsufficientBudget)
}

func TestReserve_ConcurrentNeverOversubscribes(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 10))

	// 10 goroutines each try to reserve 3 USD from a 10 USD pool; at most
	// 3 reservations can be granted.
	var wg sync.WaitGroup
	granted := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := fmt.Sprintf("child-%d", i)
			if err := l.Reserve(ctx, "root", child, 3); err == nil {
				granted <- child
			}
		}(i)
	}
	wg.Wait()
	close(granted)

	var n int
	var reserved float64
	for child := range granted {
		n++
		e, err := l.Get(ctx, child)
		require.NoError(t, err)
		reserved += e.ReservedUSD
	}
	assert.LessOrEqual(t, n, 3)
	assert.LessOrEqual(t, reserved, 10.0)

	rem, err := l.Remaining(ctx, "root")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rem, 0.0)
}

func TestCanSpawn(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 5))

	ok, err := l.CanSpawn(ctx, "root", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.CanSpawn(ctx, "root", 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActualSpend(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 10))

	require.NoError(t, l.IncrementActual(ctx, "root", 1.5))
	require.NoError(t, l.IncrementActual(ctx, "root", 2.5))

	e, err := l.Get(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 4.0, e.ActualUSD)

	rem, err := l.Remaining(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 6.0, rem)

	assert.ErrorIs(t, l.IncrementActual(ctx, "ghost", 1), ErrNotRegistered)
}

func TestOverspend_RecordedThenReported(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 2))

	err := l.ReportActual(ctx, "root", 2.7)
	assert.ErrorIs(t, err, ErrOverspend)

	// The overspend is still recorded before the error is surfaced.
	e, gerr := l.Get(ctx, "root")
	require.NoError(t, gerr)
	assert.Equal(t, 2.7, e.ActualUSD)
}

func TestRelease_ReturnsUnspentToParent(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 10))
	require.NoError(t, l.Reserve(ctx, "root", "child", 5))
	require.NoError(t, l.ReportActual(ctx, "child", 1.5))

	require.NoError(t, l.Release(ctx, "child", "completed"))

	// The child's reservation collapses to its actual spend; only the
	// spent portion stays charged against the parent's pool.
	e, err := l.Get(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, "completed", e.Status)
	assert.Equal(t, 1.5, e.ReservedUSD)

	rem, err := l.Remaining(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 10.0, rem, "released reservations no longer count against the parent")
}

func TestRelease_RecordsTerminalStatus(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 10))
	require.NoError(t, l.Reserve(ctx, "root", "c1", 1))
	require.NoError(t, l.Reserve(ctx, "root", "c2", 1))

	require.NoError(t, l.Release(ctx, "c1", "error"))
	e, err := l.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "error", e.Status)

	require.NoError(t, l.Release(ctx, "c2", "cancelled"))
	e, err = l.Get(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", e.Status)

	assert.ErrorContains(t, l.Release(ctx, "root", "paused"), "invalid final status")
}

func TestRegister_RootPrunesFinishedTrees(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "old-root", "", 10))
	require.NoError(t, l.Reserve(ctx, "old-root", "old-child", 2))
	require.NoError(t, l.Release(ctx, "old-child", "completed"))

	// A fresh root registration clears released rows but keeps active ones.
	require.NoError(t, l.Register(ctx, "new-root", "", 5))
	_, err := l.Get(ctx, "old-child")
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = l.Get(ctx, "old-root")
	require.NoError(t, err)
}

func TestTreeSpend(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Register(ctx, "root", "", 10))
	require.NoError(t, l.Reserve(ctx, "root", "child", 4))
	require.NoError(t, l.Reserve(ctx, "child", "grandchild", 2))
	require.NoError(t, l.ReportActual(ctx, "root", 1))
	require.NoError(t, l.ReportActual(ctx, "child", 0.5))
	require.NoError(t, l.ReportActual(ctx, "grandchild", 0.25))

	total, err := l.TreeSpend(ctx, "root")
	require.NoError(t, err)
	assert.InDelta(t, 1.75, total, 1e-9)
}

func TestErrLedgerLocked_Classification(t *testing.T) {
	err := wrapLocked(errors.New("database is locked (5)"))
	assert.ErrorIs(t, err, ErrLedgerLocked)
	assert.NoError(t, wrapLocked(nil))
}
