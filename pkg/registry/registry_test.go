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

package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lillux/rye/pkg/types"
)

func openRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegisterAndGet(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "t1", "", "ops/triage", types.ModeSingle))

	rec, err := r.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "ops/triage", rec.DirectiveID)
	assert.Equal(t, types.StatusCreated, rec.Status)
	assert.Equal(t, types.ModeSingle, rec.ThreadMode)
	assert.Empty(t, rec.ParentID)

	_, err = r.Get(ctx, "ghost")
	assert.ErrorContains(t, err, "not registered")
}

func TestUpdateStatus(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "t1", "", "d", types.ModeSingle))

	require.NoError(t, r.UpdateStatus(ctx, "t1", types.StatusRunning))
	rec, err := r.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, rec.Status)

	assert.ErrorContains(t, r.UpdateStatus(ctx, "ghost", types.StatusRunning), "not registered")
}

func TestCostSnapshot(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "t1", "", "d", types.ModeSingle))

	cost := &types.Cost{Turns: 3, InputTokens: 100, OutputTokens: 50, SpendUSD: 0.12}
	require.NoError(t, r.UpdateCostSnapshot(ctx, "t1", cost))

	rec, err := r.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, rec.Cost)
	assert.Equal(t, 3, rec.Cost.Turns)
	assert.Equal(t, 0.12, rec.Cost.SpendUSD)
}

func TestListActive(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "a", "", "d", types.ModeSingle))
	require.NoError(t, r.Register(ctx, "b", "", "d", types.ModeSingle))
	require.NoError(t, r.Register(ctx, "c", "", "d", types.ModeSingle))
	require.NoError(t, r.UpdateStatus(ctx, "b", types.StatusCompleted))
	require.NoError(t, r.UpdateStatus(ctx, "c", types.StatusPaused))

	recs, err := r.ListActive(ctx)
	require.NoError(t, err)
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ThreadID
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
}

func TestListChildren(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "root", "", "d", types.ModeSingle))
	require.NoError(t, r.Register(ctx, "kid1", "root", "d", types.ModeSingle))
	require.NoError(t, r.Register(ctx, "kid2", "root", "d", types.ModeSingle))
	require.NoError(t, r.Register(ctx, "other", "", "d", types.ModeSingle))

	recs, err := r.ListChildren(ctx, "root")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, "root", recs[0].ParentID)
}

func TestContinuationChain(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "t1", "", "d", types.ModeConversation))
	require.NoError(t, r.Register(ctx, "t2", "", "d", types.ModeConversation))
	require.NoError(t, r.Register(ctx, "t3", "", "d", types.ModeConversation))

	require.NoError(t, r.SetContinuation(ctx, "t1", "t2"))
	require.NoError(t, r.SetContinuation(ctx, "t2", "t3"))

	// The old thread is terminal now.
	rec, err := r.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusContinued, rec.Status)
	assert.Equal(t, "t2", rec.ContinuedTo)

	// The chain reads the same from any member.
	for _, member := range []string{"t1", "t2", "t3"} {
		chain, err := r.GetChain(ctx, member)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, "t1", chain[0].ThreadID)
		assert.Equal(t, "t3", chain[2].ThreadID)
	}
}

func TestSetChainInfo(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "t1", "", "d", types.ModeSingle))

	links := []types.ChainLink{
		{ItemID: "web/fetch", Version: "1.0.0", Space: "project"},
		{ItemID: "rye/agent/threads/internal/http", Version: "1.0.0", Space: "system"},
	}
	require.NoError(t, r.SetChainInfo(ctx, "t1", "web/fetch", links))

	// SetChainInfo persists; Get does not expose chain columns, so a
	// successful round-trip through Get is the observable contract.
	rec, err := r.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", rec.ThreadID)
}

func TestRegister_DuplicateFails(t *testing.T) {
	r := openRegistry(t)
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "t1", "", "d", types.ModeSingle))
	assert.Error(t, r.Register(ctx, "t1", "", "d", types.ModeSingle))
}
