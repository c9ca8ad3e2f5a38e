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

package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lillux/rye/pkg/capability"
	"github.com/lillux/rye/pkg/directive"
	"github.com/lillux/rye/pkg/types"
)

func caps(t *testing.T, raw ...string) []capability.Cap {
	t.Helper()
	parsed, err := capability.ParseAll(raw)
	require.NoError(t, err)
	return parsed
}

func TestCheckPermission(t *testing.T) {
	h := New("t1", caps(t, "rye.execute.tool.web.*", "rye.load.knowledge.ops.runbook"), nil)

	assert.NoError(t, h.CheckPermission(capability.PrimaryExecute, "tool", "web/fetch"))
	assert.NoError(t, h.CheckPermission(capability.PrimaryLoad, "knowledge", "ops/runbook"))
	// execute implies search and load on the same items.
	assert.NoError(t, h.CheckPermission(capability.PrimaryLoad, "tool", "web/fetch"))

	err := h.CheckPermission(capability.PrimaryExecute, "tool", "fs/delete")
	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "rye.execute.tool.fs.delete", perr.Required)
}

func TestCheckPermission_FailsClosed(t *testing.T) {
	h := New("t1", nil, nil)
	assert.Error(t, h.CheckPermission(capability.PrimaryExecute, "tool", "web/fetch"))
	assert.Error(t, h.CheckPermission(capability.PrimarySearch, "tool", ""))
}

func TestCheckPermission_WildcardGrantAllowsSearch(t *testing.T) {
	h := New("t1", caps(t, "rye.execute.*"), nil)
	assert.NoError(t, h.CheckPermission(capability.PrimarySearch, "tool", ""))
	assert.NoError(t, h.CheckPermission(capability.PrimarySearch, "directive", ""))

	h = New("t1", caps(t, "rye.search.*"), nil)
	assert.NoError(t, h.CheckPermission(capability.PrimarySearch, "tool", ""))
	assert.Error(t, h.CheckPermission(capability.PrimaryExecute, "tool", "web/fetch"))
}

func TestCheckPermission_InternalToolsAlwaysAllowed(t *testing.T) {
	h := New("t1", nil, nil)
	assert.NoError(t, h.CheckPermission(capability.PrimaryExecute, "tool", "rye/agent/threads/internal/http"))
	assert.NoError(t, h.CheckPermission(capability.PrimaryExecute, "tool", "rye/agent/threads/internal/subprocess"))
}

func TestAttenuate_NeverWidens(t *testing.T) {
	h := New("t1", caps(t, "rye.execute.tool.web.*"), nil)

	child := h.Attenuate(caps(t, "rye.execute.tool.web.fetch", "rye.execute.tool.fs.delete"))
	require.Len(t, child, 1)
	assert.Equal(t, "rye.execute.tool.web.fetch", child[0].String())
}

func floatPtr(f float64) *float64 { return &f }
func intp(i int) *int             { return &i }

func TestCheckLimits(t *testing.T) {
	limits := &types.Limits{
		Turns:           intp(10),
		Tokens:          intp(1000),
		SpendUSD:        floatPtr(2.0),
		DurationSeconds: floatPtr(60),
		Depth:           intp(2),
		Spawns:          intp(1),
	}
	h := New("t1", nil, limits)

	tests := []struct {
		name string
		snap Snapshot
		code string
	}{
		{"within", Snapshot{Turns: 9, Cost: types.Cost{SpendUSD: 1.9}}, ""},
		{"at max is still within", Snapshot{Turns: 10}, ""},
		{"turns", Snapshot{Turns: 11}, "turns"},
		{"spend", Snapshot{Cost: types.Cost{SpendUSD: 2.01}}, "spend"},
		{"tokens", Snapshot{Cost: types.Cost{InputTokens: 600, OutputTokens: 500}}, "tokens"},
		{"duration", Snapshot{ElapsedSeconds: 61}, "duration_seconds"},
		{"spawns", Snapshot{ChildrenSpawned: 2}, "spawns"},
		{"depth", Snapshot{Depth: 3}, "depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.CheckLimits(tt.snap)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			var lerr *LimitExceededError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, tt.code, lerr.LimitCode)
		})
	}
}

func TestCheckLimits_FixedOrder(t *testing.T) {
	h := New("t1", nil, &types.Limits{Turns: intp(1), Tokens: intp(100), SpendUSD: floatPtr(0.5)})

	// All exceeded; turns is reported first every time.
	for i := 0; i < 3; i++ {
		err := h.CheckLimits(Snapshot{Turns: 5, Cost: types.Cost{InputTokens: 500, SpendUSD: 9}})
		var lerr *LimitExceededError
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, "turns", lerr.LimitCode)
	}

	// With turns within bounds, tokens reports before spend.
	err := h.CheckLimits(Snapshot{Turns: 1, Cost: types.Cost{InputTokens: 500, SpendUSD: 9}})
	var lerr *LimitExceededError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "tokens", lerr.LimitCode)
}

func TestCheckLimits_NilLimits(t *testing.T) {
	h := New("t1", nil, nil)
	assert.NoError(t, h.CheckLimits(Snapshot{Turns: 1 << 20}))
}

func TestCancellation(t *testing.T) {
	h := New("t1", nil, nil)
	assert.False(t, h.IsCancelled())
	h.RequestCancel()
	assert.True(t, h.IsCancelled())
}

func TestRunHooks_LayerOrderAndShortCircuit(t *testing.T) {
	h := New("t1", nil, nil)
	hooks := []directive.Hook{
		{Event: "after_turn", Layer: directive.LayerBuiltin, Action: map[string]interface{}{"directive": "builtin/audit"}},
		{Event: "after_turn", Layer: directive.LayerUser, Action: map[string]interface{}{"control": "suspend"}},
		{Event: "after_turn", Layer: directive.LayerInfra, Action: map[string]interface{}{"directive": "infra/cost"}},
		{Event: "other_event", Action: map[string]interface{}{"directive": "never"}},
	}

	var ran []string
	run := func(ctx context.Context, hook *directive.Hook, action map[string]interface{}, env map[string]interface{}) (ControlAction, error) {
		ran = append(ran, action["directive"].(string))
		return ControlNone, nil
	}

	out, err := h.RunHooks(context.Background(), "after_turn", hooks, nil, run)
	require.NoError(t, err)
	assert.Equal(t, ControlSuspend, out.Control)
	assert.Equal(t, directive.LayerUser, out.ControlLayer)
	// The builtin hook is short-circuited; the infra hook still runs.
	assert.Equal(t, []string{"infra/cost"}, ran)
}

func TestRunHooks_ConditionFilters(t *testing.T) {
	h := New("t1", nil, nil)
	hooks := []directive.Hook{
		{Event: "tool_result", Condition: "result.success == false", Action: map[string]interface{}{"control": "retry"}},
	}

	out, err := h.RunHooks(context.Background(), "tool_result", hooks,
		map[string]interface{}{"result": map[string]interface{}{"success": true}}, nil)
	require.NoError(t, err)
	assert.Equal(t, ControlNone, out.Control)
	assert.Empty(t, out.Fired)

	out, err = h.RunHooks(context.Background(), "tool_result", hooks,
		map[string]interface{}{"result": map[string]interface{}{"success": false}}, nil)
	require.NoError(t, err)
	assert.Equal(t, ControlRetry, out.Control)
	assert.Equal(t, []string{"tool_result"}, out.Fired)
}

func TestRunHooks_ActionRunnerErrorPropagates(t *testing.T) {
	h := New("t1", nil, nil)
	hooks := []directive.Hook{
		{Event: "after_step", Action: map[string]interface{}{"directive": "ops/notify"}},
	}
	run := func(ctx context.Context, hook *directive.Hook, action map[string]interface{}, env map[string]interface{}) (ControlAction, error) {
		return ControlNone, errors.New("dispatch failed")
	}

	_, err := h.RunHooks(context.Background(), "after_step", hooks, nil, run)
	assert.ErrorContains(t, err, "dispatch failed")
}

func TestRunHooks_DirectiveShorthand(t *testing.T) {
	h := New("t1", nil, nil)
	hooks := []directive.Hook{{Event: "on_fail", Directive: "ops/escalate"}}

	var got string
	run := func(ctx context.Context, hook *directive.Hook, action map[string]interface{}, env map[string]interface{}) (ControlAction, error) {
		got = action["directive"].(string)
		return ControlEscalate, nil
	}
	out, err := h.RunHooks(context.Background(), "on_fail", hooks, nil, run)
	require.NoError(t, err)
	assert.Equal(t, "ops/escalate", got)
	assert.Equal(t, ControlEscalate, out.Control)
}

func TestBuildContext(t *testing.T) {
	h := New("t1", nil, nil)
	block := &directive.ContextBlock{
		System:   []string{"ops/runbook", "ops/secret"},
		Before:   []string{"ops/examples", "ops/missing"},
		Suppress: []string{"ops/secret"},
	}
	bodies := map[string]string{
		"ops/runbook":  "Runbook body.\n",
		"ops/examples": "Examples body.",
	}
	load := func(id string) (string, error) {
		body, ok := bodies[id]
		if !ok {
			return "", errors.New("not found")
		}
		return body, nil
	}

	injected := h.BuildContext(block, load)
	assert.Contains(t, injected.System, `<knowledge id="ops/runbook">`)
	assert.Contains(t, injected.System, "Runbook body.")
	assert.NotContains(t, injected.System, "ops/secret")
	// Failed loads skip the item rather than failing the thread.
	assert.Contains(t, injected.Before, "Examples body.")
	assert.NotContains(t, injected.Before, "ops/missing")
	assert.Empty(t, injected.After)
}

func TestBuildContext_NilBlock(t *testing.T) {
	h := New("t1", nil, nil)
	injected := h.BuildContext(nil, func(string) (string, error) { return "", nil })
	require.NotNil(t, injected)
	assert.Empty(t, injected.System)
}
