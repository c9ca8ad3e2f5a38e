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

package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lillux/rye/pkg/chain"
	"github.com/lillux/rye/pkg/item"
	"github.com/lillux/rye/pkg/primitives"
	"github.com/lillux/rye/pkg/signing"
	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/trust"
)

// fakePrimitive records its last call and returns a scripted result.
type fakePrimitive struct {
	id     string
	result map[string]interface{}
	err    error

	lastParams map[string]interface{}
	lastEnv    map[string]string
}

func (f *fakePrimitive) ID() string { return f.id }

func (f *fakePrimitive) Execute(ctx context.Context, params map[string]interface{}, env map[string]string) (map[string]interface{}, error) {
	f.lastParams = params
	f.lastEnv = env
	return f.result, f.err
}

type fixture struct {
	resolver *spaces.Resolver
	exec     *Executor
	prim     *fakePrimitive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	resolver := &spaces.Resolver{ProjectPath: base}
	keys := signing.NewKeyStore(filepath.Join(base, "keys"))
	loader := item.NewLoader(resolver, trust.NewVerifier(trust.NewStore(resolver, keys)))

	prim := &fakePrimitive{
		id:     primitives.HTTPID,
		result: map[string]interface{}{"success": true, "status_code": 200.0},
	}
	reg := primitives.NewRegistry(prim)
	chains := chain.NewResolver(loader, reg.IsPrimitiveID)
	return &fixture{
		resolver: resolver,
		exec:     New(chains, reg, resolver),
		prim:     prim,
	}
}

func (f *fixture) writeTool(t *testing.T, id, doc string) {
	t.Helper()
	p := filepath.Join(spaces.TypeDir(f.resolver.ProjectPath, spaces.ItemTool), filepath.FromSlash(id)+".md")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))
}

const toolDoc = `---
name: web/fetch
version: 1.0.0
tool_type: http
executor_id: rye/agent/threads/internal/http
env_config:
  API_KEY: tool-key
  TIMEOUT: "${FETCH_TIMEOUT:-30}"
config:
  method: GET
  headers:
    accept: application/json
---
`

func TestExecute_DispatchesToPrimitive(t *testing.T) {
	f := newFixture(t)
	f.writeTool(t, "web/fetch", toolDoc)
	t.Setenv("FETCH_TIMEOUT", "")

	res, err := f.exec.Execute(context.Background(), Request{
		ToolID: "web/fetch",
		Params: map[string]interface{}{"url": "https://example.com"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Chain, 2)
	assert.Equal(t, "web/fetch", res.Chain[0].ItemID)

	// Composed params: tool config plus call params.
	assert.Equal(t, "GET", f.prim.lastParams["method"])
	assert.Equal(t, "https://example.com", f.prim.lastParams["url"])
	// Env defaults resolve when the process variable is unset.
	assert.Equal(t, "tool-key", f.prim.lastEnv["API_KEY"])
	assert.Equal(t, "30", f.prim.lastEnv["TIMEOUT"])
	assert.Contains(t, res.Metadata["resolved_env_keys"], "API_KEY")
}

func TestExecute_CallParamsOverrideConfig(t *testing.T) {
	f := newFixture(t)
	f.writeTool(t, "web/fetch", toolDoc)

	_, err := f.exec.Execute(context.Background(), Request{
		ToolID: "web/fetch",
		Params: map[string]interface{}{"method": "POST"},
	})
	require.NoError(t, err)
	assert.Equal(t, "POST", f.prim.lastParams["method"])
}

func TestExecute_NestedConfigMergesRecursively(t *testing.T) {
	f := newFixture(t)
	f.writeTool(t, "web/fetch", toolDoc)

	_, err := f.exec.Execute(context.Background(), Request{
		ToolID: "web/fetch",
		Params: map[string]interface{}{
			"headers": map[string]interface{}{"authorization": "Bearer x"},
		},
	})
	require.NoError(t, err)
	headers := f.prim.lastParams["headers"].(map[string]interface{})
	assert.Equal(t, "application/json", headers["accept"])
	assert.Equal(t, "Bearer x", headers["authorization"])
}

func TestExecute_UnknownTool(t *testing.T) {
	f := newFixture(t)
	res, err := f.exec.Execute(context.Background(), Request{ToolID: "ghost"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "chain_resolution_failed", res.Error.Code)
}

func TestExecute_PrimitiveFailureEnvelope(t *testing.T) {
	f := newFixture(t)
	f.writeTool(t, "web/fetch", toolDoc)
	f.prim.result = map[string]interface{}{"success": false, "error": "connect refused"}

	res, err := f.exec.Execute(context.Background(), Request{ToolID: "web/fetch"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "tool_failed", res.Error.Code)
	assert.Equal(t, "connect refused", res.Error.Message)
}

func TestExecute_ConfigurationErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.writeTool(t, "web/fetch", toolDoc)
	f.prim.result = nil
	f.prim.err = &primitives.ConfigurationError{Msg: "helper missing"}

	_, err := f.exec.Execute(context.Background(), Request{ToolID: "web/fetch"})
	require.Error(t, err)
	var cfgErr *primitives.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestExecute_DryRun(t *testing.T) {
	f := newFixture(t)
	f.writeTool(t, "web/fetch", toolDoc)

	res, err := f.exec.Execute(context.Background(), Request{ToolID: "web/fetch", DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, true, res.Metadata["dry_run"])
	assert.Nil(t, f.prim.lastParams, "dry run must not dispatch")

	// The dry-run envelope reports the validation outcome and how many
	// adjacent pairs were checked.
	data, ok := res.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "validation_passed", data["status"])
	assert.Equal(t, len(res.Chain)-1, data["validated_pairs"])
	require.NotEmpty(t, res.Chain)
}

func TestExecute_LockfilePinsChain(t *testing.T) {
	f := newFixture(t)
	f.exec.UseLockfiles = true
	f.writeTool(t, "web/fetch", toolDoc)

	// First execution writes the lockfile.
	res, err := f.exec.Execute(context.Background(), Request{ToolID: "web/fetch"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	lf, err := chain.ReadLockfile(f.resolver, "web/fetch")
	require.NoError(t, err)
	require.NotNil(t, lf)

	// Unchanged content keeps passing.
	res, err = f.exec.Execute(context.Background(), Request{ToolID: "web/fetch"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Tampered content fails the pinned check.
	f.writeTool(t, "web/fetch", toolDoc+"\nchanged\n")
	res, err = f.exec.Execute(context.Background(), Request{ToolID: "web/fetch"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "lockfile_mismatch", res.Error.Code)
}
