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

// Package executor runs tool invocations: it resolves the delegation
// chain, composes environment and parameters down the chain, and
// dispatches to the terminal primitive.
package executor

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/chain"
	"github.com/lillux/rye/pkg/expr"
	"github.com/lillux/rye/pkg/primitives"
	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/types"
	"go.uber.org/zap"
)

// Executor dispatches tool calls through resolved chains.
type Executor struct {
	Resolver   *chain.Resolver
	Primitives *primitives.Registry
	Spaces     *spaces.Resolver

	// UseLockfiles pins and checks chains against lockfiles when set.
	UseLockfiles bool
}

// New creates an executor.
func New(resolver *chain.Resolver, prims *primitives.Registry, sp *spaces.Resolver) *Executor {
	return &Executor{Resolver: resolver, Primitives: prims, Spaces: sp}
}

// Request is one tool invocation.
type Request struct {
	ToolID string
	Params map[string]interface{}

	// DryRun resolves and validates the chain without dispatching.
	DryRun bool
}

// Execute resolves, validates, and runs a tool call, returning the
// execution envelope. Transport errors become a structured ToolError
// rather than a Go error; only infrastructure failures return err.
func (e *Executor) Execute(ctx context.Context, req Request) (*types.ExecutionResult, error) {
	start := time.Now()

	resolved, err := e.Resolver.Resolve(req.ToolID)
	if err != nil {
		return failure(start, "chain_resolution_failed", err), nil
	}
	if err := chain.Validate(resolved); err != nil {
		return failure(start, "chain_validation_failed", err), nil
	}
	for _, w := range resolved.Warnings {
		log.Warn("chain validation warning", zap.String("tool", req.ToolID), zap.String("warning", w))
	}
	if e.UseLockfiles {
		if err := e.checkLockfile(req.ToolID, resolved); err != nil {
			return failure(start, "lockfile_mismatch", err), nil
		}
	}

	env := ComposeEnv(resolved)
	params := ComposeParams(resolved, req.Params)

	links := resolved.TypedLinks()
	if req.DryRun {
		return &types.ExecutionResult{
			Success: true,
			Data: map[string]interface{}{
				"status":          "validation_passed",
				"validated_pairs": len(links) - 1,
			},
			Chain:    links,
			Duration: time.Since(start).Milliseconds(),
			Metadata: map[string]interface{}{
				"dry_run":           true,
				"resolved_env_keys": envKeys(env),
			},
		}, nil
	}

	prim, err := e.Primitives.Lookup(resolved.Primitive().ItemID)
	if err != nil {
		return failure(start, "unknown_primitive", err), nil
	}
	data, err := prim.Execute(ctx, params, env)
	if err != nil {
		var cfgErr *primitives.ConfigurationError
		if errors.As(err, &cfgErr) {
			// Configuration errors are fatal to the process, not the call.
			return nil, err
		}
		return failure(start, "execution_failed", err), nil
	}

	success := true
	if v, ok := data["success"].(bool); ok {
		success = v
	}
	result := &types.ExecutionResult{
		Success:  success,
		Data:     data,
		Chain:    links,
		Duration: time.Since(start).Milliseconds(),
		Metadata: map[string]interface{}{
			"resolved_env_keys": envKeys(env),
		},
	}
	if !success {
		msg, _ := data["error"].(string)
		result.Error = &types.ToolError{Code: "tool_failed", Message: msg}
	}
	return result, nil
}

func (e *Executor) checkLockfile(rootID string, resolved *chain.Resolved) error {
	lf, err := chain.ReadLockfile(e.Spaces, rootID)
	if err != nil {
		return err
	}
	if lf == nil {
		_, err = chain.WriteLockfile(e.Spaces, rootID, resolved)
		return err
	}
	return chain.CheckLockfile(lf, resolved)
}

// ComposeEnv merges env_config down the chain, primitive first, so links
// closer to the chain root override. Values resolve ${VAR:-default}
// references against the process environment.
func ComposeEnv(resolved *chain.Resolved) map[string]string {
	procEnv := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			procEnv[kv[:i]] = kv[i+1:]
		}
	}
	env := map[string]string{}
	for i := len(resolved.Links) - 1; i >= 0; i-- {
		for k, v := range resolved.Links[i].Metadata.EnvConfig {
			env[k] = expr.ResolveEnv(expr.Stringify(v), procEnv)
		}
	}
	return env
}

// ComposeParams merges primitive config down the chain, then overlays the
// call parameters. Nested maps merge recursively.
func ComposeParams(resolved *chain.Resolved, callParams map[string]interface{}) map[string]interface{} {
	params := map[string]interface{}{}
	for i := len(resolved.Links) - 1; i >= 0; i-- {
		params = mergeMaps(params, resolved.Links[i].Metadata.Config)
	}
	return mergeMaps(params, callParams)
}

func mergeMaps(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if ov, ok := v.(map[string]interface{}); ok {
			if bv, ok := out[k].(map[string]interface{}); ok {
				out[k] = mergeMaps(bv, ov)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func envKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	return keys
}

func failure(start time.Time, code string, err error) *types.ExecutionResult {
	return &types.ExecutionResult{
		Success:  false,
		Error:    &types.ToolError{Code: code, Message: err.Error()},
		Duration: time.Since(start).Milliseconds(),
	}
}
