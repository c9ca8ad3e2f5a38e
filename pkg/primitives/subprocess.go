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

package primitives

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/expr"
	"go.uber.org/zap"
)

// HelperBinary is the external process helper all subprocess operations
// delegate to over its stdout-JSON interface.
const HelperBinary = "rye-proc"

// helperMargin is the wrapper timeout margin around the helper process
// itself, on top of the operation's own timeout.
const helperMargin = 10 * time.Second

// envMergeThreshold is the env-merge heuristic switch point: below it the
// operation env merges with os.Environ; at or above it the operation env
// is used as-is. Tunable; the value is historical.
const envMergeThreshold = 50

var paramRef = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// Subprocess delegates process operations to the rye-proc helper.
type Subprocess struct {
	helperPath string
}

// NewSubprocess locates the helper binary. Its absence is a hard
// configuration error at startup.
func NewSubprocess() (*Subprocess, error) {
	path, err := exec.LookPath(HelperBinary)
	if err != nil {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("%s helper not found on PATH", HelperBinary)}
	}
	return &Subprocess{helperPath: path}, nil
}

// NewSubprocessAt uses an explicit helper path (tests).
func NewSubprocessAt(path string) *Subprocess {
	return &Subprocess{helperPath: path}
}

func (s *Subprocess) ID() string { return SubprocessID }

// helperRequest is the JSON document sent to rye-proc on stdin.
type helperRequest struct {
	Op      string            `json:"op"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Stdin   string            `json:"stdin,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout float64           `json:"timeout,omitempty"`
	PID     int               `json:"pid,omitempty"`
	Grace   float64           `json:"grace,omitempty"`
	LogPath string            `json:"log_path,omitempty"`
}

// Execute dispatches one subprocess operation: execute, spawn, kill, or
// status. Template resolution is two-stage: ${VAR:-default} against the
// process env (uppercase snake_case only), then {param} against runtime
// parameters.
func (s *Subprocess) Execute(ctx context.Context, params map[string]interface{}, env map[string]string) (map[string]interface{}, error) {
	op := str(params, "op")
	if op == "" {
		op = "execute"
	}

	merged := s.mergeEnv(env)
	req := helperRequest{
		Op:      op,
		Command: s.resolveTemplates(str(params, "command"), merged, params),
		Cwd:     s.resolveTemplates(str(params, "cwd"), merged, params),
		Stdin:   s.resolveTemplates(str(params, "stdin"), merged, params),
		Env:     merged,
		Timeout: num(params, "timeout", 60),
		PID:     int(num(params, "pid", 0)),
		Grace:   num(params, "grace", 5),
		LogPath: str(params, "log_path"),
	}
	if args, ok := params["args"].([]interface{}); ok {
		for _, a := range args {
			req.Args = append(req.Args, s.resolveTemplates(expr.Stringify(a), merged, params))
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode helper request: %w", err)
	}

	// The helper enforces the operation timeout itself; the wrapper
	// margin only guards against a wedged helper.
	wrapper := time.Duration(req.Timeout)*time.Second + helperMargin
	hctx, cancel := context.WithTimeout(ctx, wrapper)
	defer cancel()

	cmd := exec.CommandContext(hctx, s.helperPath)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if hctx.Err() == context.DeadlineExceeded {
		return map[string]interface{}{
			"success":     false,
			"error":       fmt.Sprintf("%s did not return within %s", HelperBinary, wrapper),
			"duration_ms": elapsed,
		}, nil
	}
	if runErr != nil && stdout.Len() == 0 {
		return nil, fmt.Errorf("%s failed: %w: %s", HelperBinary, runErr, strings.TrimSpace(stderr.String()))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("%s produced invalid JSON: %w", HelperBinary, err)
	}
	result["duration_ms"] = elapsed

	log.Debug("subprocess operation finished",
		zap.String("op", op),
		zap.Int64("duration_ms", elapsed),
	)
	return result, nil
}

// mergeEnv applies the env-merge heuristic: small operation envs merge
// over os.Environ; large ones are used as-is (the caller has already
// constructed the complete environment).
func (s *Subprocess) mergeEnv(env map[string]string) map[string]string {
	if len(env) >= envMergeThreshold {
		return env
	}
	merged := make(map[string]string, len(env)+64)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range env {
		merged[k] = v
	}
	return merged
}

// resolveTemplates applies the two resolution stages in order.
func (s *Subprocess) resolveTemplates(tmpl string, env map[string]string, params map[string]interface{}) string {
	if tmpl == "" {
		return ""
	}
	resolved := expr.ResolveEnv(tmpl, env)
	return paramRef.ReplaceAllStringFunc(resolved, func(ref string) string {
		name := paramRef.FindStringSubmatch(ref)[1]
		if v, ok := params[name]; ok {
			return expr.Stringify(v)
		}
		return ref
	})
}
