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

package runner

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/pkg/directive"
	"github.com/lillux/rye/pkg/harness"
	"github.com/lillux/rye/pkg/provider"
	"github.com/lillux/rye/pkg/signing"
	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/transcript"
	"github.com/lillux/rye/pkg/types"
)

// executeToolName is the single tool surface exposed to the model: every
// permitted tool routes through it, gated per call by the harness.
const executeToolName = "execute_tool"

// metadataFile is the per-thread record inside the thread directory.
const metadataFile = "thread.json"

// thread is the in-flight state of one running thread.
type thread struct {
	id          string
	directiveID string
	directive   *directive.Directive
	space       spaces.Space
	inputs      map[string]interface{}
	mode        types.ThreadMode
	depth       int
	harness     *harness.Harness
	dir         string
	started     time.Time

	transcript *transcript.Writer
	messages   []types.Message
	cost       types.Cost
	turn       int
	spawned    int

	// lastCheckpoint is the turn the transcript was last checkpointed
	// at, -1 before the first one.
	lastCheckpoint int
}

// snapshot captures the counters the harness checks limits against.
func (th *thread) snapshot() harness.Snapshot {
	return harness.Snapshot{
		Turns:           th.turn,
		Cost:            th.cost,
		ElapsedSeconds:  time.Since(th.started).Seconds(),
		ChildrenSpawned: th.spawned,
		Depth:           th.depth,
	}
}

// injectThreadParams adds the calling thread's identity to tool
// parameters so chain executions can attribute spend and transcripts.
func (th *thread) injectThreadParams(params map[string]interface{}) {
	params["thread_id"] = th.id
	params["thread_directive"] = th.directiveID
}

// toolDefs builds the model-visible tool surface.
func (th *thread) toolDefs() []types.ToolDef {
	schema, _ := json.Marshal(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"item_id": map[string]interface{}{
				"type":        "string",
				"description": "Identifier of the item to execute",
			},
			"item_type": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"tool", "directive"},
				"description": "Kind of item; defaults to tool. Executing a directive returns its instructions",
			},
			"params": map[string]interface{}{
				"type":        "object",
				"description": "Parameters passed to the item",
			},
		},
		"required": []string{"item_id"},
	})
	return []types.ToolDef{{
		Name:        executeToolName,
		Description: "Execute a permitted item by id. Calls outside the granted permissions are rejected.",
		InputSchema: schema,
	}}
}

// writeMetadata persists and signs thread.json.
func (r *Runner) writeMetadata(th *thread, status types.ThreadStatus, parentID string) error {
	meta := &types.ThreadMetadata{
		ThreadID:       th.id,
		Directive:      th.directiveID,
		ParentThreadID: parentID,
		Status:         status,
		Mode:           th.mode,
		Model:          r.Provider.Model(),
		Limits:         th.directive.Limits,
		TurnCount:      th.turn,
		Cost:           th.cost,
		CreatedAt:      th.started,
		UpdatedAt:      time.Now().UTC(),
	}
	if kp, err := r.Keys.Keypair(); err == nil {
		unsigned := *meta
		unsigned.Signature = ""
		if sig, err := signing.SignJSON(kp, &unsigned); err == nil {
			meta.Signature = sig
		}
	}
	return fsext.WriteJSONAtomic(filepath.Join(th.dir, metadataFile), meta, 0o644)
}

func chatWithDefaultRetry(ctx context.Context, p types.LLMProvider, system string, messages []types.Message, tools []types.ToolDef) (*types.LLMResponse, error) {
	return provider.ChatWithRetry(ctx, p, provider.DefaultRetryPolicy(), system, messages, tools)
}
