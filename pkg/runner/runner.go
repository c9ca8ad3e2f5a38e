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

// Package runner drives directive threads: supervised LLM tool-use loops
// with permission checks, budget accounting, hook dispatch, and a signed
// transcript. Directives that declare scripted actions execute them
// deterministically without a model in the loop.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/budget"
	"github.com/lillux/rye/pkg/capability"
	"github.com/lillux/rye/pkg/directive"
	"github.com/lillux/rye/pkg/executor"
	"github.com/lillux/rye/pkg/expr"
	"github.com/lillux/rye/pkg/harness"
	"github.com/lillux/rye/pkg/item"
	"github.com/lillux/rye/pkg/registry"
	"github.com/lillux/rye/pkg/signing"
	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/transcript"
	"github.com/lillux/rye/pkg/types"
	"go.uber.org/zap"
)

// instructionEnvelope closes the prompt of a directive that declares no
// scripted actions: the model is told to carry the directive out itself.
const instructionEnvelope = "Execute the directive as specified now."

// defaultBudgetUSD caps a root thread that declares no spend limit.
const defaultBudgetUSD = 10.0

// Runner wires the collaborators a thread needs.
type Runner struct {
	Spaces   *spaces.Resolver
	Loader   *item.Loader
	Provider types.LLMProvider
	Executor *executor.Executor
	Registry *registry.Registry
	Ledger   *budget.Ledger
	Keys     *signing.KeyStore
}

// StartOptions parameterizes one thread start.
type StartOptions struct {
	DirectiveID string
	Inputs      map[string]interface{}

	// ParentID and ParentCaps attenuate a child thread's grant.
	ParentID   string
	ParentCaps []capability.Cap

	// BudgetUSD is the spend cap. Zero falls back to the directive's
	// declared limit, then to the default.
	BudgetUSD float64

	Depth int
	Mode  types.ThreadMode
}

// Result is a finished thread's outcome.
type Result struct {
	ThreadID string
	Status   types.ThreadStatus
	Output   string
	Cost     types.Cost
}

// Start runs a directive as a new thread to completion, pause, or failure.
func (r *Runner) Start(ctx context.Context, opts StartOptions) (*Result, error) {
	d, loaded, err := r.Loader.LoadDirective(opts.DirectiveID)
	if err != nil {
		return nil, err
	}
	inputs, err := d.ApplyInputDefaults(opts.Inputs)
	if err != nil {
		return nil, err
	}

	caps, err := capability.ParseAll(d.Permissions)
	if err != nil {
		return nil, err
	}
	if opts.ParentCaps != nil {
		caps = capability.Attenuate(opts.ParentCaps, caps)
	}

	threadID := uuid.NewString()
	th := &thread{
		id:             threadID,
		directiveID:    opts.DirectiveID,
		directive:      d,
		space:          loaded.Space,
		inputs:         inputs,
		mode:           threadMode(d, opts.Mode),
		depth:          opts.Depth,
		harness:        harness.New(threadID, caps, d.Limits),
		dir:            filepath.Join(r.Spaces.ThreadsDir(), threadID),
		started:        time.Now(),
		lastCheckpoint: -1,
	}

	if err := r.setup(ctx, th, opts); err != nil {
		return nil, err
	}
	return r.run(ctx, th)
}

// Continue resumes a paused thread as a new linked thread carrying the
// old conversation plus one user message. Only paused threads continue;
// everything else is rejected.
func (r *Runner) Continue(ctx context.Context, threadID, message string) (*Result, error) {
	rec, err := r.Registry.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if rec.Status != types.StatusPaused {
		return nil, fmt.Errorf("thread %s is %s; only paused threads can be continued", threadID, rec.Status)
	}
	oldDir := filepath.Join(r.Spaces.ThreadsDir(), threadID)
	st, err := transcript.LoadState(oldDir)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("thread %s has no resumable state", threadID)
	}

	d, loaded, err := r.Loader.LoadDirective(rec.DirectiveID)
	if err != nil {
		return nil, err
	}
	caps, err := capability.ParseAll(d.Permissions)
	if err != nil {
		return nil, err
	}

	newID := uuid.NewString()
	th := &thread{
		id:             newID,
		directiveID:    rec.DirectiveID,
		directive:      d,
		space:          loaded.Space,
		inputs:         st.Inputs,
		mode:           rec.ThreadMode,
		harness:        harness.New(newID, caps, d.Limits),
		dir:            filepath.Join(r.Spaces.ThreadsDir(), newID),
		started:        time.Now(),
		messages:       st.Messages,
		cost:           st.Cost,
		turn:           st.Turn,
		lastCheckpoint: st.Turn,
	}
	th.messages = append(th.messages, types.Message{Role: "user", Content: message})

	if err := r.setup(ctx, th, StartOptions{DirectiveID: rec.DirectiveID}); err != nil {
		return nil, err
	}
	if err := r.Registry.SetContinuation(ctx, threadID, newID); err != nil {
		return nil, err
	}
	th.transcript.Record(transcript.EventThreadContinue, th.turn, map[string]interface{}{
		"continued_from": threadID,
	})
	th.transcript.Record(transcript.EventUserMessage, th.turn, map[string]interface{}{
		"content": message,
	})
	log.Info("continuing thread",
		zap.String("from", threadID),
		zap.String("to", newID),
	)
	return r.run(ctx, th)
}

// setup registers the thread everywhere it must exist before turn one:
// registry row, budget ledger row, transcript, signed thread.json.
func (r *Runner) setup(ctx context.Context, th *thread, opts StartOptions) error {
	if err := r.Registry.Register(ctx, th.id, opts.ParentID, th.directiveID, th.mode); err != nil {
		return err
	}

	budgetUSD := opts.BudgetUSD
	if budgetUSD == 0 && th.directive.Limits != nil && th.directive.Limits.SpendUSD != nil {
		budgetUSD = *th.directive.Limits.SpendUSD
	}
	if budgetUSD == 0 {
		budgetUSD = defaultBudgetUSD
	}
	if opts.ParentID == "" {
		if err := r.Ledger.Register(ctx, th.id, "", budgetUSD); err != nil {
			return err
		}
	} else {
		if err := r.Ledger.Reserve(ctx, opts.ParentID, th.id, budgetUSD); err != nil {
			return err
		}
	}

	w, err := transcript.NewWriter(th.dir)
	if err != nil {
		return err
	}
	th.transcript = w

	if err := r.writeMetadata(th, types.StatusCreated, opts.ParentID); err != nil {
		return err
	}
	return w.Record(transcript.EventThreadStart, 0, map[string]interface{}{
		"thread_id": th.id,
		"directive": th.directiveID,
		"mode":      string(th.mode),
	})
}

// run executes the thread body and always finalizes.
func (r *Runner) run(ctx context.Context, th *thread) (*Result, error) {
	defer th.transcript.Close()
	if err := r.Registry.UpdateStatus(ctx, th.id, types.StatusRunning); err != nil {
		return nil, err
	}

	var status types.ThreadStatus
	var output string
	var runErr error
	if len(th.directive.Actions) > 0 {
		status, output, runErr = r.runActions(ctx, th)
	} else {
		status, output, runErr = r.runLoop(ctx, th)
	}

	if runErr != nil && status == "" {
		status = types.StatusError
		output = runErr.Error()
	}
	r.finalize(ctx, th, status, output)
	return &Result{ThreadID: th.id, Status: status, Output: output, Cost: th.cost}, runErr
}

// runActions executes a scripted directive: each action template runs
// through the executor with interpolated parameters, no model involved.
func (r *Runner) runActions(ctx context.Context, th *thread) (types.ThreadStatus, string, error) {
	scope := map[string]interface{}{
		"inputs": th.inputs,
		"steps":  map[string]interface{}{},
	}
	steps := scope["steps"].(map[string]interface{})

	var lastOutput string
	for i, action := range th.directive.Actions {
		if err := th.harness.CheckPermission(capability.PrimaryExecute, "tool", action.Tool); err != nil {
			return types.StatusError, "", err
		}
		params := expr.InterpolateParams(action.Params, scope)
		th.injectThreadParams(params)

		th.transcript.Record(transcript.EventToolCallStart, th.turn, map[string]interface{}{
			"tool": action.Tool, "step": i,
		})
		res, err := r.Executor.Execute(ctx, executor.Request{ToolID: action.Tool, Params: params})
		if err != nil {
			return types.StatusError, "", err
		}
		th.transcript.Record(transcript.EventToolCallResult, th.turn, map[string]interface{}{
			"tool": action.Tool, "step": i, "success": res.Success,
		})
		if !res.Success {
			msg := "action failed"
			if res.Error != nil {
				msg = res.Error.Message
			}
			return types.StatusError, msg, nil
		}
		steps[fmt.Sprintf("step_%d", i)] = res.Data
		lastOutput = expr.Stringify(res.Data)
	}
	return types.StatusCompleted, lastOutput, nil
}

// runLoop is the supervised model loop.
func (r *Runner) runLoop(ctx context.Context, th *thread) (types.ThreadStatus, string, error) {
	system, opening, err := r.buildPrompt(th)
	if err != nil {
		return types.StatusError, "", err
	}
	if len(th.messages) == 0 {
		th.messages = append(th.messages, types.Message{Role: "user", Content: opening})
		th.transcript.Record(transcript.EventUserMessage, th.turn, map[string]interface{}{
			"content": opening,
		})
	}
	tools := th.toolDefs()

	for {
		if th.harness.IsCancelled() || ctx.Err() != nil {
			return types.StatusCancelled, "", nil
		}
		if err := th.harness.CheckLimits(th.snapshot()); err != nil {
			var le *harness.LimitExceededError
			if !errors.As(err, &le) {
				return types.StatusError, "", err
			}
			switch r.fireHooks(ctx, th, "limit", map[string]interface{}{
				"limit_code": le.LimitCode, "current_value": le.CurrentValue,
				"current_max": le.CurrentMax, "turn": th.turn,
			}) {
			case harness.ControlAbort:
				return types.StatusCancelled, le.Error(), nil
			case harness.ControlSuspend, harness.ControlEscalate:
				r.persistState(th, types.StatusPaused)
				return types.StatusPaused, le.Error(), nil
			}
			th.transcript.Record(transcript.EventControlAction, th.turn, map[string]interface{}{
				"control": "fail", "limit_code": le.LimitCode,
				"current_value": le.CurrentValue, "current_max": le.CurrentMax,
			})
			return types.StatusError, le.Error(), nil
		}
		switch r.fireHooks(ctx, th, "before_turn", map[string]interface{}{
			"turn": th.turn + 1, "spend": th.cost.SpendUSD, "inputs": th.inputs,
		}) {
		case harness.ControlAbort:
			return types.StatusCancelled, "", nil
		case harness.ControlFail:
			return types.StatusError, "aborted by hook", nil
		case harness.ControlSuspend, harness.ControlEscalate:
			r.persistState(th, types.StatusPaused)
			return types.StatusPaused, "", nil
		}

		th.transcript.Record(transcript.EventStepStart, th.turn+1, map[string]interface{}{
			"spend_usd": th.cost.SpendUSD,
		})
		resp, err := r.chat(ctx, system, th.messages, tools)
		if err != nil {
			if r.fireHooks(ctx, th, "error", map[string]interface{}{
				"error": err.Error(), "turn": th.turn,
			}) == harness.ControlRetry {
				continue
			}
			return types.StatusError, err.Error(), err
		}
		th.turn++
		th.cost.AddTurn(resp.Usage)
		th.cost.ElapsedSeconds = time.Since(th.started).Seconds()
		if lerr := r.Ledger.IncrementActual(ctx, th.id, resp.Usage.SpendUSD); lerr != nil {
			if errors.Is(lerr, budget.ErrOverspend) {
				return types.StatusError, lerr.Error(), nil
			}
			log.Warn("failed to record spend", zap.String("thread_id", th.id), zap.Error(lerr))
		}

		if resp.Reasoning != "" {
			th.transcript.Record(transcript.EventAssistantReasoning, th.turn, map[string]interface{}{
				"reasoning": resp.Reasoning,
			})
		}
		th.transcript.Record(transcript.EventAssistantText, th.turn, map[string]interface{}{
			"content": resp.Content, "stop_reason": resp.StopReason,
			"tool_calls": len(resp.ToolCalls),
		})
		th.messages = append(th.messages, types.Message{
			Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			r.stepFinish(th, "end_turn", resp.Usage)
			r.persistState(th, types.StatusRunning)
			if th.mode == types.ModeConversation {
				return types.StatusPaused, resp.Content, nil
			}
			return types.StatusCompleted, resp.Content, nil
		}

		control := r.dispatchTools(ctx, th, resp.ToolCalls)
		r.stepFinish(th, "tool_use", resp.Usage)
		switch control {
		case harness.ControlAbort:
			return types.StatusCancelled, "", nil
		case harness.ControlFail:
			return types.StatusError, "aborted by hook", nil
		case harness.ControlSuspend, harness.ControlEscalate:
			r.persistState(th, types.StatusPaused)
			return types.StatusPaused, resp.Content, nil
		}

		r.checkpoint(th)
		r.persistState(th, types.StatusRunning)
	}
}

// stepFinish closes one turn on the transcript with the turn's usage.
func (r *Runner) stepFinish(th *thread, reason string, usage types.Usage) {
	th.transcript.Record(transcript.EventStepFinish, th.turn, map[string]interface{}{
		"finish_reason": reason,
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"spend_usd":     usage.SpendUSD,
	})
}

// fireHooks dispatches one hook round and reports the control action the
// runner must honor. Hook infrastructure failures never take the thread
// down mid-turn; they log and yield no action.
func (r *Runner) fireHooks(ctx context.Context, th *thread, event string, env map[string]interface{}) harness.ControlAction {
	out, err := th.harness.RunHooks(ctx, event, th.directive.Hooks, env, r.hookRunner(th))
	if err != nil {
		log.Warn("hook dispatch failed",
			zap.String("thread_id", th.id),
			zap.String("event", event),
			zap.Error(err),
		)
		return harness.ControlNone
	}
	if out.Control != harness.ControlNone {
		th.transcript.Record(transcript.EventControlAction, th.turn, map[string]interface{}{
			"event": event, "control": string(out.Control), "layer": int(out.ControlLayer),
		})
	}
	return out.Control
}

// dispatchTools runs each requested tool call under the harness, feeds
// results back as tool messages, and dispatches after_step hooks.
func (r *Runner) dispatchTools(ctx context.Context, th *thread, calls []types.ToolCall) harness.ControlAction {
	for _, call := range calls {
		result := r.runTool(ctx, th, call)
		th.messages = append(th.messages, result)
	}
	return r.fireHooks(ctx, th, "after_step", map[string]interface{}{
		"turn":   th.turn,
		"spend":  th.cost.SpendUSD,
		"inputs": th.inputs,
	})
}

// runTool executes one model-requested tool call and converts the result
// into a tool message. The execution envelope's chain, metadata, and
// resolved_env_keys never reach the model.
func (r *Runner) runTool(ctx context.Context, th *thread, call types.ToolCall) types.Message {
	toolID, _ := call.Input["item_id"].(string)
	if call.Name != executeToolName || toolID == "" {
		return toolErrorMessage(call.ID, fmt.Sprintf("unknown tool %q", call.Name))
	}
	if itemType, _ := call.Input["item_type"].(string); itemType == "directive" {
		return r.runDirectiveItem(th, call, toolID)
	}
	if err := th.harness.CheckPermission(capability.PrimaryExecute, "tool", toolID); err != nil {
		th.transcript.Record(transcript.EventToolCallStart, th.turn, map[string]interface{}{
			"tool": toolID, "denied": true,
		})
		return toolErrorMessage(call.ID, err.Error())
	}

	params, _ := call.Input["params"].(map[string]interface{})
	if params == nil {
		params = map[string]interface{}{}
	}
	th.injectThreadParams(params)

	th.transcript.Record(transcript.EventToolCallStart, th.turn, map[string]interface{}{
		"tool": toolID,
	})
	res, err := r.Executor.Execute(ctx, executor.Request{ToolID: toolID, Params: params})
	if err != nil {
		return toolErrorMessage(call.ID, err.Error())
	}
	th.transcript.Record(transcript.EventToolCallResult, th.turn, map[string]interface{}{
		"tool": toolID, "success": res.Success, "duration_ms": res.Duration,
	})

	if !res.Success {
		msg := "tool failed"
		if res.Error != nil {
			msg = res.Error.Message
		}
		return toolErrorMessage(call.ID, msg)
	}
	return types.Message{
		Role:      "tool",
		ToolUseID: call.ID,
		Content:   expr.Stringify(res.Data),
	}
}

// runDirectiveItem executes a directive in-thread: the result is the
// directive's interpolated body plus the instruction envelope, and the
// calling model carries it out itself. No child thread is spawned.
func (r *Runner) runDirectiveItem(th *thread, call types.ToolCall, itemID string) types.Message {
	if err := th.harness.CheckPermission(capability.PrimaryExecute, "directive", itemID); err != nil {
		th.transcript.Record(transcript.EventToolCallStart, th.turn, map[string]interface{}{
			"directive": itemID, "denied": true,
		})
		return toolErrorMessage(call.ID, err.Error())
	}
	d, _, err := r.Loader.LoadDirective(itemID)
	if err != nil {
		return toolErrorMessage(call.ID, err.Error())
	}
	params, _ := call.Input["params"].(map[string]interface{})
	inputs, err := d.ApplyInputDefaults(params)
	if err != nil {
		return toolErrorMessage(call.ID, err.Error())
	}
	body, err := expr.InterpolateInputs(d.Body, inputs)
	if err != nil {
		return toolErrorMessage(call.ID, err.Error())
	}

	th.transcript.Record(transcript.EventToolCallStart, th.turn, map[string]interface{}{
		"directive": itemID,
	})
	blob, _ := json.Marshal(map[string]interface{}{
		"status":       "success",
		"type":         "directive",
		"item_id":      itemID,
		"instructions": instructionEnvelope,
		"body":         body,
	})
	return types.Message{Role: "tool", ToolUseID: call.ID, Content: string(blob)}
}

// hookRunner executes hook actions through the same permission-checked
// path as model tool calls.
func (r *Runner) hookRunner(th *thread) harness.ActionRunner {
	return func(ctx context.Context, hook *directive.Hook, action map[string]interface{}, env map[string]interface{}) (harness.ControlAction, error) {
		toolID, _ := action["tool"].(string)
		if toolID == "" {
			return harness.ControlNone, nil
		}
		if err := th.harness.CheckPermission(capability.PrimaryExecute, "tool", toolID); err != nil {
			return harness.ControlNone, err
		}
		params, _ := action["params"].(map[string]interface{})
		params = expr.InterpolateParams(params, env)
		th.injectThreadParams(params)
		res, err := r.Executor.Execute(ctx, executor.Request{ToolID: toolID, Params: params})
		if err != nil {
			return harness.ControlNone, err
		}
		th.transcript.Record(transcript.EventHookFired, th.turn, map[string]interface{}{
			"event": hook.Event, "tool": toolID, "success": res.Success,
		})
		if data, ok := res.Data.(map[string]interface{}); ok {
			if c, ok := data["control"].(string); ok {
				return harness.ControlAction(c), nil
			}
		}
		return harness.ControlNone, nil
	}
}

// chat calls the provider. A nil Retry hook uses the default policy.
func (r *Runner) chat(ctx context.Context, system string, messages []types.Message, tools []types.ToolDef) (*types.LLMResponse, error) {
	return chatWithDefaultRetry(ctx, r.Provider, system, messages, tools)
}

// buildPrompt assembles the system prompt and opening user message from
// the directive body, interpolated inputs, and injected context.
func (r *Runner) buildPrompt(th *thread) (system, opening string, err error) {
	body, err := expr.InterpolateInputs(th.directive.Body, th.inputs)
	if err != nil {
		return "", "", err
	}
	injected := th.harness.BuildContext(th.directive.Context, r.knowledgeLoader(th))

	system = injected.System
	opening = body
	if injected.Before != "" {
		opening = injected.Before + "\n\n" + opening
	}
	if injected.After != "" {
		opening = opening + "\n\n" + injected.After
	}
	opening = opening + "\n\n" + instructionEnvelope
	return system, opening, nil
}

// knowledgeLoader gates context injection behind load permissions.
func (r *Runner) knowledgeLoader(th *thread) harness.KnowledgeLoader {
	return func(itemID string) (string, error) {
		if err := th.harness.CheckPermission(capability.PrimaryLoad, "knowledge", itemID); err != nil {
			return "", err
		}
		loaded, err := r.Loader.Load(spaces.ItemKnowledge, itemID)
		if err != nil {
			return "", err
		}
		return loaded.Body, nil
	}
}

// finalize settles everything regardless of how the body ended.
func (r *Runner) finalize(ctx context.Context, th *thread, status types.ThreadStatus, output string) {
	th.cost.ElapsedSeconds = time.Since(th.started).Seconds()
	if status != types.StatusPaused {
		r.fireHooks(ctx, th, "thread_completed", map[string]interface{}{
			"status": string(status), "output": output,
			"spend": th.cost.SpendUSD, "turns": th.turn,
		})
		if err := r.Ledger.Release(ctx, th.id, string(status)); err != nil {
			log.Warn("failed to release budget", zap.String("thread_id", th.id), zap.Error(err))
		}
	}
	if err := r.Registry.UpdateCostSnapshot(ctx, th.id, &th.cost); err != nil {
		log.Warn("failed to snapshot cost", zap.String("thread_id", th.id), zap.Error(err))
	}
	if err := r.Registry.UpdateStatus(ctx, th.id, status); err != nil {
		log.Warn("failed to update thread status", zap.String("thread_id", th.id), zap.Error(err))
	}
	r.persistState(th, status)
	finalEvent := transcript.EventThreadComplete
	if status == types.StatusError {
		finalEvent = transcript.EventThreadError
	}
	th.transcript.Record(finalEvent, th.turn, map[string]interface{}{
		"status": string(status), "output": output,
		"spend_usd": th.cost.SpendUSD, "turns": th.cost.Turns,
	})
	// The current turn's checkpoint doubles as the final one so the
	// terminal events land inside the signed prefix.
	if th.turn != th.lastCheckpoint {
		r.checkpoint(th)
	}
	if err := r.writeMetadata(th, status, ""); err != nil {
		log.Warn("failed to write thread metadata", zap.String("thread_id", th.id), zap.Error(err))
	}
	log.Info("thread finished",
		zap.String("thread_id", th.id),
		zap.String("status", string(status)),
		zap.Float64("spend_usd", th.cost.SpendUSD),
	)
}

func (r *Runner) persistState(th *thread, status types.ThreadStatus) {
	st := &transcript.State{
		ThreadID:    th.id,
		DirectiveID: th.directiveID,
		Status:      status,
		Turn:        th.turn,
		Messages:    th.messages,
		Inputs:      th.inputs,
		Cost:        th.cost,
	}
	if err := transcript.SaveState(th.dir, st); err != nil {
		log.Warn("failed to persist thread state", zap.String("thread_id", th.id), zap.Error(err))
	}
}

func (r *Runner) checkpoint(th *thread) {
	kp, err := r.Keys.Keypair()
	if err != nil {
		log.Warn("failed to load signing key for checkpoint", zap.Error(err))
		return
	}
	if err := th.transcript.Checkpoint(kp, th.turn); err != nil {
		log.Warn("failed to checkpoint transcript", zap.String("thread_id", th.id), zap.Error(err))
		return
	}
	th.lastCheckpoint = th.turn
}

func threadMode(d *directive.Directive, override types.ThreadMode) types.ThreadMode {
	if override != "" {
		return override
	}
	if d.ThreadMode != "" {
		return types.ThreadMode(d.ThreadMode)
	}
	return types.ModeSingle
}

func toolErrorMessage(toolUseID, msg string) types.Message {
	return types.Message{
		Role:      "tool",
		ToolUseID: toolUseID,
		Content:   msg,
		ToolError: true,
	}
}
