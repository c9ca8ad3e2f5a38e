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
	"fmt"
	"sort"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/directive"
	"github.com/lillux/rye/pkg/expr"
	"go.uber.org/zap"
)

// ControlAction is a hook's verdict on the event it observed.
type ControlAction string

const (
	ControlNone     ControlAction = ""
	ControlRetry    ControlAction = "retry"
	ControlFail     ControlAction = "fail"
	ControlAbort    ControlAction = "abort"
	ControlSuspend  ControlAction = "suspend"
	ControlEscalate ControlAction = "escalate"
	ControlContinue ControlAction = "continue"
	ControlSkip     ControlAction = "skip"
)

// ActionRunner executes one hook action under the declaring directive's
// attenuated capabilities and returns any control action it emits.
type ActionRunner func(ctx context.Context, hook *directive.Hook, action map[string]interface{}, env map[string]interface{}) (ControlAction, error)

// HookOutcome reports a hook dispatch round.
type HookOutcome struct {
	Fired   []string
	Control ControlAction

	// ControlLayer records which layer produced the control action.
	ControlLayer directive.HookLayer
}

// RunHooks dispatches all hooks subscribed to event, by layer: user
// hooks first, then builtin, then infrastructure. A control action from
// layer 1 or 2 short-circuits the remaining hooks in those layers, but
// layer 3 hooks always run; infrastructure accounting cannot be skipped
// by user configuration.
func (h *Harness) RunHooks(ctx context.Context, event string, hooks []directive.Hook, env map[string]interface{}, run ActionRunner) (*HookOutcome, error) {
	matched := make([]directive.Hook, 0, len(hooks))
	for _, hook := range hooks {
		if hook.Event != event {
			continue
		}
		if hook.Condition != "" {
			ok, err := expr.EvalCondition(hook.Condition, env)
			if err != nil {
				return nil, fmt.Errorf("hook condition on %s: %w", event, err)
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, hook)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return layerOf(&matched[i]) < layerOf(&matched[j])
	})

	out := &HookOutcome{}
	for i := range matched {
		hook := &matched[i]
		layer := layerOf(hook)
		if out.Control != ControlNone && layer < directive.LayerInfra {
			continue
		}

		control, err := h.runOne(ctx, hook, env, run)
		if err != nil {
			return nil, err
		}
		out.Fired = append(out.Fired, event)
		if control != ControlNone && out.Control == ControlNone {
			out.Control = control
			out.ControlLayer = layer
			log.Debug("hook emitted control action",
				zap.String("thread_id", h.ThreadID),
				zap.String("event", event),
				zap.String("control", string(control)),
				zap.Int("layer", int(layer)),
			)
		}
	}
	return out, nil
}

func (h *Harness) runOne(ctx context.Context, hook *directive.Hook, env map[string]interface{}, run ActionRunner) (ControlAction, error) {
	actions := hook.Actions
	if hook.Action != nil {
		actions = append([]map[string]interface{}{hook.Action}, actions...)
	}
	if len(actions) == 0 && hook.Directive != "" {
		actions = []map[string]interface{}{{"directive": hook.Directive}}
	}
	for _, action := range actions {
		// A literal control action needs no runner.
		if c, ok := action["control"].(string); ok && len(action) == 1 {
			return ControlAction(c), nil
		}
		if run == nil {
			continue
		}
		control, err := run(ctx, hook, action, env)
		if err != nil {
			return ControlNone, fmt.Errorf("hook action on %s: %w", hook.Event, err)
		}
		if control != ControlNone {
			return control, nil
		}
	}
	return ControlNone, nil
}

func layerOf(hook *directive.Hook) directive.HookLayer {
	if hook.Layer == 0 {
		return directive.LayerUser
	}
	return hook.Layer
}
