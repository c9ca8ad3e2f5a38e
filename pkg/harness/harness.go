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

// Package harness is the safety layer every thread runs inside:
// permission checks, limit enforcement, hook dispatch, and cooperative
// cancellation. Permissions fail closed; a directive that declares none
// can call nothing except the internal thread-management tools.
package harness

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/capability"
	"github.com/lillux/rye/pkg/types"
	"go.uber.org/zap"
)

// internalPrefix names the built-in thread-management tools that are
// callable regardless of declared permissions.
const internalPrefix = "rye/agent/threads/internal/"

// Harness wraps one thread's safety state.
type Harness struct {
	ThreadID string
	Caps     []capability.Cap
	Limits   *types.Limits

	cancelled atomic.Bool
}

// New creates a harness over an attenuated capability set.
func New(threadID string, caps []capability.Cap, limits *types.Limits) *Harness {
	return &Harness{ThreadID: threadID, Caps: caps, Limits: limits}
}

// PermissionError reports a denied tool call.
type PermissionError struct {
	Required string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s not granted", e.Required)
}

// CheckPermission gates one operation on an item. Internal thread tools
// are always permitted; everything else requires a covering capability.
func (h *Harness) CheckPermission(primary capability.Primary, itemType, itemID string) error {
	if strings.HasPrefix(itemID, internalPrefix) {
		return nil
	}
	required := capability.Required(primary, itemType, itemID)
	if !capability.Check(h.Caps, required) {
		log.Debug("permission denied",
			zap.String("thread_id", h.ThreadID),
			zap.String("required", required),
		)
		return &PermissionError{Required: required}
	}
	return nil
}

// Attenuate derives a child capability set: the child keeps only what
// the parent's set covers, narrowed where it asks wider.
func (h *Harness) Attenuate(requested []capability.Cap) []capability.Cap {
	return capability.Attenuate(h.Caps, requested)
}

// LimitExceededError reports the first limit a thread ran over.
type LimitExceededError struct {
	LimitCode    string  `json:"limit_code"`
	CurrentValue float64 `json:"current_value"`
	CurrentMax   float64 `json:"current_max"`
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit %s exceeded: %.4f of %.4f", e.LimitCode, e.CurrentValue, e.CurrentMax)
}

// Snapshot carries the counters limits are checked against.
type Snapshot struct {
	Turns           int
	Cost            types.Cost
	ElapsedSeconds  float64
	ChildrenSpawned int
	Depth           int
}

// CheckLimits compares the snapshot against the declared limits and
// returns the first exceedance, checked in a fixed order so repeated
// calls report the same violation.
func (h *Harness) CheckLimits(s Snapshot) error {
	if h.Limits == nil {
		return nil
	}
	l := h.Limits
	checks := []struct {
		code  string
		max   *float64
		value float64
	}{
		{"turns", intPtr(l.Turns), float64(s.Turns)},
		{"tokens", intPtr(l.Tokens), float64(s.Cost.InputTokens + s.Cost.OutputTokens)},
		{"spend", l.SpendUSD, s.Cost.SpendUSD},
		{"duration_seconds", l.DurationSeconds, s.ElapsedSeconds},
		{"spawns", intPtr(l.Spawns), float64(s.ChildrenSpawned)},
		{"depth", intPtr(l.Depth), float64(s.Depth)},
	}
	for _, c := range checks {
		if c.max != nil && c.value > *c.max {
			return &LimitExceededError{
				LimitCode:    c.code,
				CurrentValue: c.value,
				CurrentMax:   *c.max,
			}
		}
	}
	return nil
}

func intPtr(p *int) *float64 {
	if p == nil {
		return nil
	}
	f := float64(*p)
	return &f
}

// RequestCancel marks the thread for cooperative cancellation. The
// runner observes the flag at turn boundaries.
func (h *Harness) RequestCancel() {
	h.cancelled.Store(true)
	log.Info("cancellation requested", zap.String("thread_id", h.ThreadID))
}

// IsCancelled reports whether cancellation has been requested.
func (h *Harness) IsCancelled() bool {
	return h.cancelled.Load()
}
