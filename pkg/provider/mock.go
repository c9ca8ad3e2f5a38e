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

package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/lillux/rye/pkg/types"
)

// Mock is a scripted provider for tests: each call pops the next queued
// response or error.
type Mock struct {
	ModelID string

	mu        sync.Mutex
	responses []*types.LLMResponse
	errs      []error
	calls     int

	// LastSystem and LastMessages capture the most recent request.
	LastSystem   string
	LastMessages []types.Message
	LastTools    []types.ToolDef
}

// NewMock creates a mock provider.
func NewMock(modelID string) *Mock {
	return &Mock{ModelID: modelID}
}

// Queue appends a scripted response.
func (m *Mock) Queue(resp *types.LLMResponse) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, nil)
	return m
}

// QueueError appends a scripted failure.
func (m *Mock) QueueError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

// QueueText is shorthand for a plain end_turn text response.
func (m *Mock) QueueText(text string) *Mock {
	return m.Queue(&types.LLMResponse{
		Content:    text,
		StopReason: "end_turn",
		Usage:      types.Usage{InputTokens: 10, OutputTokens: 5, SpendUSD: 0.0001},
	})
}

// QueueToolCall is shorthand for a single tool_use response.
func (m *Mock) QueueToolCall(id, name string, input map[string]interface{}) *Mock {
	return m.Queue(&types.LLMResponse{
		ToolCalls:  []types.ToolCall{{ID: id, Name: name, Input: input}},
		StopReason: "tool_use",
		Usage:      types.Usage{InputTokens: 10, OutputTokens: 5, SpendUSD: 0.0001},
	})
}

func (m *Mock) Chat(ctx context.Context, system string, messages []types.Message, tools []types.ToolDef) (*types.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastSystem = system
	m.LastMessages = append([]types.Message{}, messages...)
	m.LastTools = append([]types.ToolDef{}, tools...)
	if m.calls >= len(m.responses) {
		return nil, fmt.Errorf("mock provider exhausted after %d calls", m.calls)
	}
	resp, err := m.responses[m.calls], m.errs[m.calls]
	m.calls++
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *Mock) Name() string  { return "mock" }
func (m *Mock) Model() string { return m.ModelID }

// Calls reports how many chat calls have been made.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
