// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the rye runtime.
// This package breaks import cycles by providing common types that the
// runner, harness, executor, and provider packages all depend on.
package types

import (
	"context"
	"encoding/json"
	"time"
)

// ============================================================================
// LLM Types
// ============================================================================

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	// ID is a unique identifier for this tool call
	ID string `json:"id"`

	// Name is the tool name as presented to the model
	Name string `json:"name"`

	// Input contains the tool parameters
	Input map[string]interface{} `json:"input"`
}

// Message represents a single message in the conversation.
type Message struct {
	// Role is the message sender (system, user, assistant, tool)
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool invocations (if role is assistant)
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolUseID matches a tool result to the tool_use block that requested it
	// (if role is tool)
	ToolUseID string `json:"tool_use_id,omitempty"`

	// ToolError marks a tool result as an error the model should see
	ToolError bool `json:"tool_error,omitempty"`

	// Timestamp when the message was created
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Usage tracks token usage reported by a provider for one request.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	SpendUSD     float64 `json:"spend_usd"`
}

// LLMResponse represents one provider response.
type LLMResponse struct {
	// Content is the text response (if any)
	Content string

	// Reasoning contains the model's reasoning blocks, if the model emits them
	Reasoning string

	// ToolCalls contains requested tool executions
	ToolCalls []ToolCall

	// StopReason indicates why the model stopped (end_turn, tool_use, max_tokens)
	StopReason string

	// Usage tracks token usage for this request
	Usage Usage
}

// ToolDef is the schema of one tool as presented to the provider.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// LLMProvider defines the request/response contract the runner consumes.
// Adapter implementations live under pkg/provider.
type LLMProvider interface {
	// Chat sends a conversation to the model and returns the response.
	Chat(ctx context.Context, system string, messages []Message, tools []ToolDef) (*LLMResponse, error)

	// Name returns the provider name
	Name() string

	// Model returns the model identifier
	Model() string
}

// ============================================================================
// Execution Types
// ============================================================================

// ToolError represents a structured tool execution error.
type ToolError struct {
	// Code is a machine-readable error code
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details provides additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	// Retryable indicates if the operation can be retried
	Retryable bool `json:"retryable,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// ChainLink identifies one element of a resolved delegation chain.
type ChainLink struct {
	ItemID        string `json:"item_id"`
	Version       string `json:"version"`
	ExecutorID    string `json:"executor_id,omitempty"`
	Space         string `json:"space"`
	IntegrityHash string `json:"integrity_hash,omitempty"`
}

// ExecutionResult is the envelope returned by the primitive executor.
type ExecutionResult struct {
	Success  bool                   `json:"success"`
	Data     interface{}            `json:"data,omitempty"`
	Error    *ToolError             `json:"error,omitempty"`
	Chain    []ChainLink            `json:"chain,omitempty"`
	Duration int64                  `json:"duration_ms"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ============================================================================
// Thread Types
// ============================================================================

// ThreadStatus is the lifecycle state of a thread.
type ThreadStatus string

const (
	StatusCreated   ThreadStatus = "created"
	StatusRunning   ThreadStatus = "running"
	StatusPaused    ThreadStatus = "paused"
	StatusCompleted ThreadStatus = "completed"
	StatusError     ThreadStatus = "error"
	StatusCancelled ThreadStatus = "cancelled"
	StatusContinued ThreadStatus = "continued"
)

// Terminal reports whether the status is a terminal lifecycle state.
func (s ThreadStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled, StatusContinued:
		return true
	}
	return false
}

// ThreadMode selects how a thread's conversation is managed.
type ThreadMode string

const (
	ModeSingle       ThreadMode = "single"
	ModeConversation ThreadMode = "conversation"
	ModeChannel      ThreadMode = "channel"
)

// Awaiting names the external event currently blocking a thread, if any.
type Awaiting string

const (
	AwaitingNone     Awaiting = ""
	AwaitingUser     Awaiting = "user"
	AwaitingApproval Awaiting = "approval"
	AwaitingChild    Awaiting = "child"
)

// TurnCost records the exact token and spend numbers for one turn.
type TurnCost struct {
	Turn         int     `json:"turn"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	SpendUSD     float64 `json:"spend_usd"`
}

// Cost is a thread's cumulative cost accumulator.
type Cost struct {
	Turns          int        `json:"turns"`
	InputTokens    int        `json:"input_tokens"`
	OutputTokens   int        `json:"output_tokens"`
	SpendUSD       float64    `json:"spend_usd"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	PerTurn        []TurnCost `json:"per_turn,omitempty"`
}

// AddTurn folds one turn's usage into the accumulator.
func (c *Cost) AddTurn(u Usage) {
	c.Turns++
	c.InputTokens += u.InputTokens
	c.OutputTokens += u.OutputTokens
	c.SpendUSD += u.SpendUSD
	c.PerTurn = append(c.PerTurn, TurnCost{
		Turn:         c.Turns,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		SpendUSD:     u.SpendUSD,
	})
}

// Limits holds a directive's declared resource limits. Nil pointers mean
// "no limit declared".
type Limits struct {
	Turns           *int     `json:"turns,omitempty" yaml:"turns,omitempty"`
	Tokens          *int     `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	SpendUSD        *float64 `json:"spend,omitempty" yaml:"spend,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	Depth           *int     `json:"depth,omitempty" yaml:"depth,omitempty"`
	Spawns          *int     `json:"spawns,omitempty" yaml:"spawns,omitempty"`
}

// ThreadMetadata is the persistent per-thread record (thread.json).
type ThreadMetadata struct {
	ThreadID             string       `json:"thread_id"`
	Directive            string       `json:"directive"`
	ParentThreadID       string       `json:"parent_thread_id,omitempty"`
	Status               ThreadStatus `json:"status"`
	Mode                 ThreadMode   `json:"thread_mode"`
	Model                string       `json:"model,omitempty"`
	ToolDefs             []ToolDef    `json:"tool_defs,omitempty"`
	Limits               *Limits      `json:"limits,omitempty"`
	TurnCount            int          `json:"turn_count"`
	Cost                 Cost         `json:"cost"`
	PID                  int          `json:"pid,omitempty"`
	ContinuationOf       string       `json:"continuation_of,omitempty"`
	ContinuationThreadID string       `json:"continuation_thread_id,omitempty"`
	ChainRootID          string       `json:"chain_root_id,omitempty"`
	Awaiting             Awaiting     `json:"awaiting,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
	Signature            string       `json:"_signature,omitempty"`
}
