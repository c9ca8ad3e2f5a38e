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

// Package anthropic adapts the Anthropic Messages API to the runtime's
// provider contract.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lillux/rye/pkg/types"
)

// Model tiers. Directives select a tier; the adapter maps it to a
// concrete model id unless one is given explicitly.
var tierModels = map[string]string{
	"fast":     "claude-3-5-haiku-latest",
	"standard": "claude-sonnet-4-20250514",
	"advanced": "claude-opus-4-20250514",
}

// pricing is USD per million tokens, input/output.
var pricing = map[string][2]float64{
	"claude-3-5-haiku-latest":  {0.80, 4.00},
	"claude-sonnet-4-20250514": {3.00, 15.00},
	"claude-opus-4-20250514":   {15.00, 75.00},
}

// defaultMaxTokens caps generation when the directive does not say.
const defaultMaxTokens = 4096

// Provider is the Anthropic-backed LLM provider.
type Provider struct {
	client sdk.Client
	model  string
}

// Config holds provider construction parameters.
type Config struct {
	// APIKey authenticates against the Anthropic API (required).
	APIKey string

	// BaseURL overrides the API endpoint, for proxies.
	BaseURL string

	// Tier selects the model tier; ignored when Model is set.
	Tier string

	// Model is an explicit model id.
	Model string
}

// New creates the provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = tierModels["standard"]
		if m, ok := tierModels[cfg.Tier]; ok {
			model = m
		}
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: sdk.NewClient(opts...), model: model}, nil
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.model }

// Chat sends one non-streaming message round.
func (p *Provider) Chat(ctx context.Context, system string, messages []types.Message, tools []types.ToolDef) (*types.LLMResponse, error) {
	converted, err := convertMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		Messages:  converted,
		MaxTokens: defaultMaxTokens,
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(tools) > 0 {
		sdkTools, err := convertTools(tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = sdkTools
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	resp := &types.LLMResponse{
		StopReason: string(msg.StopReason),
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			resp.Reasoning += block.Thinking
		case "tool_use":
			tu := block.AsToolUse()
			var input map[string]interface{}
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: malformed tool input for %s: %w", tu.Name, err)
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: input,
			})
		}
	}
	resp.Content = text.String()

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	if in == 0 && out == 0 {
		// Some proxies drop usage; fall back to local estimation.
		in = EstimateTokens(system, messages)
		out = EstimateText(resp.Content)
	}
	resp.Usage = types.Usage{
		InputTokens:  in,
		OutputTokens: out,
		SpendUSD:     Spend(p.model, in, out),
	}
	return resp, nil
}

// Spend computes the USD cost of a turn. Unknown models price at the
// standard tier so spend tracking never silently reads zero.
func Spend(model string, inputTokens, outputTokens int) float64 {
	rates, ok := pricing[model]
	if !ok {
		rates = pricing[tierModels["standard"]]
	}
	return float64(inputTokens)/1e6*rates[0] + float64(outputTokens)/1e6*rates[1]
}

func convertMessages(messages []types.Message) ([]sdk.MessageParam, error) {
	var out []sdk.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		var content []sdk.ContentBlockParamUnion
		if msg.Role == "tool" {
			content = append(content, sdk.NewToolResultBlock(msg.ToolUseID, msg.Content, msg.ToolError))
		} else if msg.Content != "" {
			content = append(content, sdk.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			content = append(content, sdk.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == "assistant" {
			out = append(out, sdk.NewAssistantMessage(content...))
		} else {
			out = append(out, sdk.NewUserMessage(content...))
		}
	}
	return out, nil
}

func convertTools(tools []types.ToolDef) ([]sdk.ToolUnionParam, error) {
	var out []sdk.ToolUnionParam
	for _, tool := range tools {
		var schema sdk.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := sdk.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		param.OfTool.Description = sdk.String(tool.Description)
		out = append(out, param)
	}
	return out, nil
}
