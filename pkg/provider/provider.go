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

// Package provider wraps LLM backends behind the common chat contract,
// classifying transport failures and retrying the transient ones.
package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/types"
	"go.uber.org/zap"
)

// Transient failures worth retrying. Matched against the lowercased
// error string because SDK error types differ per backend.
var retryablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`rate.?limit`),
	regexp.MustCompile(`overloaded`),
	regexp.MustCompile(`\b429\b`),
	regexp.MustCompile(`\b5\d\d\b`),
	regexp.MustCompile(`timeout|timed out|deadline exceeded`),
	regexp.MustCompile(`connection (refused|reset)|broken pipe|eof`),
	regexp.MustCompile(`temporarily unavailable`),
}

// Permanent failures that retrying cannot fix. Checked before the
// retryable set so "invalid request" never burns retry budget.
var permanentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`invalid.?api.?key|authentication|unauthorized|\b401\b`),
	regexp.MustCompile(`\b400\b|invalid.?request|malformed`),
	regexp.MustCompile(`\b403\b|forbidden`),
	regexp.MustCompile(`\b404\b|not found`),
	regexp.MustCompile(`context.?length|too many tokens`),
	regexp.MustCompile(`billing|credit`),
}

// IsRetryable classifies a provider error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range permanentPatterns {
		if p.MatchString(msg) {
			return false
		}
	}
	for _, p := range retryablePatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

// RetryPolicy governs provider call retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the backoff used for provider calls: up to
// 5 attempts, doubling from 1s, capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// ChatWithRetry calls the provider, retrying transient failures with
// exponential backoff. Permanent failures return immediately.
func ChatWithRetry(ctx context.Context, p types.LLMProvider, policy RetryPolicy, system string, messages []types.Message, tools []types.ToolDef) (*types.LLMResponse, error) {
	var lastErr error
	delay := policy.BaseDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		resp, err := p.Chat(ctx, system, messages, tools)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		log.Warn("provider call failed, retrying",
			zap.String("provider", p.Name()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return nil, fmt.Errorf("provider %s failed after %d attempts: %w", p.Name(), policy.MaxAttempts, lastErr)
}
