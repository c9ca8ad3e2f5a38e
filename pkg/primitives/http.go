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
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/expr"
	"go.uber.org/zap"
)

// HTTPSync is the one-shot HTTP request primitive.
type HTTPSync struct {
	client *http.Client
}

// NewHTTPSync creates the HTTP primitive. The per-request timeout comes
// from parameters; the client itself carries no global deadline.
func NewHTTPSync() *HTTPSync {
	return &HTTPSync{client: &http.Client{}}
}

func (h *HTTPSync) ID() string { return HTTPID }

// retryPolicy is the declarative retry block of an HTTP tool call.
type retryPolicy struct {
	Strategy    string  // "exponential" or "fixed"
	MaxAttempts int
	BaseDelay   time.Duration
}

func parseRetryPolicy(params map[string]interface{}) retryPolicy {
	p := retryPolicy{Strategy: "exponential", MaxAttempts: 1, BaseDelay: time.Second}
	raw, ok := params["retry"].(map[string]interface{})
	if !ok {
		return p
	}
	if s, ok := raw["strategy"].(string); ok && s != "" {
		p.Strategy = s
	}
	if n := num(raw, "max_attempts", 0); n > 0 {
		p.MaxAttempts = int(n)
	}
	if d := num(raw, "base_delay_ms", 0); d > 0 {
		p.BaseDelay = time.Duration(d) * time.Millisecond
	}
	return p
}

func (p retryPolicy) delay(attempt int) time.Duration {
	if p.Strategy == "fixed" {
		return p.BaseDelay
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Execute performs the request. URL and header values resolve
// ${VAR:-default} references against the environment dictionary. The
// optional auth block injects bearer or api-key credentials.
func (h *HTTPSync) Execute(ctx context.Context, params map[string]interface{}, env map[string]string) (map[string]interface{}, error) {
	method := strings.ToUpper(str(params, "method"))
	if method == "" {
		method = "GET"
	}
	url := expr.ResolveEnv(str(params, "url"), env)
	if url == "" {
		return nil, fmt.Errorf("http primitive requires a url parameter")
	}
	timeout := time.Duration(num(params, "timeout", 30)) * time.Second
	policy := parseRetryPolicy(params)

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.delay(attempt - 1)):
			}
		}

		result, err := h.doRequest(ctx, method, url, params, env, timeout)
		if err != nil {
			lastErr = err
			log.Debug("http request failed, may retry",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		return result, nil
	}
	return map[string]interface{}{
		"success": false,
		"error":   lastErr.Error(),
	}, nil
}

func (h *HTTPSync) doRequest(ctx context.Context, method, url string, params map[string]interface{}, env map[string]string, timeout time.Duration) (map[string]interface{}, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if b, ok := params["body"]; ok && b != nil {
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(rctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	applyHeaders(req.Header, params, env)
	applyAuth(req.Header, params, env)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	elapsed := time.Since(start).Milliseconds()

	headers := map[string]interface{}{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return map[string]interface{}{
		"success":     resp.StatusCode >= 200 && resp.StatusCode < 400,
		"status_code": resp.StatusCode,
		"body":        string(respBody),
		"headers":     headers,
		"duration_ms": elapsed,
	}, nil
}

func applyHeaders(h http.Header, params map[string]interface{}, env map[string]string) {
	raw, ok := params["headers"].(map[string]interface{})
	if !ok {
		return
	}
	for k, v := range raw {
		h.Set(k, expr.ResolveEnv(expr.Stringify(v), env))
	}
}

func applyAuth(h http.Header, params map[string]interface{}, env map[string]string) {
	raw, ok := params["auth"].(map[string]interface{})
	if !ok {
		return
	}
	token := expr.ResolveEnv(str(raw, "token"), env)
	switch str(raw, "type") {
	case "bearer":
		h.Set("Authorization", "Bearer "+token)
	case "api_key":
		header := str(raw, "header")
		if header == "" {
			header = "X-Api-Key"
		}
		h.Set(header, token)
	}
}
