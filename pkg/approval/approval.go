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

// Package approval implements the file-based human approval flow. A
// blocked thread drops a request file into its directory and polls for
// the matching response; any process with filesystem access can answer.
package approval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/internal/log"
	"go.uber.org/zap"
)

const (
	requestFile  = "approval_request.json"
	responseFile = "approval_response.json"

	// pollInterval is the fallback cadence when fsnotify is unavailable
	// (network filesystems, exhausted watch descriptors).
	pollInterval = time.Second
)

// Request is one pending approval.
type Request struct {
	RequestID   string                 `json:"request_id"`
	ThreadID    string                 `json:"thread_id"`
	Action      string                 `json:"action"`
	Description string                 `json:"description,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	CreatedAt   string                 `json:"created_at"`
}

// Response answers a request.
type Response struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
	Responder string `json:"responder,omitempty"`
	CreatedAt string `json:"created_at"`
}

// NewRequest writes a pending approval request into threadDir.
func NewRequest(threadDir, threadID, action, description string, details map[string]interface{}) (*Request, error) {
	req := &Request{
		RequestID:   uuid.NewString(),
		ThreadID:    threadID,
		Action:      action,
		Description: description,
		Details:     details,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := fsext.WriteJSONAtomic(filepath.Join(threadDir, requestFile), req, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write approval request: %w", err)
	}
	log.Info("approval requested",
		zap.String("thread_id", threadID),
		zap.String("action", action),
	)
	return req, nil
}

// PendingRequest returns the open request in threadDir, or nil.
func PendingRequest(threadDir string) (*Request, error) {
	path := filepath.Join(threadDir, requestFile)
	if !fsext.Exists(path) {
		return nil, nil
	}
	var req Request
	if err := fsext.ReadJSON(path, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Poll checks for a response without blocking. Returns nil when no
// response has arrived, or when the response answers a different request.
func Poll(threadDir, requestID string) (*Response, error) {
	path := filepath.Join(threadDir, responseFile)
	if !fsext.Exists(path) {
		return nil, nil
	}
	var resp Response
	if err := fsext.ReadJSON(path, &resp); err != nil {
		return nil, err
	}
	if resp.RequestID != requestID {
		return nil, nil
	}
	return &resp, nil
}

// Wait blocks until a response arrives, the timeout elapses, or the
// context is cancelled. A directory watch wakes the wait early when the
// platform supports it; polling remains the correctness backstop either
// way.
func Wait(ctx context.Context, threadDir, requestID string, timeout time.Duration) (*Response, error) {
	deadline := time.Now().Add(timeout)

	var events chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(threadDir); err == nil {
			events = make(chan fsnotify.Event, 1)
			go func() {
				for ev := range watcher.Events {
					if filepath.Base(ev.Name) == responseFile {
						select {
						case events <- ev:
						default:
						}
					}
				}
			}()
		}
	}

	for {
		resp, err := Poll(threadDir, requestID)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			cleanup(threadDir)
			return resp, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("approval request %s timed out after %s", requestID, timeout)
		}

		wake := time.After(pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		case <-events:
		}
	}
}

// Respond writes the answer to a pending request.
func Respond(threadDir string, resp *Response) error {
	if resp.CreatedAt == "" {
		resp.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if err := fsext.WriteJSONAtomic(filepath.Join(threadDir, responseFile), resp, 0o644); err != nil {
		return fmt.Errorf("failed to write approval response: %w", err)
	}
	return nil
}

// cleanup removes the settled request/response pair so a later request
// in the same thread starts clean.
func cleanup(threadDir string) {
	os.Remove(filepath.Join(threadDir, requestFile))
	os.Remove(filepath.Join(threadDir, responseFile))
}
