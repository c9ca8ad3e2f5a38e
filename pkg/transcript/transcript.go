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

// Package transcript is the append-only JSONL record of a thread's
// execution, with periodic signed checkpoints that commit to the byte
// prefix written so far.
package transcript

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/pkg/signing"
)

// Event types.
const (
	EventThreadStart        = "thread_start"
	EventThreadContinue     = "thread_continue"
	EventUserMessage        = "user_message"
	EventStepStart          = "step_start"
	EventStepFinish         = "step_finish"
	EventAssistantText      = "assistant_text"
	EventAssistantReasoning = "assistant_reasoning"
	EventToolCallStart      = "tool_call_start"
	EventToolCallResult     = "tool_call_result"
	EventHookFired          = "hook_fired"
	EventControlAction      = "control_action"
	EventCheckpoint         = "checkpoint"
	EventThreadComplete     = "thread_complete"
	EventThreadError        = "thread_error"
)

// FileName is the transcript file inside a thread directory.
const FileName = "transcript.jsonl"

// Event is one transcript line.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp string                 `json:"ts"`
	Turn      int                    `json:"turn,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`

	// Checkpoint fields, set only when Type == EventCheckpoint.
	ByteOffset  int64  `json:"byte_offset,omitempty"`
	Hash        string `json:"hash,omitempty"`
	Sig         string `json:"sig,omitempty"`
	Fingerprint string `json:"fp,omitempty"`
}

// Writer appends events to a thread's transcript.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewWriter opens (creating if needed) the transcript in threadDir.
func NewWriter(threadDir string) (*Writer, error) {
	if err := fsext.EnsureDir(threadDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(threadDir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	return &Writer{f: f, path: path}, nil
}

// Close closes the transcript file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Path returns the transcript file path.
func (w *Writer) Path() string { return w.path }

// Append writes one event as a JSONL line and syncs it to disk.
func (w *Writer) Append(ev *Event) error {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode transcript event: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append transcript event: %w", err)
	}
	return w.f.Sync()
}

// Record is shorthand for appending a data event.
func (w *Writer) Record(eventType string, turn int, data map[string]interface{}) error {
	return w.Append(&Event{Type: eventType, Turn: turn, Data: data})
}

// Checkpoint signs the transcript prefix written so far. The checkpoint
// event commits to byte_offset, the SHA-256 of bytes [0, byte_offset),
// and an Ed25519 signature over that digest. The checkpoint line itself
// falls outside the hashed range.
func (w *Writer) Checkpoint(kp *signing.Keypair, turn int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.f.Sync(); err != nil {
		return err
	}
	offset, err := w.f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	prefix, err := readPrefix(w.path, offset)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(prefix)
	hash := hex.EncodeToString(sum[:])

	sig, err := signing.SignHash(kp, hash)
	if err != nil {
		return err
	}
	ev := &Event{
		Type:        EventCheckpoint,
		Timestamp:   sig.Timestamp.UTC().Format(time.RFC3339),
		Turn:        turn,
		ByteOffset:  offset,
		Hash:        hash,
		Sig:         sig.String(),
		Fingerprint: sig.Fingerprint,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append checkpoint: %w", err)
	}
	return w.f.Sync()
}

func readPrefix(path string, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read transcript prefix: %w", err)
	}
	return buf, nil
}

// Read loads every event from a transcript file.
func Read(path string) ([]*Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []*Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("malformed transcript line: %w", err)
		}
		events = append(events, &ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
