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

// Package channel implements multi-thread conversations: several member
// threads share one merged transcript, with turn-taking governed by the
// channel policy.
package channel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/pkg/transcript"
)

// Policy governs who may write next.
type Policy string

const (
	// PolicyRoundRobin rotates write permission through members in
	// join order.
	PolicyRoundRobin Policy = "round_robin"

	// PolicyOnDemand lets any member write at any time.
	PolicyOnDemand Policy = "on_demand"
)

const (
	stateFile = "channel.json"

	// lockStaleAfter bounds how long a crashed writer can wedge the
	// channel.
	lockStaleAfter = 30 * time.Second
)

// State is the persistent channel record.
type State struct {
	ChannelID   string   `json:"channel_id"`
	Policy      Policy   `json:"policy"`
	Members     []string `json:"members"`
	CurrentTurn int      `json:"current_turn"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Channel is a handle on one channel directory.
type Channel struct {
	Dir string
}

// Create initializes a channel directory.
func Create(dir, channelID string, policy Policy, members []string) (*Channel, error) {
	if policy != PolicyRoundRobin && policy != PolicyOnDemand {
		return nil, fmt.Errorf("unknown channel policy %q", policy)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("channel needs at least one member")
	}
	if err := fsext.EnsureDir(dir, 0o755); err != nil {
		return nil, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	st := &State{
		ChannelID: channelID,
		Policy:    policy,
		Members:   members,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := fsext.WriteJSONAtomic(filepath.Join(dir, stateFile), st, 0o644); err != nil {
		return nil, err
	}
	return &Channel{Dir: dir}, nil
}

// Open attaches to an existing channel directory.
func Open(dir string) (*Channel, error) {
	if !fsext.Exists(filepath.Join(dir, stateFile)) {
		return nil, fmt.Errorf("no channel at %s", dir)
	}
	return &Channel{Dir: dir}, nil
}

// State reads the current channel state.
func (c *Channel) State() (*State, error) {
	var st State
	if err := fsext.ReadJSON(filepath.Join(c.Dir, stateFile), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CanWrite reports whether threadID may post now.
func (c *Channel) CanWrite(threadID string) (bool, error) {
	st, err := c.State()
	if err != nil {
		return false, err
	}
	idx := memberIndex(st, threadID)
	if idx < 0 {
		return false, nil
	}
	if st.Policy == PolicyOnDemand {
		return true, nil
	}
	return idx == st.CurrentTurn%len(st.Members), nil
}

// Post appends a message to the merged transcript, enforcing the write
// policy, and advances the turn under round robin. The whole operation
// holds the channel lock so concurrent posters serialize.
func (c *Channel) Post(threadID, role, content string) error {
	unlock, err := c.lock()
	if err != nil {
		return err
	}
	defer unlock()

	st, err := c.State()
	if err != nil {
		return err
	}
	idx := memberIndex(st, threadID)
	if idx < 0 {
		return fmt.Errorf("thread %s is not a member of channel %s", threadID, st.ChannelID)
	}
	if st.Policy == PolicyRoundRobin && idx != st.CurrentTurn%len(st.Members) {
		return fmt.Errorf("thread %s posted out of turn in channel %s", threadID, st.ChannelID)
	}

	w, err := transcript.NewWriter(c.Dir)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Record(transcript.EventUserMessage, st.CurrentTurn, map[string]interface{}{
		"thread_id": threadID,
		"role":      role,
		"content":   content,
	}); err != nil {
		return err
	}

	if st.Policy == PolicyRoundRobin {
		st.CurrentTurn++
	}
	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return fsext.WriteJSONAtomic(filepath.Join(c.Dir, stateFile), st, 0o644)
}

// Messages reads the merged transcript.
func (c *Channel) Messages() ([]*transcript.Event, error) {
	path := filepath.Join(c.Dir, transcript.FileName)
	if !fsext.Exists(path) {
		return nil, nil
	}
	return transcript.Read(path)
}

// NextWriter returns the member whose turn it is, or "" under on_demand.
func (c *Channel) NextWriter() (string, error) {
	st, err := c.State()
	if err != nil {
		return "", err
	}
	if st.Policy != PolicyRoundRobin {
		return "", nil
	}
	return st.Members[st.CurrentTurn%len(st.Members)], nil
}

func memberIndex(st *State, threadID string) int {
	for i, m := range st.Members {
		if m == threadID {
			return i
		}
	}
	return -1
}

// lock takes the channel's advisory lock via exclusive file creation.
// Stale locks from crashed writers are broken after a grace period.
func (c *Channel) lock() (func(), error) {
	path := filepath.Join(c.Dir, ".lock")
	deadline := time.Now().Add(10 * time.Second)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			blob, _ := json.Marshal(map[string]interface{}{
				"pid": os.Getpid(), "at": time.Now().UTC().Format(time.RFC3339),
			})
			f.Write(blob)
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if info, serr := os.Stat(path); serr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("failed to lock channel at %s", c.Dir)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
