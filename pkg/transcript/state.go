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

package transcript

import (
	"os"
	"path/filepath"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/pkg/types"
)

// StateFileName is the resumable state snapshot inside a thread directory.
const StateFileName = "state.json"

// State is the resumable snapshot of a running thread: everything a
// continuation needs beyond the transcript itself.
type State struct {
	ThreadID    string                 `json:"thread_id"`
	DirectiveID string                 `json:"directive_id"`
	Status      types.ThreadStatus     `json:"status"`
	Turn        int                    `json:"turn"`
	Messages    []types.Message        `json:"messages"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Cost        types.Cost             `json:"cost"`
	Awaiting    *types.Awaiting        `json:"awaiting,omitempty"`
}

// SaveState atomically persists a thread's state snapshot.
func SaveState(threadDir string, st *State) error {
	return fsext.WriteJSONAtomic(filepath.Join(threadDir, StateFileName), st, 0o644)
}

// LoadState reads a thread's state snapshot. Returns nil without error
// when no snapshot exists yet.
func LoadState(threadDir string) (*State, error) {
	path := filepath.Join(threadDir, StateFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	var st State
	if err := fsext.ReadJSON(path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
