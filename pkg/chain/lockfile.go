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

package chain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/types"
	"go.uber.org/zap"
)

// LockfileVersion is the current lockfile format version.
const LockfileVersion = 1

// Lockfile pins a resolved chain by version and integrity hash.
type Lockfile struct {
	Version       int               `json:"version"`
	GeneratedAt   string            `json:"generated_at"`
	Root          string            `json:"root"`
	ResolvedChain []types.ChainLink `json:"resolved_chain"`
}

// IntegrityMismatchError reports a pinned item whose on-disk content no
// longer matches the lockfile. Hard failure; the lockfile must be
// regenerated deliberately.
type IntegrityMismatchError struct {
	ItemID   string
	Expected string
	Actual   string
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("lockfile integrity mismatch for %q: expected %s, got %s",
		e.ItemID, short(e.Expected), short(e.Actual))
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// LockfilePath returns where rootID's lockfile lives under a space base.
func LockfilePath(base, rootID string) string {
	name := strings.ReplaceAll(rootID, "/", "__") + ".lock.json"
	return filepath.Join(base, ".ai", "locks", name)
}

// WriteLockfile pins a resolved chain, writing to the project space when
// one exists, otherwise the user space.
func WriteLockfile(resolver *spaces.Resolver, rootID string, r *Resolved) (*Lockfile, error) {
	lf := &Lockfile{
		Version:       LockfileVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Root:          rootID,
		ResolvedChain: r.TypedLinks(),
	}
	_, base, err := resolver.WriteBase()
	if err != nil {
		return nil, err
	}
	path := LockfilePath(base, rootID)
	if err := fsext.WriteJSONAtomic(path, lf, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write lockfile: %w", err)
	}
	log.Debug("wrote lockfile", zap.String("root", rootID), zap.String("path", path))
	return lf, nil
}

// ReadLockfile loads rootID's lockfile, first tier wins. Returns nil
// without error when no lockfile exists.
func ReadLockfile(resolver *spaces.Resolver, rootID string) (*Lockfile, error) {
	for _, tier := range resolver.Tiers() {
		path := LockfilePath(tier.Base, rootID)
		if !fsext.Exists(path) {
			continue
		}
		var lf Lockfile
		if err := fsext.ReadJSON(path, &lf); err != nil {
			return nil, fmt.Errorf("failed to read lockfile %s: %w", path, err)
		}
		if lf.Version != LockfileVersion {
			return nil, fmt.Errorf("lockfile %s has unsupported version %d", path, lf.Version)
		}
		return &lf, nil
	}
	return nil, nil
}

// CheckLockfile verifies a freshly resolved chain against the pinned one.
// Any divergence in membership, version, or content hash is fatal. Note
// that re-signing an item changes its content hash and therefore
// invalidates the lockfile.
func CheckLockfile(lf *Lockfile, r *Resolved) error {
	pinned := make(map[string]types.ChainLink, len(lf.ResolvedChain))
	for _, l := range lf.ResolvedChain {
		pinned[l.ItemID] = l
	}
	for _, link := range r.Links {
		p, ok := pinned[link.ItemID]
		if !ok {
			return fmt.Errorf("chain link %q is not in the lockfile for %q", link.ItemID, lf.Root)
		}
		if p.Version != link.Metadata.Version {
			return fmt.Errorf("chain link %q version %s does not match pinned %s",
				link.ItemID, link.Metadata.Version, p.Version)
		}
		if p.IntegrityHash != "" && link.Loaded.Content != "" {
			actual := ContentHash(link.Loaded.Content)
			if actual != p.IntegrityHash {
				return &IntegrityMismatchError{
					ItemID:   link.ItemID,
					Expected: p.IntegrityHash,
					Actual:   actual,
				}
			}
		}
	}
	if len(r.Links) != len(lf.ResolvedChain) {
		return fmt.Errorf("resolved chain for %q has %d links, lockfile pins %d",
			lf.Root, len(r.Links), len(lf.ResolvedChain))
	}
	return nil
}

// InvalidateLockfile removes a pinned chain from every writable tier.
func InvalidateLockfile(resolver *spaces.Resolver, rootID string) error {
	for _, tier := range resolver.Tiers() {
		if !tier.Space.Mutable() {
			continue
		}
		path := LockfilePath(tier.Base, rootID)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove lockfile %s: %w", path, err)
		}
	}
	return nil
}
