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

// Package chain resolves tool delegation chains down to a primitive,
// validates them against delegation and version constraints, and pins
// the result in a lockfile.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/item"
	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/types"
	"go.uber.org/zap"
)

// MaxHops bounds delegation chain depth.
const MaxHops = 10

// Link is one resolved element of a delegation chain, root first.
type Link struct {
	ItemID   string
	Metadata *item.ToolMetadata
	Loaded   *item.Loaded
}

// Resolved is a fully resolved chain. The last link is always a
// primitive.
type Resolved struct {
	Links []Link

	// Warnings carry non-fatal validation findings (I/O shape mismatches).
	Warnings []string
}

// Root returns the chain's entry tool.
func (r *Resolved) Root() *Link { return &r.Links[0] }

// Primitive returns the terminal link.
func (r *Resolved) Primitive() *Link { return &r.Links[len(r.Links)-1] }

// TypedLinks converts the chain into the wire form used in execution
// envelopes and lockfiles.
func (r *Resolved) TypedLinks() []types.ChainLink {
	out := make([]types.ChainLink, 0, len(r.Links))
	for _, l := range r.Links {
		link := types.ChainLink{
			ItemID:     l.ItemID,
			Version:    l.Metadata.Version,
			ExecutorID: l.Metadata.ExecutorID,
			Space:      string(l.Loaded.Space),
		}
		// Built-in primitives have no disk content to pin.
		if l.Loaded.Content != "" {
			link.IntegrityHash = ContentHash(l.Loaded.Content)
		}
		out = append(out, link)
	}
	return out
}

// ContentHash is the integrity hash pinned in lockfiles: hex SHA-256 of
// the raw file content, signature line included.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Resolver builds delegation chains through the item loader.
type Resolver struct {
	Loader      *item.Loader
	IsPrimitive func(id string) bool
}

// NewResolver creates a chain resolver. isPrimitive identifies built-in
// primitive ids, which terminate resolution without a disk lookup.
func NewResolver(loader *item.Loader, isPrimitive func(id string) bool) *Resolver {
	return &Resolver{Loader: loader, IsPrimitive: isPrimitive}
}

// Resolve follows executor_id references from rootID down to a
// primitive. Cycles and chains longer than MaxHops fail.
func (r *Resolver) Resolve(rootID string) (*Resolved, error) {
	var links []Link
	seen := map[string]bool{}
	id := rootID

	for hop := 0; ; hop++ {
		if hop >= MaxHops {
			return nil, fmt.Errorf("delegation chain from %q exceeds %d hops", rootID, MaxHops)
		}
		if seen[id] {
			return nil, fmt.Errorf("delegation cycle at %q (chain from %q)", id, rootID)
		}
		seen[id] = true

		meta, loaded, err := r.Loader.LoadTool(id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve chain link %q: %w", id, err)
		}
		links = append(links, Link{ItemID: id, Metadata: meta, Loaded: loaded})

		if meta.IsPrimitive() {
			break
		}
		if r.IsPrimitive != nil && r.IsPrimitive(meta.ExecutorID) {
			// Built-in primitives have fixed metadata, not disk files.
			links = append(links, Link{
				ItemID: meta.ExecutorID,
				Metadata: &item.ToolMetadata{
					Name:     meta.ExecutorID,
					Version:  "1.0.0",
					ToolType: "primitive",
				},
				Loaded: &item.Loaded{ItemID: meta.ExecutorID, Space: spaces.SpaceSystem},
			})
			break
		}
		id = meta.ExecutorID
	}

	resolved := &Resolved{Links: links}
	log.Debug("resolved delegation chain",
		zap.String("root", rootID),
		zap.Int("links", len(links)),
	)
	return resolved, nil
}
