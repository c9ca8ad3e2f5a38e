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
package main

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lillux/rye/pkg/spaces"
)

var searchType string

// searchHit is one item found during a space walk.
type searchHit struct {
	ItemID string `json:"item_id"`
	Type   string `json:"type"`
	Space  string `json:"space"`
	Path   string `json:"path"`
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search items across the project, user, and system spaces",
	Long: `Search walks all three spaces in precedence order and lists items whose
id matches the glob pattern (or contains it as a substring). An item id
shadowed by a higher-precedence space appears once, from the winning tier.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		types := []spaces.ItemType{spaces.ItemTool, spaces.ItemDirective, spaces.ItemKnowledge}
		if searchType != "" {
			types = []spaces.ItemType{spaces.ItemType(searchType)}
		}

		hits := searchSpaces(rt.Spaces, types, args[0])
		return printJSON(hits)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "", "restrict to one item type (tool, directive, knowledge)")
	rootCmd.AddCommand(searchCmd)
}

// searchSpaces walks every tier for the given types, keeping the first
// (highest-precedence) occurrence of each item id.
func searchSpaces(resolver *spaces.Resolver, types []spaces.ItemType, pattern string) []searchHit {
	seen := map[string]bool{}
	var hits []searchHit
	for _, tier := range resolver.Tiers() {
		for _, t := range types {
			dir := spaces.TypeDir(tier.Base, t)
			filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
					return nil
				}
				rel, rerr := filepath.Rel(dir, p)
				if rerr != nil {
					return nil
				}
				id := filepath.ToSlash(strings.TrimSuffix(rel, ".md"))
				if !matchItem(id, pattern) {
					return nil
				}
				key := string(t) + "/" + id
				if seen[key] {
					return nil
				}
				seen[key] = true
				hits = append(hits, searchHit{ItemID: id, Type: string(t), Space: string(tier.Space), Path: p})
				return nil
			})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Type != hits[j].Type {
			return hits[i].Type < hits[j].Type
		}
		return hits[i].ItemID < hits[j].ItemID
	})
	return hits
}

// matchItem accepts glob patterns and falls back to substring containment
// so bare words work without wildcards.
func matchItem(id, pattern string) bool {
	if ok, err := path.Match(pattern, id); err == nil && ok {
		return true
	}
	return strings.Contains(id, pattern)
}
