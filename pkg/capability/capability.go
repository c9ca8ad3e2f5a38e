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

// Package capability implements the capability grammar
// rye.<primary>.<item_type>.<dotted_item_id>, glob matching, structural
// implication, and parent/child attenuation.
package capability

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Primary is one of the four universal operations on items.
type Primary string

const (
	PrimaryExecute Primary = "execute"
	PrimarySearch  Primary = "search"
	PrimaryLoad    Primary = "load"
	PrimarySign    Primary = "sign"
)

var primaries = map[string]bool{
	"execute": true, "search": true, "load": true, "sign": true, "*": true,
}

var itemTypes = map[string]bool{
	"tool": true, "directive": true, "knowledge": true, "*": true,
}

// Cap is one parsed capability string.
type Cap struct {
	Primary  string
	ItemType string
	ItemID   string // dotted form, may be empty or contain wildcards
}

// String renders the canonical dotted form.
func (c Cap) String() string {
	s := "rye." + c.Primary
	if c.ItemType != "" {
		s += "." + c.ItemType
	}
	if c.ItemID != "" {
		s += "." + c.ItemID
	}
	return s
}

// Parse validates a capability string against the grammar. Segments may be
// "*"; a trailing wildcard may stand for the whole remainder.
func Parse(raw string) (Cap, error) {
	parts := strings.SplitN(raw, ".", 4)
	if len(parts) < 2 || parts[0] != "rye" {
		return Cap{}, fmt.Errorf("invalid capability %q: must start with rye.<primary>", raw)
	}
	c := Cap{Primary: parts[1]}
	if !primaries[c.Primary] {
		return Cap{}, fmt.Errorf("invalid capability %q: unknown primary %q", raw, c.Primary)
	}
	if len(parts) > 2 {
		c.ItemType = parts[2]
		if !itemTypes[c.ItemType] {
			return Cap{}, fmt.Errorf("invalid capability %q: unknown item type %q", raw, c.ItemType)
		}
	}
	if len(parts) > 3 {
		c.ItemID = parts[3]
		if c.ItemID == "" {
			return Cap{}, fmt.Errorf("invalid capability %q: empty item id", raw)
		}
	}
	return c, nil
}

// ParseAll parses a permission list, failing on the first invalid entry.
func ParseAll(raw []string) ([]Cap, error) {
	caps := make([]Cap, 0, len(raw))
	for _, r := range raw {
		c, err := Parse(r)
		if err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// Match reports whether name satisfies pattern under fnmatch glob
// semantics on the dotted form. Dotted capability strings contain no path
// separator, so path.Match's '*' spans arbitrary segments.
func Match(name, pattern string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// Expand applies structural implication: execute implies search and load
// over the same scope; sign implies load.
func Expand(caps []Cap) []Cap {
	out := make([]Cap, 0, len(caps)*2)
	seen := make(map[string]bool)
	add := func(c Cap) {
		k := c.String()
		if !seen[k] {
			seen[k] = true
			out = append(out, c)
		}
	}
	for _, c := range caps {
		add(c)
		switch c.Primary {
		case string(PrimaryExecute), "*":
			add(Cap{Primary: string(PrimarySearch), ItemType: c.ItemType, ItemID: c.ItemID})
			add(Cap{Primary: string(PrimaryLoad), ItemType: c.ItemType, ItemID: c.ItemID})
		case string(PrimarySign):
			add(Cap{Primary: string(PrimaryLoad), ItemType: c.ItemType, ItemID: c.ItemID})
		}
	}
	return out
}

// patternFor renders a capability as a match pattern; missing trailing
// segments widen to a wildcard so "rye.execute.tool" covers deeper ids.
func patternFor(c Cap) string {
	s := "rye." + c.Primary
	if c.ItemType == "" {
		return widen(s)
	}
	s += "." + c.ItemType
	if c.ItemID == "" {
		return widen(s)
	}
	return s + "." + c.ItemID
}

// widen appends a trailing wildcard unless the pattern already ends in
// one: a wildcard tail stands for the whole remainder, and doubling it
// would demand a segment the required string may not have.
func widen(s string) string {
	if strings.HasSuffix(s, ".*") {
		return s
	}
	return s + ".*"
}

// Check reports whether the expanded capability set satisfies the required
// capability string.
func Check(caps []Cap, required string) bool {
	for _, c := range Expand(caps) {
		if Match(required, patternFor(c)) {
			return true
		}
	}
	return false
}

// Required builds the capability string a dispatch must hold.
// search has no item id and is checked as rye.search.<item_type>.
func Required(primary Primary, itemType, itemID string) string {
	if primary == PrimarySearch || itemID == "" {
		return fmt.Sprintf("rye.%s.%s", primary, itemType)
	}
	return fmt.Sprintf("rye.%s.%s.%s", primary, itemType, dotted(itemID))
}

// dotted converts a path-form item id (a/b/c) to dotted form (a.b.c).
func dotted(itemID string) string {
	return strings.ReplaceAll(itemID, "/", ".")
}

// Attenuate derives the child's operative capability set: child caps
// covered by a parent cap are kept; child caps wider than a parent cap
// narrow to the parent's scope; everything else drops. Never widens.
func Attenuate(parent, child []Cap) []Cap {
	var out []Cap
	seen := make(map[string]bool)
	add := func(c Cap) {
		k := c.String()
		if !seen[k] {
			seen[k] = true
			out = append(out, c)
		}
	}
	for _, c := range child {
		cs := c.String()
		for _, p := range parent {
			ps := p.String()
			if Match(cs, patternFor(p)) {
				// Parent covers child: keep the narrower child cap.
				add(c)
				break
			}
			if Match(ps, patternFor(c)) {
				// Child is wider: narrow to the parent's scope.
				add(p)
				break
			}
		}
	}
	return out
}

// Intersect returns the narrowing intersection of two sets (attenuation in
// both directions, deduplicated). Used for associativity of derivation.
func Intersect(a, b []Cap) []Cap {
	return Attenuate(a, b)
}

// Strings renders a capability set sorted, for canonical serialization.
func Strings(caps []Cap) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = c.String()
	}
	sort.Strings(out)
	return out
}
