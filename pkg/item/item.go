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

// Package item loads directives, tools, and knowledge from the three-tier
// spaces, verifying signatures on read.
package item

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lillux/rye/pkg/directive"
	"github.com/lillux/rye/pkg/signing"
	"github.com/lillux/rye/pkg/spaces"
	"github.com/lillux/rye/pkg/trust"
)

// VersionConstraint bounds an allowed child version range.
type VersionConstraint struct {
	MinVersion string `yaml:"min_version,omitempty" json:"min_version,omitempty"`
	MaxVersion string `yaml:"max_version,omitempty" json:"max_version,omitempty"`
}

// ToolMetadata describes one tool's delegation and I/O contract.
type ToolMetadata struct {
	Name       string `yaml:"name" json:"name"`
	Version    string `yaml:"version" json:"version"`
	ToolType   string `yaml:"tool_type" json:"tool_type"`
	Category   string `yaml:"category,omitempty" json:"category,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// ExecutorID names the tool this tool delegates to; empty for
	// primitives, which terminate every chain.
	ExecutorID string `yaml:"executor_id,omitempty" json:"executor_id,omitempty"`

	Inputs  []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// ChildConstraints maps child tool ids to allowed version ranges.
	ChildConstraints map[string]VersionConstraint `yaml:"child_constraints,omitempty" json:"child_constraints,omitempty"`

	// EnvConfig holds the tool's environment configuration, merged
	// recursively down the chain by the executor.
	EnvConfig map[string]interface{} `yaml:"env_config,omitempty" json:"env_config,omitempty"`

	// Primitive configuration passed through to the root primitive.
	Config map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// IsPrimitive reports whether this tool terminates a chain.
func (m *ToolMetadata) IsPrimitive() bool {
	return m.ExecutorID == ""
}

// Loaded is one item read from disk with its verification outcome.
type Loaded struct {
	ItemID  string
	Type    spaces.ItemType
	Space   spaces.Space
	Path    string
	Content string

	// Body is Content with any signature line stripped.
	Body string

	Verification trust.Result
}

// Loader reads items through the space resolver, verifying signatures
// against the trust store.
type Loader struct {
	Resolver *spaces.Resolver
	Verifier *trust.Verifier

	// RequireSigned rejects unsigned items when true. Signed-but-invalid
	// items are always rejected.
	RequireSigned bool
}

// NewLoader creates an item loader.
func NewLoader(resolver *spaces.Resolver, verifier *trust.Verifier) *Loader {
	return &Loader{Resolver: resolver, Verifier: verifier}
}

// Load reads an item by id, first tier match wins. Signature failures
// other than "unsigned" always return an IntegrityError.
func (l *Loader) Load(itemType spaces.ItemType, itemID string) (*Loaded, error) {
	loc := l.Resolver.Find(itemType, itemID, ".md")
	if loc == nil {
		return nil, fmt.Errorf("%s %q not found in any space", itemType, itemID)
	}
	data, err := os.ReadFile(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", loc.Path, err)
	}
	content := string(data)
	format := signing.DetectFormat(loc.Path)

	res := l.Verifier.Verify(format, content)
	if !res.Valid {
		unsignedOnly := len(res.Issues) == 1 && res.Issues[0] == trust.IssueUnsigned
		if !unsignedOnly || l.RequireSigned {
			return nil, &trust.IntegrityError{Result: res}
		}
	}

	_, body, _ := signing.ExtractSignature(format, content)
	return &Loaded{
		ItemID:       itemID,
		Type:         itemType,
		Space:        loc.Space,
		Path:         loc.Path,
		Content:      content,
		Body:         body,
		Verification: res,
	}, nil
}

// LoadTool reads and parses tool metadata (the YAML frontmatter of a tool
// document).
func (l *Loader) LoadTool(itemID string) (*ToolMetadata, *Loaded, error) {
	loaded, err := l.Load(spaces.ItemTool, itemID)
	if err != nil {
		return nil, nil, err
	}
	meta, err := ParseToolDocument(loaded.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("tool %q: %w", itemID, err)
	}
	return meta, loaded, nil
}

// LoadDirective reads, parses, and validates a directive, resolving its
// extends chain leaf→root. Cycles are rejected.
func (l *Loader) LoadDirective(itemID string) (*directive.Directive, *Loaded, error) {
	return l.loadDirectiveVisited(itemID, map[string]bool{})
}

func (l *Loader) loadDirectiveVisited(itemID string, visited map[string]bool) (*directive.Directive, *Loaded, error) {
	if visited[itemID] {
		return nil, nil, fmt.Errorf("Circular extends chain at %q", itemID)
	}
	visited[itemID] = true

	loaded, err := l.Load(spaces.ItemDirective, itemID)
	if err != nil {
		return nil, nil, err
	}
	d, err := directive.ParseDocument(loaded.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("directive %q: %w", itemID, err)
	}
	if err := d.Validate(itemID); err != nil {
		return nil, nil, err
	}

	if d.Extends != "" {
		base, _, err := l.loadDirectiveVisited(d.Extends, visited)
		if err != nil {
			return nil, nil, err
		}
		d = mergeDirectives(base, d)
	}
	return d, loaded, nil
}

// mergeDirectives overlays child fields onto a base directive. Lists
// concatenate base-first; scalars prefer the child.
func mergeDirectives(base, child *directive.Directive) *directive.Directive {
	out := *child
	if out.Model == nil {
		out.Model = base.Model
	}
	if out.Limits == nil {
		out.Limits = base.Limits
	}
	if out.Context == nil {
		out.Context = base.Context
	}
	out.Permissions = append(append([]string{}, base.Permissions...), child.Permissions...)
	out.Hooks = append(append([]directive.Hook{}, base.Hooks...), child.Hooks...)
	out.Inputs = append(append([]directive.InputDef{}, base.Inputs...), child.Inputs...)
	out.Outputs = append(append([]directive.OutputDef{}, base.Outputs...), child.Outputs...)
	out.Actions = append(append([]directive.Action{}, base.Actions...), child.Actions...)
	if out.Body == "" {
		out.Body = base.Body
	}
	return &out
}

// ParseToolDocument parses the YAML frontmatter of a tool document into
// metadata.
func ParseToolDocument(body string) (*ToolMetadata, error) {
	meta, _ := splitFrontmatter(body)
	if meta == "" {
		// The whole document may be bare YAML metadata.
		meta = body
	}
	var m ToolMetadata
	if err := yaml.Unmarshal([]byte(meta), &m); err != nil {
		return nil, fmt.Errorf("failed to parse tool metadata: %w", err)
	}
	if m.Version == "" {
		return nil, fmt.Errorf("tool metadata missing version")
	}
	if m.ToolType == "" {
		return nil, fmt.Errorf("tool metadata missing tool_type")
	}
	return &m, nil
}

func splitFrontmatter(content string) (string, string) {
	trimmed := strings.TrimLeft(content, "\n")
	if !strings.HasPrefix(trimmed, "---\n") {
		return "", content
	}
	rest := trimmed[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content
	}
	body := rest[end+4:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	return rest[:end], body
}
