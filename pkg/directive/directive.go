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

// Package directive defines the parsed directive data model and its
// load-time invariants. The markdown/XML parser is an external
// collaborator; this package specifies the structure it must produce and
// provides a frontmatter-based loader for on-disk documents.
package directive

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/lillux/rye/pkg/capability"
	"github.com/lillux/rye/pkg/expr"
	"github.com/lillux/rye/pkg/types"
)

// HookLayer governs hook precedence and short-circuiting.
type HookLayer int

const (
	LayerUser    HookLayer = 1
	LayerBuiltin HookLayer = 2
	LayerInfra   HookLayer = 3
)

// Hook is one declarative event listener. A hook runs under the declaring
// directive's attenuated capabilities, never its parent's.
type Hook struct {
	Event     string                   `yaml:"event" json:"event"`
	Condition string                   `yaml:"condition,omitempty" json:"condition,omitempty"`
	Action    map[string]interface{}   `yaml:"action,omitempty" json:"action,omitempty"`
	Actions   []map[string]interface{} `yaml:"actions,omitempty" json:"actions,omitempty"`
	Directive string                   `yaml:"directive,omitempty" json:"directive,omitempty"`
	Layer     HookLayer                `yaml:"layer,omitempty" json:"layer,omitempty"`
	Position  string                   `yaml:"position,omitempty" json:"position,omitempty"` // before | after
}

// ModelSpec selects the model tier with optional explicit id and provider.
type ModelSpec struct {
	Tier     string `yaml:"tier,omitempty" json:"tier,omitempty"`
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// InputDef is one typed directive input.
type InputDef struct {
	Name     string      `yaml:"name" json:"name"`
	Type     string      `yaml:"type,omitempty" json:"type,omitempty"`
	Required bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default  interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// OutputDef is one typed directive output.
type OutputDef struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
}

// Risk is one acknowledged risk/reason pair.
type Risk struct {
	Risk   string `yaml:"risk" json:"risk"`
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// ContextBlock maps injection positions to knowledge item ids.
type ContextBlock struct {
	System   []string `yaml:"system,omitempty" json:"system,omitempty"`
	Before   []string `yaml:"before,omitempty" json:"before,omitempty"`
	After    []string `yaml:"after,omitempty" json:"after,omitempty"`
	Suppress []string `yaml:"suppress,omitempty" json:"suppress,omitempty"`
}

// Action is one tool-call template extracted from the directive prose.
type Action struct {
	Tool   string                 `yaml:"tool" json:"tool"`
	Params map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// Directive is the parsed form of a directive file.
type Directive struct {
	Name              string        `yaml:"name" json:"name"`
	Version           string        `yaml:"version,omitempty" json:"version,omitempty"`
	Description       string        `yaml:"description,omitempty" json:"description,omitempty"`
	Category          string        `yaml:"category,omitempty" json:"category,omitempty"`
	Model             *ModelSpec    `yaml:"model,omitempty" json:"model,omitempty"`
	Limits            *types.Limits `yaml:"limits,omitempty" json:"limits,omitempty"`
	Permissions       []string      `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	AcknowledgedRisks []Risk        `yaml:"acknowledged_risks,omitempty" json:"acknowledged_risks,omitempty"`
	Hooks             []Hook        `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Inputs            []InputDef    `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs           []OutputDef   `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Context           *ContextBlock `yaml:"context,omitempty" json:"context,omitempty"`
	Actions           []Action      `yaml:"actions,omitempty" json:"actions,omitempty"`
	Extends           string        `yaml:"extends,omitempty" json:"extends,omitempty"`
	ThreadMode        string        `yaml:"thread_mode,omitempty" json:"thread_mode,omitempty"`

	// Body is the interpolable free-form prompt following the metadata.
	Body string `yaml:"-" json:"body,omitempty"`
}

// Validate enforces the load-time invariants. itemID is the directive's
// three-tier id (category path + name, slash-separated); empty skips the
// filename checks.
func (d *Directive) Validate(itemID string) error {
	if d.Name == "" {
		return fmt.Errorf("directive has no name")
	}
	if itemID != "" {
		base := path.Base(itemID)
		if base != d.Name {
			return fmt.Errorf("directive name %q does not match filename %q", d.Name, base)
		}
		dir := path.Dir(itemID)
		if dir == "." {
			dir = ""
		}
		if d.Category != "" && d.Category != dir {
			return fmt.Errorf("directive category %q does not match directory %q", d.Category, dir)
		}
	}
	if d.Version != "" && !semver.IsValid("v"+strings.TrimPrefix(d.Version, "v")) {
		return fmt.Errorf("directive %s: invalid version %q", d.Name, d.Version)
	}
	if _, err := capability.ParseAll(d.Permissions); err != nil {
		return fmt.Errorf("directive %s: %w", d.Name, err)
	}
	for i, h := range d.Hooks {
		if h.Event == "" {
			return fmt.Errorf("directive %s: hook %d has no event selector", d.Name, i)
		}
		if h.Action == nil && len(h.Actions) == 0 && h.Directive == "" {
			return fmt.Errorf("directive %s: hook %d (%s) has neither an action nor a directive", d.Name, i, h.Event)
		}
		if h.Condition != "" {
			if _, err := expr.Parse(h.Condition); err != nil {
				return fmt.Errorf("directive %s: hook %d: %w", d.Name, i, err)
			}
		}
	}
	return nil
}

// ApplyInputDefaults fills absent optional inputs from their declared
// defaults and rejects missing required inputs.
func (d *Directive) ApplyInputDefaults(inputs map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	for _, def := range d.Inputs {
		if _, ok := out[def.Name]; ok {
			continue
		}
		if def.Default != nil {
			out[def.Name] = def.Default
			continue
		}
		if def.Required {
			return nil, fmt.Errorf("directive %s: missing required input %q", d.Name, def.Name)
		}
	}
	return out, nil
}

// ParseDocument splits a directive document into metadata and body. The
// metadata is the leading "---" delimited YAML frontmatter the external
// markdown/XML parser distills the directive spec into.
func ParseDocument(content string) (*Directive, error) {
	meta, body := splitFrontmatter(content)
	var d Directive
	if meta != "" {
		if err := yaml.Unmarshal([]byte(meta), &d); err != nil {
			return nil, fmt.Errorf("failed to parse directive metadata: %w", err)
		}
	}
	d.Body = strings.TrimSpace(body)
	return &d, nil
}

func splitFrontmatter(content string) (string, string) {
	trimmed := strings.TrimLeft(content, "\n")
	// A signature comment line may precede the frontmatter.
	if strings.HasPrefix(trimmed, "<!--") {
		if i := strings.Index(trimmed, "\n"); i >= 0 {
			trimmed = strings.TrimLeft(trimmed[i+1:], "\n")
		}
	}
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
	} else {
		body = ""
	}
	return rest[:end], body
}
