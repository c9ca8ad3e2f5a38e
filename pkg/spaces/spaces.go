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

// Package spaces implements the three-tier item lookup: project space,
// user space, then each registered system bundle. Item ids are relative
// paths under a type directory, without extension.
package spaces

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lillux/rye/internal/fsext"
)

// Space names one lookup tier.
type Space string

const (
	SpaceProject Space = "project"
	SpaceUser    Space = "user"
	SpaceSystem  Space = "system"
)

// Precedence returns the space's precedence rank; higher wins.
func (s Space) Precedence() int {
	switch s {
	case SpaceProject:
		return 3
	case SpaceUser:
		return 2
	case SpaceSystem:
		return 1
	}
	return 0
}

// Mutable reports whether items may be written into this space.
func (s Space) Mutable() bool {
	return s == SpaceProject || s == SpaceUser
}

// ItemType names a category of addressable item.
type ItemType string

const (
	ItemTool      ItemType = "tool"
	ItemDirective ItemType = "directive"
	ItemKnowledge ItemType = "knowledge"
)

// dir returns the on-disk directory name for an item type.
func (t ItemType) dir() string {
	switch t {
	case ItemTool:
		return "tools"
	case ItemDirective:
		return "directives"
	case ItemKnowledge:
		return "knowledge"
	}
	return string(t)
}

// Resolver walks the three tiers in precedence order.
type Resolver struct {
	// ProjectPath is the project root (may be empty for no project).
	ProjectPath string

	// UserPath is the user space base, normally $HOME or $USER_SPACE.
	UserPath string

	// SystemBundles are the registered immutable bundle roots, in
	// registration order.
	SystemBundles []string
}

// NewResolver builds a resolver rooted at projectPath. The user space
// honors the USER_SPACE environment variable and falls back to $HOME.
func NewResolver(projectPath string, systemBundles ...string) *Resolver {
	userPath := os.Getenv("USER_SPACE")
	if userPath == "" {
		userPath, _ = os.UserHomeDir()
	}
	return &Resolver{
		ProjectPath:   projectPath,
		UserPath:      userPath,
		SystemBundles: systemBundles,
	}
}

// Tier is one (space, base-path) pair in lookup order.
type Tier struct {
	Space Space
	Base  string
}

// Tiers returns the lookup tiers in precedence order, skipping empty bases.
func (r *Resolver) Tiers() []Tier {
	var tiers []Tier
	if r.ProjectPath != "" {
		tiers = append(tiers, Tier{SpaceProject, r.ProjectPath})
	}
	if r.UserPath != "" {
		tiers = append(tiers, Tier{SpaceUser, r.UserPath})
	}
	for _, b := range r.SystemBundles {
		tiers = append(tiers, Tier{SpaceSystem, b})
	}
	return tiers
}

// TypeDir returns the item-type directory under a tier base,
// e.g. {base}/.ai/tools.
func TypeDir(base string, itemType ItemType) string {
	return filepath.Join(base, ".ai", itemType.dir())
}

// Located is the result of a successful item lookup.
type Located struct {
	Space Space
	Base  string
	Path  string
}

// Find locates an item id with the given extensions, first match wins.
// Returns nil when the item exists in no tier.
func (r *Resolver) Find(itemType ItemType, itemID string, exts ...string) *Located {
	if len(exts) == 0 {
		exts = []string{".md"}
	}
	for _, tier := range r.Tiers() {
		dir := TypeDir(tier.Base, itemType)
		for _, ext := range exts {
			p := filepath.Join(dir, filepath.FromSlash(itemID)+ext)
			if fsext.Exists(p) {
				return &Located{Space: tier.Space, Base: tier.Base, Path: p}
			}
		}
	}
	return nil
}

// WriteBase returns the base path writes should target: the project if
// there is one, otherwise the user space. The system tier is immutable.
func (r *Resolver) WriteBase() (Space, string, error) {
	if r.ProjectPath != "" {
		return SpaceProject, r.ProjectPath, nil
	}
	if r.UserPath != "" {
		return SpaceUser, r.UserPath, nil
	}
	return "", "", fmt.Errorf("no writable space: neither project nor user space configured")
}

// ThreadsDir returns the per-project thread storage directory.
func (r *Resolver) ThreadsDir() string {
	_, base, err := r.WriteBase()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, ".ai", "agent", "threads")
}

// TrustedKeysDirs returns the trusted-key directories in lookup order.
func (r *Resolver) TrustedKeysDirs() []string {
	var dirs []string
	for _, tier := range r.Tiers() {
		dirs = append(dirs, filepath.Join(tier.Base, ".ai", "trusted_keys"))
	}
	return dirs
}
