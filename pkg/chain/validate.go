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
	"strings"

	"golang.org/x/mod/semver"

	"github.com/lillux/rye/pkg/spaces"
)

// Validate checks every adjacent parent/child pair of a resolved chain:
// space delegation rules, declared version constraints, and I/O shape
// compatibility. Shape mismatches are warnings; the rest are errors.
func Validate(r *Resolved) error {
	for i := 0; i < len(r.Links)-1; i++ {
		parent, child := &r.Links[i], &r.Links[i+1]
		if err := validateSpaces(parent, child); err != nil {
			return err
		}
		if err := validateVersion(parent, child); err != nil {
			return err
		}
		r.Warnings = append(r.Warnings, checkIOShape(parent, child)...)
	}
	return nil
}

// validateSpaces enforces the delegation direction: a parent may only
// delegate to a child in the same or lower-precedence space, and a
// system tool may never delegate into a mutable space.
func validateSpaces(parent, child *Link) error {
	ps, cs := parent.Loaded.Space, child.Loaded.Space
	if ps == spaces.SpaceSystem && cs.Mutable() {
		return fmt.Errorf("system tool %q cannot delegate to %s-space tool %q",
			parent.ItemID, cs, child.ItemID)
	}
	if cs.Precedence() > ps.Precedence() {
		return fmt.Errorf("tool %q (%s space) cannot delegate to higher-precedence %s-space tool %q",
			parent.ItemID, ps, cs, child.ItemID)
	}
	return nil
}

// validateVersion applies the parent's declared child_constraints to the
// child's actual version.
func validateVersion(parent, child *Link) error {
	c, ok := parent.Metadata.ChildConstraints[child.ItemID]
	if !ok {
		return nil
	}
	v := canonical(child.Metadata.Version)
	if !semver.IsValid(v) {
		return fmt.Errorf("tool %q has invalid version %q", child.ItemID, child.Metadata.Version)
	}
	if c.MinVersion != "" && semver.Compare(v, canonical(c.MinVersion)) < 0 {
		return fmt.Errorf("tool %q version %s is below %q's minimum %s",
			child.ItemID, child.Metadata.Version, parent.ItemID, c.MinVersion)
	}
	if c.MaxVersion != "" && semver.Compare(v, canonical(c.MaxVersion)) > 0 {
		return fmt.Errorf("tool %q version %s is above %q's maximum %s",
			child.ItemID, child.Metadata.Version, parent.ItemID, c.MaxVersion)
	}
	return nil
}

// checkIOShape warns when a parent requires inputs the child does not
// produce. Declared shapes are advisory, so this never fails the chain;
// an undeclared side is compatible but still flagged.
func checkIOShape(parent, child *Link) []string {
	if len(parent.Metadata.Inputs) == 0 {
		return nil
	}
	if len(child.Metadata.Outputs) == 0 {
		return []string{fmt.Sprintf(
			"tool %q declares no outputs; inputs required by %q are unchecked",
			child.ItemID, parent.ItemID)}
	}
	produced := map[string]bool{}
	for _, out := range child.Metadata.Outputs {
		produced[out] = true
	}
	var warnings []string
	for _, in := range parent.Metadata.Inputs {
		if !produced[in] {
			warnings = append(warnings, fmt.Sprintf(
				"tool %q requires input %q that %q does not produce",
				parent.ItemID, in, child.ItemID))
		}
	}
	return warnings
}

func canonical(v string) string {
	return "v" + strings.TrimPrefix(v, "v")
}
