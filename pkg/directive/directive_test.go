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

package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `---
name: triage
version: 1.2.0
description: Triage incoming reports
category: ops
model:
  tier: standard
limits:
  turns: 20
  spend: 2.5
permissions:
  - rye.execute.tool.web.*
  - rye.load.knowledge.*
inputs:
  - name: report_url
    required: true
  - name: severity
    default: low
hooks:
  - event: after_step
    condition: result.status_code >= 500
    action:
      tool: ops/alert
      params:
        level: critical
---
Fetch {input:report_url} and summarize it at severity {input:severity}.
`

func TestParseDocument(t *testing.T) {
	d, err := ParseDocument(sampleDoc)
	require.NoError(t, err)

	assert.Equal(t, "triage", d.Name)
	assert.Equal(t, "1.2.0", d.Version)
	assert.Equal(t, "ops", d.Category)
	require.NotNil(t, d.Model)
	assert.Equal(t, "standard", d.Model.Tier)
	require.NotNil(t, d.Limits)
	require.NotNil(t, d.Limits.Turns)
	assert.Equal(t, 20, *d.Limits.Turns)
	require.NotNil(t, d.Limits.SpendUSD)
	assert.Equal(t, 2.5, *d.Limits.SpendUSD)
	assert.Len(t, d.Permissions, 2)
	require.Len(t, d.Hooks, 1)
	assert.Equal(t, "after_step", d.Hooks[0].Event)
	assert.Contains(t, d.Body, "Fetch {input:report_url}")
}

func TestParseDocument_NoFrontmatter(t *testing.T) {
	d, err := ParseDocument("Just a prose directive body.")
	require.NoError(t, err)
	assert.Empty(t, d.Name)
	assert.Equal(t, "Just a prose directive body.", d.Body)
}

func TestParseDocument_SignatureLinePrecedesFrontmatter(t *testing.T) {
	signed := "<!-- rye:signed:2026-01-01T00:00:00Z:aa:bb:cc -->\n" + sampleDoc
	d, err := ParseDocument(signed)
	require.NoError(t, err)
	assert.Equal(t, "triage", d.Name)
}

func TestValidate(t *testing.T) {
	d, err := ParseDocument(sampleDoc)
	require.NoError(t, err)

	require.NoError(t, d.Validate("ops/triage"))

	// Name must match the filename stem.
	assert.ErrorContains(t, d.Validate("ops/other"), "does not match filename")

	// Category must match the directory when declared.
	assert.ErrorContains(t, d.Validate("infra/triage"), "does not match directory")
}

func TestValidate_BadVersion(t *testing.T) {
	d := &Directive{Name: "x", Version: "not-semver"}
	assert.ErrorContains(t, d.Validate(""), "invalid version")
}

func TestValidate_BadPermission(t *testing.T) {
	d := &Directive{Name: "x", Permissions: []string{"rye.obliterate.tool"}}
	assert.Error(t, d.Validate(""))
}

func TestValidate_HookInvariants(t *testing.T) {
	d := &Directive{Name: "x", Hooks: []Hook{{Condition: "1 > 0"}}}
	assert.ErrorContains(t, d.Validate(""), "no event selector")

	d = &Directive{Name: "x", Hooks: []Hook{{Event: "after_step"}}}
	assert.ErrorContains(t, d.Validate(""), "neither an action nor a directive")

	// A malformed condition is rejected at load time, not at fire time.
	d = &Directive{Name: "x", Hooks: []Hook{{
		Event:     "after_step",
		Condition: "open('/etc/passwd')",
		Action:    map[string]interface{}{"tool": "t"},
	}}}
	assert.Error(t, d.Validate(""))
}

func TestApplyInputDefaults(t *testing.T) {
	d, err := ParseDocument(sampleDoc)
	require.NoError(t, err)

	got, err := d.ApplyInputDefaults(map[string]interface{}{"report_url": "https://x"})
	require.NoError(t, err)
	assert.Equal(t, "https://x", got["report_url"])
	assert.Equal(t, "low", got["severity"])

	// Explicit values win over defaults.
	got, err = d.ApplyInputDefaults(map[string]interface{}{"report_url": "https://x", "severity": "high"})
	require.NoError(t, err)
	assert.Equal(t, "high", got["severity"])

	_, err = d.ApplyInputDefaults(nil)
	assert.ErrorContains(t, err, `missing required input "report_url"`)
}
