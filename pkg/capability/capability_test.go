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

package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		raw  string
		want Cap
	}{
		{"rye.execute", Cap{Primary: "execute"}},
		{"rye.execute.tool", Cap{Primary: "execute", ItemType: "tool"}},
		{"rye.execute.tool.web.fetch", Cap{Primary: "execute", ItemType: "tool", ItemID: "web.fetch"}},
		{"rye.load.knowledge.*", Cap{Primary: "load", ItemType: "knowledge", ItemID: "*"}},
		{"rye.*.*", Cap{Primary: "*", ItemType: "*"}},
		{"rye.sign.directive.ops.deploy", Cap{Primary: "sign", ItemType: "directive", ItemID: "ops.deploy"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			c, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"rye",
		"execute.tool",
		"rye.delete.tool",
		"rye.execute.bundle",
		"acme.execute.tool",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			assert.Error(t, err)
		})
	}
}

func TestMatch_GlobSemantics(t *testing.T) {
	assert.True(t, Match("rye.execute.tool.web.fetch", "rye.execute.tool.*"))
	assert.True(t, Match("rye.execute.tool.web.fetch", "rye.execute.tool.web.*"))
	assert.True(t, Match("rye.execute.tool.web.fetch", "rye.*"))
	assert.False(t, Match("rye.execute.tool.web.fetch", "rye.load.*"))
	assert.False(t, Match("rye.execute.tool.web.fetch", "rye.execute.tool.db.*"))
}

func TestExpand_ExecuteImpliesSearchAndLoad(t *testing.T) {
	caps, err := ParseAll([]string{"rye.execute.tool.web.fetch"})
	require.NoError(t, err)

	got := Strings(Expand(caps))
	assert.Contains(t, got, "rye.execute.tool.web.fetch")
	assert.Contains(t, got, "rye.search.tool.web.fetch")
	assert.Contains(t, got, "rye.load.tool.web.fetch")
	assert.NotContains(t, got, "rye.sign.tool.web.fetch")
}

func TestExpand_SignImpliesLoad(t *testing.T) {
	caps, err := ParseAll([]string{"rye.sign.directive.deploy"})
	require.NoError(t, err)

	got := Strings(Expand(caps))
	assert.Contains(t, got, "rye.load.directive.deploy")
	assert.NotContains(t, got, "rye.execute.directive.deploy")
	assert.NotContains(t, got, "rye.search.directive.deploy")
}

func TestCheck(t *testing.T) {
	caps, err := ParseAll([]string{"rye.execute.tool.web.*", "rye.load.knowledge.*"})
	require.NoError(t, err)

	assert.True(t, Check(caps, "rye.execute.tool.web.fetch"))
	assert.True(t, Check(caps, "rye.load.tool.web.fetch"), "execute implies load")
	assert.True(t, Check(caps, "rye.load.knowledge.style.go"))
	assert.False(t, Check(caps, "rye.execute.tool.db.query"))
	assert.False(t, Check(caps, "rye.sign.tool.web.fetch"))
}

func TestCheck_WidensMissingSegments(t *testing.T) {
	caps, err := ParseAll([]string{"rye.execute.tool"})
	require.NoError(t, err)
	assert.True(t, Check(caps, "rye.execute.tool.anything.below"))

	caps, err = ParseAll([]string{"rye.execute"})
	require.NoError(t, err)
	assert.True(t, Check(caps, "rye.execute.tool.anything"))
}

func TestCheck_WildcardTailCoversSearch(t *testing.T) {
	caps, err := ParseAll([]string{"rye.search.*"})
	require.NoError(t, err)
	assert.True(t, Check(caps, "rye.search.tool"))
	assert.True(t, Check(caps, "rye.search.directive"))

	// A type-wildcard execute grant reaches the 3-segment search form
	// through structural implication.
	caps, err = ParseAll([]string{"rye.execute.*"})
	require.NoError(t, err)
	assert.True(t, Check(caps, "rye.search.tool"))
	assert.True(t, Check(caps, "rye.execute.tool.web.fetch"))
	assert.True(t, Check(caps, "rye.load.knowledge.style.go"))
	assert.False(t, Check(caps, "rye.sign.tool.web.fetch"))
}

func TestRequired(t *testing.T) {
	assert.Equal(t, "rye.execute.tool.web.fetch", Required(PrimaryExecute, "tool", "web/fetch"))
	assert.Equal(t, "rye.search.tool", Required(PrimarySearch, "tool", "ignored"))
	assert.Equal(t, "rye.load.knowledge", Required(PrimaryLoad, "knowledge", ""))
}

func TestAttenuate_NeverWidens(t *testing.T) {
	parent, err := ParseAll([]string{"rye.execute.tool.web.*"})
	require.NoError(t, err)

	// Narrower child survives.
	child, err := ParseAll([]string{"rye.execute.tool.web.fetch"})
	require.NoError(t, err)
	got := Strings(Attenuate(parent, child))
	assert.Equal(t, []string{"rye.execute.tool.web.fetch"}, got)

	// Wider child narrows to the parent scope.
	child, err = ParseAll([]string{"rye.execute.tool.*"})
	require.NoError(t, err)
	got = Strings(Attenuate(parent, child))
	assert.Equal(t, []string{"rye.execute.tool.web.*"}, got)

	// Disjoint child drops.
	child, err = ParseAll([]string{"rye.execute.tool.db.query"})
	require.NoError(t, err)
	assert.Empty(t, Attenuate(parent, child))
}

func TestAttenuate_Dedup(t *testing.T) {
	parent, err := ParseAll([]string{"rye.execute.tool.web.*", "rye.load.knowledge.*"})
	require.NoError(t, err)
	child, err := ParseAll([]string{"rye.execute.tool.web.fetch", "rye.execute.tool.web.fetch"})
	require.NoError(t, err)

	got := Attenuate(parent, child)
	assert.Len(t, got, 1)
}
