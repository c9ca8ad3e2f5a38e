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

package spaces

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeItem(t *testing.T, base string, itemType ItemType, id, content string) string {
	t.Helper()
	p := filepath.Join(TypeDir(base, itemType), filepath.FromSlash(id)+".md")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPrecedence(t *testing.T) {
	assert.Greater(t, SpaceProject.Precedence(), SpaceUser.Precedence())
	assert.Greater(t, SpaceUser.Precedence(), SpaceSystem.Precedence())
}

func TestMutable(t *testing.T) {
	assert.True(t, SpaceProject.Mutable())
	assert.True(t, SpaceUser.Mutable())
	assert.False(t, SpaceSystem.Mutable())
}

func TestNewResolver_UserSpaceEnv(t *testing.T) {
	t.Setenv("USER_SPACE", "/custom/user")
	r := NewResolver("/proj")
	assert.Equal(t, "/custom/user", r.UserPath)
}

func TestTiers_Order(t *testing.T) {
	r := &Resolver{ProjectPath: "/p", UserPath: "/u", SystemBundles: []string{"/s1", "/s2"}}
	tiers := r.Tiers()
	require.Len(t, tiers, 4)
	assert.Equal(t, SpaceProject, tiers[0].Space)
	assert.Equal(t, SpaceUser, tiers[1].Space)
	assert.Equal(t, "/s1", tiers[2].Base)
	assert.Equal(t, "/s2", tiers[3].Base)
}

func TestFind_FirstTierWins(t *testing.T) {
	proj := t.TempDir()
	user := t.TempDir()
	r := &Resolver{ProjectPath: proj, UserPath: user}

	userPath := writeItem(t, user, ItemTool, "web/fetch", "user copy")
	loc := r.Find(ItemTool, "web/fetch")
	require.NotNil(t, loc)
	assert.Equal(t, SpaceUser, loc.Space)
	assert.Equal(t, userPath, loc.Path)

	// A project copy shadows the user copy.
	projPath := writeItem(t, proj, ItemTool, "web/fetch", "project copy")
	loc = r.Find(ItemTool, "web/fetch")
	require.NotNil(t, loc)
	assert.Equal(t, SpaceProject, loc.Space)
	assert.Equal(t, projPath, loc.Path)
}

func TestFind_Missing(t *testing.T) {
	r := &Resolver{ProjectPath: t.TempDir()}
	assert.Nil(t, r.Find(ItemDirective, "nope"))
}

func TestWriteBase(t *testing.T) {
	r := &Resolver{ProjectPath: "/p", UserPath: "/u"}
	sp, base, err := r.WriteBase()
	require.NoError(t, err)
	assert.Equal(t, SpaceProject, sp)
	assert.Equal(t, "/p", base)

	r = &Resolver{UserPath: "/u"}
	sp, base, err = r.WriteBase()
	require.NoError(t, err)
	assert.Equal(t, SpaceUser, sp)
	assert.Equal(t, "/u", base)

	r = &Resolver{}
	_, _, err = r.WriteBase()
	assert.Error(t, err)
}

func TestThreadsDir(t *testing.T) {
	r := &Resolver{ProjectPath: "/p"}
	assert.Equal(t, filepath.Join("/p", ".ai", "agent", "threads"), r.ThreadsDir())
}

func TestTrustedKeysDirs(t *testing.T) {
	r := &Resolver{ProjectPath: "/p", SystemBundles: []string{"/s"}}
	dirs := r.TrustedKeysDirs()
	require.Len(t, dirs, 2)
	assert.Equal(t, filepath.Join("/p", ".ai", "trusted_keys"), dirs[0])
	assert.Equal(t, filepath.Join("/s", ".ai", "trusted_keys"), dirs[1])
}
