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

package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// fileStore returns a store whose keyring backend always fails, forcing
// the encrypted file fallback.
func fileStore(t *testing.T) *Store {
	t.Helper()
	keyring.MockInitWithError(errors.New("no keyring in test"))
	return NewStore(filepath.Join(t.TempDir(), "auth"))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	sealed, err := seal(key, []byte("sk-ant-secret"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "sk-ant-secret")

	plain, err := open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("sk-ant-secret"), plain)
}

func TestOpen_RejectsTamperAndWrongKey(t *testing.T) {
	key := make([]byte, 32)
	other := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = rand.Read(other)
	require.NoError(t, err)

	sealed, err := seal(key, []byte("secret"))
	require.NoError(t, err)

	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-1] ^= 0xff
	_, err = open(key, tampered)
	assert.ErrorContains(t, err, "failed to decrypt")

	_, err = open(other, sealed)
	assert.ErrorContains(t, err, "failed to decrypt")

	_, err = open(key, []byte("short"))
	assert.ErrorContains(t, err, "too short")
}

func TestStore_FileFallbackRoundTrip(t *testing.T) {
	s := fileStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetToken("anthropic", &Token{AccessToken: "sk-ant-xyz"}))

	tok, err := s.GetToken(ctx, "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-xyz", tok.AccessToken)
	assert.Equal(t, "anthropic", tok.Provider)
	assert.True(t, s.IsAuthenticated(ctx, "anthropic"))

	// The on-disk file never holds the token in the clear.
	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		blob, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		require.NoError(t, err)
		assert.NotContains(t, string(blob), "sk-ant-xyz")
	}
}

func TestStore_MissingCredential(t *testing.T) {
	s := fileStore(t)
	_, err := s.GetToken(context.Background(), "openai")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.False(t, s.IsAuthenticated(context.Background(), "openai"))
}

func TestStore_ClearToken(t *testing.T) {
	s := fileStore(t)
	require.NoError(t, s.SetToken("anthropic", &Token{AccessToken: "sk"}))
	require.NoError(t, s.ClearToken("anthropic"))

	_, err := s.GetToken(context.Background(), "anthropic")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	// Clearing an absent credential is not an error.
	assert.NoError(t, s.ClearToken("anthropic"))
}

func TestStore_ExpiredWithoutRefreshConfig(t *testing.T) {
	s := fileStore(t)
	require.NoError(t, s.SetToken("anthropic", &Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	// No OAuth config for the provider, so the expired token cannot be
	// refreshed.
	_, err := s.GetToken(context.Background(), "anthropic")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorContains(t, err, "cannot refresh")
}

func TestStore_StaticKeysNeverExpire(t *testing.T) {
	s := fileStore(t)
	require.NoError(t, s.SetToken("anthropic", &Token{AccessToken: "sk-static"}))

	tok, err := s.GetToken(context.Background(), "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk-static", tok.AccessToken)
}

func TestStore_SaltPersists(t *testing.T) {
	s := fileStore(t)
	require.NoError(t, s.SetToken("anthropic", &Token{AccessToken: "sk"}))

	salt1, err := os.ReadFile(filepath.Join(s.Dir, saltFile))
	require.NoError(t, err)
	require.Len(t, salt1, 32)

	// A fresh store over the same directory derives the same key.
	s2 := NewStore(s.Dir)
	s2.useKeyring = false
	tok, err := s2.GetToken(context.Background(), "anthropic")
	require.NoError(t, err)
	assert.Equal(t, "sk", tok.AccessToken)
}
