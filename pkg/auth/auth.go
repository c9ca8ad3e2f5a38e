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

// Package auth stores provider credentials. The OS keyring is preferred;
// when unavailable the store falls back to an encrypted file whose key
// derives from the local user identity. OAuth tokens refresh on read.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/internal/log"
	"go.uber.org/zap"
)

// keyringService namespaces entries in the OS keyring.
const keyringService = "rye-auth"

// ErrNotAuthenticated reports a missing credential for a provider.
var ErrNotAuthenticated = errors.New("not authenticated")

// Token is one stored credential. Static API keys leave the OAuth fields
// empty.
type Token struct {
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// expired reports whether an OAuth token needs refreshing, with a minute
// of slack for clock skew and request latency.
func (t *Token) expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().After(t.Expiry.Add(-time.Minute))
}

// Store persists credentials per provider.
type Store struct {
	// Dir is the fallback file store, normally {USER_SPACE}/.ai/auth.
	Dir string

	// OAuth maps provider names to their refresh endpoints. Providers
	// absent here never refresh.
	OAuth map[string]*oauth2.Config

	// useKeyring is cleared after the first keyring failure so every
	// subsequent call goes straight to the file store.
	useKeyring bool
}

// NewStore creates a credential store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, OAuth: map[string]*oauth2.Config{}, useKeyring: true}
}

// SetToken stores a credential for a provider.
func (s *Store) SetToken(provider string, tok *Token) error {
	tok.Provider = provider
	blob, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if s.useKeyring {
		if err := keyring.Set(keyringService, provider, string(blob)); err == nil {
			return nil
		}
		s.useKeyring = false
		log.Debug("keyring unavailable, using encrypted file store")
	}
	return s.writeFile(provider, blob)
}

// GetToken returns a provider's credential, refreshing expired OAuth
// tokens first. A refresh failure surfaces as ErrNotAuthenticated so
// callers prompt for re-authentication rather than retrying.
func (s *Store) GetToken(ctx context.Context, provider string) (*Token, error) {
	tok, err := s.load(provider)
	if err != nil {
		return nil, err
	}
	if !tok.expired() {
		return tok, nil
	}

	cfg := s.OAuth[provider]
	if cfg == nil || tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s token expired and cannot refresh", ErrNotAuthenticated, provider)
	}
	fresh, err := cfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s refresh failed: %v", ErrNotAuthenticated, provider, err)
	}
	refreshed := &Token{
		Provider:     provider,
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		TokenType:    fresh.TokenType,
		Expiry:       fresh.Expiry,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	if err := s.SetToken(provider, refreshed); err != nil {
		log.Warn("failed to persist refreshed token", zap.String("provider", provider), zap.Error(err))
	}
	return refreshed, nil
}

// IsAuthenticated reports whether a usable credential exists.
func (s *Store) IsAuthenticated(ctx context.Context, provider string) bool {
	_, err := s.GetToken(ctx, provider)
	return err == nil
}

// ClearToken removes a provider's credential from both backends.
func (s *Store) ClearToken(provider string) error {
	if s.useKeyring {
		// Absence is fine; only a live keyring error disables it.
		if err := keyring.Delete(keyringService, provider); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			s.useKeyring = false
		}
	}
	path := s.tokenPath(provider)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func (s *Store) load(provider string) (*Token, error) {
	if s.useKeyring {
		if raw, err := keyring.Get(keyringService, provider); err == nil {
			var tok Token
			if jerr := json.Unmarshal([]byte(raw), &tok); jerr == nil {
				return &tok, nil
			}
		} else if !errors.Is(err, keyring.ErrNotFound) {
			s.useKeyring = false
		}
	}
	blob, err := s.readFile(provider)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no credential for %s", ErrNotAuthenticated, provider)
		}
		return nil, err
	}
	var tok Token
	if err := json.Unmarshal(blob, &tok); err != nil {
		return nil, fmt.Errorf("corrupt token file for %s: %w", provider, err)
	}
	return &tok, nil
}

// tokenPath names the fallback file for a provider: the hex SHA-256
// prefix keeps provider names out of directory listings.
func (s *Store) tokenPath(provider string) string {
	sum := sha256.Sum256([]byte(provider))
	return filepath.Join(s.Dir, hex.EncodeToString(sum[:8])+".token")
}

func (s *Store) writeFile(provider string, plaintext []byte) error {
	if err := fsext.EnsureDir(s.Dir, 0o700); err != nil {
		return err
	}
	key, err := s.fileKey()
	if err != nil {
		return err
	}
	sealed, err := seal(key, plaintext)
	if err != nil {
		return err
	}
	return fsext.WriteFileAtomic(s.tokenPath(provider), sealed, 0o600)
}

func (s *Store) readFile(provider string) ([]byte, error) {
	sealed, err := os.ReadFile(s.tokenPath(provider))
	if err != nil {
		return nil, err
	}
	key, err := s.fileKey()
	if err != nil {
		return nil, err
	}
	return open(key, sealed)
}

// identitySeed binds the file key to the local account: the key cannot
// be derived on another machine or by another user from the files alone.
func identitySeed() string {
	login := "unknown"
	if u, err := user.Current(); err == nil {
		login = u.Username
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("%s@%s:lillux-auth", login, host)
}
