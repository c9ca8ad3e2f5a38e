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

// Package trust implements the three-tier trust store: trusted-key TOML
// documents resolved project → user → system, first match wins, with
// trust-on-first-use pinning for registry keys.
package trust

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/signing"
	"github.com/lillux/rye/pkg/spaces"
	"go.uber.org/zap"
)

// OwnerLocal marks the auto-added local signing identity.
const OwnerLocal = "local"

// TrustedKey is one trusted-key TOML document.
type TrustedKey struct {
	Fingerprint  string `toml:"fingerprint"`
	Owner        string `toml:"owner"`
	PublicKeyPEM string `toml:"public_key_pem"`
	Attestation  string `toml:"attestation,omitempty"`
}

// Store resolves fingerprints to trusted keys across the three tiers.
type Store struct {
	resolver *spaces.Resolver
	keys     *signing.KeyStore

	mu    sync.RWMutex
	cache map[string]*TrustedKey
}

// NewStore creates a trust store over the given space resolver. keys is the
// local identity used for signing trusted-key documents on write.
func NewStore(resolver *spaces.Resolver, keys *signing.KeyStore) *Store {
	return &Store{
		resolver: resolver,
		keys:     keys,
		cache:    make(map[string]*TrustedKey),
	}
}

// Lookup finds a trusted key by fingerprint. Lookup order is project,
// user, then each registered system bundle; first match wins.
func (s *Store) Lookup(fingerprint string) (*TrustedKey, error) {
	s.mu.RLock()
	if tk, ok := s.cache[fingerprint]; ok {
		s.mu.RUnlock()
		return tk, nil
	}
	s.mu.RUnlock()

	for _, dir := range s.resolver.TrustedKeysDirs() {
		path := filepath.Join(dir, fingerprint+".toml")
		if !fsext.Exists(path) {
			continue
		}
		tk, err := s.loadKeyFile(path)
		if err != nil {
			return nil, err
		}
		if tk.Fingerprint != fingerprint {
			return nil, fmt.Errorf("trusted key file %s declares fingerprint %s", path, tk.Fingerprint)
		}
		s.mu.Lock()
		s.cache[fingerprint] = tk
		s.mu.Unlock()
		return tk, nil
	}
	return nil, nil
}

// PublicKey resolves a fingerprint to its Ed25519 public key, or nil when
// the fingerprint is not trusted.
func (s *Store) PublicKey(fingerprint string) (ed25519.PublicKey, error) {
	tk, err := s.Lookup(fingerprint)
	if err != nil || tk == nil {
		return nil, err
	}
	pub, err := signing.ParsePublicKeyPEM([]byte(tk.PublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("corrupt public key for %s: %w", fingerprint, err)
	}
	return pub, nil
}

// loadKeyFile reads and verifies one trusted-key document. The file is
// self-signed: its line-1 signature must verify against the key the file
// itself declares.
func (s *Store) loadKeyFile(path string) (*TrustedKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted key %s: %w", path, err)
	}
	content := string(data)

	sig, stripped, err := signing.ExtractSignature(signing.FormatTOML, content)
	if err != nil {
		return nil, fmt.Errorf("trusted key %s: %w", path, err)
	}

	var tk TrustedKey
	if err := toml.Unmarshal([]byte(stripped), &tk); err != nil {
		return nil, fmt.Errorf("failed to parse trusted key %s: %w", path, err)
	}

	if sig != nil {
		pub, perr := signing.ParsePublicKeyPEM([]byte(tk.PublicKeyPEM))
		if perr != nil {
			return nil, fmt.Errorf("trusted key %s: %w", path, perr)
		}
		// Self-signed documents verify against their own key; documents
		// signed by the local identity verify against it instead.
		if sig.Fingerprint == tk.Fingerprint {
			if verr := signing.VerifyContent(pub, sig, signing.FormatTOML, content); verr != nil {
				return nil, fmt.Errorf("trusted key %s: %w", path, verr)
			}
		} else if kp, kerr := s.keys.Keypair(); kerr == nil && sig.Fingerprint == kp.Fingerprint {
			if verr := signing.VerifyContent(kp.Public, sig, signing.FormatTOML, content); verr != nil {
				return nil, fmt.Errorf("trusted key %s: %w", path, verr)
			}
		}
	}
	return &tk, nil
}

// Add writes a trusted-key document to the writable space (project if
// present, else user), signed with the local identity.
func (s *Store) Add(tk *TrustedKey) error {
	if tk.Fingerprint == "" || tk.PublicKeyPEM == "" {
		return fmt.Errorf("trusted key requires fingerprint and public_key_pem")
	}
	_, base, err := s.resolver.WriteBase()
	if err != nil {
		return err
	}
	dir := filepath.Join(base, ".ai", "trusted_keys")
	if err := fsext.EnsureDir(dir, 0o755); err != nil {
		return err
	}

	body, err := toml.Marshal(tk)
	if err != nil {
		return fmt.Errorf("failed to marshal trusted key: %w", err)
	}

	kp, err := s.keys.Keypair()
	if err != nil {
		return err
	}
	sig := signing.SignContent(kp, signing.FormatTOML, string(body))
	signed, err := signing.ApplySignature(signing.FormatTOML, string(body), "", sig)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, tk.Fingerprint+".toml")
	if err := fsext.WriteFileAtomic(path, []byte(signed), 0o644); err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[tk.Fingerprint] = tk
	s.mu.Unlock()

	log.Info("added trusted key",
		zap.String("fingerprint", tk.Fingerprint),
		zap.String("owner", tk.Owner),
	)
	return nil
}

// EnsureLocalKey adds the local public key to the trust store with owner
// "local" if it is not already trusted. Called on first signing.
func (s *Store) EnsureLocalKey() error {
	kp, err := s.keys.Keypair()
	if err != nil {
		return err
	}
	existing, err := s.Lookup(kp.Fingerprint)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.Add(&TrustedKey{
		Fingerprint:  kp.Fingerprint,
		Owner:        OwnerLocal,
		PublicKeyPEM: string(kp.PublicPEM),
	})
}

// PinRegistryKey trusts a registry key on first use. The first key a
// registry presents is stored like any trusted key with owner = registry
// name; a later key with the same owner but a different fingerprint fails.
func (s *Store) PinRegistryKey(registry, fingerprint, publicKeyPEM string) error {
	existing, err := s.Lookup(fingerprint)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	// A different fingerprint already pinned for this registry is a
	// pin mismatch, not a new pin.
	pinned, err := s.findByOwner(registry)
	if err != nil {
		return err
	}
	if pinned != nil && pinned.Fingerprint != fingerprint {
		return fmt.Errorf("registry key mismatch for %s: pinned %s, presented %s",
			registry, pinned.Fingerprint, fingerprint)
	}

	return s.Add(&TrustedKey{
		Fingerprint:  fingerprint,
		Owner:        registry,
		PublicKeyPEM: publicKeyPEM,
	})
}

// findByOwner scans the trusted-key directories for any key with the given
// owner.
func (s *Store) findByOwner(owner string) (*TrustedKey, error) {
	for _, dir := range s.resolver.TrustedKeysDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
				continue
			}
			tk, err := s.loadKeyFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			if tk.Owner == owner {
				return tk, nil
			}
		}
	}
	return nil, nil
}
