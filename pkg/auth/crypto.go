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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"github.com/lillux/rye/internal/fsext"
)

// pbkdf2Iterations for the file-store key derivation.
const pbkdf2Iterations = 100_000

const saltFile = ".salt"

// fileKey derives the AES-256 key for the fallback file store:
// PBKDF2-HMAC-SHA256 over the local identity seed with a per-store
// random salt persisted alongside the tokens.
func (s *Store) fileKey() ([]byte, error) {
	salt, err := s.loadOrCreateSalt()
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key([]byte(identitySeed()), salt, pbkdf2Iterations, 32, sha256.New), nil
}

func (s *Store) loadOrCreateSalt() ([]byte, error) {
	path := filepath.Join(s.Dir, saltFile)
	if salt, err := os.ReadFile(path); err == nil && len(salt) == 32 {
		return salt, nil
	}
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := fsext.EnsureDir(s.Dir, 0o700); err != nil {
		return nil, err
	}
	if err := fsext.WriteFileAtomic(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist salt: %w", err)
	}
	return salt, nil
}

// seal encrypts plaintext with AES-256-GCM; the nonce prefixes the output.
func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a sealed blob.
func open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("token file too short")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token file: %w", err)
	}
	return plaintext, nil
}
