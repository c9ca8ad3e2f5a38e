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

// Package signing implements the Ed25519 signing fabric: keypair lifecycle,
// content-hash signature lines, and canonical JSON signatures. Trust
// resolution lives in pkg/trust.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lillux/rye/internal/fsext"
	"github.com/lillux/rye/internal/log"
	"go.uber.org/zap"
)

const (
	privateKeyFile = "identity.key"
	publicKeyFile  = "identity.pub"

	// RYE_SIGNING_KEY may carry a PEM private key for import in CI or
	// serverless environments where no key directory exists.
	signingKeyEnv = "RYE_SIGNING_KEY"
)

// Keypair holds a loaded Ed25519 identity.
type Keypair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey

	// PublicPEM is the PKIX PEM encoding of the public key. Fingerprints
	// are computed over these exact bytes.
	PublicPEM []byte

	// Fingerprint is the 16-hex-char key id.
	Fingerprint string
}

// KeyStore loads and caches the process-wide keypair for an identity.
type KeyStore struct {
	// Dir is the key directory, normally {USER_SPACE}/.ai/keys.
	Dir string

	mu sync.Mutex
	kp *Keypair
}

// NewKeyStore creates a key store rooted at dir.
func NewKeyStore(dir string) *KeyStore {
	return &KeyStore{Dir: dir}
}

// Keypair returns the cached keypair, loading or generating it on first use.
// Generation order: RYE_SIGNING_KEY env import, on-disk key files, fresh
// keypair persisted with owner-only permissions.
func (ks *KeyStore) Keypair() (*Keypair, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.kp != nil {
		return ks.kp, nil
	}

	if pemData := os.Getenv(signingKeyEnv); pemData != "" {
		kp, err := keypairFromPrivatePEM([]byte(pemData))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", signingKeyEnv, err)
		}
		ks.kp = kp
		return kp, nil
	}

	privPath := filepath.Join(ks.Dir, privateKeyFile)
	if fsext.Exists(privPath) {
		data, err := os.ReadFile(privPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		kp, err := keypairFromPrivatePEM(data)
		if err != nil {
			return nil, fmt.Errorf("corrupt private key at %s: %w", privPath, err)
		}
		ks.kp = kp
		return kp, nil
	}

	kp, err := ks.generate()
	if err != nil {
		return nil, err
	}
	ks.kp = kp
	return kp, nil
}

// generate creates a fresh keypair and persists it under ks.Dir with
// owner-only permissions (0700 dir, 0600 key file).
func (ks *KeyStore) generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubPEM, err := MarshalPublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}

	if err := fsext.EnsureDir(ks.Dir, 0o700); err != nil {
		return nil, err
	}
	if err := fsext.WriteFileAtomic(filepath.Join(ks.Dir, privateKeyFile), privPEM, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist private key: %w", err)
	}
	if err := fsext.WriteFileAtomic(filepath.Join(ks.Dir, publicKeyFile), pubPEM, 0o644); err != nil {
		return nil, fmt.Errorf("failed to persist public key: %w", err)
	}

	fp := Fingerprint(pubPEM)
	log.Info("generated signing identity",
		zap.String("fingerprint", fp),
		zap.String("dir", ks.Dir),
	)

	return &Keypair{
		Private:     priv,
		Public:      pub,
		PublicPEM:   pubPEM,
		Fingerprint: fp,
	}, nil
}

func keypairFromPrivatePEM(data []byte) (*Keypair, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS8 key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an Ed25519 key")
	}
	pub := priv.Public().(ed25519.PublicKey)
	pubPEM, err := MarshalPublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}
	return &Keypair{
		Private:     priv,
		Public:      pub,
		PublicPEM:   pubPEM,
		Fingerprint: Fingerprint(pubPEM),
	}, nil
}

// MarshalPublicKeyPEM encodes an Ed25519 public key as PKIX PEM.
func MarshalPublicKeyPEM(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM decodes a PKIX PEM Ed25519 public key.
func ParsePublicKeyPEM(pemData []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an Ed25519 key")
	}
	return pub, nil
}

// Fingerprint computes the 16-hex-char key id: SHA-256 over the public key
// PEM bytes, first 8 bytes hex-encoded.
func Fingerprint(publicKeyPEM []byte) string {
	sum := sha256.Sum256(publicKeyPEM)
	return hex.EncodeToString(sum[:8])
}
