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

package signing

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Marker is the signature line tag shared by every artifact format.
const Marker = "rye:signed"

// timeLayout is ISO-8601 UTC seconds.
const timeLayout = "2006-01-02T15:04:05Z"

// Signature is a parsed rye:signed value.
type Signature struct {
	Timestamp   time.Time
	ContentHash string // 64 lowercase hex chars (SHA-256)
	Sig         []byte // 64-byte Ed25519 signature
	Fingerprint string // 16 lowercase hex chars

	// Provenance is the optional "provider@username" registry claim.
	Provenance string
}

// String renders the inner signature value (without format wrapping).
func (s *Signature) String() string {
	v := fmt.Sprintf("%s:%s:%s:%s:%s",
		Marker,
		s.Timestamp.UTC().Format(timeLayout),
		s.ContentHash,
		base64.RawURLEncoding.EncodeToString(s.Sig),
		s.Fingerprint,
	)
	if s.Provenance != "" {
		v += "|" + s.Provenance
	}
	return v
}

// ParseSignature parses the inner rye:signed value. The input must start
// at the marker (format wrapping already stripped).
func ParseSignature(value string) (*Signature, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, Marker+":") {
		return nil, fmt.Errorf("not a %s value", Marker)
	}
	rest := strings.TrimPrefix(value, Marker+":")

	provenance := ""
	if i := strings.IndexByte(rest, '|'); i >= 0 {
		provenance = rest[i+1:]
		rest = rest[:i]
	}

	// Timestamp itself contains two colons; split the trailing three
	// fields off the right.
	parts := strings.Split(rest, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("malformed signature: expected ts:hash:sig:fp")
	}
	fp := parts[len(parts)-1]
	sigB64 := parts[len(parts)-2]
	hash := parts[len(parts)-3]
	ts := strings.Join(parts[:len(parts)-3], ":")

	t, err := time.Parse(timeLayout, ts)
	if err != nil {
		return nil, fmt.Errorf("malformed signature timestamp %q: %w", ts, err)
	}
	if len(hash) != 64 {
		return nil, fmt.Errorf("malformed content hash: expected 64 hex chars, got %d", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return nil, fmt.Errorf("malformed content hash: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, fmt.Errorf("malformed signature bytes: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("malformed signature bytes: expected %d, got %d", ed25519.SignatureSize, len(sig))
	}
	if len(fp) != 16 {
		return nil, fmt.Errorf("malformed fingerprint: expected 16 hex chars, got %d", len(fp))
	}

	return &Signature{
		Timestamp:   t,
		ContentHash: hash,
		Sig:         sig,
		Fingerprint: fp,
		Provenance:  provenance,
	}, nil
}

// signedPayload is the byte string the Ed25519 signature covers for
// content signatures: "<ts>:<content-hash>".
func signedPayload(ts time.Time, contentHash string) []byte {
	return []byte(ts.UTC().Format(timeLayout) + ":" + contentHash)
}

// ContentHash computes the canonical SHA-256 over item content: any prior
// signature line and, for code files, any shebang line is stripped before
// hashing.
func ContentHash(format Format, content string) string {
	canonical := StripSignature(format, content)
	if format == FormatCode {
		canonical = stripShebang(canonical)
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// SignContent produces a Signature over content with the given keypair.
func SignContent(kp *Keypair, format Format, content string) *Signature {
	hash := ContentHash(format, content)
	ts := time.Now().UTC().Truncate(time.Second)
	sig := ed25519.Sign(kp.Private, signedPayload(ts, hash))
	return &Signature{
		Timestamp:   ts,
		ContentHash: hash,
		Sig:         sig,
		Fingerprint: kp.Fingerprint,
	}
}

// VerifyContent checks a parsed signature against content and a public key.
// The caller resolves the key by fingerprint through the trust store.
func VerifyContent(pub ed25519.PublicKey, sig *Signature, format Format, content string) error {
	hash := ContentHash(format, content)
	if hash != sig.ContentHash {
		return fmt.Errorf("hash_mismatch: content hash %s does not match signed hash %s", hash[:12], sig.ContentHash[:12])
	}
	if !ed25519.Verify(pub, signedPayload(sig.Timestamp, sig.ContentHash), sig.Sig) {
		return fmt.Errorf("signature_invalid: Ed25519 verification failed")
	}
	return nil
}

// SignHash signs a precomputed 64-hex-char SHA-256 digest. Used where the
// hash covers raw bytes rather than canonicalized item content, such as
// transcript checkpoint prefixes.
func SignHash(kp *Keypair, hash string) (*Signature, error) {
	if len(hash) != 64 {
		return nil, fmt.Errorf("expected 64 hex chars, got %d", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return nil, fmt.Errorf("malformed hash: %w", err)
	}
	ts := time.Now().UTC().Truncate(time.Second)
	return &Signature{
		Timestamp:   ts,
		ContentHash: hash,
		Sig:         ed25519.Sign(kp.Private, signedPayload(ts, hash)),
		Fingerprint: kp.Fingerprint,
	}, nil
}

// VerifyHash checks a signature over a precomputed digest.
func VerifyHash(pub ed25519.PublicKey, sig *Signature, hash string) error {
	if hash != sig.ContentHash {
		return fmt.Errorf("hash_mismatch: digest does not match signed hash")
	}
	if !ed25519.Verify(pub, signedPayload(sig.Timestamp, sig.ContentHash), sig.Sig) {
		return fmt.Errorf("signature_invalid: Ed25519 verification failed")
	}
	return nil
}

// ============================================================================
// Canonical JSON signatures (thread metadata, capability tokens)
// ============================================================================

// CanonicalJSON marshals v deterministically: encoding/json sorts map
// keys, so round-tripping through a generic map yields a stable encoding
// regardless of struct field order.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize: %w", err)
	}
	return json.Marshal(generic)
}

// SignJSON signs the canonical encoding of v and returns the signature value
// string for embedding in a _signature field.
func SignJSON(kp *Keypair, v interface{}) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	hash := hex.EncodeToString(sum[:])
	ts := time.Now().UTC().Truncate(time.Second)
	sig := ed25519.Sign(kp.Private, signedPayload(ts, hash))
	s := &Signature{
		Timestamp:   ts,
		ContentHash: hash,
		Sig:         sig,
		Fingerprint: kp.Fingerprint,
	}
	return s.String(), nil
}

// VerifyJSON checks a _signature value against the canonical encoding of v
// (v must already have its signature field blanked).
func VerifyJSON(pub ed25519.PublicKey, sigValue string, v interface{}) error {
	sig, err := ParseSignature(sigValue)
	if err != nil {
		return err
	}
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(canonical)
	hash := hex.EncodeToString(sum[:])
	if hash != sig.ContentHash {
		return fmt.Errorf("hash_mismatch: canonical JSON hash does not match signed hash")
	}
	if !ed25519.Verify(pub, signedPayload(sig.Timestamp, sig.ContentHash), sig.Sig) {
		return fmt.Errorf("signature_invalid: Ed25519 verification failed")
	}
	return nil
}
