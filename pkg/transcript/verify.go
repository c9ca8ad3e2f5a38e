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

package transcript

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lillux/rye/pkg/signing"
)

// KeyLookup resolves a public key by fingerprint, normally through the
// trust store.
type KeyLookup func(fingerprint string) (ed25519.PublicKey, error)

// VerifyOptions controls transcript verification.
type VerifyOptions struct {
	// AllowUnsignedTrailing accepts events after the last checkpoint.
	// A crashed or still-running thread legitimately has a tail that no
	// checkpoint covers yet.
	AllowUnsignedTrailing bool
}

// VerifyResult reports the outcome of a transcript verification walk.
type VerifyResult struct {
	Checkpoints   int
	VerifiedBytes int64
	TrailingBytes int64
}

// Verify walks every checkpoint in a transcript, checking that each one's
// hash matches the actual byte prefix and that its signature verifies
// under a trusted key. Checkpoints commit to everything before them, so
// a verified final checkpoint transitively covers the whole prefix.
func Verify(path string, lookup KeyLookup, opts VerifyOptions) (*VerifyResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{}
	var offset int64
	for _, line := range bytes.Split(data, []byte("\n")) {
		lineLen := int64(len(line)) + 1
		if len(line) == 0 {
			offset += lineLen
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("malformed transcript line at offset %d: %w", offset, err)
		}
		if ev.Type != EventCheckpoint {
			offset += lineLen
			continue
		}

		if ev.ByteOffset != offset {
			return nil, fmt.Errorf("checkpoint at turn %d claims offset %d, actual %d",
				ev.Turn, ev.ByteOffset, offset)
		}
		if ev.ByteOffset > int64(len(data)) {
			return nil, fmt.Errorf("checkpoint at turn %d exceeds transcript length", ev.Turn)
		}
		sum := sha256.Sum256(data[:ev.ByteOffset])
		actual := hex.EncodeToString(sum[:])
		if actual != ev.Hash {
			return nil, fmt.Errorf("checkpoint at turn %d: transcript prefix hash mismatch", ev.Turn)
		}

		sig, err := signing.ParseSignature(ev.Sig)
		if err != nil {
			return nil, fmt.Errorf("checkpoint at turn %d: %w", ev.Turn, err)
		}
		pub, err := lookup(sig.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("checkpoint at turn %d: untrusted key %s: %w", ev.Turn, sig.Fingerprint, err)
		}
		if err := signing.VerifyHash(pub, sig, ev.Hash); err != nil {
			return nil, fmt.Errorf("checkpoint at turn %d: %w", ev.Turn, err)
		}

		res.Checkpoints++
		res.VerifiedBytes = offset + lineLen
		offset += lineLen
	}

	res.TrailingBytes = int64(len(data)) - res.VerifiedBytes
	if res.TrailingBytes > 0 && !opts.AllowUnsignedTrailing {
		return nil, fmt.Errorf("transcript has %d bytes after the last checkpoint", res.TrailingBytes)
	}
	return res, nil
}
