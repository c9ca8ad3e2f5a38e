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

package trust

import (
	"fmt"

	"github.com/lillux/rye/pkg/signing"
)

// Issue codes reported by verification.
const (
	IssueUnsigned         = "unsigned"
	IssueHashMismatch     = "hash_mismatch"
	IssueSignatureInvalid = "signature_invalid"
	IssueUntrustedKey     = "untrusted_key"
	IssueExpired          = "expired_timestamp"
)

// Result is the outcome of verifying one artifact.
type Result struct {
	Valid bool

	// Issues lists the failure codes, with detail, in detection order.
	Issues []string

	// RegistryProvenance carries the "provider@username" claim when the
	// signature declares one.
	RegistryProvenance string
}

// IntegrityError wraps a failed verification; it halts the current
// operation and is never caught silently.
type IntegrityError struct {
	Result Result
}

func (e *IntegrityError) Error() string {
	if len(e.Result.Issues) == 0 {
		return "Integrity check failed"
	}
	return "Integrity check failed: " + e.Result.Issues[0]
}

// Verifier checks artifact signatures against the trust store.
type Verifier struct {
	Store *Store
}

// NewVerifier creates a verifier over a trust store.
func NewVerifier(store *Store) *Verifier {
	return &Verifier{Store: store}
}

// Verify checks a signed artifact. format selects the signature embedding;
// content is the full artifact text.
func (v *Verifier) Verify(format signing.Format, content string) Result {
	sig, _, err := signing.ExtractSignature(format, content)
	if err != nil {
		return Result{Issues: []string{fmt.Sprintf("%s: %v", IssueSignatureInvalid, err)}}
	}
	if sig == nil {
		return Result{Issues: []string{IssueUnsigned}}
	}
	return v.verifyParsed(sig, format, content)
}

// VerifySignature checks an already-extracted signature value against
// canonical content (used for JSON documents whose _signature field the
// caller has removed).
func (v *Verifier) VerifySignature(sigValue string, format signing.Format, content string) Result {
	sig, err := signing.ParseSignature(sigValue)
	if err != nil {
		return Result{Issues: []string{fmt.Sprintf("%s: %v", IssueSignatureInvalid, err)}}
	}
	return v.verifyParsed(sig, format, content)
}

func (v *Verifier) verifyParsed(sig *signing.Signature, format signing.Format, content string) Result {
	pub, err := v.Store.PublicKey(sig.Fingerprint)
	if err != nil {
		return Result{Issues: []string{fmt.Sprintf("%s: %v", IssueUntrustedKey, err)}}
	}
	if pub == nil {
		return Result{Issues: []string{fmt.Sprintf("%s: fingerprint %s not in any trust store", IssueUntrustedKey, sig.Fingerprint)}}
	}
	if err := signing.VerifyContent(pub, sig, format, content); err != nil {
		return Result{Issues: []string{err.Error()}}
	}
	return Result{Valid: true, RegistryProvenance: sig.Provenance}
}
