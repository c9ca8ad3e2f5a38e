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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lillux/rye/pkg/signing"
)

// Token binds a thread to a capability set, signed by the issuing identity.
type Token struct {
	TokenID     string   `json:"token_id"`
	Caps        []string `json:"caps"`
	Audience    string   `json:"aud"`
	Expiry      string   `json:"exp"` // ISO-8601 UTC
	DirectiveID string   `json:"directive_id"`
	ThreadID    string   `json:"thread_id"`
	ParentID    string   `json:"parent_id,omitempty"`
	Signature   string   `json:"signature,omitempty"`
}

// NewToken issues a signed token for a thread. caps are sorted before
// signing so the canonical JSON is stable.
func NewToken(kp *signing.Keypair, caps []Cap, audience, directiveID, threadID, parentID string, expiry time.Time) (*Token, error) {
	t := &Token{
		TokenID:     uuid.NewString(),
		Caps:        Strings(caps),
		Audience:    audience,
		Expiry:      expiry.UTC().Format("2006-01-02T15:04:05Z"),
		DirectiveID: directiveID,
		ThreadID:    threadID,
		ParentID:    parentID,
	}
	sig, err := signing.SignJSON(kp, t.unsigned())
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	t.Signature = sig
	return t, nil
}

// unsigned returns a copy with the signature blanked for canonical signing.
func (t *Token) unsigned() *Token {
	c := *t
	c.Signature = ""
	return &c
}

// Capabilities parses the token's capability strings.
func (t *Token) Capabilities() ([]Cap, error) {
	return ParseAll(t.Caps)
}

// Expired reports whether the token's exp has passed.
func (t *Token) Expired(now time.Time) bool {
	exp, err := time.Parse("2006-01-02T15:04:05Z", t.Expiry)
	if err != nil {
		return true
	}
	return now.UTC().After(exp)
}

// Encode serializes the token JWT-style: base64url over the sorted-key
// JSON encoding.
func (t *Token) Encode() (string, error) {
	canonical, err := signing.CanonicalJSON(t)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(canonical), nil
}

// Decode parses a base64url token.
func Decode(encoded string) (*Token, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed token encoding: %w", err)
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("malformed token JSON: %w", err)
	}
	return &t, nil
}

// Derive attenuates a parent token into a child token: caps intersect
// under the narrowing rule and expiry is inherited from the parent.
func Derive(kp *signing.Keypair, parent *Token, childCaps []Cap, directiveID, threadID string) (*Token, error) {
	parentCaps, err := parent.Capabilities()
	if err != nil {
		return nil, fmt.Errorf("corrupt parent token: %w", err)
	}
	exp, err := time.Parse("2006-01-02T15:04:05Z", parent.Expiry)
	if err != nil {
		return nil, fmt.Errorf("corrupt parent token expiry: %w", err)
	}
	attenuated := Attenuate(parentCaps, childCaps)
	return NewToken(kp, attenuated, parent.Audience, directiveID, threadID, parent.ThreadID, exp)
}
