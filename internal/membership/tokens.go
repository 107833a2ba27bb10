// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package membership

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opentrusty/tenantgate/internal/identity"
)

const tokenIssuer = "tenantgate"

// ErrInvalidInvite is returned for malformed, expired or stale invite tokens
var ErrInvalidInvite = errors.New("invitation link is invalid or has expired")

type inviteClaims struct {
	jwt.RegisteredClaims
	Fingerprint string `json:"fp"`
}

// InviteTokens issues and checks the signed token in invitation links.
//
// The token is bound to the actor's credential state, so it stops working
// once a password is set or the actor is deactivated.
type InviteTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewInviteTokens creates a token issuer using an HS256 secret
func NewInviteTokens(secret string, ttl time.Duration) *InviteTokens {
	return &InviteTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the token lifetime
func (t *InviteTokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for actorID in its current credential state
func (t *InviteTokens) Issue(actorID string, state identity.CredentialState) (string, error) {
	now := t.now()
	claims := inviteClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Fingerprint: fingerprint(state),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invite token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry, subject and fingerprint
func (t *InviteTokens) Verify(token, actorID string, state identity.CredentialState) error {
	claims, err := t.parse(token, actorID)
	if err != nil {
		return err
	}
	if claims.Fingerprint != fingerprint(state) {
		return ErrInvalidInvite
	}
	return nil
}

// Peek checks everything but the fingerprint. Used to tell an already
// accepted invitation apart from a forged one.
func (t *InviteTokens) Peek(token, actorID string) error {
	_, err := t.parse(token, actorID)
	return err
}

func (t *InviteTokens) parse(token, actorID string) (*inviteClaims, error) {
	var claims inviteClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(actorID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	return &claims, nil
}

func fingerprint(state identity.CredentialState) string {
	sum := sha256.Sum256([]byte(state.PasswordHash + "|" + strconv.FormatBool(state.Active)))
	return hex.EncodeToString(sum[:])
}
