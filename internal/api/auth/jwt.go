// Copyright 2025 Tom Barlow
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

// Package auth resolves an inbound request's bearer JWT to a tenant user
// id, following the teacher's internal/controller/auth/jwt.go validation
// shape (EdDSA-signed tokens, a UserID claim) adapted to this core's single
// identity concern: every authenticated request carries exactly one user id.
package auth

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload this core expects. Only UserID is consumed;
// the rest are standard registered claims (exp, iat, iss).
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
}

// Verifier validates bearer tokens against a fixed Ed25519 public key.
type Verifier struct {
	publicKey ed25519.PublicKey
	clockSkew time.Duration
}

// NewVerifier builds a Verifier from a PEM-encoded Ed25519 public key file's
// contents.
func NewVerifier(publicKeyPEM []byte) (*Verifier, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("auth: no PEM block found in public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}
	return &Verifier{publicKey: pub, clockSkew: 30 * time.Second}, nil
}

// ExtractBearerToken pulls the token out of an Authorization header value.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("invalid Authorization header format, expected %q", prefix)
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", fmt.Errorf("empty bearer token")
	}
	return token, nil
}

// VerifyUserID validates tokenString and returns the user id it authorizes.
func (v *Verifier) VerifyUserID(tokenString string) (string, error) {
	parser := jwt.NewParser(jwt.WithLeeway(v.clockSkew), jwt.WithValidMethods([]string{"EdDSA"}))

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("auth: token is invalid")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return "", fmt.Errorf("auth: token carries no user_id claim")
	}
	return claims.UserID, nil
}
