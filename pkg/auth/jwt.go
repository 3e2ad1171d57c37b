// Copyright 2026 The Chatbroker Authors
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

// Package auth provides optional JWT validation for agent connections.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the subset of an agent JWT's claims the broker cares about.
type Claims struct {
	Subject string
	Role    string
}

// Validator validates agent JWTs against a shared HMAC secret. Unlike
// a JWKS-backed provider, the broker's agent tokens are issued by its
// own operator, so a single symmetric secret is the right shape here.
type Validator struct {
	secret []byte
}

// NewValidator builds a Validator from a shared secret. Returns an
// error if secret is empty: a validator with no secret would accept
// nothing usefully and is almost certainly a configuration mistake.
func NewValidator(secret string) (*Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: secret must not be empty")
	}
	return &Validator{secret: []byte(secret)}, nil
}

// ValidateToken parses and verifies tokenString, returning its claims.
func (v *Validator) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	claims := &Claims{Subject: token.Subject()}
	if role, ok := token.Get("role"); ok {
		if roleStr, ok := role.(string); ok {
			claims.Role = roleStr
		}
	}
	return claims, nil
}
