// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runner

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const DefaultAuthCookie = "auth"

// TokenMinter signs JWTs for actors so that a session can start already
// logged in, the way an application behind a JWT cookie expects.
type TokenMinter struct {
	CookieName string
	Issuer     string
	TTL        time.Duration

	method jwt.SigningMethod
	key    any
	kid    string
	now    func() time.Time
}

// NewHMACMinter signs with HS256 and secret.
func NewHMACMinter(cookieName string, secret []byte) *TokenMinter {
	return newMinter(cookieName, jwt.SigningMethodHS256, secret, "")
}

// NewJWKMinter signs with the private or symmetric key in the JWK data. The
// key's kid, if any, is put in the token header.
func NewJWKMinter(cookieName string, data []byte) (*TokenMinter, error) {
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("jwk.ParseKey: %w", err)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to materialize key: %w", err)
	}
	method, err := methodFor(raw)
	if err != nil {
		return nil, err
	}
	kid, _ := key.KeyID()
	return newMinter(cookieName, method, raw, kid), nil
}

// LoadJWKMinter reads a JWK file and calls NewJWKMinter.
func LoadJWKMinter(cookieName, path string) (*TokenMinter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewJWKMinter(cookieName, data)
}

func newMinter(cookieName string, method jwt.SigningMethod, key any, kid string) *TokenMinter {
	if cookieName == "" {
		cookieName = DefaultAuthCookie
	}
	return &TokenMinter{
		CookieName: cookieName,
		Issuer:     "phaserunner",
		TTL:        time.Hour,
		method:     method,
		key:        key,
		kid:        kid,
		now:        time.Now,
	}
}

func methodFor(raw any) (jwt.SigningMethod, error) {
	switch k := raw.(type) {
	case []byte:
		return jwt.SigningMethodHS256, nil
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return jwt.SigningMethodES256, nil
		case 384:
			return jwt.SigningMethodES384, nil
		case 521:
			return jwt.SigningMethodES512, nil
		}
		return nil, fmt.Errorf("unsupported curve %s", k.Curve.Params().Name)
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return nil, errors.New("JWK is a public key, a private key is needed to sign")
	}
	return nil, fmt.Errorf("unsupported key type %T", raw)
}

// Mint returns a signed token for the actor.
func (m *TokenMinter) Mint(role Role, c Credentials) (string, error) {
	if c.Email == "" {
		return "", fmt.Errorf("cannot mint token for %s without email", role)
	}
	now := m.now()
	claims := jwt.MapClaims{
		"sub":   c.Email,
		"email": c.Email,
		"name":  c.Name,
		"role":  string(role),
		"iss":   m.Issuer,
		"iat":   now.Unix(),
		"exp":   now.Add(m.TTL).Unix(),
	}
	token := jwt.NewWithClaims(m.method, claims)
	if m.kid != "" {
		token.Header["kid"] = m.kid
	}
	s, err := token.SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}
