// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, JWT signing, random
// secrets) from the domain logic. Services receive a [*TokenService] and a
// [*PasswordHasher] through their constructors.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taibuivan/bazaar/internal/platform/clock"
	"github.com/taibuivan/bazaar/internal/platform/constants"
	"github.com/taibuivan/bazaar/pkg/uuid"
)

// # Token Kinds

// TokenKind selects the signing secret and lifetime of a token.
type TokenKind int

const (
	// TokenAccess authorizes individual API requests.
	TokenAccess TokenKind = iota + 1

	// TokenRefresh only mints new access tokens and is bound to a session row.
	TokenRefresh
)

// String implements [fmt.Stringer].
func (k TokenKind) String() string {
	switch k {
	case TokenAccess:
		return "access"
	case TokenRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

const (
	// AccessTokenTTL is how long an access token is accepted.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the signature lifetime of a refresh token.
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// # Verification Errors

var (
	// ErrTokenExpired is returned by [TokenService.Verify] for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenInvalid covers malformed tokens, bad signatures, wrong kind and wrong audience.
	ErrTokenInvalid = errors.New("sec: token invalid")
)

// # Claims

// Claims is the payload of both token kinds.
//
// Refresh tokens only ever carry SessionID; the profile fields are access-only.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string   `json:"userId,omitempty"`
	SessionID string   `json:"sessionId"`
	Role      UserRole `json:"role,omitempty"`
	Verified  bool     `json:"verified,omitempty"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
}

// # Token Service

// TokenService signs and verifies HS256 tokens with one secret per [TokenKind].
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	clock         clock.Clock
}

// NewTokenService creates a new TokenService. The two secrets must be non-empty and distinct.
func NewTokenService(accessSecret, refreshSecret string, clk clock.Clock) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("sec: token secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("sec: access and refresh secrets must differ")
	}
	if clk == nil {
		clk = clock.System{}
	}

	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		clock:         clk,
	}, nil
}

/*
Sign issues a token of the given kind.

Access tokens require UserID and SessionID. Refresh tokens are reduced to the
SessionID so they cannot be used to read profile data.

Returns:
  - string: The compact JWS
  - time.Time: The token expiry
  - error: Missing claims or signing failures
*/
func (service *TokenService) Sign(kind TokenKind, claims Claims) (string, time.Time, error) {
	secret, ttl, err := service.params(kind)
	if err != nil {
		return "", time.Time{}, err
	}

	payload := Claims{SessionID: claims.SessionID}
	switch kind {
	case TokenAccess:
		if claims.UserID == "" || claims.SessionID == "" {
			return "", time.Time{}, errors.New("sec: access token requires user and session ids")
		}
		payload = claims
	case TokenRefresh:
		if claims.SessionID == "" {
			return "", time.Time{}, errors.New("sec: refresh token requires a session id")
		}
	}

	now := service.clock.Now()
	expiresAt := now.Add(ttl)
	payload.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New(),
		Audience:  jwt.ClaimStrings{constants.TokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to sign %s token: %w", kind, err)
	}

	return signed, expiresAt, nil
}

/*
Verify checks signature, audience and expiry of a token of the given kind.

It never panics on hostile input. The returned error is [ErrTokenExpired] or
[ErrTokenInvalid]; callers decide how to surface either.
*/
func (service *TokenService) Verify(kind TokenKind, tokenString string) (*Claims, error) {
	secret, _, err := service.params(kind)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(constants.TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(service.clock.Now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !token.Valid || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	if kind == TokenAccess && claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// params resolves the secret and lifetime for kind.
func (service *TokenService) params(kind TokenKind) ([]byte, time.Duration, error) {
	switch kind {
	case TokenAccess:
		return service.accessSecret, AccessTokenTTL, nil
	case TokenRefresh:
		return service.refreshSecret, RefreshTokenTTL, nil
	default:
		return nil, 0, fmt.Errorf("sec: unknown token kind %d", kind)
	}
}
