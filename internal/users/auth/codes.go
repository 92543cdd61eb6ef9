// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/clock"
	"github.com/taibuivan/bazaar/internal/platform/sec"
	"github.com/taibuivan/bazaar/pkg/uuid"
)

// IssuedCode is the result of [CodeManager.Issue]. Secret is the value that
// goes into the emailed link; it is never stored.
type IssuedCode struct {
	Code   *VerificationCode
	Secret string
}

// CodeManager issues and redeems single-use verification codes.
type CodeManager struct {
	codes CodeRepository
	clock clock.Clock
}

// NewCodeManager creates a CodeManager over the given repository.
func NewCodeManager(codes CodeRepository, clk clock.Clock) *CodeManager {
	return &CodeManager{codes: codes, clock: clk}
}

// In returns a copy bound to the repositories of tx.
func (manager *CodeManager) In(tx Store) *CodeManager {
	return &CodeManager{codes: tx.Codes(), clock: manager.clock}
}

/*
Issue creates a new code of the given type for a user.

When replace is true, earlier codes of the same type are deleted first so
only the newest emailed link works.

Returns:
  - *IssuedCode: The stored row plus the plaintext secret
  - error: Randomness or persistence failures
*/
func (manager *CodeManager) Issue(context context.Context, userID string, codeType CodeType, ttl time.Duration, replace bool) (*IssuedCode, error) {
	if replace {
		if err := manager.codes.DeleteByUser(context, userID, codeType); err != nil {
			return nil, err
		}
	}

	secret, err := sec.GenerateSecureToken(CodeSecretLength)
	if err != nil {
		return nil, fmt.Errorf("auth_code_generate_failed: %w", err)
	}

	now := manager.clock.Now()
	code := &VerificationCode{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      codeType,
		TokenHash: sec.HashToken(secret),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if err := manager.codes.Create(context, code); err != nil {
		return nil, err
	}

	return &IssuedCode{Code: code, Secret: secret}, nil
}

/*
Redeem consumes a code. The match requires the same type and an expiry
strictly after now; an expired, reused or foreign-type code is
indistinguishable from an unknown one.

Returns:
  - *VerificationCode: The consumed code
  - error: apperr.NotFound when nothing matched
*/
func (manager *CodeManager) Redeem(context context.Context, secret string, codeType CodeType) (*VerificationCode, error) {
	if secret == "" {
		return nil, apperr.NotFound("Verification code")
	}
	return manager.codes.Consume(context, sec.HashToken(secret), codeType, manager.clock.Now())
}

// CountRecent counts codes of the given type issued to a user within window.
func (manager *CodeManager) CountRecent(context context.Context, userID string, codeType CodeType, window time.Duration) (int, error) {
	return manager.codes.CountSince(context, userID, codeType, manager.clock.Now().Add(-window))
}

// Purge removes expired codes.
func (manager *CodeManager) Purge(context context.Context) (int64, error) {
	return manager.codes.DeleteExpired(context, manager.clock.Now())
}

