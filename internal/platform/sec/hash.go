// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and compares passwords with bcrypt at a fixed cost.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher using cost, clamped to bcrypt's accepted range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns the bcrypt hash of plainTextPassword.
func (hasher *PasswordHasher) Hash(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword(bcryptInput(plainTextPassword), hasher.cost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Compare reports whether plainTextPassword matches existingHash.
//
// A malformed hash is reported as a mismatch.
func (hasher *PasswordHasher) Compare(plainTextPassword, existingHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(existingHash), bcryptInput(plainTextPassword)) == nil
}

// maxBcryptInput is the number of password bytes bcrypt actually mixes in.
const maxBcryptInput = 72

// bcryptInput truncates to what bcrypt reads. Newer x/crypto releases reject
// longer inputs outright, while accepted passwords may be up to 255 bytes.
func bcryptInput(plainTextPassword string) []byte {
	input := []byte(plainTextPassword)
	if len(input) > maxBcryptInput {
		input = input[:maxBcryptInput]
	}
	return input
}
