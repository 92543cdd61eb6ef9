// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements identity, session and one-time code management.

It owns the full account lifecycle: registration, password and OAuth login,
email verification, password recovery, refresh-token rotation and logout.

# Architecture

  - Entities (this file): User, Session, VerificationCode.
  - Store: Repository contracts plus a transactional unit of work.
  - CodeManager / SessionManager: Lifecycle rules for codes and sessions.
  - Service: Orchestrates the flows and enforces cross-entity invariants.
  - Handler: HTTP binding (cookies, validation, status codes).
*/
package auth

import (
	"time"

	"github.com/taibuivan/bazaar/internal/platform/sec"
)

// # Domain Entities

// User is a registered account.
//
// PasswordHash is nil for accounts created through an OAuth provider.
type User struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash *string      `json:"-"`
	Photo        *string      `json:"photo,omitempty"`
	Role         sec.UserRole `json:"role"`
	Verified     bool         `json:"verified"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Session anchors one logical login. Its row is the only source of truth for
// refresh-token liveness.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserAgent *string   `json:"userAgent,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// CodeType distinguishes the purpose of a [VerificationCode].
type CodeType string

const (
	CodeEmailVerification CodeType = "EMAIL_VERIFICATION"
	CodePasswordReset     CodeType = "PASSWORD_RESET"
)

// VerificationCode is a single-use, time-bounded grant. Only the SHA-256 of
// the emailed secret is stored.
type VerificationCode struct {
	ID        string
	UserID    string
	Type      CodeType
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// StoreRef is a store the user is a member of.
type StoreRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// # Field Identifiers

const (
	FieldName             = "name"
	FieldNewName          = "newName"
	FieldEmail            = "email"
	FieldPassword         = "password"
	FieldConfirmPassword  = "confirmPassword"
	FieldOldPassword      = "oldPassword"
	FieldNewPassword      = "newPassword"
	FieldCode             = "code"
	FieldVerificationCode = "verificationCode"
)
