// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import "time"

// # Authentication Constraints

const (
	// SessionTTL is how long a session (and its refresh token) lives without activity.
	SessionTTL = 30 * 24 * time.Hour

	// SessionRenewWindow is the trailing window before expiry in which a refresh
	// extends the session and rotates the refresh token.
	SessionRenewWindow = 24 * time.Hour

	// RegistrationCodeTTL is the lifetime of the verification code sent at sign-up.
	RegistrationCodeTTL = 365 * 24 * time.Hour

	// ResendCodeTTL is the lifetime of a re-sent verification code.
	ResendCodeTTL = 24 * time.Hour

	// ResetCodeTTL is the lifetime of a password reset code.
	ResetCodeTTL = 1 * time.Hour

	// ResetRateWindow and ResetRateLimit cap reset emails per user.
	ResetRateWindow = 15 * time.Minute
	ResetRateLimit  = 3

	// CodeSecretLength is the entropy, in bytes, of an emailed code.
	CodeSecretLength = 32
)

// # Input Bounds

const (
	MaxEmailLength    = 255
	MinPasswordLength = 6
	MaxPasswordLength = 255
	MaxNameLength     = 255
	MaxCodeLength     = 50
)
