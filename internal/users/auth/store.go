// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or database failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given email, compared case-insensitively.

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or database failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		LockByID takes a row lock on the account until the surrounding
		transaction ends. Outside a transaction it only checks existence.
	*/
	LockByID(context context.Context, id string) error

	/*
		Create persists a brand-new user account.

		Returns:
		  - error: apperr.Conflict when the email is taken, or persistence failures
	*/
	Create(context context.Context, user *User) error

	// UpdateName replaces the display name and returns the refreshed row.
	UpdateName(context context.Context, id, name string) (*User, error)

	// UpdatePassword replaces only the user's password hash.
	UpdatePassword(context context.Context, id, passwordHash string) error

	// MarkVerified flips the account's verified flag to true.
	MarkVerified(context context.Context, id string) error

	// ListStores returns the stores the user belongs to, ordered by name.
	ListStores(context context.Context, userID string) ([]StoreRef, error)
}

// # Session Data Access

// SessionRepository defines the data access contract for login sessions.
type SessionRepository interface {
	Create(context context.Context, session *Session) error

	/*
		FindByID returns the session with the given ID, expired or not.

		Returns:
		  - *Session: Hydrated entity
		  - error: apperr.NotFound or database failures
	*/
	FindByID(context context.Context, id string) (*Session, error)

	// UpdateExpiry moves the session's expiry to expiresAt.
	UpdateExpiry(context context.Context, id string, expiresAt time.Time) error

	// Delete removes one session. Deleting a missing session is not an error.
	Delete(context context.Context, id string) error

	// DeleteByUser removes every session of a user and reports how many were removed.
	DeleteByUser(context context.Context, userID string) (int64, error)

	// DeleteExpired removes sessions whose expiry is at or before now.
	DeleteExpired(context context.Context, now time.Time) (int64, error)
}

// # Verification Code Data Access

// CodeRepository defines the data access contract for one-time codes.
type CodeRepository interface {
	Create(context context.Context, code *VerificationCode) error

	/*
		Consume atomically deletes and returns the unexpired code matching
		tokenHash and codeType. Two concurrent calls for the same code can
		never both succeed.

		Returns:
		  - *VerificationCode: The consumed code
		  - error: apperr.NotFound when no live code matches
	*/
	Consume(context context.Context, tokenHash string, codeType CodeType, now time.Time) (*VerificationCode, error)

	// DeleteByUser removes every code of the given type issued to a user.
	DeleteByUser(context context.Context, userID string, codeType CodeType) error

	// CountSince counts codes of the given type created for a user after since.
	CountSince(context context.Context, userID string, codeType CodeType, since time.Time) (int, error)

	// DeleteExpired removes codes whose expiry is at or before now.
	DeleteExpired(context context.Context, now time.Time) (int64, error)
}

// # Unit of Work

// Store groups the repositories and runs multi-row changes atomically.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Codes() CodeRepository

	/*
		InTx runs fn against a transaction-bound Store. All writes made through
		the argument commit together when fn returns nil and are discarded
		otherwise. Calling InTx on a transaction-bound Store reuses the
		current transaction.
	*/
	InTx(context context.Context, fn func(tx Store) error) error
}
