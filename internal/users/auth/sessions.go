// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/clock"
	"github.com/taibuivan/bazaar/pkg/pointer"
	"github.com/taibuivan/bazaar/pkg/uuid"
)

// SessionManager owns session creation, sliding renewal and revocation.
type SessionManager struct {
	sessions SessionRepository
	clock    clock.Clock
}

// NewSessionManager creates a SessionManager over the given repository.
func NewSessionManager(sessions SessionRepository, clk clock.Clock) *SessionManager {
	return &SessionManager{sessions: sessions, clock: clk}
}

// In returns a copy bound to the repositories of tx.
func (manager *SessionManager) In(tx Store) *SessionManager {
	return &SessionManager{sessions: tx.Sessions(), clock: manager.clock}
}

// Create opens a new session for userID that expires after [SessionTTL].
func (manager *SessionManager) Create(context context.Context, userID, userAgent string) (*Session, error) {
	now := manager.clock.Now()
	session := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		UserAgent: pointer.NonZero(userAgent),
		ExpiresAt: now.Add(SessionTTL),
		CreatedAt: now,
	}

	if err := manager.sessions.Create(context, session); err != nil {
		return nil, err
	}
	return session, nil
}

/*
Active returns the session only if it exists and has not expired.

Returns:
  - *Session: The live session
  - error: apperr.NotFound for missing or expired sessions
*/
func (manager *SessionManager) Active(context context.Context, id string) (*Session, error) {
	session, err := manager.sessions.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if !session.ExpiresAt.After(manager.clock.Now()) {
		return nil, apperr.NotFound("Session")
	}
	return session, nil
}

/*
Touch applies the sliding renewal rule. When the session has at most
[SessionRenewWindow] left, its expiry moves to now + [SessionTTL] and the
caller must hand out a new refresh token.

Returns:
  - bool: Whether the session was renewed
  - error: Persistence failures
*/
func (manager *SessionManager) Touch(context context.Context, session *Session) (bool, error) {
	now := manager.clock.Now()
	if session.ExpiresAt.Sub(now) > SessionRenewWindow {
		return false, nil
	}

	expiresAt := now.Add(SessionTTL)
	if err := manager.sessions.UpdateExpiry(context, session.ID, expiresAt); err != nil {
		return false, err
	}
	session.ExpiresAt = expiresAt
	return true, nil
}

// Revoke deletes one session. A missing session is not an error.
func (manager *SessionManager) Revoke(context context.Context, id string) error {
	return manager.sessions.Delete(context, id)
}

// RevokeAll deletes every session of a user.
func (manager *SessionManager) RevokeAll(context context.Context, userID string) (int64, error) {
	return manager.sessions.DeleteByUser(context, userID)
}

// Purge removes expired sessions.
func (manager *SessionManager) Purge(context context.Context) (int64, error) {
	return manager.sessions.DeleteExpired(context, manager.clock.Now())
}
