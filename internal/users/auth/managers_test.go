// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/clock"
	"github.com/taibuivan/bazaar/internal/platform/sec"
	"github.com/taibuivan/bazaar/internal/users/auth"
)

func newClock() *clock.Fixed {
	return clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

// # Code Manager

/*
TestCodeManager_Issue verifies hashing, expiry and replacement.
*/
func TestCodeManager_Issue(t *testing.T) {
	store := newMemStore()
	clk := newClock()
	manager := auth.NewCodeManager(store.Codes(), clk)

	first, err := manager.Issue(ctx, "u1", auth.CodeEmailVerification, time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, sec.HashToken(first.Secret), first.Code.TokenHash)
	assert.Equal(t, clk.Now().Add(time.Hour), first.Code.ExpiresAt)
	assert.GreaterOrEqual(t, len(first.Secret), 43, "32 bytes of entropy")

	_, err = manager.Issue(ctx, "u1", auth.CodeEmailVerification, time.Hour, false)
	require.NoError(t, err)
	assert.Len(t, store.codesOf("u1", auth.CodeEmailVerification), 2)

	latest, err := manager.Issue(ctx, "u1", auth.CodeEmailVerification, time.Hour, true)
	require.NoError(t, err)
	codes := store.codesOf("u1", auth.CodeEmailVerification)
	require.Len(t, codes, 1)
	assert.Equal(t, latest.Code.ID, codes[0].ID)
}

/*
TestCodeManager_Redeem verifies type, expiry and single use.
*/
func TestCodeManager_Redeem(t *testing.T) {
	store := newMemStore()
	clk := newClock()
	manager := auth.NewCodeManager(store.Codes(), clk)

	issued, err := manager.Issue(ctx, "u1", auth.CodePasswordReset, time.Hour, false)
	require.NoError(t, err)

	_, err = manager.Redeem(ctx, issued.Secret, auth.CodeEmailVerification)
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err), "wrong type")

	_, err = manager.Redeem(ctx, "", auth.CodePasswordReset)
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err), "empty secret")

	clk.Advance(time.Hour)
	_, err = manager.Redeem(ctx, issued.Secret, auth.CodePasswordReset)
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err), "expiry is exclusive")

	clk.Advance(-time.Second)
	code, err := manager.Redeem(ctx, issued.Secret, auth.CodePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, "u1", code.UserID)

	_, err = manager.Redeem(ctx, issued.Secret, auth.CodePasswordReset)
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err), "single use")
}

/*
TestCodeManager_ConcurrentRedeem verifies that only one of many racing
redemptions wins.
*/
func TestCodeManager_ConcurrentRedeem(t *testing.T) {
	store := newMemStore()
	manager := auth.NewCodeManager(store.Codes(), newClock())

	issued, err := manager.Issue(ctx, "u1", auth.CodeEmailVerification, time.Hour, false)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := manager.Redeem(ctx, issued.Secret, auth.CodeEmailVerification); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

/*
TestCodeManager_CountRecent verifies the trailing window.
*/
func TestCodeManager_CountRecent(t *testing.T) {
	store := newMemStore()
	clk := newClock()
	manager := auth.NewCodeManager(store.Codes(), clk)

	for i := 0; i < 3; i++ {
		_, err := manager.Issue(ctx, "u1", auth.CodePasswordReset, time.Hour, false)
		require.NoError(t, err)
		clk.Advance(5 * time.Minute)
	}
	_, err := manager.Issue(ctx, "u2", auth.CodePasswordReset, time.Hour, false)
	require.NoError(t, err)

	count, err := manager.CountRecent(ctx, "u1", auth.CodePasswordReset, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "the first code is exactly on the window edge")

	count, err = manager.CountRecent(ctx, "u1", auth.CodeEmailVerification, 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// # Session Manager

/*
TestSessionManager_Touch verifies the sliding renewal rule.
*/
func TestSessionManager_Touch(t *testing.T) {
	store := newMemStore()
	clk := newClock()
	manager := auth.NewSessionManager(store.Sessions(), clk)

	session, err := manager.Create(ctx, "u1", "curl/8")
	require.NoError(t, err)
	require.NotNil(t, session.UserAgent)
	assert.Equal(t, "curl/8", *session.UserAgent)

	rotated, err := manager.Touch(ctx, session)
	require.NoError(t, err)
	assert.False(t, rotated)

	clk.Advance(auth.SessionTTL - auth.SessionRenewWindow)
	rotated, err = manager.Touch(ctx, session)
	require.NoError(t, err)
	assert.True(t, rotated)

	stored, _ := store.session(session.ID)
	assert.Equal(t, clk.Now().Add(auth.SessionTTL), stored.ExpiresAt)
	assert.Equal(t, stored.ExpiresAt, session.ExpiresAt)
}

/*
TestSessionManager_Lifecycle verifies Active, Revoke, RevokeAll and Purge.
*/
func TestSessionManager_Lifecycle(t *testing.T) {
	store := newMemStore()
	clk := newClock()
	manager := auth.NewSessionManager(store.Sessions(), clk)

	a, err := manager.Create(ctx, "u1", "")
	require.NoError(t, err)
	assert.Nil(t, a.UserAgent)
	b, err := manager.Create(ctx, "u1", "")
	require.NoError(t, err)
	_, err = manager.Create(ctx, "u2", "")
	require.NoError(t, err)

	_, err = manager.Active(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, manager.Revoke(ctx, a.ID))
	require.NoError(t, manager.Revoke(ctx, a.ID), "revoking twice is fine")
	_, err = manager.Active(ctx, a.ID)
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))

	removed, err := manager.RevokeAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	_, err = manager.Active(ctx, b.ID)
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))

	clk.Advance(auth.SessionTTL)
	purged, err := manager.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 0, store.countSessions("u2"))
}

// # Janitor

/*
TestJanitor_PurgeOnce verifies that only expired rows go.
*/
func TestJanitor_PurgeOnce(t *testing.T) {
	f := newFixture(t)
	result := f.register(t, "Alice", "alice@x.com", "secret1")
	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@x.com"))

	janitor := auth.NewJanitor(f.service, time.Hour, discardLogger(), f.metrics)

	purged, err := janitor.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.PurgeResult{}, purged)

	f.clock.Advance(auth.SessionTTL)
	purged, err = janitor.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged.Sessions)
	assert.Equal(t, int64(1), purged.Codes, "the reset code expired, the registration code did not")
	assert.Len(t, f.store.codesOf(result.User.ID, auth.CodeEmailVerification), 1)
}
