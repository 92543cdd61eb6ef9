// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/clock"
	"github.com/taibuivan/bazaar/internal/platform/mail"
	"github.com/taibuivan/bazaar/internal/platform/metrics"
	"github.com/taibuivan/bazaar/internal/platform/sec"
	"github.com/taibuivan/bazaar/internal/users/auth"
)

// # Fakes

// fakeMailer records every message and fails on demand.
type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, message mail.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, message)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *fakeMailer) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMailer) last(t *testing.T) mail.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail was sent")
	return m.sent[len(m.sent)-1]
}

// # Fixture

const testOrigin = "https://shop.test"

type fixture struct {
	store   *memStore
	clock   *clock.Fixed
	tokens  *sec.TokenService
	mailer  *fakeMailer
	metrics *metrics.Metrics
	service *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tokens, err := sec.NewTokenService("access-secret", "refresh-secret", clk)
	require.NoError(t, err)

	f := &fixture{
		store:   newMemStore(),
		clock:   clk,
		tokens:  tokens,
		mailer:  &fakeMailer{},
		metrics: metrics.New(),
	}

	f.service, err = auth.NewService(auth.Dependencies{
		Store:     f.store,
		Tokens:    tokens,
		Hasher:    sec.NewPasswordHasher(bcrypt.MinCost),
		Mailer:    f.mailer,
		Clock:     clk,
		Metrics:   f.metrics,
		AppOrigin: testOrigin + "/",
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) register(t *testing.T, name, email, password string) *auth.AuthResult {
	t.Helper()
	result, err := f.service.Register(context.Background(), auth.RegisterInput{
		Name:      name,
		Email:     email,
		Password:  password,
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) login(t *testing.T, email, password string) *auth.AuthResult {
	t.Helper()
	result, err := f.service.Login(context.Background(), auth.LoginInput{Email: email, Password: password})
	require.NoError(t, err)
	return result
}

// # Link Parsing

var (
	verifyLinkPattern = regexp.MustCompile(`/auth/email/verify/([A-Za-z0-9_-]+)`)
	resetLinkPattern  = regexp.MustCompile(`/auth/password/reset\?code=([A-Za-z0-9_-]+)(?:&amp;|&)exp=(\d+)`)
)

// verifyCode extracts the code from the last verification email.
func (f *fixture) verifyCode(t *testing.T) string {
	t.Helper()
	match := verifyLinkPattern.FindStringSubmatch(f.mailer.last(t).HTML)
	require.Len(t, match, 2, "verification link not found")
	return match[1]
}

// resetCode extracts the code and expiry from the last reset email.
func (f *fixture) resetCode(t *testing.T) (string, time.Time) {
	t.Helper()
	match := resetLinkPattern.FindStringSubmatch(f.mailer.last(t).HTML)
	require.Len(t, match, 3, "reset link not found")

	millis, err := strconv.ParseInt(match[2], 10, 64)
	require.NoError(t, err)
	return match[1], time.UnixMilli(millis).UTC()
}

// # Assertions

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, status, apperr.StatusOf(err), "unexpected error: %v", err)
}
