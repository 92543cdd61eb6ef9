// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/taibuivan/bazaar/internal/platform/ctxutil"
	"github.com/taibuivan/bazaar/internal/platform/middleware"
	"github.com/taibuivan/bazaar/internal/platform/sec"
)

// # Fakes

type fakeVerifier struct {
	claims map[string]*sec.Claims
}

func (f fakeVerifier) Verify(kind sec.TokenKind, token string) (*sec.Claims, error) {
	if kind != sec.TokenAccess {
		return nil, sec.ErrTokenInvalid
	}
	if claims, ok := f.claims[token]; ok {
		return claims, nil
	}
	return nil, sec.ErrTokenExpired
}

type fakeConfig struct {
	dev     bool
	origins []string
}

func (c fakeConfig) IsDevelopment() bool      { return c.dev }
func (c fakeConfig) AllowedOrigins() []string { return c.origins }

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if identity := ctxutil.GetIdentity(request.Context()); identity != nil {
			_, _ = writer.Write([]byte(identity.UserID))
			return
		}
		_, _ = writer.Write([]byte("anonymous"))
	})
}

/*
TestAuthenticate resolves identities from header and cookie and degrades to anonymous.
*/
func TestAuthenticate(t *testing.T) {
	verifier := fakeVerifier{claims: map[string]*sec.Claims{
		"good": {UserID: "u1", SessionID: "s1", Role: sec.RoleUser},
	}}
	handler := middleware.Authenticate(verifier)(echoIdentity())

	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"bearer_header", "Bearer good", "", "u1"},
		{"access_cookie", "", "good", "u1"},
		{"expired_token", "Bearer stale", "", "anonymous"},
		{"no_token", "", "", "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				request.AddCookie(&http.Cookie{Name: "accessToken", Value: tt.cookie})
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, http.StatusOK, recorder.Code)
			assert.Equal(t, tt.want, recorder.Body.String())
		})
	}
}

/*
TestRequireRole enforces authentication first, then hierarchy.
*/
func TestRequireRole(t *testing.T) {
	handler := middleware.RequireRole(sec.RoleSeller)(echoIdentity())

	tests := []struct {
		name     string
		identity *ctxutil.Identity
		want     int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"user", &ctxutil.Identity{UserID: "u", Role: sec.RoleUser}, http.StatusForbidden},
		{"seller", &ctxutil.Identity{UserID: "u", Role: sec.RoleSeller}, http.StatusOK},
		{"admin", &ctxutil.Identity{UserID: "u", Role: sec.RoleAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.identity != nil {
				request = request.WithContext(ctxutil.WithIdentity(request.Context(), tt.identity))
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)
			assert.Equal(t, tt.want, recorder.Code)
		})
	}
}

/*
TestRequireRole_Unknown refuses to wire a guard for a role outside the hierarchy.
*/
func TestRequireRole_Unknown(t *testing.T) {
	assert.Panics(t, func() { middleware.RequireRole(sec.UserRole("GUEST")) })
}

/*
TestRequireAuth rejects anonymous requests.
*/
func TestRequireAuth(t *testing.T) {
	handler := middleware.RequireAuth(echoIdentity())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestCORS echoes allowed origins only in production.
*/
func TestCORS(t *testing.T) {
	handler := middleware.CORS(fakeConfig{origins: []string{"https://shop.example"}})(echoIdentity())

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Origin", "https://shop.example")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, "https://shop.example", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))

	request = httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Origin", "https://evil.example")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))

	request = httptest.NewRequest(http.MethodOptions, "/", nil)
	request.Header.Set("Origin", "https://shop.example")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

/*
TestRateLimit refuses requests beyond the burst for one IP only.
*/
func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimit(ctx, rate.Every(time.Hour), 2)(echoIdentity())

	hit := func(ip string) int {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		request.Header.Set("X-Real-IP", ip)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder.Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.2"))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-Real-IP", "10.0.0.1")
	refused := httptest.NewRecorder()
	handler.ServeHTTP(refused, request)
	assert.Equal(t, "3600", refused.Header().Get("Retry-After"))
	assert.Contains(t, refused.Body.String(), `"code":"RATE_LIMITED"`)
}

/*
TestAuthRateLimit verifies the Redis fixed window and its reset.
*/
func TestAuthRateLimit(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	limiter := middleware.NewWindowLimiter(client, 3, 15*time.Minute)
	handler := middleware.AuthRateLimit(limiter)(echoIdentity())

	hit := func() *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		request.Header.Set("X-Real-IP", "10.0.0.9")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit().Code)
	}

	assert.True(t, server.Exists("bazaar-api:ratelimit:auth:10.0.0.9"))

	refused := hit()
	assert.Equal(t, http.StatusTooManyRequests, refused.Code)
	assert.Equal(t, "900", refused.Header().Get("Retry-After"))
	assert.Contains(t, refused.Body.String(), `"code":"RATE_LIMITED"`)
	assert.Contains(t, refused.Body.String(), "Try again in 900s.")

	server.FastForward(15*time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, hit().Code)
}

/*
TestAuthRateLimit_FailOpen lets traffic through when Redis is unreachable.
*/
func TestAuthRateLimit_FailOpen(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	handler := middleware.AuthRateLimit(middleware.NewWindowLimiter(client, 1, time.Minute))(echoIdentity())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestPanicRecovery converts a panic into a 500 envelope.
*/
func TestPanicRecovery(t *testing.T) {
	handler := middleware.PanicRecovery(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "boom")
}

/*
TestRequestID generates an id when absent and keeps a client-supplied one.
*/
func TestRequestID(t *testing.T) {
	var seen string
	handler := middleware.RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, request *http.Request) {
		seen = ctxutil.GetRequestID(request.Context())
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, recorder.Header().Get("X-Request-ID"))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-Request-ID", "client-id")
	handler.ServeHTTP(httptest.NewRecorder(), request)
	assert.Equal(t, "client-id", seen)
}
