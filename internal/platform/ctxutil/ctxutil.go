// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil carries per-request values through [context.Context]: the
// correlation ID, the request-scoped logger and the authenticated caller.
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/taibuivan/bazaar/internal/platform/sec"
)

// Unexported key types; no other package can read or overwrite these values.
type (
	requestIDKey struct{}
	loggerKey    struct{}
	identityKey  struct{}
)

// # Request Tracing

// WithRequestID attaches the X-Request-ID correlation value.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the correlation value, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// # Structured Logging

// WithLogger attaches the request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger returns the request-scoped logger, falling back to [slog.Default].
func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok || logger == nil {
		return slog.Default()
	}
	return logger
}

// # Identity

// Identity is the resolved caller of an authenticated request.
//
// It is built once by the authentication middleware from a verified access
// token and read by handlers; nothing else is attached to the request.
type Identity struct {
	UserID    string
	SessionID string
	Role      sec.UserRole
	Verified  bool
	Email     string
}

// LogValue keeps the email out of logs.
func (identity *Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", identity.UserID),
		slog.String("session_id", identity.SessionID),
		slog.String("role", string(identity.Role)),
	)
}

/*
WithIdentity attaches the caller.

When a request logger is present it is replaced by one carrying the caller,
so every later log line of the request names the user and session.
*/
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, identity)
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		ctx = WithLogger(ctx, logger.With(slog.Any("caller", identity)))
	}
	return ctx
}

// GetIdentity returns the caller, or nil for anonymous requests.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity
}
