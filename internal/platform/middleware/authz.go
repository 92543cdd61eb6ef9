// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/constants"
	"github.com/taibuivan/bazaar/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/bazaar/internal/platform/request"
	"github.com/taibuivan/bazaar/internal/platform/respond"
	"github.com/taibuivan/bazaar/internal/platform/sec"
)

// TokenVerifier verifies signed tokens. [*sec.TokenService] implements it.
type TokenVerifier interface {
	Verify(kind sec.TokenKind, token string) (*sec.Claims, error)
}

// Authenticate resolves the caller from the access token, if any.
//
// # Flow
//  1. Read the token from 'Authorization: Bearer <token>', falling back to the accessToken cookie.
//  2. If absent, the request proceeds as anonymous.
//  3. If present and valid, inject a [ctxutil.Identity] into the request context.
//  4. If present but invalid or expired, the request proceeds as anonymous;
//     [RequireAuth] turns that into a 401 on protected routes only, so public
//     routes such as logout and refresh keep working with a stale cookie.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			token := requestutil.BearerToken(request)
			if token == "" {
				token = requestutil.CookieValue(request, constants.AccessTokenCookieName)
			}

			if token == "" {
				next.ServeHTTP(writer, request)
				return
			}

			claims, err := verifier.Verify(sec.TokenAccess, token)
			if err != nil {
				ctxutil.GetLogger(request.Context()).DebugContext(request.Context(), "access_token_rejected",
					slog.String("reason", err.Error()),
				)
				next.ServeHTTP(writer, request)
				return
			}

			noteIdentity(writer, claims.UserID)
			ctx := ctxutil.WithIdentity(request.Context(), &ctxutil.Identity{
				UserID:    claims.UserID,
				SessionID: claims.SessionID,
				Role:      claims.Role,
				Verified:  claims.Verified,
				Email:     claims.Email,
			})
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if ctxutil.GetIdentity(request.Context()) == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests whose role is below the required one.
//
// It implies [RequireAuth] so you don't need to mount both. An unknown role
// panics at wiring time; it would otherwise admit every authenticated caller.
func RequireRole(role sec.UserRole) func(http.Handler) http.Handler {
	if !role.Valid() {
		panic("middleware: RequireRole with unknown role " + string(role))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			identity := ctxutil.GetIdentity(request.Context())

			if identity == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			if !identity.Role.AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
