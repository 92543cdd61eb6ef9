// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"time"

	"github.com/taibuivan/bazaar/internal/platform/constants"
)

// cookieJar writes the auth cookies with environment-dependent flags.
//
// In production the frontend lives on another site, so cookies must be
// SameSite=None, which browsers only accept together with Secure.
type cookieJar struct {
	production bool
}

func (jar cookieJar) cookie(name, value, path string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   jar.production,
		SameSite: http.SameSiteLaxMode,
	}
	if jar.production {
		cookie.SameSite = http.SameSiteNoneMode
	}
	if expires.IsZero() {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	}
	return cookie
}

// setTokens writes the access cookie and, when present, the refresh cookie.
func (jar cookieJar) setTokens(writer http.ResponseWriter, pair TokenPair) {
	http.SetCookie(writer, jar.cookie(constants.AccessTokenCookieName, pair.AccessToken,
		constants.AccessTokenCookiePath, pair.AccessExpiresAt))

	if pair.RefreshToken != "" {
		http.SetCookie(writer, jar.cookie(constants.RefreshTokenCookieName, pair.RefreshToken,
			constants.RefreshTokenCookiePath, pair.RefreshExpiresAt))
	}
}

// clearTokens expires both auth cookies on their original paths.
func (jar cookieJar) clearTokens(writer http.ResponseWriter) {
	http.SetCookie(writer, jar.cookie(constants.AccessTokenCookieName, "", constants.AccessTokenCookiePath, time.Time{}))
	http.SetCookie(writer, jar.cookie(constants.RefreshTokenCookieName, "", constants.RefreshTokenCookiePath, time.Time{}))
}

// setState stores the OAuth anti-forgery state for the callback path only.
func (jar cookieJar) setState(writer http.ResponseWriter, state string, now time.Time) {
	http.SetCookie(writer, jar.oauthState(state, now.Add(constants.OAuthStateTTL)))
}

func (jar cookieJar) clearState(writer http.ResponseWriter) {
	http.SetCookie(writer, jar.oauthState("", time.Time{}))
}

// oauthState is Lax even in production: the provider redirects back with a
// top-level GET, which Lax cookies survive.
func (jar cookieJar) oauthState(value string, expires time.Time) *http.Cookie {
	cookie := jar.cookie(constants.OAuthStateCookieName, value, oauthCallbackPath, expires)
	cookie.SameSite = http.SameSiteLaxMode
	return cookie
}

const oauthCallbackPath = "/auth/google"
