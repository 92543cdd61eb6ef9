// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OAuthProvider runs the authorization-code flow against one identity provider.
type OAuthProvider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// AuthCodeURL returns the consent page URL carrying state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for the user's profile.
	Exchange(context context.Context, code string) (*OAuthProfile, error)
}

// GoogleUserInfoURL is the OpenID Connect userinfo endpoint.
const GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleConfig configures [GoogleProvider].
//
// Endpoint and UserInfoURL default to Google's production endpoints.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

// GoogleProvider implements [OAuthProvider] for Google accounts.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a new GoogleProvider.
func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

func (provider *GoogleProvider) Name() string { return "google" }

func (provider *GoogleProvider) AuthCodeURL(state string) string {
	return provider.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// googleUserInfo is the subset of the userinfo response we read.
type googleUserInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

/*
Exchange completes the flow and fetches the userinfo document.

An address Google has not verified is dropped, which makes the callback
fail the same way as a profile without an email.
*/
func (provider *GoogleProvider) Exchange(context context.Context, code string) (*OAuthProfile, error) {
	token, err := provider.config.Exchange(context, code)
	if err != nil {
		return nil, fmt.Errorf("oauth_google_exchange_failed: %w", err)
	}

	request, err := http.NewRequestWithContext(context, http.MethodGet, provider.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("oauth_google_userinfo_request_failed: %w", err)
	}

	response, err := provider.config.Client(context, token).Do(request)
	if err != nil {
		return nil, fmt.Errorf("oauth_google_userinfo_failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil, fmt.Errorf("oauth_google_userinfo_failed: status %d", response.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(io.LimitReader(response.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("oauth_google_userinfo_decode_failed: %w", err)
	}

	profile := &OAuthProfile{
		Provider: provider.Name(),
		Name:     info.Name,
		Photo:    info.Picture,
	}
	if info.EmailVerified {
		profile.Email = info.Email
	}
	return profile, nil
}
