// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/clock"
	"github.com/taibuivan/bazaar/internal/platform/ctxutil"
	"github.com/taibuivan/bazaar/internal/platform/mail"
	"github.com/taibuivan/bazaar/internal/platform/metrics"
	"github.com/taibuivan/bazaar/internal/platform/sec"
	"github.com/taibuivan/bazaar/pkg/pointer"
	"github.com/taibuivan/bazaar/pkg/textnorm"
	"github.com/taibuivan/bazaar/pkg/uuid"
)

// # Contracts & Types

// TokenIssuer signs and verifies access and refresh tokens. [*sec.TokenService] implements it.
type TokenIssuer interface {
	Sign(kind sec.TokenKind, claims sec.Claims) (string, time.Time, error)
	Verify(kind sec.TokenKind, token string) (*sec.Claims, error)
}

// Dependencies bundles what [NewService] needs.
type Dependencies struct {
	Store   Store
	Tokens  TokenIssuer
	Hasher  *sec.PasswordHasher
	Mailer  mail.Mailer
	Clock   clock.Clock
	Metrics *metrics.Metrics

	// AppOrigin prefixes every emailed link, e.g. "https://shop.example.com".
	AppOrigin string
}

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, token
// claims, or session revocation must be reviewed by the security team.
type Service struct {
	store     Store
	tokens    TokenIssuer
	hasher    *sec.PasswordHasher
	mailer    mail.Mailer
	clock     clock.Clock
	metrics   *metrics.Metrics
	appOrigin string

	codes    *CodeManager
	sessions *SessionManager

	// dummyHash is compared against on logins for unknown emails so both
	// branches pay for one bcrypt comparison.
	dummyHash string
}

// NewService constructs a new [Service].
func NewService(deps Dependencies) (*Service, error) {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}

	dummyHash, err := deps.Hasher.Hash("bazaar-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("auth_service_dummy_hash_failed: %w", err)
	}

	return &Service{
		store:     deps.Store,
		tokens:    deps.Tokens,
		hasher:    deps.Hasher,
		mailer:    deps.Mailer,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		appOrigin: strings.TrimRight(deps.AppOrigin, "/"),
		codes:     NewCodeManager(deps.Store.Codes(), deps.Clock),
		sessions:  NewSessionManager(deps.Store.Sessions(), deps.Clock),
		dummyHash: dummyHash,
	}, nil
}

// Codes exposes the code manager for maintenance jobs.
func (service *Service) Codes() *CodeManager { return service.codes }

// Sessions exposes the session manager for maintenance jobs.
func (service *Service) Sessions() *SessionManager { return service.sessions }

// TokenPair is what a client receives after authenticating.
//
// RefreshToken is empty when a refresh did not rotate it; the client keeps
// using the one it already holds.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is returned by every flow that opens a session.
type AuthResult struct {
	User   *User
	Stores []StoreRef
	Tokens TokenPair
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	UserAgent string
}

/*
Register creates an unverified account, emails a verification link and
opens a first session.

The account and its verification code are written in one transaction. The
email is sent after commit; a delivery failure is logged and does not undo
the registration.

Returns:
  - *AuthResult: The new user with a fresh token pair
  - error: Conflict when the email is taken, or internal failures
*/
func (service *Service) Register(context context.Context, input RegisterInput) (result *AuthResult, err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventRegister, err) }()

	email := textnorm.Email(input.Email)

	if _, err := service.store.Users().FindByEmail(context, email); err == nil {
		return nil, apperr.Conflict("Email already in use")
	} else if !isNotFound(err) {
		return nil, err
	}

	passwordHash, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	now := service.clock.Now()
	user := &User{
		ID:           uuid.New(),
		Name:         textnorm.Name(input.Name),
		Email:        email,
		PasswordHash: &passwordHash,
		Role:         sec.RoleUser,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var issued *IssuedCode
	err = service.store.InTx(context, func(tx Store) error {
		if err := tx.Users().Create(context, user); err != nil {
			if apperr.StatusOf(err) == http.StatusConflict {
				return apperr.Conflict("Email already in use")
			}
			return err
		}

		issued, err = service.codes.In(tx).Issue(context, user.ID, CodeEmailVerification, RegistrationCodeTTL, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := service.sendVerification(context, user, issued.Secret); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "verification_email_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	result, err = service.openSession(context, user, input.UserAgent)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_registered", slog.String("user_id", user.ID))
	return result, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
}

/*
Login validates credentials and opens a new session.

Unknown emails, password-less (OAuth) accounts and wrong passwords all
yield the same Unauthorized error.

Returns:
  - *AuthResult: User, store memberships and tokens
  - error: Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (result *AuthResult, err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventLogin, err) }()

	invalid := apperr.Unauthorized("Invalid email or password")

	user, err := service.store.Users().FindByEmail(context, textnorm.Email(input.Email))
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		service.hasher.Compare(input.Password, service.dummyHash)
		return nil, invalid
	}

	if !user.HasPassword() {
		service.hasher.Compare(input.Password, service.dummyHash)
		return nil, invalid
	}

	if !service.hasher.Compare(input.Password, *user.PasswordHash) {
		return nil, invalid
	}

	result, err = service.openSession(context, user, input.UserAgent)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_logged_in", slog.String("user_id", user.ID))
	return result, nil
}

// OAuthProfile is the identity asserted by an external provider.
type OAuthProfile struct {
	Provider string
	Email    string
	Name     string
	Photo    string
}

/*
OAuthCallback finds or creates the account for a provider-verified email and
opens a session.

New accounts are created verified and without a password. An existing
unverified account is marked verified, since the provider vouched for the
address.
*/
func (service *Service) OAuthCallback(context context.Context, profile OAuthProfile, userAgent string) (result *AuthResult, err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventOAuth, err) }()

	email := textnorm.Email(profile.Email)
	if email == "" {
		return nil, apperr.BadRequest("OAuth provider did not return an email address")
	}

	user, err := service.findOrCreateOAuthUser(context, email, profile)
	if err != nil {
		return nil, err
	}

	result, err = service.openSession(context, user, userAgent)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_oauth_login",
		slog.String("user_id", user.ID),
		slog.String("provider", profile.Provider),
	)
	return result, nil
}

func (service *Service) findOrCreateOAuthUser(context context.Context, email string, profile OAuthProfile) (*User, error) {
	users := service.store.Users()

	user, err := users.FindByEmail(context, email)
	if err == nil {
		if !user.Verified {
			if err := users.MarkVerified(context, user.ID); err != nil {
				return nil, err
			}
			user.Verified = true
		}
		return user, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	name := textnorm.Name(profile.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	now := service.clock.Now()
	user = &User{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Role:      sec.RoleUser,
		Photo:     pointer.NonZero(profile.Photo),
		Verified:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := users.Create(context, user); err != nil {
		// Lost a race with a concurrent first login for the same email.
		if apperr.StatusOf(err) == http.StatusConflict {
			return users.FindByEmail(context, email)
		}
		return nil, err
	}

	return user, nil
}

// openSession creates a session and the token pair bound to it.
func (service *Service) openSession(context context.Context, user *User, userAgent string) (*AuthResult, error) {
	session, err := service.sessions.Create(context, user.ID, userAgent)
	if err != nil {
		return nil, err
	}

	access, accessExpiresAt, err := service.signAccess(user, session.ID)
	if err != nil {
		return nil, err
	}

	refresh, refreshExpiresAt, err := service.tokens.Sign(sec.TokenRefresh, sec.Claims{SessionID: session.ID})
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	stores, err := service.store.Users().ListStores(context, user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:   user,
		Stores: stores,
		Tokens: TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExpiresAt,
			RefreshToken:     refresh,
			RefreshExpiresAt: refreshExpiresAt,
		},
	}, nil
}

func (service *Service) signAccess(user *User, sessionID string) (string, time.Time, error) {
	token, expiresAt, err := service.tokens.Sign(sec.TokenAccess, sec.Claims{
		UserID:    user.ID,
		SessionID: sessionID,
		Role:      user.Role,
		Verified:  user.Verified,
		Email:     user.Email,
		Name:      user.Name,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth_service_access_token_failed: %w", err)
	}
	return token, expiresAt, nil
}

// # Session Management

/*
Refresh exchanges a refresh token for a new access token.

The session row decides liveness: a validly signed token whose session was
revoked or has expired is rejected. Inside the renewal window the session is
extended and a new refresh token is returned; otherwise RefreshToken is empty.

Returns:
  - *TokenPair: The new access token and, when rotated, the new refresh token
  - error: Unauthorized or internal failures
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (pair *TokenPair, err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventRefresh, err) }()

	if refreshToken == "" {
		return nil, apperr.Unauthorized("Missing refresh token")
	}

	claims, err := service.tokens.Verify(sec.TokenRefresh, refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid refresh token")
	}

	session, err := service.sessions.Active(context, claims.SessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Unauthorized("Session expired")
		}
		return nil, err
	}

	user, err := service.store.Users().FindByID(context, session.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Unauthorized("Session expired")
		}
		return nil, err
	}

	rotated, err := service.sessions.Touch(context, session)
	if err != nil {
		return nil, err
	}

	access, accessExpiresAt, err := service.signAccess(user, session.ID)
	if err != nil {
		return nil, err
	}
	pair = &TokenPair{AccessToken: access, AccessExpiresAt: accessExpiresAt}

	if rotated {
		pair.RefreshToken, pair.RefreshExpiresAt, err = service.tokens.Sign(sec.TokenRefresh, sec.Claims{SessionID: session.ID})
		if err != nil {
			return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
		}
	}

	return pair, nil
}

/*
Logout revokes the session named by an access token.

It never fails: a missing, forged or expired token, or a storage error,
only means there is nothing more to revoke. The caller clears cookies
regardless.
*/
func (service *Service) Logout(context context.Context, accessToken string) {
	var err error
	defer func() { service.metrics.AuthEvent(metrics.EventLogout, err) }()

	if accessToken == "" {
		return
	}

	claims, verifyErr := service.tokens.Verify(sec.TokenAccess, accessToken)
	if verifyErr != nil {
		return
	}

	if err = service.sessions.Revoke(context, claims.SessionID); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "logout_revoke_failed",
			slog.String("session_id", claims.SessionID),
			slog.Any("error", err),
		)
	}
}

// # Profile

// Profile returns the user with their store memberships.
func (service *Service) Profile(context context.Context, userID string) (*User, []StoreRef, error) {
	user, err := service.store.Users().FindByID(context, userID)
	if err != nil {
		return nil, nil, err
	}

	stores, err := service.store.Users().ListStores(context, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, stores, nil
}

// ChangeName updates the display name and returns the updated user.
func (service *Service) ChangeName(context context.Context, userID, name string) (*User, error) {
	name = textnorm.Name(name)
	if name == "" {
		return nil, apperr.BadRequest("Name must not be empty")
	}
	return service.store.Users().UpdateName(context, userID, name)
}

/*
ChangePassword replaces the password and revokes every session of the user,
including the caller's.

Checks run in order: the account exists, it has a password, the old password
matches, and the new one differs from it.
*/
func (service *Service) ChangePassword(context context.Context, userID, oldPassword, newPassword string) (err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventChangePassword, err) }()

	user, err := service.store.Users().FindByID(context, userID)
	if err != nil {
		return err
	}

	if !user.HasPassword() {
		return apperr.BadRequest("Account has no password; sign in with your OAuth provider")
	}

	if !service.hasher.Compare(oldPassword, *user.PasswordHash) {
		return apperr.Unauthorized("Invalid old password")
	}

	// Compared through the hasher: inputs sharing their first 72 bytes are the same password.
	if service.hasher.Compare(newPassword, *user.PasswordHash) {
		return apperr.BadRequest("New password must be different from the old password")
	}

	passwordHash, err := service.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	var revoked int64
	err = service.store.InTx(context, func(tx Store) error {
		if err := tx.Users().UpdatePassword(context, user.ID, passwordHash); err != nil {
			return err
		}
		revoked, err = service.sessions.In(tx).RevokeAll(context, user.ID)
		return err
	})
	if err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_changed",
		slog.String("user_id", user.ID),
		slog.Int64("sessions_revoked", revoked),
	)
	return nil
}

// # Email Verification

/*
VerifyEmail redeems an email verification code and marks its owner verified.
The code is consumed in the same transaction.

Returns:
  - *User: The now verified account
  - error: Unauthorized when the code is unknown, used or expired
*/
func (service *Service) VerifyEmail(context context.Context, code string) (user *User, err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventVerifyEmail, err) }()

	var userID string
	err = service.store.InTx(context, func(tx Store) error {
		redeemed, err := service.codes.In(tx).Redeem(context, code, CodeEmailVerification)
		if err != nil {
			if isNotFound(err) {
				return apperr.Unauthorized("Invalid or expired verification code")
			}
			return err
		}

		userID = redeemed.UserID
		return tx.Users().MarkVerified(context, redeemed.UserID)
	})
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "email_verified", slog.String("user_id", userID))
	return service.store.Users().FindByID(context, userID)
}

/*
ResendVerification replaces any outstanding verification code with a new
one valid for [ResendCodeTTL] and emails it.
*/
func (service *Service) ResendVerification(context context.Context, userID string) (err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventResend, err) }()

	user, err := service.store.Users().FindByID(context, userID)
	if err != nil {
		return err
	}

	if user.Verified {
		return apperr.BadRequest("Email is already verified")
	}

	// Replacing deletes the live code; the delete must not outlive a failed insert.
	var issued *IssuedCode
	err = service.store.InTx(context, func(tx Store) error {
		issued, err = service.codes.In(tx).Issue(context, user.ID, CodeEmailVerification, ResendCodeTTL, true)
		return err
	})
	if err != nil {
		return err
	}

	if err := service.sendVerification(context, user, issued.Secret); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "verification_email_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		return apperr.BadRequest("Failed to send verification email")
	}

	return nil
}

func (service *Service) sendVerification(context context.Context, user *User, secret string) error {
	link := fmt.Sprintf("%s/auth/email/verify/%s", service.appOrigin, url.PathEscape(secret))

	message, err := mail.VerifyEmail(user.Email, link)
	if err != nil {
		return err
	}
	return service.send(context, message)
}

func (service *Service) send(context context.Context, message mail.Message) error {
	id, err := service.mailer.Send(context, message)
	if err != nil {
		service.metrics.MailFailed()
		return err
	}
	ctxutil.GetLogger(context).DebugContext(context, "mail_sent", slog.String("message_id", id))
	return nil
}

// # Password Recovery

/*
RequestPasswordReset emails a reset link valid for [ResetCodeTTL].

At most [ResetRateLimit] codes are issued per user within [ResetRateWindow].
The count and the insert run under a row lock on the account so concurrent
requests cannot exceed the limit.

Returns:
  - error: NotFound for unknown emails, TooManyRequests, or a 500 when the
    email could not be sent
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) (err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventForgotPassword, err) }()

	user, err := service.store.Users().FindByEmail(context, textnorm.Email(email))
	if err != nil {
		return err
	}

	var issued *IssuedCode
	err = service.store.InTx(context, func(tx Store) error {
		if err := tx.Users().LockByID(context, user.ID); err != nil {
			return err
		}

		codes := service.codes.In(tx)
		recent, err := codes.CountRecent(context, user.ID, CodePasswordReset, ResetRateWindow)
		if err != nil {
			return err
		}
		if recent >= ResetRateLimit {
			return apperr.TooManyRequests("Too many requests, please try again later")
		}

		issued, err = codes.Issue(context, user.ID, CodePasswordReset, ResetCodeTTL, false)
		return err
	})
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/password/reset?code=%s&exp=%d",
		service.appOrigin,
		url.QueryEscape(issued.Secret),
		issued.Code.ExpiresAt.UnixMilli(),
	)

	message, err := mail.ResetPassword(user.Email, link)
	if err == nil {
		err = service.send(context, message)
	}
	if err != nil {
		return apperr.InternalMsg("Failed to send password reset email", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_reset_requested", slog.String("user_id", user.ID))
	return nil
}

/*
ResetPassword redeems a reset code, sets the new password and revokes every
session of the user, all in one transaction.
*/
func (service *Service) ResetPassword(context context.Context, code, newPassword string) (err error) {
	defer func() { service.metrics.AuthEvent(metrics.EventResetPassword, err) }()

	passwordHash, err := service.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	var userID string
	err = service.store.InTx(context, func(tx Store) error {
		redeemed, err := service.codes.In(tx).Redeem(context, code, CodePasswordReset)
		if err != nil {
			if isNotFound(err) {
				return apperr.Conflict("Invalid or expired password reset code")
			}
			return err
		}

		userID = redeemed.UserID
		if err := tx.Users().UpdatePassword(context, redeemed.UserID, passwordHash); err != nil {
			return err
		}
		_, err = service.sessions.In(tx).RevokeAll(context, redeemed.UserID)
		return err
	})
	if err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_reset", slog.String("user_id", userID))
	return nil
}

// isNotFound reports whether err carries a 404 status.
func isNotFound(err error) bool {
	return apperr.StatusOf(err) == http.StatusNotFound
}
