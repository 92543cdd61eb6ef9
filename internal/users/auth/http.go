// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/bazaar/internal/platform/constants"
	"github.com/taibuivan/bazaar/internal/platform/ctxutil"
	"github.com/taibuivan/bazaar/internal/platform/middleware"
	requestutil "github.com/taibuivan/bazaar/internal/platform/request"
	"github.com/taibuivan/bazaar/internal/platform/respond"
	"github.com/taibuivan/bazaar/internal/platform/sec"
	"github.com/taibuivan/bazaar/internal/platform/validate"
)

// # Definitions & Constructors

// HandlerConfig holds transport settings for [Handler].
type HandlerConfig struct {
	// Production switches cookies to Secure + SameSite=None.
	Production bool

	// AppOrigin is where the OAuth callback sends the browser afterwards.
	AppOrigin string

	// Janitor, when set, exposes an on-demand purge to administrators.
	Janitor *Janitor
}

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages every entry point of the account lifecycle. It owns
// cookie handling and input validation; all rules live in [Service].
type Handler struct {
	service   *Service
	oauth     OAuthProvider
	cookies   cookieJar
	appOrigin string
	janitor   *Janitor
}

// NewHandler constructs a new [Handler]. A nil oauth provider disables the
// /google routes.
func NewHandler(service *Service, oauth OAuthProvider, cfg HandlerConfig) *Handler {
	return &Handler{
		service:   service,
		oauth:     oauth,
		cookies:   cookieJar{production: cfg.Production},
		appOrigin: strings.TrimRight(cfg.AppOrigin, "/"),
		janitor:   cfg.Janitor,
	}
}

// Routes returns a [chi.Router] configured with authentication routes.
//
// # Endpoints
//   - POST  /register            : Creates an account and opens a session.
//   - POST  /login               : Authenticates with email and password.
//   - GET   /refresh             : Exchanges the refresh cookie for a new access token.
//   - POST  /logout              : Revokes the current session (best-effort).
//   - GET   /email/verify/{code} : Redeems an email verification code.
//   - POST  /password/forgot     : Emails a password reset link.
//   - POST  /password/reset      : Redeems a reset code and sets a new password.
//   - GET   /me                  : Returns the caller's profile. (auth)
//   - PATCH /changename          : Updates the display name. (auth)
//   - PATCH /changepassword      : Updates the password, signing out everywhere. (auth)
//   - POST  /resend/email        : Sends a fresh verification link. (auth)
//   - GET   /google[/callback]   : Google OAuth round trip, when configured.
//   - POST  /admin/purge         : Deletes expired sessions and codes now. (admin)
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Get("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Get("/email/verify/{code}", handler.verifyEmail)
	router.Post("/password/forgot", handler.forgotPassword)
	router.Post("/password/reset", handler.resetPassword)

	if handler.oauth != nil {
		router.Get("/google", handler.googleStart)
		router.Get("/google/callback", handler.googleCallback)
	}

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/me", handler.me)
		r.Patch("/changename", handler.changeName)
		r.Patch("/changepassword", handler.changePassword)
		r.Post("/resend/email", handler.resendVerification)
	})

	if handler.janitor != nil {
		router.With(middleware.RequireRole(sec.RoleAdmin)).Post("/admin/purge", handler.purge)
	}

	return router
}

// # Request Payloads

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changeNameRequest struct {
	NewName string `json:"newName"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password         string `json:"password"`
	ConfirmPassword  string `json:"confirmPassword"`
	VerificationCode string `json:"verificationCode"`
}

// # Response Payloads

type sessionResponse struct {
	User         *User      `json:"user"`
	Stores       []StoreRef `json:"stores"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

func newSessionResponse(result *AuthResult) sessionResponse {
	stores := result.Stores
	if stores == nil {
		stores = []StoreRef{}
	}
	return sessionResponse{
		User:         result.User,
		Stores:       stores,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	}
}

type profileResponse struct {
	User   *User      `json:"user"`
	Stores []StoreRef `json:"stores"`
}

type refreshResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
	RefreshToken    string    `json:"refreshToken,omitempty"`
}

// # Shared Rules

func validateEmail(validator *validate.Validator, email string) {
	validator.Required(FieldEmail, email).
		MaxLen(FieldEmail, email, MaxEmailLength).
		Email(FieldEmail, email)
}

func validatePassword(validator *validate.Validator, field, password string) {
	validator.MinLen(field, password, MinPasswordLength).
		MaxLen(field, password, MaxPasswordLength)
}

func validateCode(validator *validate.Validator, field, code string) {
	validator.Required(field, code).
		MaxLen(field, code, MaxCodeLength).
		Token(field, code)
}

// # Registration & Login

/*
register handles the creation of a new user account.

POST /auth/register

Response:
  - 201: sessionResponse, with auth cookies set
  - 400: Validation failure
  - 409: Email already in use
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldName, input.Name).MaxLen(FieldName, input.Name, MaxNameLength).Printable(FieldName, input.Name)
	validateEmail(validator, input.Email)
	validatePassword(validator, FieldPassword, input.Password)
	validator.Matches(FieldConfirmPassword, input.ConfirmPassword, input.Password, "Passwords do not match")
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Register(request.Context(), RegisterInput{
		Name:      input.Name,
		Email:     input.Email,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.setTokens(writer, result.Tokens)
	respond.Created(writer, newSessionResponse(result))
}

/*
login authenticates with email and password.

POST /auth/login

Response:
  - 200: sessionResponse, with auth cookies set
  - 401: Invalid email or password
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validateEmail(validator, input.Email)
	validatePassword(validator, FieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.setTokens(writer, result.Tokens)
	respond.OK(writer, newSessionResponse(result))
}

// # Session Lifecycle

/*
refresh mints a new access token from the refresh cookie.

GET /auth/refresh

The refresh cookie is path-scoped to this endpoint, so it is the only place
the browser sends it. A new refresh cookie is set only when the session was
renewed.
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	token := requestutil.CookieValue(request, constants.RefreshTokenCookieName)

	pair, err := handler.service.Refresh(request.Context(), token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.setTokens(writer, *pair)
	respond.OK(writer, refreshResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
		RefreshToken:    pair.RefreshToken,
	})
}

/*
logout revokes the session behind the presented access token.

POST /auth/logout

Always 200. Cookies are cleared even when the token was already invalid.
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	token := requestutil.BearerToken(request)
	if token == "" {
		token = requestutil.CookieValue(request, constants.AccessTokenCookieName)
	}

	handler.service.Logout(request.Context(), token)

	handler.cookies.clearTokens(writer)
	respond.Message(writer, "Logout successful")
}

// # Profile

// me returns the caller's profile and store memberships.
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, stores, err := handler.service.Profile(request.Context(), identity.UserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if stores == nil {
		stores = []StoreRef{}
	}

	respond.OK(writer, profileResponse{User: user, Stores: stores})
}

func (handler *Handler) changeName(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changeNameRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldNewName, input.NewName).MaxLen(FieldNewName, input.NewName, MaxNameLength).Printable(FieldNewName, input.NewName)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.ChangeName(request.Context(), identity.UserID, input.NewName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

/*
changePassword replaces the caller's password.

PATCH /auth/changepassword

Every session is revoked, the caller's included, so the cookies are cleared
and the client has to log in again.
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldOldPassword, input.OldPassword).
		MaxLen(FieldOldPassword, input.OldPassword, MaxPasswordLength)
	validatePassword(validator, FieldNewPassword, input.NewPassword)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ChangePassword(request.Context(), identity.UserID, input.OldPassword, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.clearTokens(writer)
	respond.Message(writer, "Password updated")
}

// # Email Verification

// verifyEmail redeems the code from the emailed link.
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	code := requestutil.Param(request, FieldCode)

	validator := &validate.Validator{}
	validateCode(validator, FieldCode, code)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.VerifyEmail(request.Context(), code)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

func (handler *Handler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	identity, err := requestutil.RequiredIdentity(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ResendVerification(request.Context(), identity.UserID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, "Verification email sent")
}

// # Password Recovery

func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validateEmail(validator, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Message(writer, "Please check your email for password reset instructions")
}

func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validatePassword(validator, FieldPassword, input.Password)
	validator.Matches(FieldConfirmPassword, input.ConfirmPassword, input.Password, "Passwords do not match")
	validateCode(validator, FieldVerificationCode, input.VerificationCode)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ResetPassword(request.Context(), input.VerificationCode, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.clearTokens(writer)
	respond.Message(writer, "Password reset successful")
}

// # OAuth

/*
googleStart redirects the browser to the Google consent page.

GET /auth/google

A random state is stored in a short-lived cookie and echoed by Google; the
callback rejects any response whose state does not match.
*/
func (handler *Handler) googleStart(writer http.ResponseWriter, request *http.Request) {
	state, err := sec.GenerateSecureToken(16)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.setState(writer, state, handler.service.clock.Now())
	http.Redirect(writer, request, handler.oauth.AuthCodeURL(state), http.StatusFound)
}

/*
googleCallback completes the OAuth round trip.

GET /auth/google/callback

On success the auth cookies are set and the browser goes to the app origin;
on any failure it goes to the app's login page with an error flag.
*/
func (handler *Handler) googleCallback(writer http.ResponseWriter, request *http.Request) {
	logger := ctxutil.GetLogger(request.Context())
	query := request.URL.Query()

	expected := requestutil.CookieValue(request, constants.OAuthStateCookieName)
	handler.cookies.clearState(writer)

	if providerError := query.Get("error"); providerError != "" {
		logger.WarnContext(request.Context(), "oauth_denied", slog.String("reason", providerError))
		handler.failOAuth(writer, request)
		return
	}

	if expected == "" || !sec.EqualTokenHash(expected, query.Get("state")) {
		logger.WarnContext(request.Context(), "oauth_state_mismatch")
		handler.failOAuth(writer, request)
		return
	}

	profile, err := handler.oauth.Exchange(request.Context(), query.Get("code"))
	if err != nil {
		logger.WarnContext(request.Context(), "oauth_exchange_failed", slog.Any("error", err))
		handler.failOAuth(writer, request)
		return
	}

	result, err := handler.service.OAuthCallback(request.Context(), *profile, request.UserAgent())
	if err != nil {
		logger.WarnContext(request.Context(), "oauth_callback_failed", slog.Any("error", err))
		handler.failOAuth(writer, request)
		return
	}

	handler.cookies.setTokens(writer, result.Tokens)
	http.Redirect(writer, request, handler.appOrigin, http.StatusFound)
}

func (handler *Handler) failOAuth(writer http.ResponseWriter, request *http.Request) {
	http.Redirect(writer, request, handler.appOrigin+"/login?error=oauth", http.StatusFound)
}

// # Maintenance

/*
purge runs one janitor pass on demand.

POST /auth/admin/purge
*/
func (handler *Handler) purge(writer http.ResponseWriter, request *http.Request) {
	result, err := handler.janitor.PurgeOnce(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	ctxutil.GetLogger(request.Context()).InfoContext(request.Context(), "manual_purge_completed",
		slog.Int64("sessions", result.Sessions),
		slog.Int64("codes", result.Codes),
	)
	respond.OK(writer, result)
}
