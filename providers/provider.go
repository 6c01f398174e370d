package providers

import (
	"context"
	"time"
)

// Authenticator is the minimal contract between a provider and the
// enforcement middleware: validate inbound credentials and report the
// outcome.
//
// Authenticate never returns a Go error for expected authentication
// failures (invalid or expired tokens, unknown API keys); those are carried
// inside the AuthResult so callers can distinguish "not authenticated" from
// "the provider call itself broke". Infrastructure failures (timeouts,
// unreachable provider) surface as result errors satisfying IsRetryable.
type Authenticator interface {
	// Name returns the provider name (e.g. "google", "github", "jwt")
	Name() string

	// Authenticate validates the supplied credentials and returns the
	// outcome. The result is never nil.
	Authenticate(ctx context.Context, creds Credentials) *AuthResult
}

// OAuthProvider is an Authenticator that implements the OAuth 2.0
// authorization code flow with PKCE against an external identity provider.
type OAuthProvider interface {
	Authenticator

	// AuthorizationURL builds the provider authorization URL for a new
	// authorization attempt. A fresh PKCE pair is generated per call; if
	// state is empty a random state is generated. Pure apart from entropy
	// use: no I/O.
	//
	// The caller must persist the returned state and compare it against the
	// state echoed in the provider callback before exchanging the code
	// (CSRF defense). This library does not store state itself.
	AuthorizationURL(state string) (*Authorization, error)

	// ExchangeCode exchanges an authorization code for tokens, presenting
	// the PKCE verifier from the matching AuthorizationURL call.
	// A definitive provider rejection is returned as *TokenExchangeError.
	ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error)

	// RefreshToken obtains a fresh access token using a refresh token.
	// A definitive rejection is returned as *TokenRefreshError and means
	// re-authentication is required; it is not transient.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)

	// UserInfo fetches user information from the provider's identity
	// endpoint. Every provider normalizes at least one stable identifying
	// field into UserInfo.ID.
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)

	// SupportsRefresh reports whether the provider issues refresh tokens.
	SupportsRefresh() bool
}

// Credentials are the raw authentication inputs extracted from an inbound
// request: either a bearer access token, or the parameters of a completed
// authorization-code callback.
type Credentials struct {
	// AccessToken is a bearer token presented directly by the caller.
	AccessToken string

	// RefreshToken optionally accompanies AccessToken and enables
	// automatic refresh when the access token expires.
	RefreshToken string

	// Code is an authorization code from a provider callback.
	Code string

	// State is the CSRF state echoed by the provider callback. The
	// caller must compare it against the state from AuthorizationURL
	// before exchanging Code; providers do not hold flow state.
	State string

	// Verifier is the PKCE code verifier matching the authorization
	// attempt that produced Code.
	Verifier string

	// Scopes optionally declares the scopes the caller believes the
	// token carries; providers may override from the token response.
	Scopes []string
}

// Empty reports whether the credentials carry nothing usable.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.Code == ""
}

// Authorization is the result of starting an authorization attempt.
type Authorization struct {
	// URL is the provider authorization URL to redirect the user to.
	URL string

	// State is the CSRF state embedded in URL. The caller correlates it
	// with the provider callback.
	State string

	// Verifier is the PKCE code verifier to present at code exchange.
	// It must be held by the caller and discarded after the exchange.
	Verifier string
}

// TokenResponse is a normalized provider token response.
type TokenResponse struct {
	// AccessToken is the short-lived credential for protected resources.
	AccessToken string

	// RefreshToken is the long-lived credential for obtaining new access
	// tokens. Empty when the provider did not issue one.
	RefreshToken string

	// ExpiresAt is when AccessToken expires. Zero means no known expiry.
	ExpiresAt time.Time

	// TokenType is the token type, normally "Bearer".
	TokenType string

	// Scopes are the granted scopes, which may differ from the requested
	// ones.
	Scopes []string

	// Raw holds provider extras worth preserving (e.g. id_token).
	Raw map[string]any
}

// UserInfo represents normalized user information from a provider.
type UserInfo struct {
	// ID is the stable unique user identifier from the provider.
	ID string

	// Email is the user's email address.
	Email string

	// EmailVerified indicates if the email is verified.
	EmailVerified bool

	// Username is the user's login or handle where the provider has one.
	Username string

	// Name is the user's display name.
	Name string

	// Picture is the URL of the user's profile picture.
	Picture string

	// Locale is the user's preferred locale.
	Locale string
}

// AuthResult is the outcome of an Authenticate call.
type AuthResult struct {
	// Success reports whether authentication succeeded.
	Success bool

	// UserInfo is set on success.
	UserInfo *UserInfo

	// Token is set on success and carries the validated or newly issued
	// tokens.
	Token *TokenResponse

	// Err describes the failure when Success is false.
	Err error
}

// AuthSuccess builds a successful AuthResult.
func AuthSuccess(info *UserInfo, token *TokenResponse) *AuthResult {
	return &AuthResult{Success: true, UserInfo: info, Token: token}
}

// AuthFailure builds a failed AuthResult.
func AuthFailure(err error) *AuthResult {
	return &AuthResult{Success: false, Err: err}
}
