package providers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nextmcp/authkit/pkce"
)

// DefaultHTTPTimeout bounds outbound provider calls when no custom HTTP
// client is supplied.
const DefaultHTTPTimeout = 30 * time.Second

// UserInfoFunc fetches and normalizes user info using an HTTP client that
// is already authorized with the access token.
type UserInfoFunc func(ctx context.Context, client *http.Client) (*UserInfo, error)

// Flow implements the OAuth 2.0 authorization code flow with PKCE shared by
// the concrete OAuth providers. A provider embeds a Flow and supplies its
// endpoint configuration and user-info normalization; the Flow contributes
// the mechanics.
type Flow struct {
	// ProviderName labels errors and log lines
	ProviderName string

	// Config is the oauth2 endpoint configuration
	Config *oauth2.Config

	// HTTPClient is used for all outbound provider calls.
	// Defaults to a client with DefaultHTTPTimeout.
	HTTPClient *http.Client

	// Logger receives structured flow events. Defaults to slog.Default().
	Logger *slog.Logger

	// OfflineAccess requests a refresh token at authorization time
	// (access_type=offline prompt=consent for providers that need it)
	OfflineAccess bool

	// RefreshSupported reports whether the provider issues refresh tokens
	RefreshSupported bool

	// FetchUserInfo retrieves user info from the provider's identity
	// endpoint. Required.
	FetchUserInfo UserInfoFunc
}

// GenerateState generates a cryptographically random CSRF state value.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (f *Flow) httpClient() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

func (f *Flow) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// AuthorizationURL builds the provider authorization URL with a fresh PKCE
// pair. If state is empty a random state is generated.
func (f *Flow) AuthorizationURL(state string) (*Authorization, error) {
	if state == "" {
		var err error
		state, err = GenerateState()
		if err != nil {
			return nil, err
		}
	}

	challenge, err := pkce.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE challenge: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", challenge.Method),
	}
	if f.OfflineAccess {
		opts = append(opts,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
		)
	}

	return &Authorization{
		URL:      f.Config.AuthCodeURL(state, opts...),
		State:    state,
		Verifier: challenge.Verifier,
	}, nil
}

// ExchangeCode exchanges an authorization code for tokens, presenting the
// PKCE verifier.
func (f *Flow) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	if code == "" {
		return nil, &TokenExchangeError{Provider: f.ProviderName, Err: fmt.Errorf("authorization code is required")}
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient())

	token, err := f.Config.Exchange(ctx, code, opts...)
	if err != nil {
		f.logger().Warn("code exchange failed",
			"provider", f.ProviderName,
			"error", err)
		return nil, classifyExchangeErr(f.ProviderName, err)
	}

	f.logger().Debug("code exchange succeeded",
		"provider", f.ProviderName,
		"has_refresh_token", token.RefreshToken != "")

	return f.normalizeToken(token), nil
}

// RefreshToken obtains a fresh access token using a refresh token.
func (f *Flow) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if !f.RefreshSupported {
		return nil, ErrRefreshNotSupported
	}
	if refreshToken == "" {
		return nil, &TokenRefreshError{Provider: f.ProviderName, Err: fmt.Errorf("refresh token is required")}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient())

	src := f.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		f.logger().Warn("token refresh failed",
			"provider", f.ProviderName,
			"error", err)
		return nil, classifyRefreshErr(f.ProviderName, err)
	}

	return f.normalizeToken(token), nil
}

// UserInfo fetches user information from the provider's identity endpoint.
func (f *Flow) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%s: access token is required", f.ProviderName)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient())
	client := f.Config.Client(ctx, &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})

	info, err := f.FetchUserInfo(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get user info: %w", f.ProviderName, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%s: user info missing stable identifier", f.ProviderName)
	}
	return info, nil
}

// SupportsRefresh reports whether the provider issues refresh tokens.
func (f *Flow) SupportsRefresh() bool {
	return f.RefreshSupported
}

// Authenticate validates credentials against the provider. A bearer access
// token is validated by fetching user info; an authorization code is
// exchanged first, then validated the same way.
func (f *Flow) Authenticate(ctx context.Context, creds Credentials) *AuthResult {
	switch {
	case creds.Code != "":
		token, err := f.ExchangeCode(ctx, creds.Code, creds.Verifier)
		if err != nil {
			return AuthFailure(err)
		}
		info, err := f.UserInfo(ctx, token.AccessToken)
		if err != nil {
			return AuthFailure(err)
		}
		return AuthSuccess(info, token)

	case creds.AccessToken != "":
		info, err := f.UserInfo(ctx, creds.AccessToken)
		if err != nil {
			return AuthFailure(err)
		}
		token := &TokenResponse{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			TokenType:    "Bearer",
			Scopes:       creds.Scopes,
		}
		return AuthSuccess(info, token)

	default:
		return AuthFailure(fmt.Errorf("%s: %w: no access token or authorization code", f.ProviderName, ErrInvalidCredentials))
	}
}

// normalizeToken converts an oauth2 token into the provider-neutral form.
func (f *Flow) normalizeToken(token *oauth2.Token) *TokenResponse {
	scopes := f.Config.Scopes
	if granted, ok := token.Extra("scope").(string); ok && granted != "" {
		scopes = SplitScopes(granted)
	}

	resp := &TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		TokenType:    token.TokenType,
		Scopes:       scopes,
	}
	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		resp.Raw = map[string]any{"id_token": idToken}
	}
	return resp
}

// SplitScopes splits a space separated scope string per RFC 6749.
func SplitScopes(s string) []string {
	return strings.Fields(s)
}
