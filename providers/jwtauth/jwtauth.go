// Package jwtauth implements an authentication provider for locally issued
// HMAC-signed JWTs.
//
// Unlike the OAuth providers it validates tokens without any network calls:
// signature, expiry, and optional issuer/audience checks happen in process.
// It implements only providers.Authenticator; there is no authorization
// flow and no refresh.
package jwtauth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nextmcp/authkit/providers"
)

// DefaultScopeClaim is the claim holding granted scopes when none is
// configured. Both a space separated string (RFC 8693 style) and a JSON
// array of strings are accepted.
const DefaultScopeClaim = "scope"

// Provider validates HMAC-signed JWTs.
type Provider struct {
	name       string
	secret     []byte
	issuer     string
	audience   string
	scopeClaim string
	leeway     time.Duration
}

// Config holds JWT validation configuration
type Config struct {
	// Secret is the HMAC signing key. Required.
	Secret []byte

	// Issuer, when set, must match the token's iss claim
	Issuer string

	// Audience, when set, must be present in the token's aud claim
	Audience string

	// ScopeClaim overrides the claim holding scopes (default "scope")
	ScopeClaim string

	// Leeway tolerates clock skew when validating exp and nbf
	Leeway time.Duration

	// Name overrides the provider name (default "jwt")
	Name string
}

// NewProvider creates a new JWT provider
func NewProvider(cfg *Config) (*Provider, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}

	name := cfg.Name
	if name == "" {
		name = "jwt"
	}
	scopeClaim := cfg.ScopeClaim
	if scopeClaim == "" {
		scopeClaim = DefaultScopeClaim
	}

	return &Provider{
		name:       name,
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		scopeClaim: scopeClaim,
		leeway:     cfg.Leeway,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.name
}

// Authenticate validates the bearer token as an HMAC-signed JWT
func (p *Provider) Authenticate(ctx context.Context, creds providers.Credentials) *providers.AuthResult {
	if creds.AccessToken == "" {
		return providers.AuthFailure(fmt.Errorf("%s: %w: bearer token required", p.name, providers.ErrInvalidCredentials))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(creds.AccessToken, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return providers.AuthFailure(fmt.Errorf("%s: %w: %v", p.name, providers.ErrInvalidCredentials, err))
	}
	if !token.Valid {
		return providers.AuthFailure(fmt.Errorf("%s: %w", p.name, providers.ErrInvalidCredentials))
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return providers.AuthFailure(fmt.Errorf("%s: %w: missing sub claim", p.name, providers.ErrInvalidCredentials))
	}

	info := &providers.UserInfo{ID: sub}
	if email, ok := claims["email"].(string); ok {
		info.Email = email
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		info.EmailVerified = verified
	}
	if name, ok := claims["name"].(string); ok {
		info.Name = name
	}
	if username, ok := claims["preferred_username"].(string); ok {
		info.Username = username
	}

	resp := &providers.TokenResponse{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
		Scopes:      p.extractScopes(claims),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		resp.ExpiresAt = exp.Time
	}

	return providers.AuthSuccess(info, resp)
}

// extractScopes reads the scope claim as either a space separated string or
// an array of strings.
func (p *Provider) extractScopes(claims jwt.MapClaims) []string {
	switch v := claims[p.scopeClaim].(type) {
	case string:
		return providers.SplitScopes(v)
	case []any:
		scopes := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	default:
		return nil
	}
}

var _ providers.Authenticator = (*Provider)(nil)
