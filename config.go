package authkit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextmcp/authkit/instrumentation"
	"github.com/nextmcp/authkit/internal/util"
	"github.com/nextmcp/authkit/providers"
	"github.com/nextmcp/authkit/security"
	"github.com/nextmcp/authkit/sessions"
)

// DefaultProviderTimeout bounds each outbound provider call made during
// enforcement.
const DefaultProviderTimeout = 15 * time.Second

// PermissionChecker decides whether an authenticated caller may perform an
// operation. Implementations typically consult an external permission
// manifest or RBAC system.
//
// Check returns nil to allow, an *AuthorizationDeniedError to deny with
// detail, or any other error to deny opaquely.
type PermissionChecker interface {
	Check(ctx context.Context, auth *AuthContext, operation string) error
}

// Config holds middleware configuration
type Config struct {
	// Requirement is the enforcement level (default AuthRequired).
	// Under AuthOptional, missing, invalid, or expired credentials yield
	// an anonymous context, but an authenticated session that fails the
	// scope or permission checks is still denied: holding a valid
	// identity never grants less than anonymity, and never more than its
	// grants allow.
	Requirement AuthRequirement

	// Provider authenticates credentials. Required unless Requirement is
	// AuthNone.
	Provider providers.Authenticator

	// Store persists sessions. Required unless Requirement is AuthNone.
	Store sessions.Store

	// RequiredScopes must all be held by an authenticated session for any
	// operation to proceed
	RequiredScopes []string

	// PermissionChecker is consulted per operation after the scope check.
	// Optional.
	PermissionChecker PermissionChecker

	// AutoRefreshTokens refreshes expiring access tokens transparently
	// when the session holds a refresh token and the provider supports it
	AutoRefreshTokens bool

	// RefreshBuffer is how long before expiry a token is refreshed
	// (default sessions.DefaultRefreshBuffer)
	RefreshBuffer time.Duration

	// ProviderTimeout bounds each provider call (default 15s)
	ProviderTimeout time.Duration

	// Metadata describes the service for discovery responses. Optional;
	// also sources the scope hint in WWW-Authenticate challenges.
	Metadata *AuthMetadata

	// ServerURL is this service's external URL, used for security headers.
	// Optional.
	ServerURL string

	// IPRateLimiter gates requests per client IP before authentication.
	// Optional.
	IPRateLimiter *security.RateLimiter

	// UserRateLimiter gates requests per authenticated user. Optional.
	UserRateLimiter *security.RateLimiter

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP parsing for
	// client IP extraction. Only enable behind a trusted proxy.
	TrustProxyHeaders bool

	// TrustedProxyCount is the number of trusted proxies in front of the
	// service, used to pick the right X-Forwarded-For entry
	TrustedProxyCount int

	// Logger receives structured middleware events (default slog.Default())
	Logger *slog.Logger

	// Auditor receives security audit events. Optional.
	Auditor *security.Auditor

	// Instrumentation provides OpenTelemetry metrics and tracing. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// Validate checks the configuration and applies defaults
func (c *Config) Validate() error {
	if c.Requirement != AuthNone {
		if c.Provider == nil {
			return fmt.Errorf("provider is required when authentication is enabled")
		}
		if c.Store == nil {
			return fmt.Errorf("session store is required when authentication is enabled")
		}
	}

	if c.RefreshBuffer <= 0 {
		c.RefreshBuffer = sessions.DefaultRefreshBuffer
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = DefaultProviderTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.ServerURL = util.NormalizeURL(c.ServerURL)
	return nil
}
