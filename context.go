package authkit

import (
	"context"
	"net/http"
	"strings"

	"github.com/nextmcp/authkit/providers"
	"github.com/nextmcp/authkit/sessions"
)

// RefreshTokenHeader optionally carries a refresh token alongside the
// bearer access token, enabling transparent refresh for clients that hold
// their own token pair.
const RefreshTokenHeader = "X-Auth-Refresh-Token"

// AuthContext is the per-request authentication result injected into the
// request context. It is never persisted.
type AuthContext struct {
	// Authenticated reports whether the request carries a valid identity
	Authenticated bool

	// UserID is the stable user identifier from the provider
	UserID string

	// Username is the user's login or handle where the provider has one
	Username string

	// Provider is the name of the provider that authenticated the request
	Provider string

	// Scopes granted to the session
	Scopes []string

	// Roles assigned by the permission checker, when one is configured
	// and reports them
	Roles []string

	// Permissions granted by the permission checker, when one is
	// configured and reports them
	Permissions []string

	// Session is the backing session record, nil for anonymous requests
	Session *sessions.SessionData
}

// HasScope reports whether the context holds a scope
func (a *AuthContext) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// anonymous is the AuthContext for unauthenticated requests
func anonymous() *AuthContext {
	return &AuthContext{Authenticated: false}
}

type authContextKey struct{}

// ContextWithAuth returns a context carrying the authentication result
func ContextWithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the authentication result for the request, or
// (nil, false) when enforcement never ran.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return auth, ok
}

// CredentialsFromRequest extracts credentials from an HTTP request: the
// Authorization Bearer header, plus an optional companion refresh token
// header.
func CredentialsFromRequest(r *http.Request) providers.Credentials {
	creds := providers.Credentials{}

	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		creds.AccessToken = strings.TrimSpace(auth[7:])
	}
	creds.RefreshToken = r.Header.Get(RefreshTokenHeader)

	return creds
}
