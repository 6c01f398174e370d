package authkit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAuthenticationRequired is returned when an operation requires
// authentication and the request carries no credentials.
var ErrAuthenticationRequired = errors.New("authentication required")

// ErrRateLimited is returned when a rate limiter rejects the request.
var ErrRateLimited = errors.New("rate limit exceeded")

// AuthenticationFailedError indicates the presented credentials were
// rejected: invalid token, failed code exchange, or a refresh the provider
// definitively refused.
type AuthenticationFailedError struct {
	// Provider is the provider that rejected the credentials
	Provider string

	// Reason is a short machine-friendly reason ("invalid_token",
	// "exchange_failed", "refresh_failed")
	Reason string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *AuthenticationFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed (%s)", e.Reason)
}

// Unwrap returns the underlying error
func (e *AuthenticationFailedError) Unwrap() error {
	return e.Err
}

// AuthorizationDeniedError indicates an authenticated caller lacks the
// scopes or permissions an operation requires. It lists exactly what is
// missing so clients can request the right grants.
type AuthorizationDeniedError struct {
	// Operation is the operation that was denied
	Operation string

	// MissingScopes are required scopes the session does not hold
	MissingScopes []string

	// MissingPermissions are permissions the checker reported absent
	MissingPermissions []string
}

// Error implements the error interface
func (e *AuthorizationDeniedError) Error() string {
	var parts []string
	if len(e.MissingScopes) > 0 {
		parts = append(parts, fmt.Sprintf("missing scopes [%s]", strings.Join(e.MissingScopes, " ")))
	}
	if len(e.MissingPermissions) > 0 {
		parts = append(parts, fmt.Sprintf("missing permissions [%s]", strings.Join(e.MissingPermissions, " ")))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("authorization denied for %q", e.Operation)
	}
	return fmt.Sprintf("authorization denied for %q: %s", e.Operation, strings.Join(parts, ", "))
}

// ProviderUnavailableError indicates the provider could not be reached or
// answered with a transient failure. The outcome is indeterminate: the
// caller may retry, and it must never be reported as an authorization
// denial.
type ProviderUnavailableError struct {
	// Provider is the provider that was unreachable
	Provider string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error
func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}
