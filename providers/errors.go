package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/nextmcp/authkit/internal/util"
)

// ErrRefreshNotSupported is returned by RefreshToken on providers that do
// not issue refresh tokens.
var ErrRefreshNotSupported = errors.New("provider does not support token refresh")

// ErrInvalidCredentials indicates the presented credentials were rejected
// outright (unknown API key, malformed token, bad signature).
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenExchangeError indicates the provider definitively rejected an
// authorization code exchange. It is not transient; the authorization
// attempt must be restarted.
type TokenExchangeError struct {
	// Provider is the provider that rejected the exchange
	Provider string

	// StatusCode is the HTTP status from the token endpoint, if known
	StatusCode int

	// Body is a truncated copy of the error response body
	Body string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: code exchange rejected (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: code exchange rejected: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error
func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// TokenRefreshError indicates the provider definitively rejected a refresh
// token (revoked, expired, rotated away). The user must re-authenticate.
type TokenRefreshError struct {
	// Provider is the provider that rejected the refresh
	Provider string

	// StatusCode is the HTTP status from the token endpoint, if known
	StatusCode int

	// Body is a truncated copy of the error response body
	Body string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *TokenRefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: token refresh rejected (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: token refresh rejected: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error
func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a provider call failed for a transient
// reason (timeout, network failure, provider 5xx) and may be retried.
// Definitive rejections (TokenExchangeError, TokenRefreshError with 4xx)
// are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// oauth2 wraps token endpoint failures in RetrieveError; only server
	// side failures count as transient.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500
	}

	var exchangeErr *TokenExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.StatusCode >= 500
	}
	var refreshErr *TokenRefreshError
	if errors.As(err, &refreshErr) {
		return refreshErr.StatusCode >= 500
	}

	// url.Error without a timeout still usually means the endpoint was
	// unreachable (DNS, connection refused).
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return false
}

// classifyExchangeErr wraps an oauth2 exchange failure. Transient failures
// pass through unwrapped so IsRetryable can see them; definitive provider
// rejections become *TokenExchangeError.
func classifyExchangeErr(provider string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status < 500 {
			return &TokenExchangeError{
				Provider:   provider,
				StatusCode: status,
				Body:       truncateBody(retrieveErr.Body),
				Err:        err,
			}
		}
	}
	if IsRetryable(err) {
		return fmt.Errorf("%s: code exchange failed: %w", provider, err)
	}
	return &TokenExchangeError{Provider: provider, Err: err}
}

// classifyRefreshErr is the refresh-path analogue of classifyExchangeErr.
func classifyRefreshErr(provider string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status < 500 {
			return &TokenRefreshError{
				Provider:   provider,
				StatusCode: status,
				Body:       truncateBody(retrieveErr.Body),
				Err:        err,
			}
		}
	}
	if IsRetryable(err) {
		return fmt.Errorf("%s: token refresh failed: %w", provider, err)
	}
	return &TokenRefreshError{Provider: provider, Err: err}
}

const maxErrorBodyLen = 256

func truncateBody(body []byte) string {
	return util.SafeTruncate(string(body), maxErrorBodyLen)
}
