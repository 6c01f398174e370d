package authkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nextmcp/authkit/security"
	"github.com/nextmcp/authkit/sessions"
)

// errorResponse is the JSON body of every error reply
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Wrap returns an http.Handler that enforces authentication on every
// request before delegating to next. The authentication result is
// available to next via AuthFromContext.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := security.RequestIDFromRequest(r)
		w.Header().Set(security.RequestIDHeader, requestID)
		r = r.WithContext(security.WithRequestID(r.Context(), requestID))

		clientIP := security.GetClientIP(r, m.cfg.TrustProxyHeaders, m.cfg.TrustedProxyCount)

		if m.cfg.IPRateLimiter != nil && !m.cfg.IPRateLimiter.Allow(clientIP) {
			m.cfg.Auditor.LogRateLimitExceeded(clientIP, "")
			if inst := m.cfg.Instrumentation; inst != nil {
				inst.Metrics().RecordRateLimitExceeded(r.Context(), "ip")
			}
			m.writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
			return
		}

		creds := CredentialsFromRequest(r)
		auth, err := m.authorize(r.Context(), creds, r.URL.Path, clientIP)
		if err != nil {
			m.writeAuthError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), auth)))
	})
}

// ServeMetadata answers GET requests with the service's authentication
// metadata for client discovery.
func (m *Middleware) ServeMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		m.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}

	metadata := m.cfg.Metadata
	if metadata == nil {
		metadata = NewAuthMetadata(m.cfg.Requirement)
	}

	security.SetSecurityHeaders(w, m.cfg.ServerURL)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		m.cfg.Logger.Error("failed to encode auth metadata", slog.Any("error", err))
	}
}

// writeAuthError maps an enforcement error to the right HTTP status,
// challenge header, and JSON body.
func (m *Middleware) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authFailed  *AuthenticationFailedError
		denied      *AuthorizationDeniedError
		unavailable *ProviderUnavailableError
		storeErr    *sessions.StoreError
	)

	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		w.Header().Set("WWW-Authenticate", m.challenge("invalid_request", "authentication required", nil))
		m.writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")

	case errors.As(err, &authFailed):
		w.Header().Set("WWW-Authenticate", m.challenge("invalid_token", "the access token is invalid or expired", nil))
		m.writeError(w, http.StatusUnauthorized, "invalid_token", "the access token is invalid or expired")

	case errors.As(err, &denied):
		w.Header().Set("WWW-Authenticate", m.challenge("insufficient_scope", "the request requires higher privileges", denied.MissingScopes))
		m.writeError(w, http.StatusForbidden, "insufficient_scope", denied.Error())

	case errors.Is(err, ErrRateLimited):
		m.writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")

	case errors.As(err, &unavailable):
		m.cfg.Logger.Warn("authentication provider unavailable",
			slog.String("provider", unavailable.Provider),
			slog.Any("error", unavailable.Err))
		m.writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "authentication provider unavailable")

	case errors.As(err, &storeErr):
		m.cfg.Logger.Error("session store failure",
			slog.String("backend", storeErr.Backend),
			slog.String("op", storeErr.Op),
			slog.Any("error", storeErr.Err))
		m.writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "session store unavailable")

	default:
		m.cfg.Logger.Error("authorization failed", slog.Any("error", err))
		m.writeError(w, http.StatusForbidden, "access_denied", "access denied")
	}
}

// challenge builds an RFC 6750 WWW-Authenticate value. The scope
// parameter lists what the client should request: missing scopes for a
// denial, the service's required scopes otherwise.
func (m *Middleware) challenge(errCode, description string, scopes []string) string {
	parts := []string{`Bearer`}
	if len(scopes) == 0 && m.cfg.Metadata != nil {
		scopes = m.cfg.Metadata.RequiredScopes
	}

	var params []string
	params = append(params, fmt.Sprintf("error=%q", errCode))
	params = append(params, fmt.Sprintf("error_description=%q", description))
	if len(scopes) > 0 {
		params = append(params, fmt.Sprintf("scope=%q", strings.Join(scopes, " ")))
	}
	return parts[0] + " " + strings.Join(params, ", ")
}

func (m *Middleware) writeError(w http.ResponseWriter, status int, code, description string) {
	security.SetSecurityHeaders(w, m.cfg.ServerURL)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: code, ErrorDescription: description}); err != nil {
		m.cfg.Logger.Error("failed to encode error response", slog.Any("error", err))
	}
}
