package authkit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nextmcp/authkit/providers"
	"github.com/nextmcp/authkit/sessions"
)

// retryBackoff is the pause before the single retry of a transient
// provider failure.
const retryBackoff = 100 * time.Millisecond

// Middleware enforces authentication and authorization on operations.
// Create one with New and keep it for the life of the service; it is safe
// for concurrent use.
type Middleware struct {
	cfg Config

	// refreshGroup deduplicates concurrent refreshes per session key
	refreshGroup singleflight.Group
}

// New creates a new enforcement middleware
func New(cfg Config) (*Middleware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid middleware config: %w", err)
	}
	return &Middleware{cfg: cfg}, nil
}

// sessionKey derives the session lookup key from an access token. Raw
// tokens never become store keys or log fields.
func sessionKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

// Authorize runs the full enforcement pipeline for one operation:
// requirement gate, credential check, session reuse, authentication,
// transparent refresh, and scope/permission checks.
//
// Under AuthOptional, authentication failures fall through to an
// anonymous context; authorization denials do not. A caller that
// authenticates but lacks the required scopes or permissions gets the
// denial, not anonymity.
//
// The returned AuthContext is never nil when the error is nil.
func (m *Middleware) Authorize(ctx context.Context, creds providers.Credentials, operation string) (*AuthContext, error) {
	return m.authorize(ctx, creds, operation, "")
}

func (m *Middleware) authorize(ctx context.Context, creds providers.Credentials, operation, clientIP string) (*AuthContext, error) {
	start := time.Now()

	auth, err := m.doAuthorize(ctx, creds, operation, clientIP)

	if inst := m.cfg.Instrumentation; inst != nil {
		outcome := "success"
		switch {
		case err != nil:
			outcome = outcomeForError(err)
		case !auth.Authenticated:
			outcome = "anonymous"
		}
		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		inst.Metrics().RecordAuthRequest(ctx, outcome, m.providerName(), durationMs)
	}
	return auth, err
}

func (m *Middleware) doAuthorize(ctx context.Context, creds providers.Credentials, operation, clientIP string) (*AuthContext, error) {
	// Step 1: requirement gate
	if m.cfg.Requirement == AuthNone {
		return anonymous(), nil
	}

	// Step 2: credential presence
	if creds.Empty() {
		if m.cfg.Requirement == AuthOptional {
			return anonymous(), nil
		}
		m.cfg.Auditor.LogAuthFailure("", m.providerName(), clientIP, "no_credentials")
		return nil, ErrAuthenticationRequired
	}

	// Step 3: session reuse by token hash
	var session *sessions.SessionData
	var key string
	if creds.AccessToken != "" {
		key = sessionKey(creds.AccessToken)
		existing, err := m.cfg.Store.Load(ctx, key)
		switch {
		case err == nil:
			session = existing
		case errors.Is(err, sessions.ErrSessionNotFound):
			// fall through to authentication
		default:
			return nil, err
		}
	}

	// Step 4: authenticate unknown credentials against the provider
	if session == nil {
		result, err := m.authenticate(ctx, creds)
		if err != nil {
			return nil, err
		}
		if !result.Success {
			if m.cfg.Requirement == AuthOptional {
				return anonymous(), nil
			}
			m.cfg.Auditor.LogAuthFailure("", m.providerName(), clientIP, "invalid_credentials")
			return nil, &AuthenticationFailedError{
				Provider: m.providerName(),
				Reason:   "invalid_credentials",
				Err:      result.Err,
			}
		}

		// Step 5: persist the new session
		session = sessionFromResult(result, m.providerName())
		key = sessionKey(session.AccessToken)
		session.UserID = key
		if err := m.cfg.Store.Save(ctx, session); err != nil {
			return nil, err
		}
		m.cfg.Auditor.LogSessionCreated(result.UserInfo.ID, m.providerName())
		m.cfg.Auditor.LogAuthSuccess(result.UserInfo.ID, m.providerName(), clientIP, session.Scopes)
	}

	// Per-user rate limit, once identity is known
	if m.cfg.UserRateLimiter != nil {
		if !m.cfg.UserRateLimiter.Allow(subjectOf(session)) {
			m.cfg.Auditor.LogRateLimitExceeded(clientIP, subjectOf(session))
			if inst := m.cfg.Instrumentation; inst != nil {
				inst.Metrics().RecordRateLimitExceeded(ctx, "user")
			}
			return nil, ErrRateLimited
		}
	}

	// Step 6: transparent refresh
	if session.NeedsRefresh(m.cfg.RefreshBuffer) {
		refreshed, err := m.maybeRefresh(ctx, key, session, clientIP)
		if err != nil {
			if m.cfg.Requirement == AuthOptional && !isUnavailable(err) {
				return anonymous(), nil
			}
			return nil, err
		}
		session = refreshed
	}

	// Step 7: scope and permission checks
	auth := &AuthContext{
		Authenticated: true,
		UserID:        subjectOf(session),
		Username:      session.UserInfo["username"],
		Provider:      session.Provider,
		Scopes:        session.Scopes,
		Session:       session,
	}

	if missing := missingScopes(m.cfg.RequiredScopes, session.Scopes); len(missing) > 0 {
		denial := &AuthorizationDeniedError{Operation: operation, MissingScopes: missing}
		m.auditDenial(ctx, auth, clientIP, denial)
		return nil, denial
	}
	if m.cfg.PermissionChecker != nil {
		if err := m.cfg.PermissionChecker.Check(ctx, auth, operation); err != nil {
			var denial *AuthorizationDeniedError
			if errors.As(err, &denial) {
				m.auditDenial(ctx, auth, clientIP, denial)
			} else if inst := m.cfg.Instrumentation; inst != nil {
				inst.Metrics().RecordAuthorizationDenied(ctx, "permission_check")
			}
			return nil, err
		}
	}

	// Step 8: done
	return auth, nil
}

func (m *Middleware) providerName() string {
	if m.cfg.Provider == nil {
		return ""
	}
	return m.cfg.Provider.Name()
}

// authenticate calls the provider with a bounded context, retrying once on
// a transient failure.
func (m *Middleware) authenticate(ctx context.Context, creds providers.Credentials) (*providers.AuthResult, error) {
	result := m.providerAuthenticate(ctx, creds)
	if !result.Success && providers.IsRetryable(result.Err) {
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return nil, &ProviderUnavailableError{Provider: m.providerName(), Err: ctx.Err()}
		}
		result = m.providerAuthenticate(ctx, creds)
		if !result.Success && providers.IsRetryable(result.Err) {
			return nil, &ProviderUnavailableError{Provider: m.providerName(), Err: result.Err}
		}
	}
	return result, nil
}

func (m *Middleware) providerAuthenticate(ctx context.Context, creds providers.Credentials) *providers.AuthResult {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	result := m.cfg.Provider.Authenticate(callCtx, creds)
	if inst := m.cfg.Instrumentation; inst != nil {
		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		inst.Metrics().RecordProviderCall(ctx, m.providerName(), "authenticate", durationMs, result.Err)
	}
	return result
}

// maybeRefresh refreshes the session's tokens when possible. Expired
// sessions that cannot be refreshed fail authentication; a request never
// proceeds on a stale token.
func (m *Middleware) maybeRefresh(ctx context.Context, key string, session *sessions.SessionData, clientIP string) (*sessions.SessionData, error) {
	oauthProvider, refreshable := m.cfg.Provider.(providers.OAuthProvider)
	canRefresh := m.cfg.AutoRefreshTokens && refreshable && oauthProvider.SupportsRefresh() && session.CanRefresh()

	if !canRefresh {
		if !session.IsExpired() {
			// Expiring soon but still valid; proceed without refresh
			return session, nil
		}
		_, _ = m.cfg.Store.Delete(ctx, key)
		m.cfg.Auditor.LogAuthFailure(subjectOf(session), m.providerName(), clientIP, "token_expired")
		return nil, &AuthenticationFailedError{
			Provider: m.providerName(),
			Reason:   "token_expired",
			Err:      fmt.Errorf("access token expired and refresh is unavailable"),
		}
	}

	// Deduplicate concurrent refreshes of the same session. Followers
	// share the leader's outcome.
	v, err, shared := m.refreshGroup.Do(key, func() (any, error) {
		refreshed, err := m.refreshSession(ctx, key, oauthProvider, session, clientIP)
		return refreshed, err
	})
	if inst := m.cfg.Instrumentation; inst != nil {
		inst.Metrics().RecordTokenRefresh(ctx, m.providerName(), err == nil, shared)
	}
	if err != nil {
		return nil, err
	}
	return v.(*sessions.SessionData), nil
}

// subjectOf returns the provider-assigned user identifier for audit and
// context purposes, falling back to the store key.
func subjectOf(s *sessions.SessionData) string {
	if id, ok := s.UserInfo["id"]; ok && id != "" {
		return id
	}
	return s.UserID
}

// refreshSession is the singleflight leader body: call the provider,
// persist the rotated tokens, return the updated record.
func (m *Middleware) refreshSession(ctx context.Context, key string, provider providers.OAuthProvider, session *sessions.SessionData, clientIP string) (*sessions.SessionData, error) {
	token, err := m.providerRefresh(ctx, provider, session.RefreshToken)
	if err != nil && providers.IsRetryable(err) {
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return nil, &ProviderUnavailableError{Provider: m.providerName(), Err: ctx.Err()}
		}
		token, err = m.providerRefresh(ctx, provider, session.RefreshToken)
	}
	if err != nil {
		if providers.IsRetryable(err) {
			return nil, &ProviderUnavailableError{Provider: m.providerName(), Err: err}
		}
		// Definitive rejection: the refresh token is dead and so is the
		// session.
		_, _ = m.cfg.Store.Delete(ctx, key)
		m.cfg.Auditor.LogTokenRefreshed(subjectOf(session), m.providerName(), false)
		m.cfg.Auditor.LogAuthFailure(subjectOf(session), m.providerName(), clientIP, "refresh_failed")
		return nil, &AuthenticationFailedError{
			Provider: m.providerName(),
			Reason:   "refresh_failed",
			Err:      err,
		}
	}

	expiresIn := time.Duration(0)
	if !token.ExpiresAt.IsZero() {
		expiresIn = time.Until(token.ExpiresAt)
	}
	if err := m.cfg.Store.UpdateTokens(ctx, key, token.AccessToken, token.RefreshToken, expiresIn); err != nil {
		return nil, err
	}
	m.cfg.Auditor.LogTokenRefreshed(subjectOf(session), m.providerName(), true)

	updated, err := m.cfg.Store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (m *Middleware) providerRefresh(ctx context.Context, provider providers.OAuthProvider, refreshToken string) (*providers.TokenResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	token, err := provider.RefreshToken(callCtx, refreshToken)
	if inst := m.cfg.Instrumentation; inst != nil {
		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		inst.Metrics().RecordProviderCall(ctx, m.providerName(), "refresh_token", durationMs, err)
	}
	return token, err
}

func (m *Middleware) auditDenial(ctx context.Context, auth *AuthContext, clientIP string, denial *AuthorizationDeniedError) {
	m.cfg.Auditor.LogAuthorizationDenied(auth.UserID, clientIP, denial.Operation, denial.MissingScopes, denial.MissingPermissions)
	if inst := m.cfg.Instrumentation; inst != nil {
		reason := "missing_scope"
		if len(denial.MissingPermissions) > 0 {
			reason = "missing_permission"
		}
		inst.Metrics().RecordAuthorizationDenied(ctx, reason)
	}
}

// sessionFromResult builds a session record from a successful
// authentication.
func sessionFromResult(result *providers.AuthResult, provider string) *sessions.SessionData {
	info := map[string]string{"id": result.UserInfo.ID}
	if result.UserInfo.Email != "" {
		info["email"] = result.UserInfo.Email
	}
	if result.UserInfo.Username != "" {
		info["username"] = result.UserInfo.Username
	}
	if result.UserInfo.Name != "" {
		info["name"] = result.UserInfo.Name
	}

	return &sessions.SessionData{
		AccessToken:  result.Token.AccessToken,
		RefreshToken: result.Token.RefreshToken,
		ExpiresAt:    result.Token.ExpiresAt,
		Scopes:       result.Token.Scopes,
		Provider:     provider,
		UserInfo:     info,
	}
}

// missingScopes returns required scopes absent from granted.
func missingScopes(required, granted []string) []string {
	if len(required) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range required {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

func isUnavailable(err error) bool {
	var unavailable *ProviderUnavailableError
	return errors.As(err, &unavailable)
}

func outcomeForError(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		return "required"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case isUnavailable(err):
		return "unavailable"
	default:
		var denied *AuthorizationDeniedError
		if errors.As(err, &denied) {
			return "denied"
		}
		return "failed"
	}
}
