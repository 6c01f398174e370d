package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextmcp/authkit/internal/testutil"
	"github.com/nextmcp/authkit/providers"
	"github.com/nextmcp/authkit/providers/mock"
	"github.com/nextmcp/authkit/security"
	"github.com/nextmcp/authkit/sessions"
	"github.com/nextmcp/authkit/sessions/memory"
)

func newTestRateLimiter(t *testing.T, rps, burst int) *security.RateLimiter {
	t.Helper()
	rl := security.NewRateLimiter(rps, burst, nil)
	t.Cleanup(rl.Stop)
	return rl
}

func newTestMiddleware(t *testing.T, mutate func(*Config)) (*Middleware, *mock.MockProvider, *memory.Store) {
	t.Helper()

	provider := mock.NewMockProvider()
	store := memory.New()
	t.Cleanup(store.Stop)

	cfg := Config{
		Requirement: AuthRequired,
		Provider:    provider,
		Store:       store,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return m, provider, store
}

// seedSession stores a session keyed by accessToken's hash, the way the
// middleware persists them.
func seedSession(t *testing.T, store sessions.Store, accessToken string, mutate func(*sessions.SessionData)) string {
	t.Helper()

	key := sessionKey(accessToken)
	session := testutil.GenerateTestSession(key)
	session.AccessToken = accessToken
	session.Scopes = []string{"read"}
	session.UserInfo = map[string]string{"id": "user-1"}
	if mutate != nil {
		mutate(session)
	}
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return key
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Requirement: AuthRequired})
	if err == nil {
		t.Error("expected error for missing provider and store")
	}

	m, err := New(Config{Requirement: AuthNone})
	if err != nil {
		t.Fatalf("New() with AuthNone failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected middleware")
	}
}

func TestAuthorizeNoEnforcement(t *testing.T) {
	m, err := New(Config{Requirement: AuthNone})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	auth, err := m.Authorize(context.Background(), providers.Credentials{}, "/anything")
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if auth.Authenticated {
		t.Error("expected anonymous context")
	}
}

func TestAuthorizeRequiredWithoutCredentials(t *testing.T) {
	m, provider, _ := newTestMiddleware(t, nil)

	_, err := m.Authorize(context.Background(), providers.Credentials{}, "/op")
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Errorf("expected ErrAuthenticationRequired, got %v", err)
	}
	if got := provider.GetCallCount("Authenticate"); got != 0 {
		t.Errorf("provider should not be called without credentials, got %d calls", got)
	}
}

func TestAuthorizeOptionalWithoutCredentials(t *testing.T) {
	m, _, _ := newTestMiddleware(t, func(cfg *Config) {
		cfg.Requirement = AuthOptional
	})

	auth, err := m.Authorize(context.Background(), providers.Credentials{}, "/op")
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if auth.Authenticated {
		t.Error("expected anonymous context")
	}
}

func TestAuthorizeAuthenticatesAndPersistsSession(t *testing.T) {
	m, provider, store := newTestMiddleware(t, nil)
	creds := providers.Credentials{AccessToken: "valid-token"}

	auth, err := m.Authorize(context.Background(), creds, "/op")
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if !auth.Authenticated {
		t.Fatal("expected authenticated context")
	}
	if auth.UserID != "mock-user-123" {
		t.Errorf("UserID = %q, want mock-user-123", auth.UserID)
	}
	if auth.Provider != "mock" {
		t.Errorf("Provider = %q, want mock", auth.Provider)
	}

	// Session must be stored under the token hash, never the raw token
	session, err := store.Load(context.Background(), sessionKey("valid-token"))
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if session.AccessToken != "valid-token" {
		t.Errorf("stored access token = %q", session.AccessToken)
	}
	if _, err := store.Load(context.Background(), "valid-token"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Error("session must not be keyed by the raw token")
	}

	// A second request with the same token reuses the session
	if _, err := m.Authorize(context.Background(), creds, "/op"); err != nil {
		t.Fatalf("second Authorize() failed: %v", err)
	}
	if got := provider.GetCallCount("Authenticate"); got != 1 {
		t.Errorf("Authenticate called %d times, want 1", got)
	}
}

func TestAuthorizeInvalidCredentials(t *testing.T) {
	tests := []struct {
		name        string
		requirement AuthRequirement
		wantErr     bool
	}{
		{name: "required rejects", requirement: AuthRequired, wantErr: true},
		{name: "optional falls through", requirement: AuthOptional, wantErr: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, provider, _ := newTestMiddleware(t, func(cfg *Config) {
				cfg.Requirement = tc.requirement
			})
			provider.AuthenticateFunc = func(ctx context.Context, creds providers.Credentials) *providers.AuthResult {
				return providers.AuthFailure(providers.ErrInvalidCredentials)
			}

			auth, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "bad"}, "/op")
			if tc.wantErr {
				var failed *AuthenticationFailedError
				if !errors.As(err, &failed) {
					t.Fatalf("expected AuthenticationFailedError, got %v", err)
				}
				if failed.Reason != "invalid_credentials" {
					t.Errorf("Reason = %q", failed.Reason)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authorize() failed: %v", err)
			}
			if auth.Authenticated {
				t.Error("expected anonymous context")
			}
		})
	}
}

func TestAuthorizeMissingScopes(t *testing.T) {
	m, _, store := newTestMiddleware(t, func(cfg *Config) {
		cfg.RequiredScopes = []string{"read", "write"}
	})
	seedSession(t, store, "scoped-token", func(s *sessions.SessionData) {
		s.Scopes = []string{"read"}
	})

	_, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "scoped-token"}, "/op")
	var denied *AuthorizationDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AuthorizationDeniedError, got %v", err)
	}
	if len(denied.MissingScopes) != 1 || denied.MissingScopes[0] != "write" {
		t.Errorf("MissingScopes = %v, want [write]", denied.MissingScopes)
	}
	if denied.Operation != "/op" {
		t.Errorf("Operation = %q", denied.Operation)
	}
}

// An authenticated caller that fails the scope check is denied even under
// optional enforcement; only authentication failures fall through to
// anonymous.
func TestAuthorizeOptionalStillDeniesMissingScopes(t *testing.T) {
	m, _, store := newTestMiddleware(t, func(cfg *Config) {
		cfg.Requirement = AuthOptional
		cfg.RequiredScopes = []string{"read", "write"}
	})
	seedSession(t, store, "scoped-token", func(s *sessions.SessionData) {
		s.Scopes = []string{"read"}
	})

	_, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "scoped-token"}, "/op")
	var denied *AuthorizationDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AuthorizationDeniedError, got %v", err)
	}
}

type denyChecker struct {
	allow bool
}

func (c *denyChecker) Check(ctx context.Context, auth *AuthContext, operation string) error {
	if c.allow {
		return nil
	}
	return &AuthorizationDeniedError{Operation: operation, MissingPermissions: []string{"admin"}}
}

func TestAuthorizePermissionChecker(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		m, _, store := newTestMiddleware(t, func(cfg *Config) {
			cfg.PermissionChecker = &denyChecker{}
		})
		seedSession(t, store, "perm-token", nil)

		_, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "perm-token"}, "/admin")
		var denied *AuthorizationDeniedError
		if !errors.As(err, &denied) {
			t.Fatalf("expected AuthorizationDeniedError, got %v", err)
		}
		if len(denied.MissingPermissions) != 1 || denied.MissingPermissions[0] != "admin" {
			t.Errorf("MissingPermissions = %v", denied.MissingPermissions)
		}
	})

	t.Run("allowed", func(t *testing.T) {
		m, _, store := newTestMiddleware(t, func(cfg *Config) {
			cfg.PermissionChecker = &denyChecker{allow: true}
		})
		seedSession(t, store, "perm-token", nil)

		if _, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "perm-token"}, "/admin"); err != nil {
			t.Fatalf("Authorize() failed: %v", err)
		}
	})
}

func TestAuthorizeRefreshesExpiringToken(t *testing.T) {
	m, provider, store := newTestMiddleware(t, func(cfg *Config) {
		cfg.AutoRefreshTokens = true
	})
	key := seedSession(t, store, "stale-token", func(s *sessions.SessionData) {
		s.ExpiresAt = time.Now().Add(-time.Minute)
		s.RefreshToken = "refresh-1"
	})

	auth, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "stale-token"}, "/op")
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if !auth.Authenticated {
		t.Fatal("expected authenticated context")
	}
	if auth.Session.AccessToken != "new-mock-access-token" {
		t.Errorf("access token not rotated, got %q", auth.Session.AccessToken)
	}
	if got := provider.GetCallCount("RefreshToken"); got != 1 {
		t.Errorf("RefreshToken called %d times, want 1", got)
	}

	// The stored record keeps its key but carries the rotated tokens
	updated, err := store.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if updated.AccessToken != "new-mock-access-token" || updated.RefreshToken != "new-mock-refresh-token" {
		t.Errorf("stored tokens not rotated: %q / %q", updated.AccessToken, updated.RefreshToken)
	}
}

func TestAuthorizeRefreshFailureIsAuthFailure(t *testing.T) {
	m, provider, store := newTestMiddleware(t, func(cfg *Config) {
		cfg.AutoRefreshTokens = true
	})
	key := seedSession(t, store, "stale-token", func(s *sessions.SessionData) {
		s.ExpiresAt = time.Now().Add(-time.Minute)
		s.RefreshToken = "revoked-refresh"
	})
	provider.RefreshTokenFunc = func(ctx context.Context, refreshToken string) (*providers.TokenResponse, error) {
		return nil, &providers.TokenRefreshError{Provider: "mock", StatusCode: 400, Body: "invalid_grant"}
	}

	_, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "stale-token"}, "/op")
	var failed *AuthenticationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected AuthenticationFailedError, got %v", err)
	}
	if failed.Reason != "refresh_failed" {
		t.Errorf("Reason = %q, want refresh_failed", failed.Reason)
	}

	// The dead session must be gone
	if _, err := store.Load(context.Background(), key); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Error("expected session to be deleted after refresh rejection")
	}
}

func TestAuthorizeExpiredWithoutRefresh(t *testing.T) {
	m, _, store := newTestMiddleware(t, func(cfg *Config) {
		cfg.AutoRefreshTokens = true
	})
	key := seedSession(t, store, "dead-token", func(s *sessions.SessionData) {
		s.ExpiresAt = time.Now().Add(-time.Minute)
		s.RefreshToken = ""
	})

	_, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "dead-token"}, "/op")
	var failed *AuthenticationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected AuthenticationFailedError, got %v", err)
	}
	if failed.Reason != "token_expired" {
		t.Errorf("Reason = %q, want token_expired", failed.Reason)
	}
	if _, err := store.Load(context.Background(), key); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Error("expected expired session to be deleted")
	}
}

func TestAuthorizeExpiringSoonWithoutRefreshProceeds(t *testing.T) {
	m, _, store := newTestMiddleware(t, nil)
	seedSession(t, store, "soon-token", func(s *sessions.SessionData) {
		s.ExpiresAt = time.Now().Add(time.Minute)
		s.RefreshToken = ""
	})

	// Inside the refresh buffer but still valid; without refresh the
	// request proceeds on the current token.
	auth, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "soon-token"}, "/op")
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if !auth.Authenticated {
		t.Error("expected authenticated context")
	}
}

func TestAuthorizeConcurrentRefreshDeduplicated(t *testing.T) {
	m, provider, store := newTestMiddleware(t, func(cfg *Config) {
		cfg.AutoRefreshTokens = true
	})
	seedSession(t, store, "shared-token", func(s *sessions.SessionData) {
		s.ExpiresAt = time.Now().Add(-time.Minute)
		s.RefreshToken = "refresh-1"
	})

	start := make(chan struct{})
	provider.RefreshTokenFunc = func(ctx context.Context, refreshToken string) (*providers.TokenResponse, error) {
		// Hold the refresh open so every request joins the same flight
		time.Sleep(100 * time.Millisecond)
		return &providers.TokenResponse{
			AccessToken:  "new-mock-access-token",
			RefreshToken: "new-mock-refresh-token",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = m.Authorize(context.Background(), providers.Credentials{AccessToken: "shared-token"}, "/op")
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: Authorize() failed: %v", i, err)
		}
	}
	if got := provider.GetCallCount("RefreshToken"); got != 1 {
		t.Errorf("RefreshToken called %d times, want 1", got)
	}
}

func TestAuthorizeRetriesTransientProviderFailure(t *testing.T) {
	m, provider, _ := newTestMiddleware(t, nil)

	var mu sync.Mutex
	calls := 0
	provider.AuthenticateFunc = func(ctx context.Context, creds providers.Credentials) *providers.AuthResult {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			return providers.AuthFailure(&providers.TokenExchangeError{Provider: "mock", StatusCode: 503})
		}
		return providers.AuthSuccess(
			&providers.UserInfo{ID: "user-1"},
			&providers.TokenResponse{AccessToken: creds.AccessToken, ExpiresAt: time.Now().Add(time.Hour)},
		)
	}

	auth, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "flaky-token"}, "/op")
	if err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if !auth.Authenticated {
		t.Error("expected authenticated context after retry")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("Authenticate called %d times, want 2", calls)
	}
}

func TestAuthorizeProviderUnavailable(t *testing.T) {
	m, provider, _ := newTestMiddleware(t, nil)
	provider.AuthenticateFunc = func(ctx context.Context, creds providers.Credentials) *providers.AuthResult {
		return providers.AuthFailure(&providers.TokenExchangeError{Provider: "mock", StatusCode: 502})
	}

	_, err := m.Authorize(context.Background(), providers.Credentials{AccessToken: "any"}, "/op")
	var unavailable *ProviderUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ProviderUnavailableError, got %v", err)
	}
	if unavailable.Provider != "mock" {
		t.Errorf("Provider = %q", unavailable.Provider)
	}
}

func TestAuthorizeUserRateLimit(t *testing.T) {
	m, _, store := newTestMiddleware(t, func(cfg *Config) {
		cfg.UserRateLimiter = newTestRateLimiter(t, 1, 1)
	})
	seedSession(t, store, "limited-token", nil)

	creds := providers.Credentials{AccessToken: "limited-token"}
	if _, err := m.Authorize(context.Background(), creds, "/op"); err != nil {
		t.Fatalf("first Authorize() failed: %v", err)
	}
	if _, err := m.Authorize(context.Background(), creds, "/op"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}
