// Package mock provides a configurable mock implementation of the provider
// interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextmcp/authkit/providers"
)

// MockProvider is a mock implementation of providers.OAuthProvider for testing
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked
	AuthorizationURLFunc func(state string) (*providers.Authorization, error)

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, code, verifier string) (*providers.TokenResponse, error)

	// RefreshTokenFunc is called when RefreshToken() is invoked
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*providers.TokenResponse, error)

	// UserInfoFunc is called when UserInfo() is invoked
	UserInfoFunc func(ctx context.Context, accessToken string) (*providers.UserInfo, error)

	// AuthenticateFunc is called when Authenticate() is invoked.
	// When nil, Authenticate derives a result from UserInfoFunc.
	AuthenticateFunc func(ctx context.Context, creds providers.Credentials) *providers.AuthResult

	// SupportsRefreshValue is returned by SupportsRefresh()
	SupportsRefreshValue bool

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockProvider creates a new mock provider with default implementations
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts:           make(map[string]int),
		SupportsRefreshValue: true,
		NameFunc: func() string {
			return "mock"
		},
		AuthorizationURLFunc: func(state string) (*providers.Authorization, error) {
			if state == "" {
				state = "mock-state"
			}
			return &providers.Authorization{
				URL:      "https://mock.example.com/authorize?state=" + state,
				State:    state,
				Verifier: "mock-verifier",
			}, nil
		},
		ExchangeCodeFunc: func(ctx context.Context, code, verifier string) (*providers.TokenResponse, error) {
			return &providers.TokenResponse{
				AccessToken:  "mock-access-token",
				RefreshToken: "mock-refresh-token",
				TokenType:    "Bearer",
				ExpiresAt:    time.Now().Add(time.Hour),
			}, nil
		},
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*providers.TokenResponse, error) {
			return &providers.TokenResponse{
				AccessToken:  "new-mock-access-token",
				RefreshToken: "new-mock-refresh-token",
				TokenType:    "Bearer",
				ExpiresAt:    time.Now().Add(time.Hour),
			}, nil
		},
		UserInfoFunc: func(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
			return &providers.UserInfo{
				ID:            "mock-user-123",
				Email:         "mock@example.com",
				EmailVerified: true,
				Name:          "Mock User",
			}, nil
		},
	}
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	// Lock only to update the counter and read the function reference; the
	// user function runs without the lock so it may call other mock methods.
	m.mu.Lock()
	m.CallCounts["Name"]++
	fn := m.NameFunc
	m.mu.Unlock()

	if fn == nil {
		return "mock"
	}
	return fn()
}

// AuthorizationURL generates the URL to redirect users for authentication
func (m *MockProvider) AuthorizationURL(state string) (*providers.Authorization, error) {
	m.mu.Lock()
	m.CallCounts["AuthorizationURL"]++
	fn := m.AuthorizationURLFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("AuthorizationURLFunc not configured")
	}
	return fn(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (m *MockProvider) ExchangeCode(ctx context.Context, code, verifier string) (*providers.TokenResponse, error) {
	m.mu.Lock()
	m.CallCounts["ExchangeCode"]++
	fn := m.ExchangeCodeFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("ExchangeCodeFunc not configured")
	}
	return fn(ctx, code, verifier)
}

// RefreshToken refreshes an expired token using a refresh token
func (m *MockProvider) RefreshToken(ctx context.Context, refreshToken string) (*providers.TokenResponse, error) {
	m.mu.Lock()
	m.CallCounts["RefreshToken"]++
	fn := m.RefreshTokenFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("RefreshTokenFunc not configured")
	}
	return fn(ctx, refreshToken)
}

// UserInfo returns user information for an access token
func (m *MockProvider) UserInfo(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
	m.mu.Lock()
	m.CallCounts["UserInfo"]++
	fn := m.UserInfoFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("UserInfoFunc not configured")
	}
	return fn(ctx, accessToken)
}

// Authenticate validates credentials and returns the outcome
func (m *MockProvider) Authenticate(ctx context.Context, creds providers.Credentials) *providers.AuthResult {
	m.mu.Lock()
	m.CallCounts["Authenticate"]++
	fn := m.AuthenticateFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, creds)
	}

	if creds.Empty() {
		return providers.AuthFailure(providers.ErrInvalidCredentials)
	}
	info, err := m.UserInfo(ctx, creds.AccessToken)
	if err != nil {
		return providers.AuthFailure(err)
	}
	return providers.AuthSuccess(info, &providers.TokenResponse{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Scopes:       creds.Scopes,
	})
}

// SupportsRefresh reports whether the mock issues refresh tokens
func (m *MockProvider) SupportsRefresh() bool {
	m.mu.Lock()
	m.CallCounts["SupportsRefresh"]++
	m.mu.Unlock()
	return m.SupportsRefreshValue
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

var _ providers.OAuthProvider = (*MockProvider)(nil)
