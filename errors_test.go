package authkit

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAuthenticationFailedError(t *testing.T) {
	underlying := errors.New("token rejected")
	err := &AuthenticationFailedError{Provider: "google", Reason: "invalid_token", Err: underlying}

	if !strings.Contains(err.Error(), "invalid_token") {
		t.Errorf("Error() = %q, missing reason", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("expected Unwrap to expose the underlying error")
	}

	wrapped := fmt.Errorf("request failed: %w", err)
	var target *AuthenticationFailedError
	if !errors.As(wrapped, &target) {
		t.Error("errors.As failed through wrapping")
	}
}

func TestAuthorizationDeniedErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *AuthorizationDeniedError
		want []string
	}{
		{
			name: "scopes only",
			err:  &AuthorizationDeniedError{Operation: "/tools", MissingScopes: []string{"write", "admin"}},
			want: []string{"/tools", "missing scopes", "write admin"},
		},
		{
			name: "permissions only",
			err:  &AuthorizationDeniedError{Operation: "/tools", MissingPermissions: []string{"tools:execute"}},
			want: []string{"missing permissions", "tools:execute"},
		},
		{
			name: "bare denial",
			err:  &AuthorizationDeniedError{Operation: "/tools"},
			want: []string{"authorization denied", "/tools"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.err.Error()
			for _, fragment := range tc.want {
				if !strings.Contains(msg, fragment) {
					t.Errorf("Error() = %q, missing %q", msg, fragment)
				}
			}
		})
	}
}

func TestProviderUnavailableError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := &ProviderUnavailableError{Provider: "github", Err: underlying}

	if !strings.Contains(err.Error(), "github") {
		t.Errorf("Error() = %q, missing provider name", err.Error())
	}
	if !errors.Is(err, underlying) {
		t.Error("expected Unwrap to expose the underlying error")
	}
}
