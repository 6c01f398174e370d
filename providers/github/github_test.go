package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/nextmcp/authkit/providers"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				ClientID:     "test-client-id",
				ClientSecret: "test-client-secret",
				RedirectURL:  "https://example.com/callback",
			},
			wantErr: false,
		},
		{
			name:    "missing client ID",
			config:  &Config{ClientSecret: "test-client-secret"},
			wantErr: true,
		},
		{
			name:    "missing client secret",
			config:  &Config{ClientID: "test-client-id"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && provider.SupportsRefresh() {
				t.Error("SupportsRefresh() = true, want false")
			}
		})
	}
}

func TestProvider_Name(t *testing.T) {
	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if got := provider.Name(); got != "github" {
		t.Errorf("Name() = %q, want %q", got, "github")
	}
}

func TestProvider_AuthorizationURL(t *testing.T) {
	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://example.com/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	auth, err := provider.AuthorizationURL("test-state")
	if err != nil {
		t.Fatalf("AuthorizationURL() error = %v", err)
	}
	if !strings.HasPrefix(auth.URL, "https://github.com/login/oauth/authorize") {
		t.Errorf("AuthorizationURL() = %q, want GitHub authorization endpoint", auth.URL)
	}

	u, _ := url.Parse(auth.URL)
	if u.Query().Get("code_challenge") == "" {
		t.Error("code_challenge param missing")
	}
}

func TestProvider_RefreshTokenNotSupported(t *testing.T) {
	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	_, err = provider.RefreshToken(context.Background(), "anything")
	if !errors.Is(err, providers.ErrRefreshNotSupported) {
		t.Errorf("RefreshToken() error = %v, want ErrRefreshNotSupported", err)
	}
}

func TestFetchUserInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    12345,
			"login": "octocat",
			"name":  "The Octocat",
		})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "octocat@example.com", "primary": true, "verified": true},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	info, err := fetchUserInfoFrom(context.Background(), server.Client(), server.URL+"/user", server.URL+"/user/emails")
	if err != nil {
		t.Fatalf("fetchUserInfoFrom() error = %v", err)
	}
	if info.ID != "12345" {
		t.Errorf("ID = %q, want 12345", info.ID)
	}
	if info.Username != "octocat" {
		t.Errorf("Username = %q, want octocat", info.Username)
	}
	if info.Email != "octocat@example.com" {
		t.Errorf("Email = %q, want primary address octocat@example.com", info.Email)
	}
	if !info.EmailVerified {
		t.Error("EmailVerified = false, want true")
	}
}

func TestFetchUserInfoNoEmailAccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 99, "login": "someone"})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	info, err := fetchUserInfoFrom(context.Background(), server.Client(), server.URL+"/user", server.URL+"/user/emails")
	if err != nil {
		t.Fatalf("fetchUserInfoFrom() error = %v", err)
	}
	if info.ID != "99" {
		t.Errorf("ID = %q, want 99", info.ID)
	}
	if info.Email != "" {
		t.Errorf("Email = %q, want empty when emails endpoint is forbidden", info.Email)
	}
}
