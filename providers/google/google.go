// Package google implements the Google OAuth provider.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nextmcp/authkit/providers"
)

const userInfoEndpoint = "https://openidconnect.googleapis.com/v1/userinfo"

// Provider implements providers.OAuthProvider for Google OAuth.
type Provider struct {
	providers.Flow
}

// Config holds Google OAuth configuration
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// OfflineAccess requests a refresh token (access_type=offline)
	OfflineAccess bool

	// HTTPClient optionally overrides the HTTP client used for provider calls
	HTTPClient *http.Client

	// Logger optionally overrides the default logger
	Logger *slog.Logger
}

// NewProvider creates a new Google OAuth provider
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	return &Provider{
		Flow: providers.Flow{
			ProviderName: "google",
			Config: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Scopes:       scopes,
				Endpoint:     google.Endpoint,
			},
			HTTPClient:       cfg.HTTPClient,
			Logger:           cfg.Logger,
			OfflineAccess:    cfg.OfflineAccess,
			RefreshSupported: true,
			FetchUserInfo:    fetchUserInfo,
		},
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "google"
}

func fetchUserInfo(ctx context.Context, client *http.Client) (*providers.UserInfo, error) {
	return fetchUserInfoFrom(ctx, client, userInfoEndpoint)
}

func fetchUserInfoFrom(ctx context.Context, client *http.Client, endpoint string) (*providers.UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var googleUserInfo struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		Locale        string `json:"locale"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&googleUserInfo); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &providers.UserInfo{
		ID:            googleUserInfo.Sub,
		Email:         googleUserInfo.Email,
		EmailVerified: googleUserInfo.EmailVerified,
		Name:          googleUserInfo.Name,
		Picture:       googleUserInfo.Picture,
		Locale:        googleUserInfo.Locale,
	}, nil
}

var _ providers.OAuthProvider = (*Provider)(nil)
