// Package github implements the GitHub OAuth provider.
//
// GitHub OAuth apps do not issue refresh tokens; access tokens live until
// revoked. SupportsRefresh reports false and RefreshToken returns
// providers.ErrRefreshNotSupported.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/nextmcp/authkit/providers"
)

const (
	userEndpoint   = "https://api.github.com/user"
	emailsEndpoint = "https://api.github.com/user/emails"
)

// Provider implements providers.OAuthProvider for GitHub OAuth.
type Provider struct {
	providers.Flow
}

// Config holds GitHub OAuth configuration
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// HTTPClient optionally overrides the HTTP client used for provider calls
	HTTPClient *http.Client

	// Logger optionally overrides the default logger
	Logger *slog.Logger
}

// NewProvider creates a new GitHub OAuth provider
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}

	return &Provider{
		Flow: providers.Flow{
			ProviderName: "github",
			Config: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Scopes:       scopes,
				Endpoint:     github.Endpoint,
			},
			HTTPClient:       cfg.HTTPClient,
			Logger:           cfg.Logger,
			RefreshSupported: false,
			FetchUserInfo:    fetchUserInfo,
		},
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "github"
}

func fetchUserInfo(ctx context.Context, client *http.Client) (*providers.UserInfo, error) {
	return fetchUserInfoFrom(ctx, client, userEndpoint, emailsEndpoint)
}

func fetchUserInfoFrom(ctx context.Context, client *http.Client, userURL, emailsURL string) (*providers.UserInfo, error) {
	var ghUser struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, userURL, &ghUser); err != nil {
		return nil, err
	}

	info := &providers.UserInfo{
		ID:       strconv.FormatInt(ghUser.ID, 10),
		Username: ghUser.Login,
		Name:     ghUser.Name,
		Email:    ghUser.Email,
	}

	// The public profile email is often unset; fall back to the primary
	// address from the emails endpoint when the token grants it.
	if info.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, emailsURL, &emails); err == nil {
			for _, e := range emails {
				if e.Primary {
					info.Email = e.Email
					info.EmailVerified = e.Verified
					break
				}
			}
		}
	}

	return info, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed with status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}
	return nil
}

var _ providers.OAuthProvider = (*Provider)(nil)
