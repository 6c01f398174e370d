package authkit

import (
	"encoding/json"
	"fmt"
)

// AuthRequirement states whether requests must be authenticated.
type AuthRequirement int

const (
	// AuthNone disables enforcement entirely
	AuthNone AuthRequirement = iota

	// AuthOptional authenticates when credentials are present but lets
	// anonymous requests through
	AuthOptional

	// AuthRequired rejects requests without valid credentials
	AuthRequired
)

// String returns the wire form of the requirement
func (r AuthRequirement) String() string {
	switch r {
	case AuthNone:
		return "none"
	case AuthOptional:
		return "optional"
	case AuthRequired:
		return "required"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// MarshalJSON encodes the requirement as its string form
func (r AuthRequirement) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes the requirement from its string form
func (r *AuthRequirement) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "none":
		*r = AuthNone
	case "optional":
		*r = AuthOptional
	case "required":
		*r = AuthRequired
	default:
		return fmt.Errorf("unknown auth requirement %q", s)
	}
	return nil
}

// ProviderDescriptor describes one configured provider for discovery.
type ProviderDescriptor struct {
	// Name is the provider name ("google", "github", ...)
	Name string `json:"name"`

	// Type is the provider category ("oauth2", "jwt", "apikey")
	Type string `json:"type"`

	// Flows lists the supported flows ("authorization_code", "bearer")
	Flows []string `json:"flows,omitempty"`

	// AuthorizationURL is the provider's authorization endpoint
	AuthorizationURL string `json:"authorization_url,omitempty"`

	// TokenURL is the provider's token endpoint
	TokenURL string `json:"token_url,omitempty"`

	// Scopes are the scopes requested by default
	Scopes []string `json:"scopes,omitempty"`

	// SupportsRefresh reports whether the provider issues refresh tokens
	SupportsRefresh bool `json:"supports_refresh"`

	// SupportsPKCE reports whether the provider accepts PKCE
	SupportsPKCE bool `json:"supports_pkce"`
}

// AuthMetadata describes a service's authentication requirements for
// discovery. Build it with NewAuthMetadata and the add helpers before
// serving; it is not mutated afterwards.
type AuthMetadata struct {
	// Requirement is the service-wide enforcement level
	Requirement AuthRequirement `json:"requirement"`

	// Providers lists configured providers in registration order
	Providers []ProviderDescriptor `json:"providers,omitempty"`

	// RequiredScopes must all be held by any authenticated session
	RequiredScopes []string `json:"required_scopes,omitempty"`

	// OptionalScopes unlock additional functionality when granted
	OptionalScopes []string `json:"optional_scopes,omitempty"`

	// Permissions lists permission identifiers the service may check
	Permissions []string `json:"permissions,omitempty"`

	// SupportsMultiUser reports whether concurrent sessions for distinct
	// users are supported
	SupportsMultiUser bool `json:"supports_multi_user"`

	// TokenRefreshEnabled reports whether expiring tokens are refreshed
	// transparently
	TokenRefreshEnabled bool `json:"token_refresh_enabled"`
}

// NewAuthMetadata creates metadata with the given enforcement level
func NewAuthMetadata(requirement AuthRequirement) *AuthMetadata {
	return &AuthMetadata{
		Requirement:       requirement,
		SupportsMultiUser: true,
	}
}

// AddProvider appends a provider descriptor
func (m *AuthMetadata) AddProvider(p ProviderDescriptor) *AuthMetadata {
	m.Providers = append(m.Providers, p)
	return m
}

// WithRequiredScopes sets the scopes every session must hold
func (m *AuthMetadata) WithRequiredScopes(scopes ...string) *AuthMetadata {
	m.RequiredScopes = scopes
	return m
}

// WithOptionalScopes sets the scopes that unlock extra functionality
func (m *AuthMetadata) WithOptionalScopes(scopes ...string) *AuthMetadata {
	m.OptionalScopes = scopes
	return m
}

// WithPermissions sets the permission identifiers the service may check
func (m *AuthMetadata) WithPermissions(permissions ...string) *AuthMetadata {
	m.Permissions = permissions
	return m
}

// WithTokenRefresh marks transparent token refresh as enabled
func (m *AuthMetadata) WithTokenRefresh(enabled bool) *AuthMetadata {
	m.TokenRefreshEnabled = enabled
	return m
}
