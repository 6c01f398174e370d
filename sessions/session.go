package sessions

import (
	"time"

	"github.com/nextmcp/authkit/security"
)

// DefaultRefreshBuffer is how long before expiry a session is considered in
// need of refresh when the caller does not configure a buffer.
const DefaultRefreshBuffer = 5 * time.Minute

// SessionData is one persisted session record.
type SessionData struct {
	// UserID is the unique lookup key for this session
	UserID string `json:"user_id"`

	// AccessToken is the current access token
	AccessToken string `json:"access_token"`

	// RefreshToken is the refresh token, empty when the provider issued none
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is when the access token expires. Zero means never.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// Scopes granted to this session
	Scopes []string `json:"scopes,omitempty"`

	// Provider is the name of the provider that authenticated this session
	Provider string `json:"provider,omitempty"`

	// UserInfo holds normalized user attributes (email, name, ...)
	UserInfo map[string]string `json:"user_info,omitempty"`

	// Metadata holds caller-defined attributes
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the session was first saved
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt advances on every mutation
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the access token has expired, tolerating small
// clock skew. A zero ExpiresAt never expires.
func (s *SessionData) IsExpired() bool {
	return security.IsTokenExpired(s.ExpiresAt)
}

// NeedsRefresh reports whether the access token expires within buffer and
// should be refreshed before use. A zero ExpiresAt never needs refresh.
// A non-positive buffer falls back to DefaultRefreshBuffer.
func (s *SessionData) NeedsRefresh(buffer time.Duration) bool {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	return security.IsTokenExpiringSoon(s.ExpiresAt, buffer)
}

// CanRefresh reports whether the session carries a refresh token.
func (s *SessionData) CanRefresh() bool {
	return s.RefreshToken != ""
}

// Touch advances UpdatedAt. Stores call this on every mutation.
func (s *SessionData) Touch() {
	s.UpdatedAt = time.Now()
}

// Clone returns a deep copy. Stores hand out and accept copies so callers
// can never mutate shared state through a returned pointer.
func (s *SessionData) Clone() *SessionData {
	if s == nil {
		return nil
	}
	out := *s
	if s.Scopes != nil {
		out.Scopes = append([]string(nil), s.Scopes...)
	}
	if s.UserInfo != nil {
		out.UserInfo = make(map[string]string, len(s.UserInfo))
		for k, v := range s.UserInfo {
			out.UserInfo[k] = v
		}
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
