// Package apikey implements an authentication provider backed by a static
// registry of API keys.
//
// Keys are registered as bcrypt hashes so a leaked configuration file does
// not leak usable credentials. Lookup is by a short key ID prefix embedded
// in the presented key ("keyid.secret"), keeping verification to a single
// bcrypt comparison per attempt.
package apikey

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/nextmcp/authkit/providers"
)

// KeyEntry describes one registered API key.
type KeyEntry struct {
	// Hash is the bcrypt hash of the key's secret part
	Hash []byte

	// UserID is the identity the key authenticates as
	UserID string

	// Name is a human readable label for the key
	Name string

	// Scopes are granted to sessions authenticated with this key
	Scopes []string
}

// Provider authenticates requests by API key.
type Provider struct {
	name string

	mu   sync.RWMutex
	keys map[string]KeyEntry
}

// Config holds API key provider configuration
type Config struct {
	// Keys maps key ID to entry. Optional; keys may be registered later.
	Keys map[string]KeyEntry

	// Name overrides the provider name (default "apikey")
	Name string
}

// NewProvider creates a new API key provider
func NewProvider(cfg *Config) (*Provider, error) {
	name := "apikey"
	keys := map[string]KeyEntry{}
	if cfg != nil {
		if cfg.Name != "" {
			name = cfg.Name
		}
		for id, entry := range cfg.Keys {
			if id == "" || len(entry.Hash) == 0 || entry.UserID == "" {
				return nil, fmt.Errorf("key entry %q requires an ID, hash, and user ID", id)
			}
			keys[id] = entry
		}
	}
	return &Provider{name: name, keys: keys}, nil
}

// HashKey produces a bcrypt hash of an API key secret for registration.
func HashKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret is required")
	}
	return bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
}

// RegisterKey adds or replaces a key at runtime.
func (p *Provider) RegisterKey(id string, entry KeyEntry) error {
	if id == "" || len(entry.Hash) == 0 || entry.UserID == "" {
		return fmt.Errorf("key entry requires an ID, hash, and user ID")
	}
	p.mu.Lock()
	p.keys[id] = entry
	p.mu.Unlock()
	return nil
}

// RevokeKey removes a key. Revoking an unknown key is a no-op.
func (p *Provider) RevokeKey(id string) {
	p.mu.Lock()
	delete(p.keys, id)
	p.mu.Unlock()
}

// Name returns the provider name
func (p *Provider) Name() string {
	return p.name
}

// Authenticate validates a presented "keyid.secret" API key
func (p *Provider) Authenticate(ctx context.Context, creds providers.Credentials) *providers.AuthResult {
	if creds.AccessToken == "" {
		return providers.AuthFailure(fmt.Errorf("%s: %w: API key required", p.name, providers.ErrInvalidCredentials))
	}

	id, secret, ok := strings.Cut(creds.AccessToken, ".")
	if !ok || id == "" || secret == "" {
		return providers.AuthFailure(fmt.Errorf("%s: %w: malformed API key", p.name, providers.ErrInvalidCredentials))
	}

	p.mu.RLock()
	entry, found := p.keys[id]
	p.mu.RUnlock()
	if !found {
		return providers.AuthFailure(fmt.Errorf("%s: %w: unknown key", p.name, providers.ErrInvalidCredentials))
	}

	if err := bcrypt.CompareHashAndPassword(entry.Hash, []byte(secret)); err != nil {
		return providers.AuthFailure(fmt.Errorf("%s: %w: key verification failed", p.name, providers.ErrInvalidCredentials))
	}

	info := &providers.UserInfo{
		ID:   entry.UserID,
		Name: entry.Name,
	}
	token := &providers.TokenResponse{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
		Scopes:      append([]string(nil), entry.Scopes...),
	}
	return providers.AuthSuccess(info, token)
}

var _ providers.Authenticator = (*Provider)(nil)
