package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned by Load and UpdateTokens when no session
// exists for the user ID.
var ErrSessionNotFound = errors.New("session not found")

// StoreError wraps a backend I/O failure. It is distinct from the sentinel
// ErrSessionNotFound so callers can tell "no session" from "the store is
// broken".
type StoreError struct {
	// Backend names the store backend ("memory", "file", "valkey")
	Backend string

	// Op is the store operation that failed
	Op string

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("session store %s: %s failed: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Store persists session records. Implementations are safe for concurrent
// use and hand out deep copies, never internal pointers.
type Store interface {
	// Save persists a session, replacing any existing record for the same
	// user ID. CreatedAt is set on first save, UpdatedAt on every save.
	Save(ctx context.Context, session *SessionData) error

	// Load retrieves the session for a user ID.
	// Returns ErrSessionNotFound if absent.
	Load(ctx context.Context, userID string) (*SessionData, error)

	// Delete removes the session for a user ID and reports whether a
	// session was removed. Deleting an absent session is not an error.
	Delete(ctx context.Context, userID string) (bool, error)

	// Exists reports whether a session exists for a user ID
	Exists(ctx context.Context, userID string) (bool, error)

	// ListUsers returns the user IDs of all stored sessions
	ListUsers(ctx context.Context) ([]string, error)

	// UpdateTokens atomically updates the token fields of an existing
	// session. An empty refreshToken retains the stored one; expiresIn <= 0
	// clears the expiry. Returns ErrSessionNotFound if absent.
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresIn time.Duration) error

	// CleanupExpired removes sessions that are expired and hold no refresh
	// token, returning the number removed. Expired sessions with a refresh
	// token are kept; they can still be refreshed.
	CleanupExpired(ctx context.Context) (int, error)
}
