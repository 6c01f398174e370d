package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/nextmcp/authkit/instrumentation"
	"github.com/nextmcp/authkit/security"
	"github.com/nextmcp/authkit/sessions"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "authkit:"

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey session store.
type Config struct {
	// Address is the Valkey server address (required), e.g. "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "authkit:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Encryptor optionally encrypts tokens at rest
	Encryptor *security.Encryptor

	// Logger is the optional structured logger (default slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of sessions.Store.
type Store struct {
	client    valkeygo.Client
	prefix    string
	logger    *slog.Logger
	encryptor *security.Encryptor

	mu   sync.RWMutex
	inst *instrumentation.Instrumentation
}

var _ sessions.Store = (*Store)(nil)

// New creates a new Valkey-backed session store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey session store",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:    client,
		prefix:    prefix,
		logger:    logger,
		encryptor: cfg.Encryptor,
	}, nil
}

// Close closes the Valkey client connection
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey session store connection closed")
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.inst = inst
	s.mu.Unlock()
}

// sessionKey returns the key for a session: {prefix}session:{userID}
func (s *Store) sessionKey(userID string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, userID)
}

// sessionRecord is the stored JSON envelope
type sessionRecord struct {
	Encrypted bool                  `json:"encrypted,omitempty"`
	Session   *sessions.SessionData `json:"session"`
}

// Save persists a session, replacing any existing record for the user ID
func (s *Store) Save(ctx context.Context, session *sessions.SessionData) error {
	start := time.Now()

	record := session.Clone()
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if existing, err := s.load(ctx, record.UserID); err == nil {
		record.CreatedAt = existing.CreatedAt
	}
	record.UpdatedAt = now

	if err := s.write(ctx, record); err != nil {
		s.recordOp(ctx, "save", "error", start)
		return err
	}
	s.recordOp(ctx, "save", "ok", start)
	return nil
}

// Load retrieves the session for a user ID
func (s *Store) Load(ctx context.Context, userID string) (*sessions.SessionData, error) {
	start := time.Now()

	record, err := s.load(ctx, userID)
	if err != nil {
		if err == sessions.ErrSessionNotFound {
			s.recordOp(ctx, "load", "miss", start)
		} else {
			s.recordOp(ctx, "load", "error", start)
		}
		return nil, err
	}
	s.recordOp(ctx, "load", "ok", start)
	return record, nil
}

// Delete removes the session for a user ID
func (s *Store) Delete(ctx context.Context, userID string) (bool, error) {
	start := time.Now()

	n, err := s.client.Do(ctx, s.client.B().Del().Key(s.sessionKey(userID)).Build()).AsInt64()
	if err != nil {
		s.recordOp(ctx, "delete", "error", start)
		return false, &sessions.StoreError{Backend: "valkey", Op: "delete", Err: err}
	}
	s.recordOp(ctx, "delete", "ok", start)
	return n > 0, nil
}

// Exists reports whether a session exists for a user ID
func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.sessionKey(userID)).Build()).AsInt64()
	if err != nil {
		return false, &sessions.StoreError{Backend: "valkey", Op: "exists", Err: err}
	}
	return n > 0, nil
}

// ListUsers returns the user IDs of all stored sessions
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := s.forEachSession(ctx, func(record *sessions.SessionData) error {
		users = append(users, record.UserID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateTokens atomically updates the token fields of an existing session.
// Atomicity is per-record: the read-modify-write races only with writers of
// the same user ID, which the middleware serializes via singleflight.
func (s *Store) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresIn time.Duration) error {
	start := time.Now()

	record, err := s.load(ctx, userID)
	if err != nil {
		s.recordOp(ctx, "update_tokens", "miss", start)
		return err
	}

	record.AccessToken = accessToken
	if refreshToken != "" {
		record.RefreshToken = refreshToken
	}
	if expiresIn > 0 {
		record.ExpiresAt = time.Now().Add(expiresIn)
	} else {
		record.ExpiresAt = time.Time{}
	}
	record.Touch()

	if err := s.write(ctx, record); err != nil {
		s.recordOp(ctx, "update_tokens", "error", start)
		return err
	}
	s.recordOp(ctx, "update_tokens", "ok", start)
	return nil
}

// CleanupExpired removes sessions that are expired and hold no refresh
// token. Non-refreshable sessions normally expire via TTL; the sweep
// catches records written before expiry was known.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	removed := 0
	err := s.forEachSession(ctx, func(record *sessions.SessionData) error {
		if record.IsExpired() && !record.CanRefresh() {
			if err := s.client.Do(ctx, s.client.B().Del().Key(s.sessionKey(record.UserID)).Build()).Error(); err != nil {
				return &sessions.StoreError{Backend: "valkey", Op: "cleanup", Err: err}
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		s.logger.Info("Cleaned up expired sessions",
			"backend", "valkey",
			"removed", removed)
	}
	if inst := s.instrumentation(); inst != nil {
		inst.Metrics().RecordSessionsCleaned(ctx, "valkey", removed)
	}
	return removed, nil
}

func (s *Store) load(ctx context.Context, userID string) (*sessions.SessionData, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.sessionKey(userID)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, sessions.ErrSessionNotFound
		}
		return nil, &sessions.StoreError{Backend: "valkey", Op: "get", Err: err}
	}
	return s.decode([]byte(data))
}

func (s *Store) decode(data []byte) (*sessions.SessionData, error) {
	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &sessions.StoreError{Backend: "valkey", Op: "decode", Err: err}
	}
	if record.Session == nil {
		return nil, &sessions.StoreError{Backend: "valkey", Op: "decode", Err: fmt.Errorf("record has no session")}
	}
	if record.Encrypted {
		if !s.encryptor.IsEnabled() {
			return nil, &sessions.StoreError{Backend: "valkey", Op: "decode", Err: fmt.Errorf("record is encrypted but no encryptor is configured")}
		}
		if err := transformTokens(record.Session, s.encryptor.Decrypt); err != nil {
			return nil, &sessions.StoreError{Backend: "valkey", Op: "decrypt", Err: err}
		}
	}
	return record.Session, nil
}

func (s *Store) write(ctx context.Context, session *sessions.SessionData) error {
	record := sessionRecord{Session: session}
	if s.encryptor.IsEnabled() {
		encrypted := session.Clone()
		if err := transformTokens(encrypted, s.encryptor.Encrypt); err != nil {
			return &sessions.StoreError{Backend: "valkey", Op: "encrypt", Err: err}
		}
		record.Encrypted = true
		record.Session = encrypted
	}

	data, err := json.Marshal(record)
	if err != nil {
		return &sessions.StoreError{Backend: "valkey", Op: "encode", Err: err}
	}

	key := s.sessionKey(session.UserID)
	builder := s.client.B().Set().Key(key).Value(string(data))

	// Refreshable sessions outlive their access token, so no TTL; the
	// cleanup sweep handles everything else.
	if !session.CanRefresh() && !session.ExpiresAt.IsZero() {
		ttl := time.Until(session.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Second
		}
		if err := s.client.Do(ctx, builder.Ex(ttl).Build()).Error(); err != nil {
			return &sessions.StoreError{Backend: "valkey", Op: "set", Err: err}
		}
		return nil
	}

	if err := s.client.Do(ctx, builder.Build()).Error(); err != nil {
		return &sessions.StoreError{Backend: "valkey", Op: "set", Err: err}
	}
	return nil
}

// forEachSession SCANs all session keys and invokes fn per decoded record.
// SCAN can return duplicates across iterations, so keys are deduplicated.
func (s *Store) forEachSession(ctx context.Context, fn func(*sessions.SessionData) error) error {
	pattern := s.sessionKey("*")
	seen := make(map[string]struct{})

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return &sessions.StoreError{Backend: "valkey", Op: "scan", Err: err}
		}

		for _, key := range result.Elements {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
			if err != nil {
				if valkeygo.IsValkeyNil(err) {
					continue // expired between SCAN and GET
				}
				return &sessions.StoreError{Backend: "valkey", Op: "get", Err: err}
			}

			record, err := s.decode([]byte(data))
			if err != nil {
				s.logger.Warn("Skipping undecodable session record",
					"key", key,
					"error", err)
				continue
			}
			if err := fn(record); err != nil {
				return err
			}
		}

		cursor = result.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

func transformTokens(session *sessions.SessionData, transform func(string) (string, error)) error {
	var err error
	if session.AccessToken != "" {
		if session.AccessToken, err = transform(session.AccessToken); err != nil {
			return err
		}
	}
	if session.RefreshToken != "" {
		if session.RefreshToken, err = transform(session.RefreshToken); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) instrumentation() *instrumentation.Instrumentation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inst
}

func (s *Store) recordOp(ctx context.Context, op, result string, start time.Time) {
	if inst := s.instrumentation(); inst != nil {
		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		inst.Metrics().RecordSessionOperation(ctx, "valkey", op, result, durationMs)
	}
}
