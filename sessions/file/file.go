package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextmcp/authkit/instrumentation"
	"github.com/nextmcp/authkit/security"
	"github.com/nextmcp/authkit/sessions"
)

const sessionFileExt = ".json"

// safeFileNamePattern matches user IDs that can be used directly as file
// names. Anything else is mapped to a SHA-256 derived name, which also
// blocks path traversal through hostile IDs.
var safeFileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._@-]{0,63}$`)

// Store persists sessions as JSON files in a directory.
type Store struct {
	dir       string
	encryptor *security.Encryptor

	mu     sync.Mutex
	inst   *instrumentation.Instrumentation
	logger *slog.Logger

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

var _ sessions.Store = (*Store)(nil)

// Config holds file store configuration
type Config struct {
	// Dir is the directory holding session files. Created if absent.
	Dir string

	// Encryptor optionally encrypts tokens at rest
	Encryptor *security.Encryptor

	// CleanupInterval enables a background sweep removing expired,
	// non-refreshable sessions at this interval. Zero disables the sweep;
	// CleanupExpired can still be called directly.
	CleanupInterval time.Duration

	// Logger optionally overrides the default logger
	Logger *slog.Logger
}

// New creates a new file-backed session store
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("session directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		dir:         cfg.Dir,
		encryptor:   cfg.Encryptor,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go s.cleanupLoop(cfg.CleanupInterval)
	}

	return s, nil
}

// Stop terminates the background cleanup goroutine, if one is running.
// Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupExpired(context.Background()); err != nil {
				s.logger.Error("Session cleanup failed", "error", err)
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.inst = inst
	s.mu.Unlock()
}

// fileRecord is the on-disk envelope. Encrypted marks records whose token
// fields went through the encryptor.
type fileRecord struct {
	Encrypted bool                  `json:"encrypted,omitempty"`
	Session   *sessions.SessionData `json:"session"`
}

// fileName maps a user ID to its session file name. IDs that are not safe
// file names get a content-derived name instead.
func fileName(userID string) string {
	if safeFileNamePattern.MatchString(userID) && userID != "." && userID != ".." {
		return userID + sessionFileExt
	}
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:]) + sessionFileExt
}

func (s *Store) path(userID string) string {
	return filepath.Join(s.dir, fileName(userID))
}

// Save persists a session, replacing any existing record for the user ID
func (s *Store) Save(ctx context.Context, session *sessions.SessionData) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	record := session.Clone()
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if existing, err := s.readRecord(record.UserID); err == nil {
		record.CreatedAt = existing.CreatedAt
	}
	record.UpdatedAt = now

	if err := s.writeRecord(record); err != nil {
		s.recordOp(ctx, "save", "error", start)
		return err
	}
	s.recordOp(ctx, "save", "ok", start)
	return nil
}

// Load retrieves the session for a user ID
func (s *Store) Load(ctx context.Context, userID string) (*sessions.SessionData, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readRecord(userID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
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
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		s.recordOp(ctx, "delete", "ok", start)
		return false, nil
	}
	if err != nil {
		s.recordOp(ctx, "delete", "error", start)
		return false, &sessions.StoreError{Backend: "file", Op: "delete", Err: err}
	}
	s.recordOp(ctx, "delete", "ok", start)
	return true, nil
}

// Exists reports whether a session exists for a user ID
func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := os.Stat(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &sessions.StoreError{Backend: "file", Op: "exists", Err: err}
	}
	return true, nil
}

// ListUsers returns the user IDs of all stored sessions.
// File names may be hashed, so IDs come from the records themselves.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(records))
	for _, record := range records {
		users = append(users, record.UserID)
	}
	return users, nil
}

// UpdateTokens atomically updates the token fields of an existing session
func (s *Store) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresIn time.Duration) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.readRecord(userID)
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

	if err := s.writeRecord(record); err != nil {
		s.recordOp(ctx, "update_tokens", "error", start)
		return err
	}
	s.recordOp(ctx, "update_tokens", "ok", start)
	return nil
}

// CleanupExpired removes sessions that are expired and hold no refresh token
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, record := range records {
		if record.IsExpired() && !record.CanRefresh() {
			if err := os.Remove(s.path(record.UserID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, &sessions.StoreError{Backend: "file", Op: "cleanup", Err: err}
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Cleaned up expired sessions",
			"backend", "file",
			"removed", removed)
	}
	if s.inst != nil {
		s.inst.Metrics().RecordSessionsCleaned(ctx, "file", removed)
	}
	return removed, nil
}

// readRecord reads and decodes one session file. Caller holds the lock.
func (s *Store) readRecord(userID string) (*sessions.SessionData, error) {
	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, &sessions.StoreError{Backend: "file", Op: "read", Err: err}
	}
	return s.decodeRecord(data)
}

func (s *Store) decodeRecord(data []byte) (*sessions.SessionData, error) {
	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &sessions.StoreError{Backend: "file", Op: "decode", Err: err}
	}
	if record.Session == nil {
		return nil, &sessions.StoreError{Backend: "file", Op: "decode", Err: fmt.Errorf("record has no session")}
	}
	if record.Encrypted {
		if !s.encryptor.IsEnabled() {
			return nil, &sessions.StoreError{Backend: "file", Op: "decode", Err: fmt.Errorf("record is encrypted but no encryptor is configured")}
		}
		if err := s.decryptTokens(record.Session); err != nil {
			return nil, &sessions.StoreError{Backend: "file", Op: "decrypt", Err: err}
		}
	}
	return record.Session, nil
}

// writeRecord encodes and atomically writes one session file.
// Caller holds the lock.
func (s *Store) writeRecord(session *sessions.SessionData) error {
	record := fileRecord{Session: session}
	if s.encryptor.IsEnabled() {
		encrypted := session.Clone()
		if err := s.encryptTokens(encrypted); err != nil {
			return &sessions.StoreError{Backend: "file", Op: "encrypt", Err: err}
		}
		record.Encrypted = true
		record.Session = encrypted
	}

	data, err := json.Marshal(record)
	if err != nil {
		return &sessions.StoreError{Backend: "file", Op: "encode", Err: err}
	}

	// Write to a uniquely named temp file in the same directory, then
	// rename into place so readers never see a partial record.
	tmp := filepath.Join(s.dir, "."+fileName(session.UserID)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &sessions.StoreError{Backend: "file", Op: "write", Err: err}
	}
	if err := os.Rename(tmp, s.path(session.UserID)); err != nil {
		_ = os.Remove(tmp)
		return &sessions.StoreError{Backend: "file", Op: "rename", Err: err}
	}
	return nil
}

// readAll decodes every session file in the directory. Caller holds the lock.
func (s *Store) readAll() ([]*sessions.SessionData, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &sessions.StoreError{Backend: "file", Op: "list", Err: err}
	}

	var records []*sessions.SessionData
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, sessionFileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, &sessions.StoreError{Backend: "file", Op: "read", Err: err}
		}
		record, err := s.decodeRecord(data)
		if err != nil {
			s.logger.Warn("Skipping unreadable session file",
				"file", name,
				"error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *Store) encryptTokens(session *sessions.SessionData) error {
	var err error
	if session.AccessToken != "" {
		if session.AccessToken, err = s.encryptor.Encrypt(session.AccessToken); err != nil {
			return err
		}
	}
	if session.RefreshToken != "" {
		if session.RefreshToken, err = s.encryptor.Encrypt(session.RefreshToken); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) decryptTokens(session *sessions.SessionData) error {
	var err error
	if session.AccessToken != "" {
		if session.AccessToken, err = s.encryptor.Decrypt(session.AccessToken); err != nil {
			return err
		}
	}
	if session.RefreshToken != "" {
		if session.RefreshToken, err = s.encryptor.Decrypt(session.RefreshToken); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recordOp(ctx context.Context, op, result string, start time.Time) {
	if s.inst != nil {
		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		s.inst.Metrics().RecordSessionOperation(ctx, "file", op, result, durationMs)
	}
}
