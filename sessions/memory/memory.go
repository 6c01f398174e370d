package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nextmcp/authkit/instrumentation"
	"github.com/nextmcp/authkit/sessions"
)

// DefaultCleanupInterval is how often the background sweep removes expired,
// non-refreshable sessions.
const DefaultCleanupInterval = time.Minute

// Store is an in-memory implementation of sessions.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessions.SessionData

	// Lock-free count for the session gauge callback
	countAtomic atomic.Int64

	inst   *instrumentation.Instrumentation
	tracer trace.Tracer

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var _ sessions.Store = (*Store)(nil)

// New creates a new in-memory store with the default cleanup interval
func New() *Store {
	return NewWithInterval(DefaultCleanupInterval)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. A non-positive interval falls back to the default.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	s := &Store{
		sessions:        make(map[string]*sessions.SessionData),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) error {
	s.mu.Lock()
	s.inst = inst
	if inst != nil {
		s.tracer = inst.Tracer("sessions")
	}
	s.countAtomic.Store(int64(len(s.sessions)))
	s.mu.Unlock()

	if inst == nil {
		return nil
	}
	return inst.RegisterSessionCountCallback("memory", func() int64 {
		return s.countAtomic.Load()
	})
}

// Save persists a session, replacing any existing record for the user ID
func (s *Store) Save(ctx context.Context, session *sessions.SessionData) error {
	ctx, span := s.startSpan(ctx, "session.save")
	defer s.endSpan(span)
	start := time.Now()

	record := session.Clone()
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	s.mu.Lock()
	if existing, ok := s.sessions[record.UserID]; ok {
		record.CreatedAt = existing.CreatedAt
	}
	s.sessions[record.UserID] = record
	s.countAtomic.Store(int64(len(s.sessions)))
	s.mu.Unlock()

	s.recordOp(ctx, "save", "ok", start)
	return nil
}

// Load retrieves the session for a user ID
func (s *Store) Load(ctx context.Context, userID string) (*sessions.SessionData, error) {
	ctx, span := s.startSpan(ctx, "session.load")
	defer s.endSpan(span)
	start := time.Now()

	// Clone while holding the lock so a concurrent UpdateTokens cannot
	// expose a half-written record.
	var record *sessions.SessionData
	s.mu.RLock()
	if stored, ok := s.sessions[userID]; ok {
		record = stored.Clone()
	}
	s.mu.RUnlock()

	if record == nil {
		s.recordOp(ctx, "load", "miss", start)
		return nil, sessions.ErrSessionNotFound
	}
	s.recordOp(ctx, "load", "ok", start)
	return record, nil
}

// Delete removes the session for a user ID
func (s *Store) Delete(ctx context.Context, userID string) (bool, error) {
	ctx, span := s.startSpan(ctx, "session.delete")
	defer s.endSpan(span)
	start := time.Now()

	s.mu.Lock()
	_, existed := s.sessions[userID]
	delete(s.sessions, userID)
	s.countAtomic.Store(int64(len(s.sessions)))
	s.mu.Unlock()

	s.recordOp(ctx, "delete", "ok", start)
	return existed, nil
}

// Exists reports whether a session exists for a user ID
func (s *Store) Exists(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.sessions[userID]
	s.mu.RUnlock()
	return ok, nil
}

// ListUsers returns the user IDs of all stored sessions
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	users := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		users = append(users, id)
	}
	s.mu.RUnlock()
	return users, nil
}

// UpdateTokens atomically updates the token fields of an existing session
func (s *Store) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresIn time.Duration) error {
	ctx, span := s.startSpan(ctx, "session.update_tokens")
	defer s.endSpan(span)
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[userID]
	if !ok {
		s.recordOp(ctx, "update_tokens", "miss", start)
		return sessions.ErrSessionNotFound
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

	s.recordOp(ctx, "update_tokens", "ok", start)
	return nil
}

// CleanupExpired removes sessions that are expired and hold no refresh token
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	ctx, span := s.startSpan(ctx, "session.cleanup")
	defer s.endSpan(span)

	s.mu.Lock()
	removed := 0
	for id, record := range s.sessions {
		if record.IsExpired() && !record.CanRefresh() {
			delete(s.sessions, id)
			removed++
		}
	}
	s.countAtomic.Store(int64(len(s.sessions)))
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info("Cleaned up expired sessions",
			"backend", "memory",
			"removed", removed)
	}
	if s.inst != nil {
		s.inst.Metrics().RecordSessionsCleaned(ctx, "memory", removed)
	}
	return removed, nil
}

// Stop terminates the background cleanup goroutine. Safe to call more than
// once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
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

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	ctx, span := s.tracer.Start(ctx, name)
	instrumentation.AddStoreAttributes(span, "memory", name)
	return ctx, span
}

func (s *Store) endSpan(span trace.Span) {
	if span != nil {
		instrumentation.SetSpanSuccess(span)
		span.End()
	}
}

func (s *Store) recordOp(ctx context.Context, op, result string, start time.Time) {
	if s.inst != nil {
		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		s.inst.Metrics().RecordSessionOperation(ctx, "memory", op, result, durationMs)
	}
}
