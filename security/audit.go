package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
// User identifiers are hashed before they reach the log stream so audit
// trails stay correlatable without exposing raw identities.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor. A nil logger falls back to
// slog.Default(). When enabled is false every Log call is a no-op.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	Provider  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"provider", event.Provider,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogAuthSuccess logs a successful authentication
func (a *Auditor) LogAuthSuccess(userID, provider, ipAddress string, scopes []string) {
	a.LogEvent(Event{
		Type:      EventAuthSuccess,
		UserID:    userID,
		Provider:  provider,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scopes": scopes,
		},
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(userID, provider, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		Provider:  provider,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAuthorizationDenied logs a scope or permission denial
func (a *Auditor) LogAuthorizationDenied(userID, ipAddress, operation string, missingScopes, missingPermissions []string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationDenied,
		UserID:    userID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"operation":           operation,
			"missing_scopes":      missingScopes,
			"missing_permissions": missingPermissions,
		},
	})
}

// LogTokenRefreshed logs a token refresh attempt outcome
func (a *Auditor) LogTokenRefreshed(userID, provider string, success bool) {
	eventType := EventTokenRefreshed
	if !success {
		eventType = EventTokenRefreshFailed
	}
	a.LogEvent(Event{
		Type:     eventType,
		UserID:   userID,
		Provider: provider,
	})
}

// LogSessionCreated logs creation of a new session
func (a *Auditor) LogSessionCreated(userID, provider string) {
	a.LogEvent(Event{
		Type:     EventSessionCreated,
		UserID:   userID,
		Provider: provider,
	})
}

// LogSessionDeleted logs removal of a session on logout
func (a *Auditor) LogSessionDeleted(userID string) {
	a.LogEvent(Event{
		Type:   EventSessionDeleted,
		UserID: userID,
	})
}

// LogSessionsCleaned logs the result of an expiry sweep
func (a *Auditor) LogSessionsCleaned(removed int) {
	a.LogEvent(Event{
		Type: EventSessionsCleaned,
		Details: map[string]any{
			"removed": removed,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, userID string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		UserID:    userID,
		IPAddress: ipAddress,
	})
}

// hashForLogging returns a short SHA-256 prefix of an identifier suitable
// for correlation in logs. Empty input stays empty so absent fields are
// visibly absent.
func hashForLogging(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
