package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditorHashesUserID(t *testing.T) {
	auditor, buf := newTestAuditor(true)

	auditor.LogAuthSuccess("alice@example.com", "google", "10.0.0.1", []string{"email"})

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Error("audit log contains raw user ID")
	}
	if !strings.Contains(out, "event_type=auth_success") {
		t.Errorf("audit log missing event type: %s", out)
	}
	if !strings.Contains(out, "user_id_hash=") {
		t.Errorf("audit log missing hashed user ID: %s", out)
	}
}

func TestAuditorDisabled(t *testing.T) {
	auditor, buf := newTestAuditor(false)

	auditor.LogAuthFailure("bob", "github", "10.0.0.1", "invalid token")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestAuditorNilSafe(t *testing.T) {
	var auditor *Auditor
	// Must not panic
	auditor.LogAuthFailure("bob", "github", "10.0.0.1", "invalid token")
	auditor.LogSessionsCleaned(3)
}

func TestAuditorEventTypes(t *testing.T) {
	tests := []struct {
		name string
		log  func(a *Auditor)
		want string
	}{
		{"auth failure", func(a *Auditor) { a.LogAuthFailure("u", "p", "ip", "r") }, EventAuthFailure},
		{"authorization denied", func(a *Auditor) { a.LogAuthorizationDenied("u", "ip", "op", []string{"email"}, nil) }, EventAuthorizationDenied},
		{"token refreshed", func(a *Auditor) { a.LogTokenRefreshed("u", "p", true) }, EventTokenRefreshed},
		{"token refresh failed", func(a *Auditor) { a.LogTokenRefreshed("u", "p", false) }, EventTokenRefreshFailed},
		{"session created", func(a *Auditor) { a.LogSessionCreated("u", "p") }, EventSessionCreated},
		{"session deleted", func(a *Auditor) { a.LogSessionDeleted("u") }, EventSessionDeleted},
		{"sessions cleaned", func(a *Auditor) { a.LogSessionsCleaned(2) }, EventSessionsCleaned},
		{"rate limit", func(a *Auditor) { a.LogRateLimitExceeded("ip", "u") }, EventRateLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, buf := newTestAuditor(true)
			tt.log(auditor)
			if !strings.Contains(buf.String(), "event_type="+tt.want) {
				t.Errorf("log output %q missing event type %q", buf.String(), tt.want)
			}
		})
	}
}

func TestHashForLogging(t *testing.T) {
	if hashForLogging("") != "" {
		t.Error("empty input should hash to empty string")
	}
	a := hashForLogging("user-a")
	b := hashForLogging("user-b")
	if a == b {
		t.Error("distinct inputs produced identical hashes")
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
	if hashForLogging("user-a") != a {
		t.Error("hash is not deterministic")
	}
}
