package sessions

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"zero expiry never expires", time.Time{}, false},
		{"future", time.Now().Add(time.Hour), false},
		{"past", time.Now().Add(-time.Hour), true},
		{"just expired within skew grace", time.Now().Add(-2 * time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SessionData{ExpiresAt: tt.expiresAt}
			if got := s.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeedsRefresh(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		buffer    time.Duration
		want      bool
	}{
		{"zero expiry", time.Time{}, time.Minute, false},
		{"well before buffer", time.Now().Add(time.Hour), time.Minute, false},
		{"inside buffer", time.Now().Add(30 * time.Second), time.Minute, true},
		{"already expired", time.Now().Add(-time.Minute), time.Minute, true},
		{"default buffer applies", time.Now().Add(2 * time.Minute), 0, true},
		{"default buffer not reached", time.Now().Add(10 * time.Minute), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SessionData{ExpiresAt: tt.expiresAt}
			if got := s.NeedsRefresh(tt.buffer); got != tt.want {
				t.Errorf("NeedsRefresh(%v) = %v, want %v", tt.buffer, got, tt.want)
			}
		})
	}
}

func TestClone(t *testing.T) {
	orig := &SessionData{
		UserID:      "u1",
		AccessToken: "tok",
		Scopes:      []string{"read"},
		UserInfo:    map[string]string{"email": "u@example.com"},
		Metadata:    map[string]string{"k": "v"},
	}

	clone := orig.Clone()
	clone.Scopes[0] = "write"
	clone.UserInfo["email"] = "other@example.com"
	clone.Metadata["k"] = "changed"

	if orig.Scopes[0] != "read" {
		t.Error("Clone() shares Scopes backing array")
	}
	if orig.UserInfo["email"] != "u@example.com" {
		t.Error("Clone() shares UserInfo map")
	}
	if orig.Metadata["k"] != "v" {
		t.Error("Clone() shares Metadata map")
	}

	var nilSession *SessionData
	if nilSession.Clone() != nil {
		t.Error("Clone() of nil is not nil")
	}
}

func TestTouchAdvancesUpdatedAt(t *testing.T) {
	s := &SessionData{UpdatedAt: time.Now().Add(-time.Minute)}
	before := s.UpdatedAt
	s.Touch()
	if !s.UpdatedAt.After(before) {
		t.Error("Touch() did not advance UpdatedAt")
	}
}

func TestSessionDataJSONRoundTrip(t *testing.T) {
	orig := &SessionData{
		UserID:       "u1",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
		Scopes:       []string{"read", "write"},
		Provider:     "google",
		UserInfo:     map[string]string{"email": "u@example.com"},
		CreatedAt:    time.Now().Truncate(time.Second),
		UpdatedAt:    time.Now().Truncate(time.Second),
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got SessionData
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.UserID != orig.UserID || got.AccessToken != orig.AccessToken ||
		got.RefreshToken != orig.RefreshToken || got.Provider != orig.Provider {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if !got.ExpiresAt.Equal(orig.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, orig.ExpiresAt)
	}
	if len(got.Scopes) != 2 {
		t.Errorf("Scopes = %v, want 2 entries", got.Scopes)
	}
}
