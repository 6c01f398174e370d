package security

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()

	if len(a) != 22 {
		t.Errorf("request ID length = %d, want 22", len(a))
	}
	if a == b {
		t.Error("consecutive request IDs are identical")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID on empty context = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID = %q, want %q", got, "req-123")
	}
}

func TestRequestIDFromRequest(t *testing.T) {
	t.Run("valid inbound ID is preserved", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(RequestIDHeader, "upstream-abc_123")
		if got := RequestIDFromRequest(r); got != "upstream-abc_123" {
			t.Errorf("got %q, want upstream header value", got)
		}
	})

	t.Run("missing header generates fresh ID", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		if got := RequestIDFromRequest(r); len(got) != 22 {
			t.Errorf("generated ID length = %d, want 22", len(got))
		}
	})

	t.Run("injection attempt is replaced", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(RequestIDHeader, "evil\r\nSet-Cookie: x")
		got := RequestIDFromRequest(r)
		if strings.Contains(got, "\r") || strings.Contains(got, "\n") {
			t.Error("request ID contains control characters")
		}
		if got == "evil\r\nSet-Cookie: x" {
			t.Error("invalid inbound ID was not replaced")
		}
	})

	t.Run("overlong header is replaced", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(RequestIDHeader, strings.Repeat("a", 200))
		if got := RequestIDFromRequest(r); len(got) != 22 {
			t.Errorf("overlong inbound ID not replaced, got length %d", len(got))
		}
	})
}
