package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xff               string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:54321",
			want:       "203.0.113.7",
		},
		{
			name:       "XFF ignored when proxy untrusted",
			remoteAddr: "203.0.113.7:54321",
			xff:        "198.51.100.1",
			want:       "203.0.113.7",
		},
		{
			name:              "XFF honored behind one trusted proxy",
			remoteAddr:        "10.0.0.1:1234",
			xff:               "198.51.100.1",
			trustProxy:        true,
			trustedProxyCount: 0,
			want:              "198.51.100.1",
		},
		{
			name:              "XFF with trusted proxy chain",
			remoteAddr:        "10.0.0.1:1234",
			xff:               "198.51.100.1, 10.0.0.5, 10.0.0.6",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "198.51.100.1",
		},
		{
			name:       "X-Real-IP fallback",
			remoteAddr: "10.0.0.1:1234",
			xRealIP:    "198.51.100.9",
			trustProxy: true,
			want:       "198.51.100.9",
		},
		{
			name:       "invalid XFF entry falls through to RemoteAddr",
			remoteAddr: "10.0.0.1:1234",
			xff:        "not-an-ip",
			trustProxy: true,
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got := GetClientIP(r, tt.trustProxy, tt.trustedProxyCount)
			if got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
