package security

import "time"

const (
	// DefaultClockSkewGracePeriod is the grace period applied to token and
	// session expiry checks. Client, server, and provider clocks are never
	// perfectly synchronized; 5 seconds absorbs typical NTP drift without
	// meaningfully extending token lifetime.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsTokenExpired checks if a token is expired with the default clock skew
// grace period. A zero expiry means the token does not expire.
func IsTokenExpired(expiresAt time.Time) bool {
	return IsTokenExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsTokenExpiredWithGracePeriod checks if a token is expired with a custom
// clock skew grace period.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}

// IsTokenExpiringSoon checks if a token will expire within the given threshold.
// This drives proactive refresh: a session whose token is expiring soon is
// refreshed before a request fails against the provider.
func IsTokenExpiringSoon(expiresAt time.Time, threshold time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(threshold).After(expiresAt)
}
