package security

// Event type constants for security audit logging.
// Using constants keeps event names consistent across the middleware and
// session stores and prevents typos in log queries.
const (
	// Authentication events

	// EventAuthSuccess is logged when a request authenticates successfully
	EventAuthSuccess = "auth_success"

	// EventAuthFailure is logged when authentication fails (invalid or expired credentials)
	EventAuthFailure = "auth_failure"

	// EventAuthRequired is logged when credentials are missing on a protected request
	EventAuthRequired = "auth_required"

	// Authorization events

	// EventAuthorizationDenied is logged when an authenticated user lacks
	// required scopes or permissions
	EventAuthorizationDenied = "authorization_denied"

	// Token lifecycle events

	// EventTokenRefreshed is logged when an access token is refreshed using a refresh token
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRefreshFailed is logged when a refresh attempt is rejected by the provider
	EventTokenRefreshFailed = "token_refresh_failed"

	// Session lifecycle events

	// EventSessionCreated is logged when a new session is persisted
	EventSessionCreated = "session_created"

	// EventSessionDeleted is logged when a session is removed on logout
	EventSessionDeleted = "session_deleted"

	// EventSessionsCleaned is logged when an expiry sweep removes sessions
	EventSessionsCleaned = "sessions_cleaned"

	// Abuse events

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
