// Package authkit provides OAuth 2.0 + PKCE authentication, session
// management, and request-level authorization enforcement for services that
// delegate identity to external providers.
//
// The core entry point is the Middleware: it extracts credentials from
// inbound requests, authenticates them against a configured provider,
// persists and reuses sessions, refreshes expiring tokens transparently,
// and enforces scope and permission requirements before a request reaches
// the protected handler.
//
// Subpackages:
//
//   - pkce: RFC 7636 code verifier/challenge generation and verification
//   - providers: provider abstractions and the shared OAuth flow, with
//     google, github, jwtauth, apikey, and mock implementations
//   - sessions: the session record and Store interface, with memory, file,
//     and valkey backends
//   - security: audit logging, encryption at rest, rate limiting, and
//     related utilities
//   - instrumentation: OpenTelemetry metrics and tracing
package authkit
