// Package security provides the security utilities shared by the authkit
// middleware and session stores: audit logging with PII hashing, token
// encryption at rest, per-identifier rate limiting, clock-skew tolerant
// expiry checks, request ID correlation, and client IP extraction.
package security
