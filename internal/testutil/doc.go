// Package testutil provides testing utilities and test fixtures for the
// authkit library. It includes helpers for creating test sessions and
// tokens, assertions, and a mock time provider for deterministic testing.
package testutil
