// Package memory provides an in-memory session store.
// It is suitable for development, testing, and single-instance deployments.
package memory
