// Package valkey provides a Valkey/Redis-backed session store for
// multi-instance deployments.
//
// Sessions are stored as JSON values under "<prefix>session:<userID>".
// Records for refreshable sessions carry no TTL (the cleanup sweep decides
// their fate); non-refreshable sessions expire with their access token via
// Valkey TTL. Tokens can be encrypted at rest with a security.Encryptor.
package valkey
