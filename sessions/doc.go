// Package sessions defines the session record and the Store interface for
// persisting authenticated sessions, with backends in the memory, file, and
// valkey subpackages.
//
// A session ties a lookup key (normally a hash of the presented access
// token) to the tokens, user info, and scopes established at authentication
// time. Stores are safe for concurrent use; every operation takes a
// context.Context for cancellation and tracing.
package sessions
