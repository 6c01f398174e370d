// Package file provides a session store persisting one JSON file per
// session under a directory.
//
// Writes are atomic: records are written to a temporary file and renamed
// into place, so readers never observe a partial record. Concurrent use
// from multiple processes is safe only to the extent the filesystem's
// rename is atomic; in-process access is serialized by the store.
//
// Tokens can be encrypted at rest by attaching a security.Encryptor.
package file
