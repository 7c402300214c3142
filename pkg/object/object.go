// Package object defines the identity of a remote object as seen by the
// DriftFS data path.
//
// An ID is resolved once when a file handle is opened and stays immutable
// for the lifetime of that handle. The ETag acts as a version token: every
// range fetch is conditional on it, so a concurrent overwrite of the object
// in the bucket is detected as a precondition failure instead of silently
// mixing bytes from two generations.
package object

import "fmt"

// Key is the opaque key of an object in the remote store.
type Key string

// ETag is the version token observed for an object. Fetches carry it as an
// If-Match condition; a mismatch means the object changed under the handle.
type ETag string

// ID identifies a specific generation of a remote object.
type ID struct {
	// Key is the object key in the bucket.
	Key Key

	// Size is the object size in bytes at resolve time.
	Size uint64

	// ETag is the version token at resolve time.
	ETag ETag
}

// Valid reports whether the identity carries a key and a version token.
func (id ID) Valid() bool {
	return id.Key != "" && id.ETag != ""
}

// String renders the identity for logs.
func (id ID) String() string {
	return fmt.Sprintf("%s@%s", id.Key, id.ETag)
}
