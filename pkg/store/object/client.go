// Package object defines the contract between the data path and the remote
// object store.
//
// The data path never talks to a store SDK directly: it sees a Client that
// resolves keys to versioned identities and fetches byte ranges. Backends
// live in subpackages (s3 for production, memory for tests).
package object

import (
	"context"

	"github.com/marmos91/driftfs/pkg/object"
)

// Client performs operations against the remote object store.
//
// Implementations must be safe for concurrent use: the fetch worker pool
// issues overlapping FetchRange calls from multiple goroutines.
type Client interface {
	// Resolve returns the versioned identity of an object: its size and
	// current version token. Called once at open time.
	//
	// Errors are classified per the package taxonomy; a missing object
	// returns KindNotFound.
	Resolve(ctx context.Context, key object.Key) (object.ID, error)

	// FetchRange fetches [offset, offset+length) of the identified object.
	//
	// The fetch is conditional on id.ETag. If the remote object no longer
	// matches, the fetch fails with KindObjectChanged and the caller must
	// treat the handle as stale.
	//
	// Transient failures are retried internally with bounded exponential
	// backoff; exhausting the retry budget surfaces KindUnavailable.
	// A range that starts past the end of the object is the caller's bug:
	// the data path clamps reads to the object size before fetching.
	FetchRange(ctx context.Context, id object.ID, offset, length uint64) ([]byte, error)

	// List returns the keys under the given prefix, up to max entries.
	// Used by the path resolver for directory listings; not part of the
	// read data path.
	List(ctx context.Context, prefix string, max int) ([]Entry, error)
}

// Entry is a single listing result.
type Entry struct {
	// Key is the full object key.
	Key object.Key

	// Size is the object size in bytes.
	Size uint64

	// IsPrefix marks a common prefix ("directory") rather than an object.
	IsPrefix bool
}
