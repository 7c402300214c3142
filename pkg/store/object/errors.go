package object

import (
	"errors"
	"fmt"

	"github.com/marmos91/driftfs/pkg/object"
)

// Kind classifies a store failure. The data path branches on Kind, never on
// backend-specific error types.
type Kind int

const (
	// KindNotFound means the object or range no longer exists. Terminal.
	KindNotFound Kind = iota

	// KindPermissionDenied means the credentials cannot read the object.
	// Terminal.
	KindPermissionDenied

	// KindObjectChanged means the object's version token no longer matches
	// the one captured at open time. Terminal for the open handle; the
	// caller must reopen to see the new generation.
	KindObjectChanged

	// KindUnavailable means transient failures (timeouts, throttling)
	// persisted past the retry budget.
	KindUnavailable

	// KindCancelled means the caller's context ended before the operation
	// completed.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindObjectChanged:
		return "object_changed"
	case KindUnavailable:
		return "unavailable"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a classified store failure.
type Error struct {
	Kind Kind
	Key  object.Key
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error for a key.
func NewError(kind Kind, key object.Key, cause error) *Error {
	return &Error{Kind: kind, Key: key, Err: cause}
}

// KindOf extracts the Kind from an error chain. Unclassified errors report
// KindUnavailable, the conservative choice: the caller sees an I/O failure
// it may retry by reopening, never silently wrong data.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// IsNotFound reports whether err is classified KindNotFound.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// IsPermissionDenied reports whether err is classified KindPermissionDenied.
func IsPermissionDenied(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindPermissionDenied
}

// IsObjectChanged reports whether err is classified KindObjectChanged.
func IsObjectChanged(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindObjectChanged
}

// IsUnavailable reports whether err is classified KindUnavailable.
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnavailable
}

// IsCancelled reports whether err is classified KindCancelled.
func IsCancelled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindCancelled
}

// IsTerminal reports whether the error kind cannot be cured by retrying the
// same fetch: not found, permission denied, and object changed.
func IsTerminal(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindPermissionDenied, KindObjectChanged:
		return true
	default:
		return false
	}
}
