package fs

import (
	"context"
	"errors"
	"io"
	"syscall"

	storeobject "github.com/marmos91/driftfs/pkg/store/object"
	"github.com/marmos91/driftfs/pkg/stream"
)

// errnoFor maps data path errors onto POSIX errno values:
//
//	NotFound          -> ENOENT
//	PermissionDenied  -> EACCES
//	ObjectChanged     -> ESTALE  (handle is stale, reopen to recover)
//	Cancelled         -> EINTR
//	Unavailable       -> EIO
//
// Anything unclassified is EIO, the catch-all the kernel expects for a
// backend it cannot reason about.
func errnoFor(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return syscall.EINTR
	}
	if errors.Is(err, stream.ErrClosed) {
		return syscall.EBADF
	}

	switch storeobject.KindOf(err) {
	case storeobject.KindNotFound:
		return syscall.ENOENT
	case storeobject.KindPermissionDenied:
		return syscall.EACCES
	case storeobject.KindObjectChanged:
		return syscall.ESTALE
	case storeobject.KindCancelled:
		return syscall.EINTR
	}

	return syscall.EIO
}

// isEOF reports whether err is the end-of-file condition, which FUSE
// expresses as a short read rather than an error.
func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
