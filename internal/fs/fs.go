// Package fs exposes remote objects as a read-only FUSE filesystem.
//
// The node tree mirrors the resolver's view of the key namespace:
// directories are key prefixes, files are objects. All file I/O is
// delegated to the stream layer, so every open handle gets its own
// pattern detection and read-ahead while sharing the chunk cache.
package fs

import (
	"fmt"
	"os"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/resolver"
	"github.com/marmos91/driftfs/pkg/stream"
)

// Options configures the mount.
type Options struct {
	// Mountpoint is the directory to mount at. Created if missing.
	Mountpoint string

	// Resolver maps paths to objects.
	Resolver *resolver.Resolver

	// Streams manages per-handle read state.
	Streams *stream.Manager

	// FsName is the filesystem name shown in /proc/mounts. Defaults to
	// "driftfs".
	FsName string

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// AttrTimeout is how long the kernel may cache attributes and
	// entries. Should match the resolver TTL; defaults to 1 second.
	AttrTimeout time.Duration

	// Debug enables go-fuse request logging.
	Debug bool
}

// Mount mounts the filesystem. The caller serves requests with
// Server.Wait and tears down with Server.Unmount.
func Mount(opts Options) (*fuse.Server, error) {
	if opts.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if opts.Streams == nil {
		return nil, fmt.Errorf("stream manager is required")
	}
	if opts.FsName == "" {
		opts.FsName = "driftfs"
	}
	if opts.AttrTimeout <= 0 {
		opts.AttrTimeout = time.Second
	}

	if err := os.MkdirAll(opts.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mountpoint %s: %w", opts.Mountpoint, err)
	}

	root := &dirNode{opts: &opts, path: ""}

	attrTimeout := opts.AttrTimeout
	negativeTimeout := opts.AttrTimeout / 2

	server, err := gofuse.Mount(opts.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &attrTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     opts.FsName,
			Name:       "driftfs",
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mount at %s: %w", opts.Mountpoint, err)
	}

	logger.Info("Filesystem mounted", "mountpoint", opts.Mountpoint, "fsname", opts.FsName)
	return server, nil
}

// Unmount unmounts and logs the outcome. Busy mounts return an error
// from the kernel.
func Unmount(server *fuse.Server, mountpoint string) error {
	if err := server.Unmount(); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", mountpoint, err)
	}
	logger.Info("Filesystem unmounted", "mountpoint", mountpoint)
	return nil
}
