package fs

import (
	"context"
	"sync/atomic"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/internal/telemetry"
	"github.com/marmos91/driftfs/pkg/object"
	"github.com/marmos91/driftfs/pkg/resolver"
	"github.com/marmos91/driftfs/pkg/stream"
)

// dirNode is a directory backed by a key prefix. path is the cleaned
// mount-relative path, empty for the root.
type dirNode struct {
	gofuse.Inode
	opts *Options
	path string
}

var _ gofuse.InodeEmbedder = (*dirNode)(nil)
var _ gofuse.NodeLookuper = (*dirNode)(nil)
var _ gofuse.NodeReaddirer = (*dirNode)(nil)
var _ gofuse.NodeGetattrer = (*dirNode)(nil)

func (d *dirNode) child(name string) string {
	if d.path == "" {
		return name
	}
	return d.path + "/" + name
}

func (d *dirNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFDIR | 0o555
	return 0
}

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	path := d.child(name)

	ctx, span := telemetry.StartFSSpan(ctx, telemetry.SpanFSLookup, path)
	defer span.End()

	node, err := d.opts.Resolver.Stat(ctx, path)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, errnoFor(err)
	}

	if node.Kind == resolver.KindDir {
		child := d.NewInode(ctx, &dirNode{opts: d.opts, path: path},
			gofuse.StableAttr{Mode: syscall.S_IFDIR})
		out.Mode = syscall.S_IFDIR | 0o555
		return child, 0
	}

	file := &fileNode{opts: d.opts, path: path}
	file.storeID(node.ID)
	child := d.NewInode(ctx, file, gofuse.StableAttr{Mode: syscall.S_IFREG})
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = node.ID.Size
	return child, 0
}

func (d *dirNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	ctx, span := telemetry.StartFSSpan(ctx, telemetry.SpanFSReaddir, d.path)
	defer span.End()

	listed, err := d.opts.Resolver.ReadDir(ctx, d.path)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, errnoFor(err)
	}

	entries := make([]fuse.DirEntry, 0, len(listed))
	for _, e := range listed {
		mode := uint32(syscall.S_IFREG)
		if e.Kind == resolver.KindDir {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: e.Name, Mode: mode})
	}

	return &sliceDirStream{entries: entries}, 0
}

// fileNode is a file backed by one object. The identity captured at
// lookup time serves Getattr; Open re-resolves so a fresh handle always
// reads the current generation. go-fuse dispatches operations
// concurrently, so the identity is stored atomically rather than
// mutated in place.
type fileNode struct {
	gofuse.Inode
	opts *Options
	path string
	id   atomic.Pointer[object.ID]
}

var _ gofuse.InodeEmbedder = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)
var _ gofuse.NodeOpener = (*fileNode)(nil)

func (f *fileNode) storeID(id object.ID) {
	f.id.Store(&id)
}

func (f *fileNode) Getattr(_ context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = f.id.Load().Size
	out.Blocks = (out.Size + 511) / 512
	return 0
}

func (f *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}

	ctx, span := telemetry.StartFSSpan(ctx, telemetry.SpanFSOpen, f.path)
	defer span.End()

	// Re-resolve so this handle binds to the current generation even
	// when the node's cached identity predates an upstream overwrite.
	f.opts.Resolver.Invalidate(f.path)
	node, err := f.opts.Resolver.Stat(ctx, f.path)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, 0, errnoFor(err)
	}
	if node.Kind != resolver.KindFile {
		return nil, 0, syscall.EISDIR
	}
	f.storeID(node.ID)

	handle, s := f.opts.Streams.Open(node.ID)
	return &fileHandle{opts: f.opts, handle: handle, stream: s, path: f.path}, 0, 0
}

// fileHandle is one open descriptor. It owns a stream and releases it
// on close.
type fileHandle struct {
	opts   *Options
	handle uint64
	stream *stream.Stream
	path   string
}

var _ gofuse.FileReader = (*fileHandle)(nil)
var _ gofuse.FileReleaser = (*fileHandle)(nil)

func (fh *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 {
		return nil, syscall.EINVAL
	}

	ctx, span := telemetry.StartFSSpan(ctx, telemetry.SpanFSRead, fh.path,
		telemetry.Handle(fh.handle), telemetry.Offset(uint64(off)), telemetry.Count(len(dest)))
	defer span.End()

	n, err := fh.stream.ReadAt(ctx, dest, uint64(off))
	if err != nil && !isEOF(err) {
		telemetry.RecordError(ctx, err)
		logger.Warn("Read failed", "path", fh.path, "offset", off, "error", err)

		if errno := errnoFor(err); errno == syscall.ESTALE {
			// The object changed under us; drop the stale lookup entry
			// so the next open sees the new generation.
			fh.opts.Resolver.Invalidate(fh.path)
			return nil, errno
		} else if errno != 0 {
			return nil, errno
		}
	}

	return fuse.ReadResultData(dest[:n]), 0
}

func (fh *fileHandle) Release(context.Context) syscall.Errno {
	fh.opts.Streams.Close(fh.handle)
	return 0
}

// sliceDirStream implements fs.DirStream over a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool {
	return s.index < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
