// Package resolver maps filesystem paths to remote objects.
//
// The object store has no directories, only keys. The resolver imposes
// the usual hierarchy: "/" separates path components, a path is a file
// when an object exists under exactly that key, and a directory when at
// least one key lives under "path/". A name that is both resolves as a
// directory, matching how flat listings render in every S3 browser.
//
// Lookups are cached, positively and negatively, for a short TTL. The
// backing store is the source of truth and can change at any time; the
// TTL bounds how stale an entry the kernel can observe.
package resolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/object"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
)

// Kind says what a path resolved to.
type Kind int

const (
	// KindFile is a path backed by an object.
	KindFile Kind = iota

	// KindDir is a path with objects below it.
	KindDir
)

// Node is the result of resolving a path.
type Node struct {
	Kind Kind

	// ID is the object identity. Only set for KindFile.
	ID object.ID
}

// DirEntry is one name inside a directory.
type DirEntry struct {
	Name string
	Kind Kind

	// Size is the object size for files, zero for directories.
	Size uint64
}

// Config holds resolver configuration.
type Config struct {
	// TTL is how long lookups are cached. Defaults to 1 second.
	TTL time.Duration

	// ListPageSize bounds directory listing pages. Defaults to 1000.
	ListPageSize int
}

type cached struct {
	node    Node
	miss    bool // negative entry: the path resolved to nothing
	expires time.Time
}

// Resolver resolves paths against an object store client. Safe for
// concurrent use.
type Resolver struct {
	client storeobject.Client
	ttl    time.Duration
	page   int

	mu      sync.Mutex
	entries map[string]cached
}

// New creates a resolver.
func New(client storeobject.Client, cfg Config) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Second
	}
	if cfg.ListPageSize <= 0 {
		cfg.ListPageSize = 1000
	}

	return &Resolver{
		client:  client,
		ttl:     cfg.TTL,
		page:    cfg.ListPageSize,
		entries: make(map[string]cached),
	}
}

// Stat resolves a path. Paths are slash-separated and relative to the
// mount root; "" or "/" is the root directory. Returns a NotFound store
// error when nothing exists at the path.
func (r *Resolver) Stat(ctx context.Context, path string) (Node, error) {
	path = Clean(path)
	if path == "" {
		return Node{Kind: KindDir}, nil
	}

	if n, ok, hit := r.lookup(path); hit {
		if !ok {
			return Node{}, storeobject.NewError(storeobject.KindNotFound, object.Key(path), nil)
		}
		return n, nil
	}

	node, err := r.statSlow(ctx, path)
	if err != nil {
		if storeobject.IsNotFound(err) {
			r.store(path, Node{}, true)
		}
		return Node{}, err
	}

	r.store(path, node, false)
	return node, nil
}

func (r *Resolver) statSlow(ctx context.Context, path string) (Node, error) {
	// Directory check first: a key that exists both as an object and as a
	// prefix resolves as a directory.
	entries, err := r.client.List(ctx, path+"/", 1)
	if err != nil {
		return Node{}, err
	}
	if len(entries) > 0 {
		return Node{Kind: KindDir}, nil
	}

	id, err := r.client.Resolve(ctx, object.Key(path))
	if err != nil {
		return Node{}, err
	}
	return Node{Kind: KindFile, ID: id}, nil
}

// ReadDir lists a directory. The root is "" or "/". Entries come back in
// the store's listing order, which for S3 is lexicographic.
func (r *Resolver) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	prefix := Clean(path)
	if prefix != "" {
		prefix += "/"
	}

	raw, err := r.client.List(ctx, prefix, r.page)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(raw))
	for _, e := range raw {
		name := strings.TrimPrefix(string(e.Key), prefix)
		name = strings.TrimSuffix(name, "/")
		if name == "" {
			// The zero-byte "directory marker" object some tools create
			// at the prefix itself.
			continue
		}

		if e.IsPrefix {
			entries = append(entries, DirEntry{Name: name, Kind: KindDir})
		} else {
			entries = append(entries, DirEntry{Name: name, Kind: KindFile, Size: e.Size})
		}
	}

	logger.Debug("Resolved directory", "path", path, "entries", len(entries))
	return entries, nil
}

// Invalidate drops the cached lookup for a path, forcing the next Stat to
// hit the store. Used after a read observes that the object changed.
func (r *Resolver) Invalidate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, Clean(path))
}

func (r *Resolver) lookup(path string) (n Node, ok, hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.entries[path]
	if !found || time.Now().After(e.expires) {
		return Node{}, false, false
	}
	return e.node, !e.miss, true
}

func (r *Resolver) store(path string, n Node, miss bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[path] = cached{node: n, miss: miss, expires: time.Now().Add(r.ttl)}
}

// Clean normalizes a path: strips leading and trailing slashes and
// collapses empty components.
func Clean(path string) string {
	parts := strings.Split(path, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
