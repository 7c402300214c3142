// Package disk implements an optional on-disk chunk store backed by
// BadgerDB. It sits behind the in-memory cache as a second tier: chunks
// evicted from memory can still be served from disk without touching the
// object store, which matters most for cold restarts and working sets
// larger than RAM.
//
// Entries are keyed by object key, ETag, and chunk index, so a changed
// object never serves stale bytes; old generations age out via TTL and
// value-log garbage collection.
package disk

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/cache"
)

// Config holds disk store configuration.
type Config struct {
	// Path is the Badger database directory. Empty with InMemory unset is
	// an error.
	Path string

	// InMemory runs Badger without touching disk. Test use only.
	InMemory bool

	// TTL is how long a chunk stays readable before Badger expires it.
	// Zero disables expiry.
	TTL time.Duration

	// GCInterval is how often the value-log garbage collector runs.
	// Zero disables the background GC loop.
	GCInterval time.Duration
}

// DefaultTTL is the chunk expiry applied when Config.TTL is zero at the
// call sites that want one.
const DefaultTTL = 24 * time.Hour

// Store is a Badger-backed chunk store. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open opens or creates the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk chunk store at %q: %w", cfg.Path, err)
	}

	s := &Store{
		db:     db,
		ttl:    cfg.TTL,
		stopGC: make(chan struct{}),
		doneGC: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.gcLoop(cfg.GCInterval)
	} else {
		close(s.doneGC)
	}

	return s, nil
}

// Get reads a chunk. The second return is false when the chunk is absent
// or expired.
func (s *Store) Get(ctx context.Context, id cache.ChunkID) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyChunk(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read chunk %s[%d]: %w", id.Key, id.Index, err)
	}

	return data, data != nil, nil
}

// Put writes a chunk, applying the configured TTL.
func (s *Store) Put(ctx context.Context, id cache.ChunkID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(keyChunk(id), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to write chunk %s[%d]: %w", id.Key, id.Index, err)
	}

	return nil
}

// Delete removes a single chunk. Missing chunks are not an error.
func (s *Store) Delete(ctx context.Context, id cache.ChunkID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyChunk(id))
	})
}

// DropObject removes every chunk cached for one object generation. Used
// when a read observes that the object changed upstream.
func (s *Store) DropObject(ctx context.Context, key, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := keyObjectPrefix(key, etag)

	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	close(s.stopGC)
	<-s.doneGC
	return s.db.Close()
}

// gcLoop periodically reclaims value-log space from expired and deleted
// chunks. Badger returns ErrNoRewrite when there is nothing to collect,
// which is not an error.
func (s *Store) gcLoop(interval time.Duration) {
	defer close(s.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == badger.ErrNoRewrite {
					break
				}
				if err != nil {
					logger.Warn("disk chunk store GC failed", "error", err)
					break
				}
			}
		}
	}
}

// keyChunk builds the Badger key for one chunk. Keys nest by object and
// generation so DropObject can prefix-scan a single generation.
func keyChunk(id cache.ChunkID) []byte {
	key := keyObjectPrefix(string(id.Key), string(id.ETag))
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], id.Index)
	return append(key, idx[:]...)
}

func keyObjectPrefix(key, etag string) []byte {
	buf := make([]byte, 0, len("chunk/")+len(key)+len(etag)+2)
	buf = append(buf, "chunk/"...)
	buf = append(buf, key...)
	buf = append(buf, 0)
	buf = append(buf, etag...)
	buf = append(buf, 0)
	return buf
}
