// Package memory implements an in-memory object client for tests.
//
// The store holds byte slices keyed by object key and mimics the remote
// client contract exactly: version tokens, classified errors, and internal
// retry of transient failures. Tests script failures and inspect fetch
// counts to assert single-flight and retry behavior.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/driftfs/pkg/object"
	storeobject "github.com/marmos91/driftfs/pkg/store/object"
)

// FetchRecord describes one FetchRange attempt observed by the store.
type FetchRecord struct {
	Key    object.Key
	Offset uint64
	Length uint64
}

type entry struct {
	data []byte
	etag object.ETag
}

// Store is an in-memory object.Client implementation.
type Store struct {
	mu      sync.Mutex
	objects map[object.Key]*entry

	// maxAttempts is the internal retry budget, matching the production
	// client's semantics. Default 1 (no retries).
	maxAttempts int

	// fetchDelay is applied to every fetch attempt, simulating network
	// latency.
	fetchDelay time.Duration

	// failures are consumed one per fetch attempt until exhausted.
	failures []error

	fetches []FetchRecord
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		objects:     make(map[object.Key]*entry),
		maxAttempts: 1,
	}
}

var _ storeobject.Client = (*Store)(nil)

// Put stores data under key and returns its identity. Overwrites bump the
// version token, so handles resolved before a Put observe ObjectChanged on
// their next fetch.
func (s *Store) Put(key object.Key, data []byte) object.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := md5.Sum(data)
	e := &entry{
		data: append([]byte(nil), data...),
		etag: object.ETag(hex.EncodeToString(sum[:])),
	}
	s.objects[key] = e

	return object.ID{Key: key, Size: uint64(len(e.data)), ETag: e.etag}
}

// SetMaxAttempts configures the internal retry budget for transient
// failures.
func (s *Store) SetMaxAttempts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.maxAttempts = n
}

// SetFetchDelay makes every fetch attempt take at least d.
func (s *Store) SetFetchDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchDelay = d
}

// FailNextFetches scripts the next n fetch attempts to fail with err.
// Pass a transient error (ErrTransient) to exercise the retry path, or a
// classified *storeobject.Error to exercise terminal failures.
func (s *Store) FailNextFetches(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, err)
	}
}

// ErrTransient is a scripted failure the store treats as retryable.
var ErrTransient = &transientError{}

type transientError struct{}

func (*transientError) Error() string { return "simulated transient failure" }

// FetchCount returns the number of fetch attempts observed, including
// retried and failed ones.
func (s *Store) FetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetches)
}

// Fetches returns a copy of all observed fetch attempts in order.
func (s *Store) Fetches() []FetchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FetchRecord(nil), s.fetches...)
}

// FetchesFor returns the number of fetch attempts that touched the given
// offset of the given key.
func (s *Store) FetchesFor(key object.Key, offset uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, f := range s.fetches {
		if f.Key == key && f.Offset <= offset && offset < f.Offset+f.Length {
			count++
		}
	}
	return count
}

// Resolve implements storeobject.Client.
func (s *Store) Resolve(ctx context.Context, key object.Key) (object.ID, error) {
	if err := ctx.Err(); err != nil {
		return object.ID{}, storeobject.NewError(storeobject.KindCancelled, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.objects[key]
	if !ok {
		return object.ID{}, storeobject.NewError(storeobject.KindNotFound, key, nil)
	}
	return object.ID{Key: key, Size: uint64(len(e.data)), ETag: e.etag}, nil
}

// FetchRange implements storeobject.Client. Transient scripted failures are
// retried up to the configured attempt budget; terminal ones return
// immediately.
func (s *Store) FetchRange(ctx context.Context, id object.ID, offset, length uint64) ([]byte, error) {
	var lastErr error
	attempts := s.attemptBudget()
	for attempt := 0; attempt < attempts; attempt++ {
		data, err := s.fetchOnce(ctx, id, offset, length)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if _, transient := err.(*transientError); !transient {
			return nil, err
		}
	}
	return nil, storeobject.NewError(storeobject.KindUnavailable, id.Key, lastErr)
}

func (s *Store) attemptBudget() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxAttempts
}

func (s *Store) fetchOnce(ctx context.Context, id object.ID, offset, length uint64) ([]byte, error) {
	s.mu.Lock()
	s.fetches = append(s.fetches, FetchRecord{Key: id.Key, Offset: offset, Length: length})

	var scripted error
	if len(s.failures) > 0 {
		scripted = s.failures[0]
		s.failures = s.failures[1:]
	}
	e, ok := s.objects[id.Key]
	delay := s.fetchDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, storeobject.NewError(storeobject.KindCancelled, id.Key, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, storeobject.NewError(storeobject.KindCancelled, id.Key, err)
	}

	if scripted != nil {
		return nil, scripted
	}
	if !ok {
		return nil, storeobject.NewError(storeobject.KindNotFound, id.Key, nil)
	}
	if e.etag != id.ETag {
		return nil, storeobject.NewError(storeobject.KindObjectChanged, id.Key, nil)
	}
	if offset >= uint64(len(e.data)) {
		return nil, storeobject.NewError(storeobject.KindNotFound, id.Key, nil)
	}

	end := offset + length
	if end > uint64(len(e.data)) {
		end = uint64(len(e.data))
	}
	return append([]byte(nil), e.data[offset:end]...), nil
}

// List implements storeobject.Client with delimiter semantics matching S3.
func (s *Store) List(ctx context.Context, prefix string, max int) ([]storeobject.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeobject.NewError(storeobject.KindCancelled, object.Key(prefix), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var entries []storeobject.Entry
	for key, e := range s.objects {
		name := string(key)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			dir := prefix + rest[:idx+1]
			if !seen[dir] {
				seen[dir] = true
				entries = append(entries, storeobject.Entry{Key: object.Key(dir), IsPrefix: true})
			}
			continue
		}
		entries = append(entries, storeobject.Entry{Key: key, Size: uint64(len(e.data))})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}
	return entries, nil
}
