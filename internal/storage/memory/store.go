package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zephyrite/zephyrite/internal/core/domain"
	"github.com/zephyrite/zephyrite/pkg/cmap"
)

// Store is the in-memory key-value engine.
//
// Every stored *domain.Entry is immutable; puts swap in a new Entry under the
// shard lock, so readers observe either the old or the new entry whole.
type Store struct {
	entries *cmap.Map[*domain.Entry]
	keys    domain.KeyPolicy
	now     func() time.Time

	reads   atomic.Uint64
	writes  atomic.Uint64
	deletes atomic.Uint64
}

// Option configures the Store.
type Option func(*storeOptions)

type storeOptions struct {
	capacity int
	keys     domain.KeyPolicy
	now      func() time.Time
}

// WithCapacity hints how many keys the store is expected to hold.
func WithCapacity(n int) Option {
	return func(o *storeOptions) {
		o.capacity = n
	}
}

// WithKeyPolicy sets the key validation policy.
func WithKeyPolicy(p domain.KeyPolicy) Option {
	return func(o *storeOptions) {
		o.keys = p
	}
}

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		o.now = now
	}
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	o := storeOptions{
		keys: domain.DefaultKeyPolicy(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var mapOpts []cmap.Option
	if o.capacity > 0 {
		mapOpts = append(mapOpts, cmap.WithCapacity(o.capacity))
	}

	return &Store{
		entries: cmap.New[*domain.Entry](mapOpts...),
		keys:    o.keys,
		now:     o.now,
	}
}

// KeyPolicy returns the validation policy the store enforces.
func (s *Store) KeyPolicy() domain.KeyPolicy {
	return s.keys
}

// Get returns a copy of the entry for key, or ErrKeyNotFound.
func (s *Store) Get(_ context.Context, key string) (*domain.Entry, error) {
	s.reads.Add(1)
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return entry.Clone(), nil
}

// Exists reports whether key is present.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.reads.Add(1)
	return s.entries.Has(key), nil
}

// SizeOf returns the value size of key in bytes, or ErrKeyNotFound.
func (s *Store) SizeOf(_ context.Context, key string) (int, error) {
	s.reads.Add(1)
	entry, ok := s.entries.Get(key)
	if !ok {
		return 0, domain.ErrKeyNotFound
	}
	return entry.Size, nil
}

// Put validates key and value, then inserts or replaces the entry.
func (s *Store) Put(_ context.Context, key string, value []byte) (domain.PutResult, error) {
	if err := s.keys.Validate(key); err != nil {
		return 0, err
	}
	if err := domain.ValidateValue(value); err != nil {
		return 0, err
	}

	owned := make([]byte, len(value))
	copy(owned, value)
	return s.ApplyPut(key, owned, s.now()), nil
}

// Delete validates key and removes its entry if present.
func (s *Store) Delete(_ context.Context, key string) (domain.DeleteResult, error) {
	if err := s.keys.Validate(key); err != nil {
		return 0, err
	}
	return s.ApplyDelete(key), nil
}

// ListKeys returns a snapshot of the current keys in no particular order.
func (s *Store) ListKeys(_ context.Context) ([]string, error) {
	s.reads.Add(1)
	return s.entries.Keys(), nil
}

// Clear removes every entry and returns how many were removed.
func (s *Store) Clear(_ context.Context) (int, error) {
	return s.ApplyClear(), nil
}

// ApplyPut stores value under key at time ts without validation.
//
// The store takes ownership of value. It is the mutation half of a put and is
// used directly by engines that validate and log before mutating.
func (s *Store) ApplyPut(key string, value []byte, ts time.Time) domain.PutResult {
	s.writes.Add(1)
	result := domain.Updated
	s.entries.Upsert(key, func(existing *domain.Entry, exists bool) *domain.Entry {
		if !exists {
			result = domain.Created
			return domain.NewEntry(value, ts)
		}
		return existing.Update(value, ts)
	})
	return result
}

// ApplyDelete removes key without validation.
func (s *Store) ApplyDelete(key string) domain.DeleteResult {
	if _, ok := s.entries.Pop(key); !ok {
		return domain.NotFound
	}
	s.deletes.Add(1)
	return domain.Deleted
}

// ApplyClear removes every entry without validation.
func (s *Store) ApplyClear() int {
	s.writes.Add(1)
	return s.entries.Clear()
}

// Values returns copies of all stored values.
func (s *Store) Values(_ context.Context) ([][]byte, error) {
	s.reads.Add(1)
	values := make([][]byte, 0, s.entries.Count())
	s.entries.Range(func(_ string, entry *domain.Entry) bool {
		v := make([]byte, len(entry.Value))
		copy(v, entry.Value)
		values = append(values, v)
		return true
	})
	return values, nil
}

// All returns copies of every entry keyed by key.
func (s *Store) All(_ context.Context) (map[string]*domain.Entry, error) {
	s.reads.Add(1)
	return s.Snapshot(), nil
}

// Snapshot returns copies of every entry without touching the counters.
func (s *Store) Snapshot() map[string]*domain.Entry {
	out := make(map[string]*domain.Entry, s.entries.Count())
	s.entries.Range(func(key string, entry *domain.Entry) bool {
		out[key] = entry.Clone()
		return true
	})
	return out
}

// Len returns the number of keys.
func (s *Store) Len() int {
	return s.entries.Count()
}

// Has reports whether key is present without touching the counters.
func (s *Store) Has(key string) bool {
	return s.entries.Has(key)
}

// Stats returns the key count, approximate memory usage and operation counters.
//
// MemoryUsage counts key and value bytes only.
func (s *Store) Stats(_ context.Context) (domain.Stats, error) {
	var keys int
	var usage int64
	s.entries.Range(func(key string, entry *domain.Entry) bool {
		keys++
		usage += int64(len(key) + entry.Size)
		return true
	})

	reads, writes, deletes := s.reads.Load(), s.writes.Load(), s.deletes.Load()
	return domain.Stats{
		KeyCount:        keys,
		MemoryUsage:     usage,
		TotalOperations: reads + writes + deletes,
		Reads:           reads,
		Writes:          writes,
		Deletes:         deletes,
	}, nil
}

// ResetCounters zeroes the operation counters.
func (s *Store) ResetCounters() {
	s.reads.Store(0)
	s.writes.Store(0)
	s.deletes.Store(0)
}

// Close is a no-op; the store holds no external resources.
func (s *Store) Close() error {
	return nil
}
