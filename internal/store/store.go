// package store holds fetched server state for the lifetime of the process
package store

import (
	"strings"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/desertthunder/scorebook/internal/models"
)

const (
	DefaultStaleAfter = 5 * time.Minute
	DefaultGCAfter    = 30 * time.Minute
	DefaultMaxEntries = 2000
)

// Invalidator marks cached keys for refresh.
type Invalidator interface {
	Invalidate(keys ...string)
	InvalidatePrefix(prefix string)
}

// Entry is a cached value and when the server last confirmed it.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
	Stale     bool // set by invalidation or a failed write
}

// IsStale reports whether the entry is eligible for a background refresh at now.
func (e Entry[V]) IsStale(now time.Time, window time.Duration) bool {
	return e.Stale || now.Sub(e.FetchedAt) >= window
}

// Options configures a [Store]; zero fields take the package defaults.
type Options struct {
	StaleAfter time.Duration
	GCAfter    time.Duration
	MaxEntries int
	Now        func() time.Time
}

// Store is a key-value cache with a staleness window and an eviction window.
//
// Entries untouched for GCAfter are evicted; the least recently used entry goes first once MaxEntries is reached.
// All methods are safe for concurrent use.
type Store[V any] struct {
	c          cache.Cache[string, Entry[V]]
	staleAfter time.Duration
	now        func() time.Time

	mu        sync.Mutex
	listeners []func(key string)
}

// New creates a store.
func New[V any](opts Options) *Store[V] {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.GCAfter <= 0 {
		opts.GCAfter = DefaultGCAfter
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store[V]{
		c:          cache.NewCache[string, Entry[V]]().WithTTL(opts.GCAfter).WithMaxKeys(opts.MaxEntries).WithLRU(),
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
	}
}

// StatusStore caches like and favourite statuses keyed by [models.CacheKey].
type StatusStore = Store[models.Status]

// NewStatusStore creates a [StatusStore].
func NewStatusStore(opts Options) *StatusStore {
	return New[models.Status](opts)
}

// StaleAfter returns the staleness window.
func (s *Store[V]) StaleAfter() time.Duration { return s.staleAfter }

// Get returns the entry for key and whether it is stale.
func (s *Store[V]) Get(key string) (entry Entry[V], stale bool, ok bool) {
	entry, ok = s.c.Get(key)
	if !ok {
		return entry, false, false
	}
	return entry, entry.IsStale(s.now(), s.staleAfter), true
}

// Fresh returns the value only when it is inside the staleness window.
func (s *Store[V]) Fresh(key string) (V, bool) {
	entry, stale, ok := s.Get(key)
	if !ok || stale {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores a server-confirmed value.
func (s *Store[V]) Set(key string, v V) {
	s.c.Set(key, Entry[V]{Value: v, FetchedAt: s.now()}, 0)
}

// Put stores entry unchanged.
func (s *Store[V]) Put(key string, entry Entry[V]) {
	s.c.Set(key, entry, 0)
}

// Replace swaps the value of key, keeping its fetch time; a missing key is stored as stale.
func (s *Store[V]) Replace(key string, v V) {
	entry, ok := s.c.Peek(key)
	if !ok {
		s.c.Set(key, Entry[V]{Value: v, FetchedAt: s.now(), Stale: true}, 0)
		return
	}
	entry.Value = v
	s.c.Set(key, entry, 0)
}

// MarkStale flags key so the next read refetches it.
func (s *Store[V]) MarkStale(key string) bool {
	entry, ok := s.c.Peek(key)
	if !ok {
		return false
	}
	entry.Stale = true
	s.c.Set(key, entry, 0)
	return true
}

// Remove drops key.
func (s *Store[V]) Remove(key string) {
	s.c.Invalidate(key)
}

// Invalidate marks keys stale and notifies subscribers, including for keys not cached yet.
func (s *Store[V]) Invalidate(keys ...string) {
	for _, key := range keys {
		s.MarkStale(key)
		s.notify(key)
	}
}

// InvalidatePrefix marks every cached key starting with prefix stale.
func (s *Store[V]) InvalidatePrefix(prefix string) {
	var matched []string
	for _, key := range s.c.Keys() {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	s.Invalidate(matched...)
}

// Subscribe registers fn to be called with every invalidated key.
func (s *Store[V]) Subscribe(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store[V]) notify(key string) {
	s.mu.Lock()
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(key)
	}
}

// Keys lists cached keys.
func (s *Store[V]) Keys() []string { return s.c.Keys() }

// Len returns the number of cached entries.
func (s *Store[V]) Len() int { return s.c.Len() }

// Purge removes everything, e.g. after signing out.
func (s *Store[V]) Purge() { s.c.Purge() }

// Stat returns hit, miss and eviction counters.
func (s *Store[V]) Stat() cache.Stats { return s.c.Stat() }

// Invalidators fans invalidation out to several stores.
type Invalidators []Invalidator

func (m Invalidators) Invalidate(keys ...string) {
	for _, inv := range m {
		inv.Invalidate(keys...)
	}
}

func (m Invalidators) InvalidatePrefix(prefix string) {
	for _, inv := range m {
		inv.InvalidatePrefix(prefix)
	}
}
