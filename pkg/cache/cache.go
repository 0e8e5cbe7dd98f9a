// Package cache implements the time-boxed, size-bounded caches used for
// detail pages, extracted fields and evaluation verdicts.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Entry is a cached value together with the time it was written.
type Entry[V any] struct {
	Value     V         `json:"value"`
	Timestamp time.Time `json:"ts"`
}

// Bounded maps string keys to entries. An entry older than the TTL is
// treated as absent and removed on read. After every mutation the cache
// holds at most MaxEntries entries, keeping the newest by timestamp.
type Bounded[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	now     func() time.Time
	entries map[string]Entry[V]
}

// New returns an empty cache. ttl <= 0 disables expiry and max <= 0
// disables the size bound.
func New[V any](ttl time.Duration, max int) *Bounded[V] {
	return &Bounded[V]{
		ttl:     ttl,
		max:     max,
		now:     time.Now,
		entries: make(map[string]Entry[V]),
	}
}

// SetClock replaces the time source. Used by tests.
func (c *Bounded[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// TTL returns the configured time-to-live.
func (c *Bounded[V]) TTL() time.Duration { return c.ttl }

// MaxEntries returns the configured size bound.
func (c *Bounded[V]) MaxEntries() int { return c.max }

// Get returns the value for key if present and not expired.
func (c *Bounded[V]) Get(key string) (V, bool) {
	v, ok, _ := c.get(key)
	return v, ok
}

// get also reports whether a stale entry was purged.
func (c *Bounded[V]) get(key string) (V, bool, bool) {
	var zero V
	if key == "" {
		return zero, false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return zero, false, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, key)
		return zero, false, true
	}
	return e.Value, true, false
}

// Set stores value under key stamped with the current time and prunes.
func (c *Bounded[V]) Set(key string, value V) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry[V]{Value: value, Timestamp: c.now()}
	c.prune()
}

// Update stores merge(old, found) under key. old is the zero value when
// the key is missing or expired.
func (c *Bounded[V]) Update(key string, merge func(old V, found bool) V) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	old, found := c.entries[key]
	if found && c.expired(old, now) {
		found = false
		old = Entry[V]{}
	}
	c.entries[key] = Entry[V]{Value: merge(old.Value, found), Timestamp: now}
	c.prune()
}

// Delete removes key and reports whether it was present.
func (c *Bounded[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Prune drops expired entries and trims to the size bound. It returns the
// number of entries removed.
func (c *Bounded[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prune()
}

func (c *Bounded[V]) prune() int {
	removed := 0
	now := c.now()
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	if c.max <= 0 || len(c.entries) <= c.max {
		return removed
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	// Newest first; equal timestamps fall back to key order.
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := c.entries[keys[i]].Timestamp, c.entries[keys[j]].Timestamp
		if ti.Equal(tj) {
			return keys[i] < keys[j]
		}
		return ti.After(tj)
	})
	for _, k := range keys[c.max:] {
		delete(c.entries, k)
		removed++
	}
	return removed
}

func (c *Bounded[V]) expired(e Entry[V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.Timestamp) > c.ttl
}

// Len returns the number of stored entries, including ones that have
// expired but not yet been pruned.
func (c *Bounded[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of all stored entries.
func (c *Bounded[V]) Snapshot() map[string]Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Entry[V], len(c.entries))
	for k, e := range c.entries {
		out[k] = e
	}
	return out
}

// Load replaces the contents with entries and prunes. It reports whether
// pruning removed anything.
func (c *Bounded[V]) Load(entries map[string]Entry[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[V], len(entries))
	for k, e := range entries {
		if k == "" {
			continue
		}
		c.entries[k] = e
	}
	return c.prune() > 0
}

// Clear removes every entry.
func (c *Bounded[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[V])
}
