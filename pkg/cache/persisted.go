package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store is the durable key/value backend a Persisted cache is written to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Options configures a Persisted cache.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	// Debounce is how long writes are coalesced before a flush. Every new
	// mutation restarts the wait.
	Debounce time.Duration
	// OnError receives background flush failures. Nil discards them.
	OnError func(error)
	Now     func() time.Time
}

// Persisted is a Bounded cache serialized to a Store under a fixed key.
// Mutations mark it dirty and schedule a trailing flush; Close flushes
// whatever is still pending.
type Persisted[V any] struct {
	*Bounded[V]

	store    Store
	key      string
	debounce time.Duration
	onError  func(error)

	// flushMu orders writes so an older snapshot never lands last.
	flushMu sync.Mutex

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	closed bool
}

// Open loads the cache stored under key. A missing or unreadable blob
// yields an empty cache; only store failures are returned.
func Open[V any](ctx context.Context, store Store, key string, opts Options) (*Persisted[V], error) {
	b := New[V](opts.TTL, opts.MaxEntries)
	if opts.Now != nil {
		b.SetClock(opts.Now)
	}
	p := &Persisted[V]{
		Bounded:  b,
		store:    store,
		key:      key,
		debounce: opts.Debounce,
		onError:  opts.OnError,
	}

	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return p, nil
	}

	var entries map[string]Entry[V]
	if err := json.Unmarshal(raw, &entries); err != nil {
		p.reportError(fmt.Errorf("decoding %s, starting empty: %w", key, err))
		p.markDirty()
		return p, nil
	}
	if b.Load(entries) {
		p.markDirty()
	}
	return p, nil
}

// Key returns the store key this cache is persisted under.
func (p *Persisted[V]) Key() string { return p.key }

// Get returns a live entry, scheduling a flush if a stale one was purged.
func (p *Persisted[V]) Get(key string) (V, bool) {
	v, ok, purged := p.Bounded.get(key)
	if purged {
		p.markDirty()
	}
	return v, ok
}

// Set stores value and schedules a flush.
func (p *Persisted[V]) Set(key string, value V) {
	if key == "" {
		return
	}
	p.Bounded.Set(key, value)
	p.markDirty()
}

// Update merges into key and schedules a flush.
func (p *Persisted[V]) Update(key string, merge func(old V, found bool) V) {
	if key == "" {
		return
	}
	p.Bounded.Update(key, merge)
	p.markDirty()
}

// Delete removes key and schedules a flush if it existed.
func (p *Persisted[V]) Delete(key string) bool {
	ok := p.Bounded.Delete(key)
	if ok {
		p.markDirty()
	}
	return ok
}

// Prune drops expired and overflow entries, scheduling a flush if needed.
func (p *Persisted[V]) Prune() int {
	n := p.Bounded.Prune()
	if n > 0 {
		p.markDirty()
	}
	return n
}

// Clear empties the cache and schedules a flush.
func (p *Persisted[V]) Clear() {
	p.Bounded.Clear()
	p.markDirty()
}

// Dirty reports whether a write is pending.
func (p *Persisted[V]) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

func (p *Persisted[V]) markDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
	if p.closed {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.debounce <= 0 {
		p.timer = nil
		go p.flushInBackground()
		return
	}
	p.timer = time.AfterFunc(p.debounce, p.flushInBackground)
}

func (p *Persisted[V]) flushInBackground() {
	if err := p.Flush(context.Background()); err != nil {
		p.reportError(err)
	}
}

// Flush writes the cache now if it is dirty.
func (p *Persisted[V]) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if !p.dirty {
		p.mu.Unlock()
		return nil
	}
	p.dirty = false
	p.mu.Unlock()

	raw, err := json.Marshal(p.Bounded.Snapshot())
	if err == nil {
		err = p.store.Set(ctx, p.key, raw)
	}
	if err != nil {
		p.mu.Lock()
		p.dirty = true
		p.mu.Unlock()
		return fmt.Errorf("saving %s: %w", p.key, err)
	}
	return nil
}

// Close cancels any scheduled flush and writes pending changes. Later
// mutations are kept in memory only.
func (p *Persisted[V]) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Flush(ctx)
}

func (p *Persisted[V]) reportError(err error) {
	if p.onError != nil {
		p.onError(err)
	}
}
