package fetch

import (
	"time"

	"github.com/sw33tLie/jobscope/pkg/cache"
)

// DefaultDocumentTTL is how long a fetched page is reused.
const DefaultDocumentTTL = 5 * time.Minute

// DocumentCache holds raw page bodies keyed by the exact URL that was
// fetched. It lives for the process only and has no size bound.
type DocumentCache struct {
	c *cache.Bounded[string]
}

func NewDocumentCache(ttl time.Duration) *DocumentCache {
	if ttl <= 0 {
		ttl = DefaultDocumentTTL
	}
	return &DocumentCache{c: cache.New[string](ttl, 0)}
}

// SetClock replaces the time source. Used by tests.
func (d *DocumentCache) SetClock(now func() time.Time) { d.c.SetClock(now) }

func (d *DocumentCache) Get(url string) (string, bool) { return d.c.Get(url) }

func (d *DocumentCache) Put(url, body string) { d.c.Set(url, body) }

func (d *DocumentCache) Len() int { return d.c.Len() }
