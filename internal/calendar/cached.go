package calendar

import (
	"fmt"
	"time"

	"github.com/boddenberg/pf-ledger-go/internal/infra/cache"
)

// CachedResolver memoizes another resolver's answers for a TTL.
type CachedResolver struct {
	next  Resolver
	cache *cache.InMemory[time.Time]
}

// NewCachedResolver wraps next with a TTL cache.
func NewCachedResolver(next Resolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{next: next, cache: cache.New[time.Time](ttl)}
}

func (c *CachedResolver) Resolve(hijriMonth, hijriDay, gregorianYear int) (time.Time, error) {
	key := fmt.Sprintf("%d:%d:%d", gregorianYear, hijriMonth, hijriDay)
	return c.cache.GetOrLoad(key, func() (time.Time, error) {
		return c.next.Resolve(hijriMonth, hijriDay, gregorianYear)
	})
}

// Invalidate drops every memoized answer, e.g. after the underlying table
// was extended.
func (c *CachedResolver) Invalidate() {
	c.cache.Clear()
}

// Close stops the cache's background cleanup.
func (c *CachedResolver) Close() {
	c.cache.Close()
}
