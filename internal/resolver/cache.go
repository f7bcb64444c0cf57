package resolver

import (
	"context"
	"net/netip"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached remembers successful lookups of an underlying Resolver for a fixed
// TTL. Failures are not cached.
type Cached struct {
	next  Resolver
	cache *cache.Cache
}

// NewCached wraps next with a cache holding entries for ttl.
func NewCached(next Resolver, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	if v, ok := c.cache.Get(host); ok {
		return slices.Clone(v.([]netip.Addr)), nil
	}
	addrs, err := c.next.LookupNetIP(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) > 0 {
		c.cache.Set(host, addrs, cache.DefaultExpiration)
	}
	return addrs, nil
}
