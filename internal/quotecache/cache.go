// Package quotecache holds recent search results so repeated and concurrent
// identical searches reuse one provider fan-out.
package quotecache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tripnest/service-booking/internal/search"
)

// DefaultTTL is how long a search result is served from cache.
const DefaultTTL = 3 * time.Minute

// Store is a shared cache tier.
type Store interface {
	Get(ctx context.Context, key string) (*search.Result, bool, error)
	Set(ctx context.Context, key string, res *search.Result, ttl time.Duration) error
}

// ComputeFunc produces a fresh result on a miss.
type ComputeFunc func(ctx context.Context) (*search.Result, error)

// Option configures a Cache.
type Option func(*Cache)

// WithSharedStore adds a second tier consulted after the in-process map.
func WithSharedStore(s Store) Option {
	return func(c *Cache) { c.shared = s }
}

// Cache is a two-tier TTL cache with per-key single-flight.
type Cache struct {
	ttl    time.Duration
	local  *ttlMap[*search.Result]
	shared Store
	group  singleflight.Group
	logger *zap.Logger
	now    func() time.Time
}

// New creates a cache. A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration, logger *zap.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:    ttl,
		local:  newTTLMap((*search.Result).Clone),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Lookup returns a cached result without computing one.
func (c *Cache) Lookup(ctx context.Context, key string) (*search.Result, bool) {
	if res, ok := c.local.Get(key); ok {
		return res, true
	}
	if c.shared == nil {
		return nil, false
	}

	res, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.Warn("shared quote cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	remaining := c.ttl - c.now().Sub(res.SearchedAt)
	if remaining <= 0 {
		return nil, false
	}
	c.local.Set(key, res, remaining)
	return res.Clone(), true
}

// GetOrCompute returns the cached result for key, or runs compute once for
// all concurrent callers of the same key. The computation is detached from
// the first caller's cancellation so other waiters still get an answer; a
// cancelled caller stops waiting and gets its context error. Failures are
// not cached. hit reports whether the result came from cache.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (res *search.Result, hit bool, err error) {
	if res, ok := c.Lookup(ctx, key); ok {
		return res, true, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// A caller that lost the race to a completed flight finds it here.
		if res, ok := c.local.Get(key); ok {
			return res, nil
		}
		res, err := compute(detached)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("quote cache: compute returned no result for %s", key)
		}
		c.store(detached, key, res)
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, false, r.Err
		}
		return r.Val.(*search.Result).Clone(), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *Cache) store(ctx context.Context, key string, res *search.Result) {
	c.local.Set(key, res, c.ttl)
	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, key, res, c.ttl); err != nil {
		c.logger.Warn("shared quote cache write failed", zap.String("key", key), zap.Error(err))
	}
}
