// Package cache deduplicates generations by request fingerprint.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"listory/internal/listing"
	"listory/internal/pipeline"
)

type Generator interface {
	Generate(ctx context.Context, req listing.GenerationRequest) (pipeline.Result, error)
}

type entry struct {
	res     pipeline.Result
	expires time.Time
	added   time.Time
}

const defaultTimeout = 5 * time.Minute

// Cache runs at most one generation per fingerprint at a time and keeps
// successful results for a TTL. Errors are never cached.
type Cache struct {
	// Timeout bounds a shared generation, which runs detached from the
	// caller that started it.
	Timeout time.Duration

	next    Generator
	ttl     time.Duration
	max     int
	now     func() time.Time
	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]entry
}

func New(next Generator, ttl time.Duration, max int) *Cache {
	if max <= 0 {
		max = 256
	}
	return &Cache{Timeout: defaultTimeout, next: next, ttl: ttl, max: max, now: time.Now, entries: map[string]entry{}}
}

func (c *Cache) Generate(ctx context.Context, req listing.GenerationRequest) (pipeline.Result, error) {
	key := req.Fingerprint()
	if res, ok := c.lookup(key); ok {
		return withRequestID(res, req.RequestID), nil
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(shared, c.timeout())
		defer cancel()
		res, err := c.next.Generate(callCtx, req)
		if err != nil {
			return nil, err
		}
		c.store(key, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return pipeline.Result{}, &pipeline.GenerationError{Kind: pipeline.KindCanceled, Err: ctx.Err()}
	case r := <-ch:
		if r.Err != nil {
			return pipeline.Result{}, r.Err
		}
		return withRequestID(r.Val.(pipeline.Result), req.RequestID), nil
	}
}

func (c *Cache) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (pipeline.Result, bool) {
	if c.ttl <= 0 {
		return pipeline.Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return pipeline.Result{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return pipeline.Result{}, false
	}
	return e.res, true
}

func (c *Cache) store(key string, res pipeline.Result) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.evictExpired()
	}
	if len(c.entries) >= c.max {
		oldest := ""
		var at time.Time
		for k, e := range c.entries {
			if oldest == "" || e.added.Before(at) {
				oldest, at = k, e.added
			}
		}
		delete(c.entries, oldest)
	}
	now := c.now()
	c.entries[key] = entry{res: res, expires: now.Add(c.ttl), added: now}
}

func (c *Cache) evictExpired() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

func withRequestID(res pipeline.Result, id string) pipeline.Result {
	if id != "" {
		res.Content.RequestID = id
	}
	return res
}
