package cache

import (
	"context"
	"errors"
	"time"
)

// LayeredCache implements a multi-layer cache: a memory front over a
// persistent back (disk or redis)
type LayeredCache struct {
	memory Cache
	back   Cache
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(memory, back Cache) *LayeredCache {
	return &LayeredCache{
		memory: memory,
		back:   back,
	}
}

// Get retrieves a value from the cache (checks memory first, then the back layer)
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, found, _ := c.memory.Get(ctx, key); found {
		return val, true, nil
	}

	val, found, err := c.back.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	// Promote to memory cache
	_ = c.memory.Set(ctx, key, val, 0)
	return val, true, nil
}

// Set stores a value in both layers
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.back.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.memory.Set(ctx, key, value, ttl)
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	return errors.Join(c.memory.Delete(ctx, key), c.back.Delete(ctx, key))
}

// Clear removes all values from both layers
func (c *LayeredCache) Clear(ctx context.Context) error {
	return errors.Join(c.memory.Clear(ctx), c.back.Clear(ctx))
}
