package cache

import (
	"context"
)

// Add stores key→value only if key is absent at layer 0.
// Region and expiration come from opts.
// Returns false if the key already exists (no update is performed).
func (c *Cache) Add(ctx context.Context, key string, value any, opts ...Option) (bool, error) {
	it, err := NewItem(key, value, opts...)
	if err != nil {
		return false, err
	}
	return c.AddItem(ctx, it)
}

// Put stores key→value at every layer, replacing existing values.
func (c *Cache) Put(ctx context.Context, key string, value any, opts ...Option) error {
	it, err := NewItem(key, value, opts...)
	if err != nil {
		return err
	}
	return c.PutItem(ctx, it)
}

// Get returns the value stored for key. A miss is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key string, opts ...Option) (any, bool, error) {
	it, ok, err := c.GetItem(ctx, key, opts...)
	if !ok {
		return nil, false, err
	}
	return it.Value, true, err
}

// GetItem returns the stored item for key, including its expiration policy.
func (c *Cache) GetItem(ctx context.Context, key string, opts ...Option) (*Item, bool, error) {
	addr, err := addressOf(key, opts)
	if err != nil {
		return nil, false, err
	}
	return c.getItem(ctx, addr)
}

// Remove deletes key from every layer. It reports whether key was present
// in at least one layer.
func (c *Cache) Remove(ctx context.Context, key string, opts ...Option) (bool, error) {
	addr, err := addressOf(key, opts)
	if err != nil {
		return false, err
	}
	return c.removeAt(ctx, addr)
}

// Update replaces the value of an existing key with fn(old) and writes it
// through every layer, keeping the item's region and expiration.
// It returns (nil, false, nil) when key is not cached.
//
// An absolute deadline is kept: the item still expires at its original
// ExpiresAt. Update is a read followed by a Put; concurrent updates of the
// same key are last-writer-wins.
func (c *Cache) Update(ctx context.Context, key string, fn func(old any) any, opts ...Option) (any, bool, error) {
	if fn == nil {
		return nil, false, invalidArg("update function must not be nil")
	}
	old, ok, err := c.GetItem(ctx, key, opts...)
	if !ok {
		return nil, false, err
	}
	readErr := err

	nv := fn(old.Value)
	if isNil(nv) {
		return nil, false, invalidArg("update of %q returned nil", key)
	}
	it := old.WithValue(nv)
	if it.ExpirationMode != ExpireAbsolute {
		it.CreatedAt = c.now()
	}
	if err := c.PutItem(ctx, it); err != nil && !IsPartial(err) {
		return nil, false, err
	} else if err != nil {
		return nv, true, partial(readErr, err)
	}
	return nv, true, readErr
}

// AddOrUpdate adds key→value, or applies fn to the cached value when key
// already exists. It returns the value now in the cache.
func (c *Cache) AddOrUpdate(ctx context.Context, key string, value any, fn func(old any) any, opts ...Option) (any, error) {
	if fn == nil {
		return nil, invalidArg("update function must not be nil")
	}
	added, err := c.Add(ctx, key, value, opts...)
	if added {
		return value, err
	}
	if err != nil {
		return nil, err
	}
	v, ok, err := c.Update(ctx, key, fn, opts...)
	if !ok && err == nil {
		// removed between Add and Update; the value is ours again
		return value, c.Put(ctx, key, value, opts...)
	}
	return v, err
}

// GetOrAdd returns the cached value for key. On a miss it calls factory and
// adds the result. Concurrent misses for the same address share one factory
// call. If another writer wins the Add, its value is returned.
func (c *Cache) GetOrAdd(ctx context.Context, key string, factory func(ctx context.Context) (any, error), opts ...Option) (any, error) {
	if factory == nil {
		return nil, invalidArg("factory must not be nil")
	}
	addr, err := addressOf(key, opts)
	if err != nil {
		return nil, err
	}
	if it, ok, err := c.getItem(ctx, addr); ok || err != nil {
		if !ok {
			return nil, err
		}
		return it.Value, err
	}

	it, _, err := c.flights.Do(ctx, addr, func() (*Item, error) {
		if it, ok, err := c.getItem(ctx, addr); ok || err != nil {
			return it, err
		}
		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		it, err := NewItem(key, v, opts...)
		if err != nil {
			return nil, err
		}
		added, addErr := c.AddItem(ctx, it)
		if added {
			return it, addErr
		}
		if addErr != nil {
			return nil, addErr
		}
		if cur, ok, err := c.getItem(ctx, addr); ok {
			return cur, err
		}
		return it, c.PutItem(ctx, it)
	})
	if it == nil {
		return nil, err
	}
	return it.Value, err
}
