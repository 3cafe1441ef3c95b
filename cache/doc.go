// Package cache is a facade over an ordered chain of cache layers
// (for example an in-process layer in front of a Redis layer). Callers see
// one logical cache partitioned into optional regions; the Cache turns every
// call into ordered per-layer calls.
//
// Design
//
//   - Addresses: a key, optionally in a region, is composed into an Address
//     tuple. The same key with and without a region (or in two regions) lives
//     at distinct addresses. Empty keys and explicitly empty regions fail
//     with ErrInvalidArgument before any layer is touched.
//
//   - Layers: each layer implements Backend (TryGet, TryAdd, Put, Remove).
//     Index 0 is the fastest. TryAdd must be atomic within its layer.
//
//   - Add: TryAdd at layer 0 decides the result. On success the later layers
//     are tried in order; one that already holds the key keeps it and the
//     result stays true. Divergence heals on later reads.
//
//   - Get: layers are scanned in order. A hit at layer i > 0 is back-filled
//     into layers 0..i-1 (Put) before returning.
//
//   - Put: write-through to every layer, so all layers converge.
//
//   - Remove: every layer, in order; true if any layer held the key.
//
//   - Errors: a failure at the first layer of a write fails the call with a
//     *LayerError (matches ErrBackendFailure). A failure after something was
//     committed stops the operation and is returned as a *PartialError next
//     to the valid result. A miss is never an error.
//
//   - Async: every operation has a *Async form returning a Future. It runs
//     the same synchronous algorithm on a goroutine; cancellation is only
//     observed between layers, never inside a layer call.
//
//   - Expiration: items carry None/Absolute/Sliding policies that layers
//     enforce. The coordinator runs no timers.
//
// Basic usage
//
//	mem := memory.New(memory.Options{Name: "memory", Capacity: 10_000})
//	rds, _ := redis.New(redis.Options{Name: "redis", Addr: "localhost:6379"})
//	c := cache.New(cache.Options{Logger: log}, mem, rds)
//	defer c.Close()
//
//	_, err := c.Add(ctx, "user:1", profile, cache.InRegion("users"))
//	v, ok, err := c.Get(ctx, "user:1", cache.InRegion("users"))
//	n, ok, err := cache.GetAs[int](ctx, c, "counter")
//
// With expiration
//
//	err := c.Put(ctx, "session", tok, cache.WithExpiration(cache.ExpireSliding, 15*time.Minute))
//
// Async
//
//	f := c.GetAsync(ctx, "user:1")
//	res, err := f.Await(ctx)
package cache
