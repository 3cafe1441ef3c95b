// Package flight coalesces concurrent calls for the same address.
package flight

import (
	"context"
	"fmt"
	"sync"
)

// Group runs fn at most once per key at a time. Callers arriving while a
// call is in flight wait for its result instead of starting their own.
//
//   - The first caller for a key is the leader and runs fn.
//   - Publishing (val, err) happens-before close(done), so followers read
//     the final values after <-done.
//   - A follower whose ctx ends returns ctx.Err(); the leader keeps going.
//   - A panic in fn is turned into an error for the leader and followers.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
	dups int // followers that joined
}

// Do runs fn for key, or joins the call already running for key.
// shared reports whether the result was delivered to more than one caller.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			var zero V
			return zero, true, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(c, fn)

	g.mu.Lock()
	delete(g.m, key)
	shared = c.dups > 0
	g.mu.Unlock()

	return c.val, shared, c.err
}

// run executes fn outside the lock and wakes followers even if fn panics.
func (g *Group[K, V]) run(c *call[V], fn func() (V, error)) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("flight: panic in call: %v", r)
		}
	}()
	c.val, c.err = fn()
}

// InFlight reports whether a call for key is running.
func (g *Group[K, V]) InFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}
