package cache

import "context"

// Future is the pending result of an async operation.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Lookup is the result of an async read.
type Lookup[T any] struct {
	Value T
	Found bool
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the operation completes or ctx ends. Abandoning a
// future through ctx does not stop the operation: layer writes already
// issued stay in place.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the operation completes.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// goAsync runs fn, the synchronous operation, on its own goroutine. Ordering
// of layer calls and the error taxonomy are those of fn. ctx cancels the
// operation between layers; with MaxAsync set, a cancellation while waiting
// for a slot means no layer was touched.
func goAsync[T any](ctx context.Context, c *Cache, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if c.sem != nil {
			if err := c.sem.Acquire(ctx, 1); err != nil {
				f.err = err
				return
			}
			defer c.sem.Release(1)
		}
		f.val, f.err = fn(ctx)
	}()
	return f
}

// AddAsync is the async form of Add.
func (c *Cache) AddAsync(ctx context.Context, key string, value any, opts ...Option) *Future[bool] {
	return goAsync(ctx, c, func(ctx context.Context) (bool, error) {
		return c.Add(ctx, key, value, opts...)
	})
}

// AddItemAsync is the async form of AddItem.
func (c *Cache) AddItemAsync(ctx context.Context, item *Item) *Future[bool] {
	return goAsync(ctx, c, func(ctx context.Context) (bool, error) {
		return c.AddItem(ctx, item)
	})
}

// PutAsync is the async form of Put.
func (c *Cache) PutAsync(ctx context.Context, key string, value any, opts ...Option) *Future[struct{}] {
	return goAsync(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Put(ctx, key, value, opts...)
	})
}

// PutItemAsync is the async form of PutItem.
func (c *Cache) PutItemAsync(ctx context.Context, item *Item) *Future[struct{}] {
	return goAsync(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.PutItem(ctx, item)
	})
}

// GetAsync is the async form of Get.
func (c *Cache) GetAsync(ctx context.Context, key string, opts ...Option) *Future[Lookup[any]] {
	return goAsync(ctx, c, func(ctx context.Context) (Lookup[any], error) {
		v, ok, err := c.Get(ctx, key, opts...)
		return Lookup[any]{Value: v, Found: ok}, err
	})
}

// GetItemAsync is the async form of GetItem.
func (c *Cache) GetItemAsync(ctx context.Context, key string, opts ...Option) *Future[Lookup[*Item]] {
	return goAsync(ctx, c, func(ctx context.Context) (Lookup[*Item], error) {
		it, ok, err := c.GetItem(ctx, key, opts...)
		return Lookup[*Item]{Value: it, Found: ok}, err
	})
}

// GetAsAsync is the async form of GetAs.
func GetAsAsync[T any](ctx context.Context, c *Cache, key string, opts ...Option) *Future[Lookup[T]] {
	return goAsync(ctx, c, func(ctx context.Context) (Lookup[T], error) {
		v, ok, err := GetAs[T](ctx, c, key, opts...)
		return Lookup[T]{Value: v, Found: ok}, err
	})
}

// RemoveAsync is the async form of Remove.
func (c *Cache) RemoveAsync(ctx context.Context, key string, opts ...Option) *Future[bool] {
	return goAsync(ctx, c, func(ctx context.Context) (bool, error) {
		return c.Remove(ctx, key, opts...)
	})
}

// UpdateAsync is the async form of Update.
func (c *Cache) UpdateAsync(ctx context.Context, key string, fn func(old any) any, opts ...Option) *Future[Lookup[any]] {
	return goAsync(ctx, c, func(ctx context.Context) (Lookup[any], error) {
		v, ok, err := c.Update(ctx, key, fn, opts...)
		return Lookup[any]{Value: v, Found: ok}, err
	})
}

// GetOrAddAsync is the async form of GetOrAdd.
func (c *Cache) GetOrAddAsync(ctx context.Context, key string, factory func(ctx context.Context) (any, error), opts ...Option) *Future[any] {
	return goAsync(ctx, c, func(ctx context.Context) (any, error) {
		return c.GetOrAdd(ctx, key, factory, opts...)
	})
}
