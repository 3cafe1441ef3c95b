package cache

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/layercache/internal/flight"
)

// Cache coordinates one logical cache over an ordered chain of layers,
// index 0 being the fastest. All methods are safe for concurrent use.
//
// The coordinator sequences per-layer calls; it holds no lock across them
// and does not serialize callers. Add atomicity comes from each layer's
// TryAdd.
type Cache struct {
	layers []Backend
	names  []string

	opt     Options
	log     *zap.Logger
	metrics Metrics
	sem     *semaphore.Weighted

	// coalesces factory calls in GetOrAdd
	flights flight.Group[Address, *Item]

	closed atomic.Bool
}

// New builds a coordinator over layers. The chain is fixed for the lifetime
// of the Cache. New panics if layers is empty or contains nil.
func New(opt Options, layers ...Backend) *Cache {
	if len(layers) == 0 {
		panic("cache: at least one layer is required")
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.DefaultExpiration.Mode == ExpireDefault {
		opt.DefaultExpiration = Expiration{Mode: ExpireNone}
	}

	c := &Cache{
		layers:  make([]Backend, len(layers)),
		names:   make([]string, len(layers)),
		opt:     opt,
		log:     opt.Logger.Named("cache"),
		metrics: opt.Metrics,
	}
	for i, l := range layers {
		if l == nil {
			panic("cache: nil layer")
		}
		c.layers[i] = l
		c.names[i] = l.Name()
	}
	if opt.MaxAsync > 0 {
		c.sem = semaphore.NewWeighted(opt.MaxAsync)
	}
	return c
}

// Layers returns the layer names in chain order.
func (c *Cache) Layers() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// AddItem stores item only if its address is absent at layer 0, then tries
// every later layer in order. A later layer that already holds the address
// keeps its copy; the outer result stays true.
func (c *Cache) AddItem(ctx context.Context, item *Item) (bool, error) {
	it, err := c.prepare(item)
	if err != nil {
		return false, err
	}
	if err := c.enter(ctx); err != nil {
		return false, err
	}
	addr := it.Address()

	ok, err := c.layers[0].TryAdd(layerCtx(ctx), addr, it)
	if err != nil {
		return false, c.fail(0, OpAdd, addr, err)
	}
	if !ok {
		return false, nil
	}
	for i := 1; i < len(c.layers); i++ {
		if err := ctx.Err(); err != nil {
			return true, c.interrupted(i, OpAdd, addr, err)
		}
		if _, err := c.layers[i].TryAdd(layerCtx(ctx), addr, it); err != nil {
			return true, c.warn(i, OpAdd, addr, err)
		}
	}
	return true, nil
}

// PutItem stores item at every layer in order, replacing what was there.
func (c *Cache) PutItem(ctx context.Context, item *Item) error {
	it, err := c.prepare(item)
	if err != nil {
		return err
	}
	if err := c.enter(ctx); err != nil {
		return err
	}
	return c.putAll(ctx, it.Address(), it)
}

func (c *Cache) putAll(ctx context.Context, addr Address, it *Item) error {
	if err := c.layers[0].Put(layerCtx(ctx), addr, it); err != nil {
		return c.fail(0, OpPut, addr, err)
	}
	for i := 1; i < len(c.layers); i++ {
		if err := ctx.Err(); err != nil {
			return c.interrupted(i, OpPut, addr, err)
		}
		if err := c.layers[i].Put(layerCtx(ctx), addr, it); err != nil {
			return c.warn(i, OpPut, addr, err)
		}
	}
	return nil
}

// getItem scans the chain and back-fills faster layers on a hit below
// layer 0. A hard failure while scanning aborts the scan.
func (c *Cache) getItem(ctx context.Context, addr Address) (*Item, bool, error) {
	if err := c.enter(ctx); err != nil {
		return nil, false, err
	}
	for i, l := range c.layers {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
		}
		it, ok, err := l.TryGet(layerCtx(ctx), addr)
		if err != nil {
			return nil, false, c.fail(i, OpGet, addr, err)
		}
		if !ok {
			continue
		}
		c.metrics.Hit(c.names[i])
		if i == 0 {
			return it, true, nil
		}
		return it, true, c.backFill(ctx, addr, it, i)
	}
	c.metrics.Miss()
	return nil, false, nil
}

// backFill copies it into layers [0, hit) in order.
func (c *Cache) backFill(ctx context.Context, addr Address, it *Item, hit int) error {
	for j := 0; j < hit; j++ {
		if err := ctx.Err(); err != nil {
			return c.interrupted(j, OpBackFill, addr, err)
		}
		if err := c.layers[j].Put(layerCtx(ctx), addr, it); err != nil {
			return c.warn(j, OpBackFill, addr, err)
		}
		c.metrics.BackFill(c.names[j])
	}
	c.log.Debug("back-filled",
		zap.String("from", c.names[hit]),
		zap.Int("layers", hit),
		zap.String("region", addr.Region),
		zap.String("key", addr.Key))
	return nil
}

// removeAt removes addr from every layer in order.
func (c *Cache) removeAt(ctx context.Context, addr Address) (bool, error) {
	if err := c.enter(ctx); err != nil {
		return false, err
	}
	found, err := c.layers[0].Remove(layerCtx(ctx), addr)
	if err != nil {
		return false, c.fail(0, OpRemove, addr, err)
	}
	for i := 1; i < len(c.layers); i++ {
		if err := ctx.Err(); err != nil {
			return found, c.interrupted(i, OpRemove, addr, err)
		}
		ok, err := c.layers[i].Remove(layerCtx(ctx), addr)
		if err != nil {
			return found, c.warn(i, OpRemove, addr, err)
		}
		found = found || ok
	}
	return found, nil
}

// Clear drops every item from each layer implementing Clearer.
// Layers without the capability are skipped.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.enter(ctx); err != nil {
		return err
	}
	return c.eachCapable(ctx, OpClear, Address{}, func(ctx context.Context, l Backend) (bool, error) {
		cl, ok := l.(Clearer)
		if !ok {
			return false, nil
		}
		return true, cl.Clear(ctx)
	})
}

// ClearRegion drops region from each layer implementing RegionClearer.
func (c *Cache) ClearRegion(ctx context.Context, region string) error {
	if region == "" {
		return invalidArg("region must not be empty")
	}
	if err := c.enter(ctx); err != nil {
		return err
	}
	return c.eachCapable(ctx, OpClearRegion, Address{Region: region}, func(ctx context.Context, l Backend) (bool, error) {
		rc, ok := l.(RegionClearer)
		if !ok {
			return false, nil
		}
		return true, rc.ClearRegion(ctx, region)
	})
}

// eachCapable applies fn to the layers in order. The first layer that
// applies fn decides between a hard failure and a partial one.
func (c *Cache) eachCapable(ctx context.Context, op Op, addr Address, fn func(context.Context, Backend) (bool, error)) error {
	committed := false
	for i, l := range c.layers {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				if committed {
					return c.interrupted(i, op, addr, err)
				}
				return err
			}
		}
		applied, err := fn(layerCtx(ctx), l)
		if err != nil {
			if committed {
				return c.warn(i, op, addr, err)
			}
			return c.fail(i, op, addr, err)
		}
		committed = committed || applied
	}
	return nil
}

// Close marks the cache closed and closes every layer that is an io.Closer.
// Further operations fail with ErrClosed.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	var err error
	for _, l := range c.layers {
		if cl, ok := l.(io.Closer); ok {
			err = multierr.Append(err, cl.Close())
		}
	}
	return err
}

// ---- helpers ----

// layerCtx detaches a single layer call from cancellation so a cancelled
// caller never interrupts a layer midway. Cancellation is checked between
// layers instead.
func layerCtx(ctx context.Context) context.Context { return context.WithoutCancel(ctx) }

func (c *Cache) enter(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// prepare validates item and resolves ExpireDefault and CreatedAt on a copy.
func (c *Cache) prepare(item *Item) (*Item, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	it := *item
	if it.ExpirationMode == ExpireDefault {
		it.ExpirationMode = c.opt.DefaultExpiration.Mode
		it.ExpirationTimeout = c.opt.DefaultExpiration.Timeout
	}
	if it.ExpirationMode == ExpireNone {
		it.ExpirationTimeout = 0
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = c.now()
	}
	return &it, nil
}

func (c *Cache) now() time.Time {
	if c.opt.Clock != nil {
		return time.Unix(0, c.opt.Clock.NowUnixNano())
	}
	return time.Now()
}

// fail reports a failure that nothing was committed before.
func (c *Cache) fail(i int, op Op, addr Address, err error) error {
	le := &LayerError{Index: i, Layer: c.names[i], Op: op, Err: err}
	c.metrics.LayerError(c.names[i], op)
	c.log.Error("layer failure", c.fields(i, op, addr, err)...)
	return le
}

// warn reports a failure after an earlier layer already committed.
func (c *Cache) warn(i int, op Op, addr Address, err error) error {
	le := &LayerError{Index: i, Layer: c.names[i], Op: op, Err: err}
	c.metrics.LayerError(c.names[i], op)
	c.log.Warn("partial layer failure", c.fields(i, op, addr, err)...)
	return partial(nil, le)
}

// interrupted reports a cancellation observed before layer i.
func (c *Cache) interrupted(i int, op Op, addr Address, err error) error {
	c.log.Warn("operation interrupted", c.fields(i, op, addr, err)...)
	return partial(nil, err)
}

func (c *Cache) fields(i int, op Op, addr Address, err error) []zap.Field {
	return []zap.Field{
		zap.String("layer", c.names[i]),
		zap.Int("index", i),
		zap.String("op", string(op)),
		zap.String("region", addr.Region),
		zap.String("key", addr.Key),
		zap.Error(err),
	}
}
