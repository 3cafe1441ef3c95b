package cache

import "context"

// Backend is one layer of the chain. Implementations must be safe for
// concurrent use.
//
// Found/not-found is reported through the boolean results; a non-nil error
// always means an unexpected failure of the layer.
type Backend interface {
	// Name identifies the layer in logs, errors and metrics.
	Name() string

	// TryGet returns the item stored at addr.
	TryGet(ctx context.Context, addr Address) (*Item, bool, error)

	// TryAdd stores item only if addr is absent in this layer. The check and
	// the write are one indivisible step within the layer.
	TryAdd(ctx context.Context, addr Address, item *Item) (bool, error)

	// Put stores item at addr, replacing any previous item.
	Put(ctx context.Context, addr Address, item *Item) error

	// Remove deletes addr and reports whether it was present.
	Remove(ctx context.Context, addr Address) (bool, error)
}

// Clearer is implemented by layers that can drop all of their items.
type Clearer interface {
	Clear(ctx context.Context) error
}

// RegionClearer is implemented by layers that can drop one region.
type RegionClearer interface {
	ClearRegion(ctx context.Context, region string) error
}
