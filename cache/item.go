package cache

import (
	"reflect"
	"time"
)

// ExpirationMode selects how a layer ages an item out.
// The coordinator never runs timers; it hands the mode to the layers.
type ExpirationMode uint8

const (
	// ExpireDefault takes Options.DefaultExpiration. Items reaching a layer
	// never carry this mode.
	ExpireDefault ExpirationMode = iota
	// ExpireNone keeps the item until it is removed or evicted.
	ExpireNone
	// ExpireAbsolute expires the item ExpirationTimeout after CreatedAt.
	ExpireAbsolute
	// ExpireSliding expires the item ExpirationTimeout after its last read
	// or write at a given layer.
	ExpireSliding
)

func (m ExpirationMode) String() string {
	switch m {
	case ExpireDefault:
		return "default"
	case ExpireNone:
		return "none"
	case ExpireAbsolute:
		return "absolute"
	case ExpireSliding:
		return "sliding"
	default:
		return "unknown"
	}
}

// Expiration couples a mode with its timeout.
type Expiration struct {
	Mode    ExpirationMode
	Timeout time.Duration
}

// Item is one cached value with its address and expiration policy.
// Items handed out by a Cache are shared with the layers and must be treated
// as read-only; use WithValue to derive a modified copy.
type Item struct {
	Key               string
	Region            string // empty = global namespace
	Value             any
	ExpirationMode    ExpirationMode
	ExpirationTimeout time.Duration
	CreatedAt         time.Time
}

// NewItem builds and validates an item. Options select the region and the
// expiration; without WithExpiration the item uses ExpireDefault.
func NewItem(key string, value any, opts ...Option) (*Item, error) {
	co, err := collect(opts)
	if err != nil {
		return nil, err
	}
	it := &Item{
		Key:               key,
		Region:            co.region,
		Value:             value,
		ExpirationMode:    co.exp.Mode,
		ExpirationTimeout: co.exp.Timeout,
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}
	return it, nil
}

// Address returns the composite address of the item.
func (it *Item) Address() Address { return Address{Region: it.Region, Key: it.Key} }

// Validate checks the item invariants.
func (it *Item) Validate() error {
	if it == nil {
		return invalidArg("item must not be nil")
	}
	if it.Key == "" {
		return invalidArg("key must not be empty")
	}
	if isNil(it.Value) {
		return invalidArg("value for key %q must not be nil", it.Key)
	}
	switch it.ExpirationMode {
	case ExpireDefault, ExpireNone:
	case ExpireAbsolute, ExpireSliding:
		if it.ExpirationTimeout <= 0 {
			return invalidArg("expiration timeout must be > 0 for %s expiration", it.ExpirationMode)
		}
	default:
		return invalidArg("unknown expiration mode %d", it.ExpirationMode)
	}
	return nil
}

// WithValue returns a copy of the item carrying v.
func (it *Item) WithValue(v any) *Item {
	cp := *it
	cp.Value = v
	return &cp
}

// ExpiresAt returns the absolute deadline of an ExpireAbsolute item and the
// zero time for every other mode.
func (it *Item) ExpiresAt() time.Time {
	if it.ExpirationMode != ExpireAbsolute {
		return time.Time{}
	}
	return it.CreatedAt.Add(it.ExpirationTimeout)
}

// isNil reports untyped nil and nil pointers, maps, slices, channels,
// functions and interfaces.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
