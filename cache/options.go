package cache

import (
	"time"

	"go.uber.org/zap"
)

// Metrics exposes coordinator-level observability hooks.
// Layer names come from Backend.Name().
type Metrics interface {
	Hit(layer string)
	Miss()
	BackFill(layer string)
	LayerError(layer string, op Op)
}

// NoopMetrics is the default Metrics and does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit(string)            {}
func (NoopMetrics) Miss()                 {}
func (NoopMetrics) BackFill(string)       {}
func (NoopMetrics) LayerError(string, Op) {}

var _ Metrics = NoopMetrics{}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Converter converts a stored payload for GetAs. dst is a non-nil pointer
// to the requested type. It returns false when it has no conversion.
type Converter func(v any, dst any) (bool, error)

// Options configures a Cache. Zero values are safe; New applies defaults:
//   - nil Logger  => zap.NewNop()
//   - nil Metrics => NoopMetrics
//   - zero DefaultExpiration => no expiration
type Options struct {
	// Logger receives partial-failure warnings and backend errors.
	Logger *zap.Logger

	Metrics Metrics

	// Clock stamps Item.CreatedAt. Nil => time.Now().
	Clock Clock

	// DefaultExpiration applies to items whose mode is ExpireDefault.
	DefaultExpiration Expiration

	// Converter is consulted by GetAs before the built-in conversions.
	Converter Converter

	// MaxAsync bounds the number of async operations running at once.
	// 0 means unbounded.
	MaxAsync int64
}

// Option tunes a single call: the region for every operation and the
// expiration for writes.
type Option func(*callOptions)

type callOptions struct {
	region    string
	hasRegion bool
	exp       Expiration
}

// InRegion places the call in region. An empty region is rejected with
// ErrInvalidArgument.
func InRegion(region string) Option {
	return func(o *callOptions) {
		o.region = region
		o.hasRegion = true
	}
}

// WithExpiration sets the expiration of the written item. Reads ignore it.
func WithExpiration(mode ExpirationMode, timeout time.Duration) Option {
	return func(o *callOptions) { o.exp = Expiration{Mode: mode, Timeout: timeout} }
}

func collect(opts []Option) (callOptions, error) {
	var co callOptions
	for _, o := range opts {
		if o != nil {
			o(&co)
		}
	}
	if co.hasRegion && co.region == "" {
		return co, invalidArg("region must not be empty")
	}
	return co, nil
}

// addressOf composes the address for key under the call options.
func addressOf(key string, opts []Option) (Address, error) {
	co, err := collect(opts)
	if err != nil {
		return Address{}, err
	}
	if co.hasRegion {
		return ComposeRegion(co.region, key)
	}
	return Compose(key)
}
