package memory

import (
	"github.com/IvanBrykalov/layercache/cache"
	"github.com/IvanBrykalov/layercache/policy"
)

// EvictReason explains why an entry left the layer without a Remove.
type EvictReason int

const (
	// EvictPolicy: removed by the eviction policy or the entry limit.
	EvictPolicy EvictReason = iota
	// EvictTTL: expired (lazily, on access or while trimming).
	EvictTTL
	// EvictCapacity: removed to satisfy the cost limit.
	EvictCapacity
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	default:
		return "policy"
	}
}

// Metrics receives layer-level signals. Hits and misses are reported by the
// coordinator; the layer reports what only it can see.
type Metrics interface {
	Evict(layer string, reason EvictReason)
	Size(layer string, entries int, cost int64)
}

// NoopMetrics is the default Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Evict(string, EvictReason) {}
func (NoopMetrics) Size(string, int, int64)   {}

var _ Metrics = NoopMetrics{}

// Options configures a Store. Zero values are safe; New applies defaults:
//   - empty Name  => "memory"
//   - nil Policy  => LRU
//   - Shards <= 0 => auto (rounded up to a power of two)
//   - nil Metrics => NoopMetrics
type Options struct {
	// Name identifies the layer in the chain.
	Name string

	// Capacity is the entry count limit. Required.
	Capacity int

	// Shards is rounded up to a power of two. 0 picks ≈ 2*GOMAXPROCS.
	Shards int

	// Policy is the eviction policy; nil => LRU.
	Policy policy.Policy

	// Cost-based limiting (e.g., bytes). When Cost is set and MaxCost > 0,
	// the layer evicts until both the entry and the cost limits hold.
	Cost    func(it *cache.Item) int
	MaxCost int64

	// OnEvict is called under the shard lock; keep it lightweight.
	OnEvict func(addr cache.Address, it *cache.Item, reason EvictReason)
	Metrics Metrics

	// Clock overrides the time source for expiration. Nil => time.Now().
	Clock cache.Clock
}
