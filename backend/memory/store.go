// Package memory is the in-process cache layer: a sharded map with an
// intrusive MRU/LRU list per shard, pluggable eviction (LRU by default),
// lazy absolute and sliding expiration, and optional cost-based capacity.
//
// Each shard is protected by its own mutex, so TryAdd is a single
// check-and-insert step under that lock.
package memory

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/layercache/cache"
	"github.com/IvanBrykalov/layercache/internal/util"
	"github.com/IvanBrykalov/layercache/policy/lru"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory: store closed")

// Store is an in-memory cache.Backend. All methods are safe for concurrent
// use.
type Store struct {
	name   string
	shards []*shard
	opt    Options
	closed atomic.Bool
}

var (
	_ cache.Backend       = (*Store)(nil)
	_ cache.Clearer       = (*Store)(nil)
	_ cache.RegionClearer = (*Store)(nil)
)

// New constructs a Store. It panics if Capacity <= 0.
func New(opt Options) *Store {
	if opt.Capacity <= 0 {
		panic("memory: Capacity must be > 0")
	}
	if opt.Name == "" {
		opt.Name = "memory"
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New()
	}

	n := util.ShardCount(opt.Shards)
	perShardCap := (opt.Capacity + n - 1) / n
	var perShardCost int64
	if opt.MaxCost > 0 {
		perShardCost = (opt.MaxCost + int64(n) - 1) / int64(n)
	}

	st := &Store{name: opt.Name, opt: opt, shards: make([]*shard, n)}
	for i := range st.shards {
		st.shards[i] = newShard(perShardCap, perShardCost, opt.Name, &st.opt)
	}
	return st
}

// Name implements cache.Backend.
func (st *Store) Name() string { return st.name }

// TryGet implements cache.Backend.
func (st *Store) TryGet(_ context.Context, addr cache.Address) (*cache.Item, bool, error) {
	if st.closed.Load() {
		return nil, false, ErrClosed
	}
	it, ok := st.shardFor(addr).get(addr)
	return it, ok, nil
}

// TryAdd implements cache.Backend. The presence check and the insert happen
// under one shard lock. An expired resident does not block the add.
func (st *Store) TryAdd(_ context.Context, addr cache.Address, it *cache.Item) (bool, error) {
	if st.closed.Load() {
		return false, ErrClosed
	}
	exp, slide := st.deadline(it)
	return st.shardFor(addr).add(addr, it, exp, slide, st.costOf(it)), nil
}

// Put implements cache.Backend.
func (st *Store) Put(_ context.Context, addr cache.Address, it *cache.Item) error {
	if st.closed.Load() {
		return ErrClosed
	}
	exp, slide := st.deadline(it)
	st.shardFor(addr).put(addr, it, exp, slide, st.costOf(it))
	return nil
}

// Remove implements cache.Backend.
func (st *Store) Remove(_ context.Context, addr cache.Address) (bool, error) {
	if st.closed.Load() {
		return false, ErrClosed
	}
	return st.shardFor(addr).remove(addr), nil
}

// Clear implements cache.Clearer.
func (st *Store) Clear(context.Context) error {
	if st.closed.Load() {
		return ErrClosed
	}
	for _, s := range st.shards {
		s.clear()
	}
	return nil
}

// ClearRegion implements cache.RegionClearer.
func (st *Store) ClearRegion(_ context.Context, region string) error {
	if st.closed.Load() {
		return ErrClosed
	}
	for _, s := range st.shards {
		s.clearRegion(region)
	}
	return nil
}

// Stats is a point-in-time snapshot of the store.
type Stats struct {
	Entries     int
	Cost        int64
	Evictions   uint64 // policy and capacity evictions
	Expirations uint64
}

// Stats sums the shard counters.
func (st *Store) Stats() Stats {
	var out Stats
	for _, s := range st.shards {
		n, c := s.size()
		out.Entries += n
		out.Cost += c
		out.Evictions += s.evicts.Load()
		out.Expirations += s.expired.Load()
	}
	return out
}

// Len returns the number of resident entries, expired ones included until
// they are touched.
func (st *Store) Len() int { return st.Stats().Entries }

// Close marks the store closed. Resident entries are kept until garbage
// collected with the store.
func (st *Store) Close() error {
	st.closed.Store(true)
	return nil
}

// ---- helpers ----

func (st *Store) shardFor(addr cache.Address) *shard {
	h := util.HashAddress(addr.Region, addr.Key)
	return st.shards[util.ShardIndex(h, len(st.shards))]
}

func (st *Store) now() int64 {
	if st.opt.Clock != nil {
		return st.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// deadline maps the item's expiration onto an absolute UnixNano deadline
// and, for sliding items, the window re-applied on each access.
// Absolute deadlines count from CreatedAt so back-filled copies expire
// together with the original.
func (st *Store) deadline(it *cache.Item) (exp, slide int64) {
	switch it.ExpirationMode {
	case cache.ExpireAbsolute:
		start := st.now()
		if !it.CreatedAt.IsZero() {
			start = it.CreatedAt.UnixNano()
		}
		return start + int64(it.ExpirationTimeout), 0
	case cache.ExpireSliding:
		return st.now() + int64(it.ExpirationTimeout), int64(it.ExpirationTimeout)
	default:
		return 0, 0
	}
}

// costOf computes the per-entry cost clamped to int32.
func (st *Store) costOf(it *cache.Item) int32 {
	if st.opt.Cost == nil {
		return 0
	}
	c := st.opt.Cost(it)
	if c < 0 {
		c = 0
	}
	if c > math.MaxInt32 {
		c = math.MaxInt32
	}
	return int32(c)
}
