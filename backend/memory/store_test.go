package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/layercache/cache"
	"github.com/IvanBrykalov/layercache/policy/twoq"
)

type fakeClock struct{ t atomic.Int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

func item(key string, v any) *cache.Item {
	return &cache.Item{Key: key, Value: v, ExpirationMode: cache.ExpireNone}
}

func addr(region, key string) cache.Address { return cache.Address{Region: region, Key: key} }

// TryAdd inserts only if absent; Put replaces; Remove deletes.
func TestStore_BasicAddPutGetRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := New(Options{Capacity: 8})
	t.Cleanup(func() { _ = st.Close() })

	a := addr("", "a")
	ok, err := st.TryAdd(ctx, a, item("a", 1))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.TryAdd(ctx, a, item("a", 2))
	require.NoError(t, err)
	require.False(t, ok, "duplicate TryAdd must fail")

	require.NoError(t, st.Put(ctx, a, item("a", 11)))
	got, ok, err := st.TryGet(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 11, got.Value)

	removed, err := st.Remove(ctx, a)
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok, _ = st.TryGet(ctx, a)
	assert.False(t, ok)

	removed, _ = st.Remove(ctx, a)
	assert.False(t, removed)
}

// The same key with and without a region are distinct entries.
func TestStore_RegionIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := New(Options{Capacity: 8})
	require.NoError(t, st.Put(ctx, addr("", "k"), item("k", "global")))
	require.NoError(t, st.Put(ctx, addr("r1", "k"), item("k", "r1")))

	g, _, _ := st.TryGet(ctx, addr("", "k"))
	r, _, _ := st.TryGet(ctx, addr("r1", "k"))
	assert.Equal(t, "global", g.Value)
	assert.Equal(t, "r1", r.Value)

	require.NoError(t, st.ClearRegion(ctx, "r1"))
	_, ok, _ := st.TryGet(ctx, addr("r1", "k"))
	assert.False(t, ok)
	_, ok, _ = st.TryGet(ctx, addr("", "k"))
	assert.True(t, ok, "ClearRegion must not touch the global namespace")

	require.NoError(t, st.Clear(ctx))
	assert.Zero(t, st.Len())
}

// Absolute expiration counts from CreatedAt.
func TestStore_AbsoluteExpiration_FakeClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{}
	clk.add(time.Hour)
	st := New(Options{Capacity: 4, Clock: clk})

	it := &cache.Item{
		Key: "x", Value: "v",
		ExpirationMode:    cache.ExpireAbsolute,
		ExpirationTimeout: 100 * time.Millisecond,
		CreatedAt:         time.Unix(0, clk.NowUnixNano()),
	}
	require.NoError(t, st.Put(ctx, addr("", "x"), it))

	clk.add(50 * time.Millisecond)
	_, ok, _ := st.TryGet(ctx, addr("", "x"))
	require.True(t, ok, "fresh miss")

	clk.add(60 * time.Millisecond)
	_, ok, _ = st.TryGet(ctx, addr("", "x"))
	require.False(t, ok, "expired hit")
	assert.Equal(t, uint64(1), st.Stats().Expirations)
}

// Sliding expiration is extended by every read.
func TestStore_SlidingExpiration_FakeClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{}
	st := New(Options{Capacity: 4, Clock: clk})
	it := &cache.Item{Key: "s", Value: 1, ExpirationMode: cache.ExpireSliding, ExpirationTimeout: 100 * time.Millisecond}
	require.NoError(t, st.Put(ctx, addr("", "s"), it))

	for i := 0; i < 5; i++ {
		clk.add(80 * time.Millisecond)
		_, ok, _ := st.TryGet(ctx, addr("", "s"))
		require.True(t, ok, "read %d must keep the item alive", i)
	}
	clk.add(150 * time.Millisecond)
	_, ok, _ := st.TryGet(ctx, addr("", "s"))
	assert.False(t, ok)
}

// An expired resident does not block TryAdd.
func TestStore_TryAddOverExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := &fakeClock{}
	st := New(Options{Capacity: 4, Clock: clk})
	a := addr("", "k")
	old := &cache.Item{Key: "k", Value: "old", ExpirationMode: cache.ExpireSliding, ExpirationTimeout: time.Millisecond}
	ok, _ := st.TryAdd(ctx, a, old)
	require.True(t, ok)

	clk.add(time.Second)
	ok, err := st.TryAdd(ctx, a, item("k", "new"))
	require.NoError(t, err)
	require.True(t, ok)

	got, _, _ := st.TryGet(ctx, a)
	assert.Equal(t, "new", got.Value)
}

// Deterministic LRU eviction: single shard, small capacity.
// Reading "a" promotes it; inserting "c" evicts the LRU entry "b".
func TestStore_EvictionLRU(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var evicted []string
	st := New(Options{
		Capacity: 2,
		Shards:   1,
		OnEvict: func(a cache.Address, _ *cache.Item, r EvictReason) {
			evicted = append(evicted, a.Key+":"+r.String())
		},
	})

	require.NoError(t, st.Put(ctx, addr("", "a"), item("a", 1)))
	require.NoError(t, st.Put(ctx, addr("", "b"), item("b", 2)))
	_, ok, _ := st.TryGet(ctx, addr("", "a"))
	require.True(t, ok)
	require.NoError(t, st.Put(ctx, addr("", "c"), item("c", 3)))

	_, ok, _ = st.TryGet(ctx, addr("", "b"))
	assert.False(t, ok, "b must be evicted")
	_, ok, _ = st.TryGet(ctx, addr("", "a"))
	assert.True(t, ok, "a must survive (promoted)")
	assert.Equal(t, []string{"b:policy"}, evicted)
}

// Cost limiting evicts until the cost budget holds.
func TestStore_MaxCost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := New(Options{
		Capacity: 100,
		Shards:   1,
		MaxCost:  10,
		Cost:     func(it *cache.Item) int { return len(it.Value.(string)) },
	})
	require.NoError(t, st.Put(ctx, addr("", "a"), item("a", "123456")))
	require.NoError(t, st.Put(ctx, addr("", "b"), item("b", "123456")))

	s := st.Stats()
	assert.Equal(t, 1, s.Entries)
	assert.Equal(t, int64(6), s.Cost)
	assert.Equal(t, uint64(1), s.Evictions)
}

// The 2Q policy plugs in without changing the store.
func TestStore_TwoQPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := New(Options{Capacity: 4, Shards: 1, Policy: twoq.New(1, 2)})
	require.NoError(t, st.Put(ctx, addr("", "hot"), item("hot", 1)))
	_, ok, _ := st.TryGet(ctx, addr("", "hot")) // promote to Am
	require.True(t, ok)

	require.NoError(t, st.Put(ctx, addr("", "x"), item("x", 1)))
	require.NoError(t, st.Put(ctx, addr("", "y"), item("y", 1))) // A1in overflow evicts x

	_, ok, _ = st.TryGet(ctx, addr("", "x"))
	assert.False(t, ok)
	_, ok, _ = st.TryGet(ctx, addr("", "hot"))
	assert.True(t, ok)
}

// Concurrent TryAdd on one address: exactly one winner, and the stored value
// is the winner's.
func TestStore_ConcurrentTryAddSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := New(Options{Capacity: 16})
	a := addr("", "contended")

	const N = 64
	var wins atomic.Int32
	var winner atomic.Int64
	var g errgroup.Group
	for i := 0; i < N; i++ {
		i := i
		g.Go(func() error {
			ok, err := st.TryAdd(ctx, a, item("contended", i))
			if ok {
				wins.Add(1)
				winner.Store(int64(i))
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), wins.Load())

	got, ok, _ := st.TryGet(ctx, a)
	require.True(t, ok)
	assert.Equal(t, int(winner.Load()), got.Value)
}

// Closed stores return ErrClosed.
func TestStore_Closed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := New(Options{Capacity: 1})
	require.NoError(t, st.Close())

	_, _, err := st.TryGet(ctx, addr("", "a"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, st.Put(ctx, addr("", "a"), item("a", 1)), ErrClosed)
}
