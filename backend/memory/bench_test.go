package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/layercache/cache"
)

// benchmarkMix exercises a read/write mix against a warm store.
// RunParallel spawns GOMAXPROCS workers.
func benchmarkMix(b *testing.B, readsPct int) {
	ctx := context.Background()
	st := New(Options{Capacity: 100_000})
	b.Cleanup(func() { _ = st.Close() })

	v := &cache.Item{Key: "k", Value: "v", ExpirationMode: cache.ExpireNone}
	for i := 0; i < 50_000; i++ {
		_ = st.Put(ctx, cache.Address{Key: "k:" + strconv.Itoa(i)}, v)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			a := cache.Address{Key: "k:" + strconv.Itoa(i&keyMask)}
			if r.Intn(100) < readsPct {
				_, _, _ = st.TryGet(ctx, a)
			} else {
				_ = st.Put(ctx, a, v)
			}
			i++
		}
	})
}

func BenchmarkStore_90r10w(b *testing.B) { benchmarkMix(b, 90) }
func BenchmarkStore_50r50w(b *testing.B) { benchmarkMix(b, 50) }
