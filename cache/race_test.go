package cache_test

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/layercache/backend/memory"
	"github.com/IvanBrykalov/layercache/cache"
)

func twoMemoryLayers(capacity int) (*cache.Cache, *memory.Store, *memory.Store) {
	near := memory.New(memory.Options{Name: "near", Capacity: capacity, Shards: 32})
	far := memory.New(memory.Options{Name: "far", Capacity: capacity * 4, Shards: 32})
	return cache.New(cache.Options{}, near, far), near, far
}

// A mixed workload of concurrent Add/Put/Get/Remove/Update across regions.
// Should pass under `-race` without detector reports.
func TestRace_MixedWorkload(t *testing.T) {
	c, _, _ := twoMemoryLayers(8_192)
	t.Cleanup(func() { _ = c.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 50_000
	regions := []string{"", "users", "orders"}
	deadline := time.Now().Add(2 * time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				var opts []cache.Option
				if reg := regions[r.Intn(len(regions))]; reg != "" {
					opts = append(opts, cache.InRegion(reg))
				}
				switch n := r.Intn(100); {
				case n < 5:
					_, _ = c.Remove(ctx, k, opts...)
				case n < 10:
					_ = c.Put(ctx, k, []byte("x"),
						append(opts, cache.WithExpiration(cache.ExpireSliding, time.Duration(10+r.Intn(20))*time.Millisecond))...)
				case n < 15:
					_, _ = c.Add(ctx, k, []byte("y"), opts...)
				case n < 18:
					_, _, _ = c.Update(ctx, k, func(old any) any { return old }, opts...)
				case n < 20:
					_ = c.Put(ctx, k, []byte("x"), opts...)
				default:
					_, _, _ = c.Get(ctx, k, opts...)
				}
			}
		}(w)
	}
	wg.Wait()
}

// Many goroutines Add the same key; exactly one wins and every layer holds
// the winner's value.
func TestRace_AddSingleWinner(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		c, near, far := twoMemoryLayers(1024)
		addr := cache.Address{Region: "r", Key: "contended"}

		const goroutines = 64
		var wins atomic.Int32
		var winner atomic.Int64
		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func(id int) {
				defer wg.Done()
				<-start
				ok, err := c.Add(ctx, addr.Key, id, cache.InRegion(addr.Region))
				if err != nil {
					t.Errorf("Add: %v", err)
					return
				}
				if ok {
					wins.Add(1)
					winner.Store(int64(id))
				}
			}(i)
		}
		close(start)
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Fatalf("round %d: want exactly one winner, got %d", round, got)
		}
		for _, st := range []*memory.Store{near, far} {
			it, ok, err := st.TryGet(ctx, addr)
			if err != nil || !ok {
				t.Fatalf("round %d: %s lost the item: ok=%v err=%v", round, st.Name(), ok, err)
			}
			if it.Value != int(winner.Load()) {
				t.Fatalf("round %d: %s holds %v, winner was %d", round, st.Name(), it.Value, winner.Load())
			}
		}
	}
}

// One hundred goroutines call GetOrAdd on the same key concurrently.
// The factory should run at most once.
func TestRace_GetOrAdd(t *testing.T) {
	c, _, _ := twoMemoryLayers(1024)
	t.Cleanup(func() { _ = c.Close() })

	var calls int64
	factory := func(context.Context) (any, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return "v:same-key", nil
	}

	const goroutines = 100
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrAdd(context.Background(), "same-key", factory)
			if err != nil {
				t.Errorf("GetOrAdd error: %v", err)
				return
			}
			if v != "v:same-key" {
				t.Errorf("unexpected value: %v", v)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("factory should run once, got %d", got)
	}
}
