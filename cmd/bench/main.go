// Command bench runs a synthetic workload against a layered cache and exposes
// optional pprof/Prometheus endpoints.
//
// The remote layer address may also come from LAYERCACHE_REDIS_ADDR (a .env
// file in the working directory is loaded if present); LAYERCACHE_LOG=dev
// switches to a human-readable logger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/layercache/backend/memory"
	"github.com/IvanBrykalov/layercache/backend/redis"
	"github.com/IvanBrykalov/layercache/cache"
	pmet "github.com/IvanBrykalov/layercache/metrics/prom"
	"github.com/IvanBrykalov/layercache/policy"
	"github.com/IvanBrykalov/layercache/policy/twoq"
)

func main() {
	_ = godotenv.Load() // optional .env

	// ---- Flags ----
	var (
		layers    = flag.String("layers", "memory", "layer chain: memory | memory+redis")
		redisAddr = flag.String("redis", os.Getenv("LAYERCACHE_REDIS_ADDR"), `redis address for memory+redis; "mini" = embedded`)
		capacity  = flag.Int("cap", 100_000, "memory layer capacity (entries)")
		shards    = flag.Int("shards", 0, "number of shards (0=auto)")
		polName   = flag.String("policy", "lru", "eviction policy: lru | 2q")
		ttl       = flag.Duration("ttl", 0, "absolute expiration of written items (0 = none)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		regions  = flag.Int("regions", 4, "number of regions keys are spread over (0 = global only)")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = cap/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	log := newLogger(os.Getenv("LAYERCACHE_LOG"))
	defer func() { _ = log.Sync() }()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof: serving", zap.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); !errors.Is(err, http.ErrServerClosed) {
				log.Error("pprof server stopped", zap.Error(err))
			}
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "layercache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info("metrics: serving", zap.String("addr", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, nil); !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// ---- Build the chain ----
	var pol policy.Policy
	switch *polName {
	case "lru":
		// nil => LRU by default
	case "2q":
		n := *shards
		if n <= 0 {
			n = 1
		}
		perShard := (*capacity + n - 1) / n
		pol = twoq.New(perShard/4, perShard/2)
	default:
		log.Fatal("unknown policy (use lru or 2q)", zap.String("policy", *polName))
	}

	chain := []cache.Backend{memory.New(memory.Options{
		Name:     "memory",
		Capacity: *capacity,
		Shards:   *shards,
		Policy:   pol,
		Metrics:  metrics,
	})}
	switch *layers {
	case "memory":
	case "memory+redis":
		addr := *redisAddr
		if addr == "" || addr == "mini" {
			mr, err := miniredis.Run()
			if err != nil {
				log.Fatal("embedded redis", zap.Error(err))
			}
			defer mr.Close()
			addr = mr.Addr()
			log.Info("using embedded redis", zap.String("addr", addr))
		}
		rs, err := redis.New(redis.Options{Addr: addr, Prefix: "bench:", Logger: log})
		if err != nil {
			log.Fatal("redis layer", zap.Error(err))
		}
		chain = append(chain, rs)
	default:
		log.Fatal("unknown layer chain (use memory or memory+redis)", zap.String("layers", *layers))
	}

	c := cache.New(cache.Options{Logger: log, Metrics: metrics}, chain...)
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	var writeOpts []cache.Option
	if *ttl > 0 {
		writeOpts = append(writeOpts, cache.WithExpiration(cache.ExpireAbsolute, *ttl))
	}
	regionOf := func(i uint64) []cache.Option {
		if *regions <= 0 {
			return nil
		}
		return []cache.Option{cache.InRegion("r" + strconv.FormatUint(i%uint64(*regions), 10))}
	}

	bg := context.Background()

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = *capacity / 2
	}
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		opts := append(regionOf(uint64(i)), writeOpts...)
		if err := c.Put(bg, k, "v"+strconv.Itoa(i), opts...); err != nil {
			log.Fatal("preload", zap.Error(err))
		}
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, failures, total uint64
	ctx, cancel := context.WithTimeout(bg, *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				n := localZipf.Uint64()
				k := "k:" + strconv.FormatUint(n, 10)
				opts := regionOf(n)

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					_, ok, err := c.Get(bg, k, opts...)
					switch {
					case err != nil && !cache.IsPartial(err):
						atomic.AddUint64(&failures, 1)
					case ok:
						atomic.AddUint64(&hits, 1)
					default:
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					if err := c.Put(bg, k, "v"+strconv.Itoa(localR.Int()), append(opts, writeOpts...)...); err != nil && !cache.IsPartial(err) {
						atomic.AddUint64(&failures, 1)
					}
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("layers=%v policy=%s cap=%d shards=%d workers=%d keys=%d regions=%d dur=%v seed=%d\n",
		c.Layers(), *polName, *capacity, *shards, workersN, *keys, *regions, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  failures=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, atomic.LoadUint64(&failures))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	if st, ok := chain[0].(*memory.Store); ok {
		s := st.Stats()
		fmt.Printf("memory: entries=%d evictions=%d expirations=%d\n", s.Entries, s.Evictions, s.Expirations)
	}
}

func newLogger(mode string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if mode == "dev" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	return log
}
