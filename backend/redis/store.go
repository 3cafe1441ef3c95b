// Package redis is the remote cache layer backed by Redis.
//
// Items are stored as one string key each, "<prefix><address>", holding the
// encoded envelope. TryAdd is SET NX, so the presence check and the write
// are one atomic step on the server. Expiration maps onto key TTLs: absolute
// items get the remaining lifetime, sliding items get their window, renewed
// on every read.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/layercache/cache"
)

const (
	defaultPrefix   = "layercache:"
	defaultPoolSize = 10
	scanBatch       = 512
)

// Options configures a Store. Either Client or Addr must be set.
type Options struct {
	// Name identifies the layer in the chain. Empty => "redis".
	Name string

	// Client is an existing connection, owned by the caller.
	Client goredis.UniversalClient

	// Used when Client is nil; the Store owns and closes that client.
	Addr     string
	Password string
	DB       int
	PoolSize int // 0 => 10

	// Prefix namespaces every key. Empty => "layercache:".
	Prefix string

	// Codec encodes items. Nil => JSONCodec.
	Codec Codec

	Logger *zap.Logger

	// Clock is used to compute remaining lifetimes. Nil => time.Now().
	Clock cache.Clock
}

// Store is a Redis-backed cache.Backend.
type Store struct {
	name   string
	rdb    goredis.UniversalClient
	owned  bool
	prefix string
	codec  Codec
	log    *zap.Logger
	clock  cache.Clock
}

var (
	_ cache.Backend       = (*Store)(nil)
	_ cache.Clearer       = (*Store)(nil)
	_ cache.RegionClearer = (*Store)(nil)
)

// New builds a Store. When it dials its own client it pings the server
// first and fails if Redis is unreachable.
func New(opt Options) (*Store, error) {
	if opt.Name == "" {
		opt.Name = "redis"
	}
	if opt.Prefix == "" {
		opt.Prefix = defaultPrefix
	}
	if opt.Codec == nil {
		opt.Codec = JSONCodec{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	st := &Store{
		name:   opt.Name,
		rdb:    opt.Client,
		prefix: opt.Prefix,
		codec:  opt.Codec,
		log:    opt.Logger.Named("redis").With(zap.String("layer", opt.Name)),
		clock:  opt.Clock,
	}
	if st.rdb != nil {
		return st, nil
	}

	if opt.Addr == "" {
		return nil, errors.New("redis: Addr or Client is required")
	}
	if opt.PoolSize == 0 {
		opt.PoolSize = defaultPoolSize
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
		PoolSize: opt.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", opt.Addr, err)
	}
	st.rdb = rdb
	st.owned = true
	return st, nil
}

// Name implements cache.Backend.
func (st *Store) Name() string { return st.name }

// TryGet implements cache.Backend. The returned item carries addr's key and
// region.
func (st *Store) TryGet(ctx context.Context, addr cache.Address) (*cache.Item, bool, error) {
	key := st.key(addr)
	data, err := st.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	it, err := st.codec.Unmarshal(data)
	if err != nil {
		st.log.Error("undecodable item", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	// the address is authoritative over the stored copy
	it.Key, it.Region = addr.Key, addr.Region
	if it.ExpirationMode == cache.ExpireSliding {
		if err := st.rdb.PExpire(ctx, key, it.ExpirationTimeout).Err(); err != nil {
			// a failed renewal does not fail the read
			st.log.Warn("sliding renewal failed", zap.String("key", key), zap.Error(err))
		}
	}
	return it, true, nil
}

// TryAdd implements cache.Backend. An absolute item whose lifetime already
// ran out is reported as added without being stored.
func (st *Store) TryAdd(ctx context.Context, addr cache.Address, it *cache.Item) (bool, error) {
	ttl, live := st.ttl(it)
	if !live {
		return true, nil
	}
	data, err := st.codec.Marshal(it)
	if err != nil {
		return false, err
	}
	key := st.key(addr)
	ok, err := st.rdb.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx %s: %w", key, err)
	}
	return ok, nil
}

// Put implements cache.Backend. An absolute item whose lifetime already ran
// out deletes the key instead.
func (st *Store) Put(ctx context.Context, addr cache.Address, it *cache.Item) error {
	key := st.key(addr)
	ttl, live := st.ttl(it)
	if !live {
		if err := st.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis: del %s: %w", key, err)
		}
		return nil
	}
	data, err := st.codec.Marshal(it)
	if err != nil {
		return err
	}
	if err := st.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Remove implements cache.Backend.
func (st *Store) Remove(ctx context.Context, addr cache.Address) (bool, error) {
	key := st.key(addr)
	n, err := st.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: del %s: %w", key, err)
	}
	return n > 0, nil
}

// Clear implements cache.Clearer. Only keys under the store prefix are
// deleted.
func (st *Store) Clear(ctx context.Context) error {
	return st.deleteMatching(ctx, escapeGlob(st.prefix)+"*")
}

// ClearRegion implements cache.RegionClearer.
func (st *Store) ClearRegion(ctx context.Context, region string) error {
	return st.deleteMatching(ctx, escapeGlob(st.prefix+cache.RegionPrefix(region))+"*")
}

// Close closes the client if the Store dialed it.
func (st *Store) Close() error {
	if !st.owned {
		return nil
	}
	return st.rdb.Close()
}

// ---- helpers ----

func (st *Store) key(addr cache.Address) string { return st.prefix + addr.String() }

func (st *Store) now() time.Time {
	if st.clock != nil {
		return time.Unix(0, st.clock.NowUnixNano())
	}
	return time.Now()
}

// ttl returns the key TTL for it (0 = none) and false when an absolute
// item has already expired.
func (st *Store) ttl(it *cache.Item) (time.Duration, bool) {
	switch it.ExpirationMode {
	case cache.ExpireSliding:
		return it.ExpirationTimeout, true
	case cache.ExpireAbsolute:
		if it.CreatedAt.IsZero() {
			return it.ExpirationTimeout, true
		}
		left := it.ExpiresAt().Sub(st.now())
		return left, left > 0
	default:
		return 0, true
	}
}

// deleteMatching scans and deletes every key matching pattern. Cluster
// clients are scanned master by master.
func (st *Store) deleteMatching(ctx context.Context, pattern string) error {
	if cc, ok := st.rdb.(*goredis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, c *goredis.Client) error {
			return scanDelete(ctx, c, pattern)
		})
	}
	return scanDelete(ctx, st.rdb, pattern)
}

func scanDelete(ctx context.Context, c goredis.Cmdable, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis: scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			_, err := c.Pipelined(ctx, func(p goredis.Pipeliner) error {
				for _, k := range keys {
					p.Del(ctx, k)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("redis: delete %d keys: %w", len(keys), err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// escapeGlob quotes the characters Redis MATCH patterns treat specially.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
