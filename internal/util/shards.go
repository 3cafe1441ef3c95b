package util

import "runtime"

// MaxShards caps the automatic shard count.
const MaxShards = 256

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && (x&(x-1)) == 0
}

// NextPow2 returns the smallest power of two >= x.
// x == 0 yields 1; values above 1<<63 are clamped to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

// ShardCount resolves a requested shard count: n <= 0 picks
// nextPow2(2*GOMAXPROCS) clamped to MaxShards, anything else is rounded up
// to a power of two.
func ShardCount(n int) int {
	if n > 0 {
		return int(NextPow2(uint64(n)))
	}
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return min(int(NextPow2(uint64(p*2))), MaxShards)
}

// ShardIndex maps a hash to a shard. shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}
