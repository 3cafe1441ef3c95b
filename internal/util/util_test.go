package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextPow2(t *testing.T) {
	t.Parallel()

	cases := map[uint64]uint64{0: 1, 1: 1, 2: 2, 3: 4, 17: 32, 1 << 40: 1 << 40, 1<<63 + 1: 1 << 63}
	for in, want := range cases {
		assert.Equal(t, want, NextPow2(in), "NextPow2(%d)", in)
	}
}

func TestShardCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8, ShardCount(5))
	assert.Equal(t, 1, ShardCount(1))

	auto := ShardCount(0)
	assert.True(t, IsPowerOfTwo(uint64(auto)))
	assert.LessOrEqual(t, auto, MaxShards)
}

// Region and key boundaries take part in the hash.
func TestHashAddress_SeparatesParts(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, HashAddress("ab", "c"), HashAddress("a", "bc"))
	assert.NotEqual(t, HashAddress("", "k"), HashAddress("k", ""))
	assert.Equal(t, HashAddress("r", "k"), HashAddress("r", "k"))
}
