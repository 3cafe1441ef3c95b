package flight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()
	var g Group[string, int]
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 10
	var wg sync.WaitGroup
	var shared atomic.Int32
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, sh, err := g.Do(context.Background(), "k", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
			if sh {
				shared.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return followers(&g, "k") == n-1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(n), shared.Load(), "leader and followers all see a shared result")
	assert.False(t, g.InFlight("k"))
}

func followers[K comparable, V any](g *Group[K, V], key K) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.m[key]; ok {
		return c.dups
	}
	return 0
}

func TestGroup_FollowerContext(t *testing.T) {
	t.Parallel()
	var g Group[string, int]
	release := make(chan struct{})
	leaderDone := make(chan struct{})

	go func() {
		defer close(leaderDone)
		v, _, err := g.Do(context.Background(), "k", func() (int, error) {
			<-release
			return 1, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, v)
	}()
	require.Eventually(t, func() bool { return g.InFlight("k") }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, shared, err := g.Do(ctx, "k", func() (int, error) { return 2, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, shared)

	close(release)
	<-leaderDone
}

func TestGroup_Panic(t *testing.T) {
	t.Parallel()
	var g Group[int, string]
	_, _, err := g.Do(context.Background(), 1, func() (string, error) { panic("bad") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.False(t, g.InFlight(1))
}
