package twoq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/layercache/cache"
	"github.com/IvanBrykalov/layercache/policy"
)

type testNode struct{ addr cache.Address }

func (n *testNode) Address() cache.Address { return n.addr }

func node(region, key string) *testNode {
	return &testNode{addr: cache.Address{Region: region, Key: key}}
}

type countingHooks struct {
	pushes int
	moves  int
}

func (h *countingHooks) MoveToFront(policy.Node) { h.moves++ }
func (h *countingHooks) PushFront(policy.Node)   { h.pushes++ }
func (h *countingHooks) Remove(policy.Node)      {}
func (h *countingHooks) Back() policy.Node       { return nil }
func (h *countingHooks) Len() int                { return 0 }

func newQ(t *testing.T, capIn, capGhost int) (*twoQ, *countingHooks) {
	t.Helper()
	h := &countingHooks{}
	q, ok := New(capIn, capGhost).New(h).(*twoQ)
	require.True(t, ok)
	return q, h
}

// A first-time address is admitted into A1in.
func TestTwoQ_AddGoesToA1in(t *testing.T) {
	t.Parallel()

	q, h := newQ(t, 2, 4)
	n := node("", "a")

	assert.Nil(t, q.OnAdd(n))
	assert.Equal(t, 1, q.in.Len())
	assert.Contains(t, q.inIdx, policy.Node(n))
	assert.Equal(t, 1, h.pushes)
}

// An overflowing A1in proposes its LRU node.
func TestTwoQ_OverflowReturnsLRUOfA1in(t *testing.T) {
	t.Parallel()

	q, _ := newQ(t, 2, 4)
	n1, n2, n3 := node("", "a"), node("", "b"), node("", "c")

	q.OnAdd(n1)
	q.OnAdd(n2)
	assert.Equal(t, policy.Node(n1), q.OnAdd(n3))
}

// Removal from A1in leaves a ghost keyed by the full address.
func TestTwoQ_RemoveFromA1inLeavesGhost(t *testing.T) {
	t.Parallel()

	q, _ := newQ(t, 2, 2)
	n := node("users", "a")
	q.OnAdd(n)
	q.OnRemove(n)

	assert.NotContains(t, q.inIdx, policy.Node(n))
	assert.Contains(t, q.ghostIdx, cache.Address{Region: "users", Key: "a"})
	assert.NotContains(t, q.ghostIdx, cache.Address{Key: "a"}, "regioned ghost must not match the global key")
}

// A ghost written again skips A1in.
func TestTwoQ_AddFromGhostGoesToAm(t *testing.T) {
	t.Parallel()

	q, _ := newQ(t, 1, 2)
	n1 := node("", "a")
	q.OnAdd(n1)
	q.OnRemove(n1)

	n2 := node("", "a")
	assert.Nil(t, q.OnAdd(n2))
	assert.NotContains(t, q.inIdx, policy.Node(n2))
	assert.Empty(t, q.ghostIdx)
}

// Reads promote out of A1in and move to front.
func TestTwoQ_GetPromotesFromA1inToAm(t *testing.T) {
	t.Parallel()

	q, h := newQ(t, 2, 2)
	n := node("", "a")
	q.OnAdd(n)
	q.OnGet(n)

	assert.NotContains(t, q.inIdx, policy.Node(n))
	assert.Equal(t, 1, h.moves)

	// Removal from Am leaves no ghost.
	q.OnRemove(n)
	assert.Empty(t, q.ghostIdx)
}

// Ghost capacity drops the oldest ghosts.
func TestTwoQ_GhostCapacity(t *testing.T) {
	t.Parallel()

	q, _ := newQ(t, 4, 2)
	for _, k := range []string{"a", "b", "c"} {
		n := node("", k)
		q.OnAdd(n)
		q.OnRemove(n)
	}
	assert.Len(t, q.ghostIdx, 2)
	assert.NotContains(t, q.ghostIdx, cache.Address{Key: "a"})
}
