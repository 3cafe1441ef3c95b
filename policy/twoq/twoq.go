// Package twoq implements the 2Q eviction policy.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/layercache/cache"
	"github.com/IvanBrykalov/layercache/policy"
)

// twoQ keeps first-time entries in a bounded A1in queue. An entry read
// again while in A1in is promoted to Am, whose order is the shard list.
// Addresses evicted from A1in are remembered in the A1out ghost queue; a
// ghost that is written again skips A1in.
//
// All methods are called under the shard lock.
type twoQ struct {
	h policy.Hooks

	capIn    int
	capGhost int

	in    *list.List // A1in, MRU at front
	inIdx map[policy.Node]*list.Element

	ghosts   *list.List // A1out, addresses only
	ghostIdx map[cache.Address]*list.Element
}

type factory struct {
	capIn    int
	capGhost int
}

// New returns a 2Q policy. capIn ≈ 25% and capGhost ≈ 50% of the per-shard
// capacity are common choices. Sizes are per shard.
func New(capIn, capGhost int) policy.Policy {
	return factory{capIn: max(capIn, 1), capGhost: max(capGhost, 1)}
}

func (f factory) New(h policy.Hooks) policy.ShardPolicy {
	return &twoQ{
		h:        h,
		capIn:    f.capIn,
		capGhost: f.capGhost,
		in:       list.New(),
		inIdx:    make(map[policy.Node]*list.Element),
		ghosts:   list.New(),
		ghostIdx: make(map[cache.Address]*list.Element),
	}
}

// OnAdd admits a ghost straight into Am; anything else enters A1in, and an
// overflowing A1in proposes its LRU node for eviction.
func (q *twoQ) OnAdd(n policy.Node) policy.Node {
	q.h.PushFront(n)

	addr := n.Address()
	if ge, ok := q.ghostIdx[addr]; ok {
		q.ghosts.Remove(ge)
		delete(q.ghostIdx, addr)
		return nil
	}

	q.inIdx[n] = q.in.PushFront(n)
	if q.in.Len() > q.capIn {
		return q.in.Back().Value.(policy.Node)
	}
	return nil
}

// OnGet promotes an A1in node to Am.
func (q *twoQ) OnGet(n policy.Node) {
	if el, ok := q.inIdx[n]; ok {
		q.in.Remove(el)
		delete(q.inIdx, n)
	}
	q.h.MoveToFront(n)
}

// OnUpdate counts as a read.
func (q *twoQ) OnUpdate(n policy.Node) { q.OnGet(n) }

// OnRemove turns an A1in node into a ghost. Removals from Am leave no ghost.
func (q *twoQ) OnRemove(n policy.Node) {
	el, ok := q.inIdx[n]
	if !ok {
		return
	}
	q.in.Remove(el)
	delete(q.inIdx, n)

	addr := n.Address()
	if old := q.ghostIdx[addr]; old != nil {
		q.ghosts.Remove(old)
	}
	q.ghostIdx[addr] = q.ghosts.PushFront(addr)

	for q.ghosts.Len() > q.capGhost {
		tail := q.ghosts.Back()
		delete(q.ghostIdx, tail.Value.(cache.Address))
		q.ghosts.Remove(tail)
	}
}
