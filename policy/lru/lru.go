// Package lru implements the LRU eviction policy.
package lru

import "github.com/IvanBrykalov/layercache/policy"

// lru moves every touched node to the front; the shard trims from the back
// when it exceeds its limits.
type lru struct {
	h policy.Hooks
}

type factory struct{}

// New returns a Policy that builds per-shard LRU instances.
func New() policy.Policy { return factory{} }

func (factory) New(h policy.Hooks) policy.ShardPolicy { return &lru{h: h} }

// OnAdd places the node at MRU and never proposes an eviction itself.
func (p *lru) OnAdd(n policy.Node) policy.Node {
	p.h.PushFront(n)
	return nil
}

func (p *lru) OnGet(n policy.Node)    { p.h.MoveToFront(n) }
func (p *lru) OnUpdate(n policy.Node) { p.h.MoveToFront(n) }
func (p *lru) OnRemove(policy.Node)   {}
