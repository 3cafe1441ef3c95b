// Package policy defines the eviction policy contract of the in-memory layer.
package policy

import "github.com/IvanBrykalov/layercache/cache"

// Node is a resident entry as seen by a policy.
type Node interface {
	Address() cache.Address
}

// Hooks expose O(1) operations on a shard's intrusive MRU/LRU list.
// Implementations are provided by the shard.
//
// Concurrency: all hook calls happen under the shard lock.
// Hooks manage only the list; the shard owns the address->node map.
type Hooks interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node)
	// PushFront inserts the node at MRU (used on admission).
	PushFront(Node)
	// Remove detaches the node from the list.
	Remove(Node)
	// Back returns the current LRU node (or nil if empty).
	Back() Node
	// Len returns the number of resident nodes in the shard.
	Len() int
}

// ShardPolicy is a per-shard eviction policy bound to shard hooks.
// All methods are invoked under the shard lock.
//
//   - OnAdd may return an eviction candidate. The shard evicts it and then
//     calls OnRemove for it.
//   - OnGet/OnUpdate typically promote the node.
//   - OnRemove lets the policy forget the node; the shard deletes it.
type ShardPolicy interface {
	OnAdd(Node) (evict Node)
	OnGet(Node)
	OnUpdate(Node)
	OnRemove(Node)
}

// Policy creates shard-local policy instances.
type Policy interface {
	New(Hooks) ShardPolicy
}
