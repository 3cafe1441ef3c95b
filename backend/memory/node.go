package memory

import "github.com/IvanBrykalov/layercache/cache"

// node is an intrusive list element owned by a shard.
type node struct {
	addr cache.Address
	item *cache.Item

	// head is MRU, tail is LRU
	prev *node
	next *node

	// exp is the UnixNano deadline, 0 = never. For sliding items it moves
	// forward by slide on every read and write.
	exp   int64
	slide int64

	cost int32
}

// Address implements policy.Node.
func (n *node) Address() cache.Address { return n.addr }
