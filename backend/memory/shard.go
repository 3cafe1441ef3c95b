package memory

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/layercache/cache"
	"github.com/IvanBrykalov/layercache/internal/util"
	"github.com/IvanBrykalov/layercache/policy"
)

// shard is an independent partition of the layer with its own lock, map,
// and an intrusive doubly linked list (head=MRU, tail=LRU).
type shard struct {
	// ---- guarded by mu ----
	mu      sync.Mutex
	m       map[cache.Address]*node
	head    *node // MRU
	tail    *node // LRU
	len     int
	cost    int64
	cap     int
	maxCost int64 // 0 = disabled
	pol     policy.ShardPolicy

	factory policy.Policy
	name    string
	opt     *Options

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_       util.CacheLinePad
	evicts  util.PaddedAtomicUint64
	expired util.PaddedAtomicUint64
}

func newShard(capacity int, maxCost int64, name string, opt *Options) *shard {
	s := &shard{
		m:       make(map[cache.Address]*node, capacity),
		cap:     capacity,
		maxCost: maxCost,
		factory: opt.Policy,
		name:    name,
		opt:     opt,
	}
	s.pol = s.factory.New(shardHooks{s: s})
	return s
}

// get returns the item and promotes it. Expired entries are evicted and
// reported as a miss; sliding entries get a fresh deadline.
func (s *shard) get(addr cache.Address) (*cache.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[addr]
	if !ok {
		return nil, false
	}
	now := s.now()
	if expired(n, now) {
		s.evictNode(n, EvictTTL)
		return nil, false
	}
	if n.slide > 0 {
		n.exp = now + n.slide
	}
	s.pol.OnGet(n)
	return n.item, true
}

// add inserts a new entry only if addr is absent or expired.
func (s *shard) add(addr cache.Address, it *cache.Item, exp, slide int64, cost int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, exists := s.m[addr]; exists {
		if !expired(n, s.now()) {
			return false
		}
		s.evictNode(n, EvictTTL)
	}
	s.insertLocked(addr, it, exp, slide, cost)
	return true
}

// put inserts or replaces an entry and promotes it.
func (s *shard) put(addr cache.Address, it *cache.Item, exp, slide int64, cost int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[addr]; ok {
		oldCost := int64(n.cost)
		n.item = it
		n.exp = exp
		n.slide = slide
		n.cost = cost
		s.cost += int64(cost) - oldCost

		s.pol.OnUpdate(n)
		s.enforceLimitsLocked()
		return
	}
	s.insertLocked(addr, it, exp, slide, cost)
}

// remove deletes addr. An expired entry is dropped but reported as absent.
func (s *shard) remove(addr cache.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[addr]
	if !ok {
		return false
	}
	live := !expired(n, s.now())
	s.dropLocked(n)
	return live
}

// clear drops every entry and resets the policy state.
func (s *shard) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m = make(map[cache.Address]*node, s.cap)
	s.head, s.tail = nil, nil
	s.len, s.cost = 0, 0
	s.pol = s.factory.New(shardHooks{s: s})
	s.opt.Metrics.Size(s.name, s.len, s.cost)
}

// clearRegion drops every entry of region.
func (s *shard) clearRegion(region string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, n := range s.m {
		if addr.Region == region {
			s.dropLocked(n)
		}
	}
	s.opt.Metrics.Size(s.name, s.len, s.cost)
}

func (s *shard) size() (int, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.len, s.cost
}

// -------------------- internals (mu held) --------------------

func expired(n *node, now int64) bool {
	return n.exp != 0 && now > n.exp
}

func (s *shard) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (s *shard) insertLocked(addr cache.Address, it *cache.Item, exp, slide int64, cost int32) {
	n := &node{addr: addr, item: it, exp: exp, slide: slide, cost: cost}
	s.m[addr] = n
	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictNode(ev.(*node), EvictPolicy)
	}
	s.enforceLimitsLocked()
}

// insertFront links n at MRU in O(1).
func (s *shard) insertFront(n *node) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
	s.cost += int64(n.cost)
}

// moveToFront promotes n to MRU in O(1).
func (s *shard) moveToFront(n *node) {
	if n == s.head {
		return
	}
	s.unlink(n)
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *shard) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// removeNode unlinks n and updates counters in O(1).
func (s *shard) removeNode(n *node) {
	s.unlink(n)
	s.len--
	s.cost -= int64(n.cost)
	if s.cost < 0 {
		s.cost = 0
	}
}

// dropLocked removes n on an explicit request; not an eviction.
func (s *shard) dropLocked(n *node) {
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.addr)
}

// evictNode removes n, counts it and calls OnEvict.
func (s *shard) evictNode(n *node, reason EvictReason) {
	s.dropLocked(n)
	if reason == EvictTTL {
		s.expired.Add(1)
	} else {
		s.evicts.Add(1)
	}
	s.opt.Metrics.Evict(s.name, reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(n.addr, n.item, reason)
	}
}

// enforceLimitsLocked evicts from the LRU end until both limits hold.
// Expired entries at the tail go first and count as TTL evictions.
func (s *shard) enforceLimitsLocked() {
	now := s.now()
	for s.len > s.cap && s.tail != nil {
		s.evictNode(s.tail, s.reason(s.tail, now, EvictPolicy))
	}
	if s.maxCost > 0 {
		for s.cost > s.maxCost && s.tail != nil {
			s.evictNode(s.tail, s.reason(s.tail, now, EvictCapacity))
		}
	}
	s.opt.Metrics.Size(s.name, s.len, s.cost)
}

func (s *shard) reason(n *node, now int64, otherwise EvictReason) EvictReason {
	if expired(n, now) {
		return EvictTTL
	}
	return otherwise
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list operations to policy.Hooks.
type shardHooks struct{ s *shard }

func (h shardHooks) MoveToFront(x policy.Node) { h.s.moveToFront(x.(*node)) }
func (h shardHooks) PushFront(x policy.Node)   { h.s.insertFront(x.(*node)) }
func (h shardHooks) Remove(x policy.Node)      { h.s.removeNode(x.(*node)) }
func (h shardHooks) Back() policy.Node {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
func (h shardHooks) Len() int { return h.s.len }
