// Package cache implements the block cache: a bounded map from
// (sstID, blockIndex) to a decoded block, evicted under an LRU-K policy
// grounded on the reference design's cold/hot list split (original
// source: include/block/BlockCache.h, src/block/BlockCache.cpp).
package cache

import (
	"container/list"
	"sync"

	"github.com/arjunk/go-store/block"
	"github.com/arjunk/go-store/lsmerr"
)

type key struct {
	sstID    uint64
	blockIdx int
}

// node is the cache's unit of accounting: the decoded block plus a
// bounded history of up to K access timestamps, used to rank standing
// among the hot list.
type node struct {
	key     key
	blk     *block.Block
	history []uint64 // bounded to len <= k, oldest first
	inHot   bool
}

// BlockCache bounds resident decoded blocks under an LRU-K eviction
// policy: nodes with fewer than K recorded accesses live in an LRU cold
// list; nodes with exactly K live in a hot list ordered by the oldest of
// their K remembered timestamps (front = evict-first).
type BlockCache struct {
	mu       sync.Mutex
	capacity int
	k        int
	clock    uint64
	index    map[key]*list.Element
	cold     *list.List
	hot      *list.List
	hits     uint64
	total    uint64
}

// New constructs a cache bounding `capacity` blocks, promoting a node to
// the hot list once it has been accessed K times.
func New(capacity, k int) *BlockCache {
	return &BlockCache{
		capacity: capacity,
		k:        k,
		index:    make(map[key]*list.Element),
		cold:     list.New(),
		hot:      list.New(),
	}
}

// Get returns the cached block for (sstID, blockIdx), recording an
// access and possibly promoting the node to the hot list. Returns
// ok=false on a miss without mutating any list.
func (c *BlockCache) Get(sstID uint64, blockIdx int) (*block.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	k := key{sstID, blockIdx}
	el, found := c.index[k]
	if !found {
		return nil, false
	}
	c.hits++
	n := el.Value.(*node)
	c.recordAccess(el, n)
	return n.blk, true
}

// Put inserts a freshly decoded block, evicting first if the cache is
// at capacity. A key already present is left untouched (first writer
// wins, matching the reference design).
func (c *BlockCache) Put(sstID uint64, blockIdx int, blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{sstID, blockIdx}
	if _, found := c.index[k]; found {
		return nil
	}

	if len(c.index) >= c.capacity {
		if err := c.evict(); err != nil {
			return err
		}
	}

	n := &node{key: k, blk: blk}
	el := c.cold.PushBack(n)
	c.index[k] = el
	c.recordAccess(el, n)
	return nil
}

// recordAccess appends a timestamp to n's history and relocates it
// between cold and hot as its history crosses the K threshold, keeping
// the hot list sorted by oldest-of-K timestamp (ascending, front =
// earliest = next to evict).
func (c *BlockCache) recordAccess(el *list.Element, n *node) {
	n.history = append(n.history, c.clock)
	c.clock++
	if len(n.history) > c.k {
		n.history = n.history[len(n.history)-c.k:]
	}

	if len(n.history) < c.k {
		// Still under the promotion threshold: stays (or starts) cold,
		// refreshed to the back as the most-recently-used cold node.
		c.cold.MoveToBack(el)
		return
	}

	// Reached or re-confirmed K accesses: (re)insert into hot, ordered
	// by the oldest remembered timestamp (history[0]), front = earliest.
	if n.inHot {
		c.hot.Remove(el)
	} else {
		c.cold.Remove(el)
		n.inHot = true
	}
	c.index[n.key] = c.insertHotSorted(n)
}

func (c *BlockCache) insertHotSorted(n *node) *list.Element {
	for e := c.hot.Front(); e != nil; e = e.Next() {
		other := e.Value.(*node)
		if other.history[0] > n.history[0] {
			return c.hot.InsertBefore(n, e)
		}
	}
	return c.hot.PushBack(n)
}

// evict removes the LRU node among cold (front), or if cold is empty,
// the hot node with the smallest oldest-of-K timestamp (front of hot).
func (c *BlockCache) evict() error {
	if e := c.cold.Front(); e != nil {
		n := e.Value.(*node)
		c.cold.Remove(e)
		delete(c.index, n.key)
		return nil
	}
	if e := c.hot.Front(); e != nil {
		n := e.Value.(*node)
		c.hot.Remove(e)
		delete(c.index, n.key)
		return nil
	}
	return lsmerr.ErrCacheInvariantViolation
}

// HitRate returns hits/total, or 0 if no Gets have been recorded yet.
func (c *BlockCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total == 0 {
		return 0
	}
	return float64(c.hits) / float64(c.total)
}
