package pager

import (
	"container/list"
	"sync"
)

// CacheStats mirrors the hit/miss/eviction counters the teacher's
// PageCacheStats tracks, generalized to this engine's single-file,
// page-number-only addressing (no per-tablespace id component).
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is a page cache: a hash table keyed by page number plus a
// doubly linked LRU list over zero-reference pages. Pages with
// outstanding references are tracked in the hash table but never placed
// on (or are removed from) the LRU list, so Put never evicts them.
type Cache struct {
	mu sync.Mutex

	capacity int
	items    map[uint64]*list.Element
	lru      *list.List // Value: *Page, zero-ref pages only, front = most recent
	pinned   map[uint64]*Page

	stats CacheStats
}

// NewCache creates a cache sized for a 2 MiB working set at pageSize
// bytes per page, the same capacity rule the teacher's buffer pool
// derives its frame count from.
func NewCache(pageSize uint32) *Cache {
	capacity := (2 * 1024 * 1024) / int(pageSize)
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[uint64]*list.Element),
		lru:      list.New(),
		pinned:   make(map[uint64]*Page),
	}
}

// Get returns the cached page for pageNo, moving it to the front of the
// LRU if it is currently unpinned.
func (c *Cache) Get(pageNo uint64) (*Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pinned[pageNo]; ok {
		c.stats.Hits++
		return p, true
	}
	if elem, ok := c.items[pageNo]; ok {
		c.lru.MoveToFront(elem)
		c.stats.Hits++
		return elem.Value.(*Page), true
	}
	c.stats.Misses++
	return nil, false
}

// Put inserts or updates p in the cache. If p is pinned it is tracked
// outside the LRU list; otherwise it joins the front of the LRU, evicting
// the least-recently-used unpinned page if the cache is at capacity.
func (c *Cache) Put(p *Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[p.No]; ok {
		c.lru.Remove(elem)
		delete(c.items, p.No)
	}
	delete(c.pinned, p.No)

	if p.Pinned() {
		c.pinned[p.No] = p
		return
	}

	if len(c.items) >= c.capacity {
		c.evictLocked()
	}
	elem := c.lru.PushFront(p)
	c.items[p.No] = elem
}

// Remove evicts pageNo from the cache unconditionally.
func (c *Cache) Remove(pageNo uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[pageNo]; ok {
		c.lru.Remove(elem)
		delete(c.items, pageNo)
	}
	delete(c.pinned, pageNo)
}

func (c *Cache) evictLocked() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	p := elem.Value.(*Page)
	c.lru.Remove(elem)
	delete(c.items, p.No)
	c.stats.Evictions++
}

// Stats returns a snapshot of the cache's hit/miss/eviction counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Size returns the number of pages currently resident (pinned + LRU).
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) + len(c.pinned)
}
