package prp

import (
	"container/list"
	"sync"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// DefaultCacheBound is the default maximum number of PRP files one
// worktree's cache holds before eviction kicks in.
const DefaultCacheBound = 256

// EvictionFraction is the share of entries dropped once the cache exceeds
// its bound: evicting one entry at a time thrashes under a steady stream
// of new files, so eviction clears a batch instead.
const EvictionFraction = 0.2

type entry struct {
	path     string
	file     *types.PRPFile
	modTime  time.Time
}

// Cache is a path-keyed, bounded, least-recently-used cache of parsed PRP
// files for one worktree. Safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	bound int
	ll    *list.List // front = most recently used
	items map[string]*list.Element
}

// NewCache returns an empty Cache bounded at the given size. A bound of 0
// uses DefaultCacheBound.
func NewCache(bound int) *Cache {
	if bound <= 0 {
		bound = DefaultCacheBound
	}
	return &Cache{
		bound: bound,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the cached PRPFile for path along with its cached mtime, if
// present, promoting it to most-recently-used.
func (c *Cache) Get(path string) (*types.PRPFile, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[path]
	if !ok {
		return nil, time.Time{}, false
	}
	c.ll.MoveToFront(el)
	e := el.Value.(*entry)
	return e.file, e.modTime, true
}

// Put inserts or updates the cached entry for path, evicting a batch of
// least-recently-used entries if the cache is over its bound.
func (c *Cache) Put(path string, file *types.PRPFile, modTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[path]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*entry).file = file
		el.Value.(*entry).modTime = modTime
		return
	}

	el := c.ll.PushFront(&entry{path: path, file: file, modTime: modTime})
	c.items[path] = el

	if c.ll.Len() > c.bound {
		c.evictBatch()
	}
}

// evictBatch drops the least-recently-used 20% of entries. Caller must
// hold c.mu.
func (c *Cache) evictBatch() {
	n := int(float64(c.ll.Len()) * EvictionFraction)
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		back := c.ll.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		delete(c.items, e.path)
		c.ll.Remove(back)
	}
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// All returns a snapshot of every cached PRPFile, without disturbing
// recency order. Used by the orchestrator to enumerate PRPs for
// prioritization; it never promotes entries the way Get does.
func (c *Cache) All() []*types.PRPFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.PRPFile, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).file)
	}
	return out
}

// Remove drops path from the cache, if present.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[path]; ok {
		c.ll.Remove(el)
		delete(c.items, path)
	}
}
