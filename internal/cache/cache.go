// Package cache keeps downloaded videos on local disk under a total byte
// budget. Entries are ordered by recency of access; inserting past the budget
// evicts the least recently used entries and deletes their files.
package cache

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"relayd/internal/content"
	"relayd/internal/metrics"
)

// DefaultBudgetBytes matches the historical 2 GB cache size.
const DefaultBudgetBytes uint64 = 2_000_000_000

// Entry is a cached video. The file at Path is owned by the cache.
type Entry struct {
	Ref content.Ref
	content.Metadata
	Path string
}

// Config configures a Cache.
type Config struct {
	// Dir receives downloaded files. It must exist.
	Dir string
	// BudgetBytes bounds the sum of entry sizes. Zero selects DefaultBudgetBytes.
	BudgetBytes uint64
	Logger      zerolog.Logger
}

// Cache is an LRU index of downloaded videos. It is safe for concurrent use.
type Cache struct {
	dir     string
	budget  uint64
	fetcher content.Fetcher
	log     zerolog.Logger

	mu    sync.RWMutex
	order *list.List // front is most recently used; values are *Entry
	index map[content.Ref]*list.Element
	used  uint64
	// reserved counts bytes promised to downloads in flight.
	reserved uint64
	// pins counts holders per ref; pinned entries are skipped by eviction.
	pins map[content.Ref]int

	flight singleflight.Group
}

// New constructs an empty cache backed by fetcher.
func New(cfg Config, fetcher content.Fetcher) *Cache {
	budget := cfg.BudgetBytes
	if budget == 0 {
		budget = DefaultBudgetBytes
	}
	return &Cache{
		dir:     cfg.Dir,
		budget:  budget,
		fetcher: fetcher,
		log:     cfg.Logger,
		order:   list.New(),
		index:   make(map[content.Ref]*list.Element),
		pins:    make(map[content.Ref]int),
	}
}

// Find returns the entry for ref and marks it most recently used.
func (c *Cache) Find(ref content.Ref) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[ref]
	if !ok {
		metrics.CacheMisses.Inc()
		return Entry{}, false
	}
	c.order.MoveToFront(el)
	metrics.CacheHits.Inc()
	return *el.Value.(*Entry), true
}

// Peek returns the entry for ref without touching recency or counters.
func (c *Cache) Peek(ref content.Ref) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if el, ok := c.index[ref]; ok {
		return *el.Value.(*Entry), true
	}
	return Entry{}, false
}

// Entries lists the cache from least to most recently used.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, c.order.Len())
	for el := c.order.Back(); el != nil; el = el.Prev() {
		out = append(out, *el.Value.(*Entry))
	}
	return out
}

// Fits reports whether an item of size bytes could ever be cached.
func (c *Cache) Fits(size uint64) bool { return size <= c.budget }

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// SizeBytes is the total size of live entries.
func (c *Cache) SizeBytes() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.used
}

func (c *Cache) Budget() uint64 { return c.budget }

// Dir is the directory holding cached files.
func (c *Cache) Dir() string { return c.dir }

// insertLocked records e as most recently used. An existing entry for the
// same ref is replaced.
func (c *Cache) insertLocked(e Entry) {
	if el, ok := c.index[e.Ref]; ok {
		old := el.Value.(*Entry)
		c.order.Remove(el)
		delete(c.index, e.Ref)
		c.used -= old.SizeBytes
		if old.Path != e.Path {
			c.removeFile(old.Path)
		}
	}
	entry := e
	c.index[e.Ref] = c.order.PushFront(&entry)
	c.used += e.SizeBytes
	c.updateGaugesLocked()
}

func (c *Cache) updateGaugesLocked() {
	metrics.CacheEntries.Set(float64(c.order.Len()))
	metrics.CacheBytes.Set(float64(c.used))
}
