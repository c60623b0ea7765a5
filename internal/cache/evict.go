package cache

import (
	"container/list"

	"github.com/dustin/go-humanize"

	"relayd/internal/common/fsutil"
	"relayd/internal/content"
	"relayd/internal/metrics"
)

// reserveLocked evicts least recently used entries until size more bytes fit
// next to the live entries and the other reservations, then reserves them.
// Pinned entries are never evicted to make room.
func (c *Cache) reserveLocked(size uint64) bool {
	if c.used+c.reserved+size > c.budget {
		c.log.Info().
			Str("event", "evict").
			Str("size", humanize.Bytes(c.used)).
			Str("incoming", humanize.Bytes(size)).
			Str("budget", humanize.Bytes(c.budget)).
			Msg("cache over budget, evicting")
	}
	for c.used+c.reserved+size > c.budget {
		if !c.evictOldestLocked() {
			return false
		}
	}
	c.reserved += size
	return true
}

func (c *Cache) releaseLocked(size uint64) {
	if size > c.reserved {
		c.reserved = 0
		return
	}
	c.reserved -= size
}

// downsizeLocked evicts until the live entries total at most target bytes.
func (c *Cache) downsizeLocked(target uint64) {
	for c.used > target {
		if !c.evictOldestLocked() {
			return
		}
	}
}

// evictOldestLocked evicts the least recently used unpinned entry.
func (c *Cache) evictOldestLocked() bool {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if c.pins[el.Value.(*Entry).Ref] == 0 {
			c.evictLocked(el)
			return true
		}
	}
	return false
}

func (c *Cache) evictLocked(el *list.Element) {
	e := el.Value.(*Entry)
	c.order.Remove(el)
	delete(c.index, e.Ref)
	c.used -= e.SizeBytes
	c.removeFile(e.Path)
	metrics.CacheEvictions.Inc()
	c.updateGaugesLocked()
	c.log.Debug().Str("event", "evict").Str("ref", string(e.Ref)).Str("size", humanize.Bytes(e.SizeBytes)).Msg("evicted entry")
}

func (c *Cache) removeFile(path string) {
	if path == "" {
		return
	}
	if err := fsutil.Remove(path); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("remove cached file")
	}
}

// Pin protects ref from eviction until the matching Unpin. Pins nest.
func (c *Cache) Pin(ref content.Ref) {
	c.mu.Lock()
	c.pins[ref]++
	c.mu.Unlock()
}

func (c *Cache) Unpin(ref content.Ref) {
	c.mu.Lock()
	if c.pins[ref] <= 1 {
		delete(c.pins, ref)
	} else {
		c.pins[ref]--
	}
	c.mu.Unlock()
}

// Clear evicts every entry, pinned or not, and deletes the files.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := c.order.Len()
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		c.evictLocked(el)
	}
	c.mu.Unlock()
	c.log.Info().Str("event", "clear").Int("entries", n).Msg("cache cleared")
}
