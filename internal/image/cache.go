package image

import (
	"sync"

	"github.com/rs/zerolog"
)

// Cache keeps decoded images in memory keyed by photo ID. Entries are never
// evicted on their own; Purge drops everything under memory pressure. The
// cache is derived state and can always be rebuilt by downloading again.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Image
	bytes   int64
	logger  zerolog.Logger
}

// NewCache creates an empty image cache
func NewCache(logger zerolog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*Image),
		logger:  logger,
	}
}

// Get returns the cached image for id. It never performs I/O.
func (c *Cache) Get(id string) (*Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	img, ok := c.entries[id]
	return img, ok
}

// Put stores img under id, replacing any previous entry. A nil image removes the entry.
func (c *Cache) Put(id string, img *Image) {
	if img == nil {
		c.Remove(id)
		return
	}

	c.mu.Lock()
	if old, ok := c.entries[id]; ok {
		c.bytes -= int64(old.Size())
	}
	c.entries[id] = img
	c.bytes += int64(img.Size())
	c.mu.Unlock()

	c.logger.Debug().Str("photo_id", id).Int("bytes", img.Size()).Msg("image cached")
}

// Remove deletes the entry for id. Removing a missing id is a no-op.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	old, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
		c.bytes -= int64(old.Size())
	}
	c.mu.Unlock()

	if ok {
		c.logger.Debug().Str("photo_id", id).Int("bytes", old.Size()).Msg("image removed from cache")
	}
}

// Len returns the number of cached images
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Bytes returns the total size of all cached images
func (c *Cache) Bytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

// Purge drops every entry and returns how many were removed
func (c *Cache) Purge() int {
	c.mu.Lock()
	n := len(c.entries)
	freed := c.bytes
	c.entries = make(map[string]*Image)
	c.bytes = 0
	c.mu.Unlock()

	c.logger.Info().Int("entries", n).Int64("bytes", freed).Msg("image cache purged")
	return n
}
