package loader

import (
	"os"
	"sync"

	"github.com/0bArc/Vault/internal/archive"
)

type cacheKey struct {
	path    string
	modTime int64
	size    int64
}

// Cache is a read-through cache of decoded archives keyed by path,
// modification time and size. It is safe for concurrent use. Cached
// archives are still verified by every Load.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	hits    int
	misses  int
}

type cacheEntry struct {
	key     cacheKey
	archive *archive.Archive
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the decoded archive at path, reading it when the file is
// new or changed since it was cached.
func (c *Cache) Get(path string) (*archive.Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, classifyOpen(path, err)
	}
	key := cacheKey{path: path, modTime: info.ModTime().UnixNano(), size: info.Size()}

	c.mu.Lock()
	if e, ok := c.entries[path]; ok && e.key == key {
		c.hits++
		c.mu.Unlock()
		return e.archive, nil
	}
	c.misses++
	c.mu.Unlock()

	a, err := readArchive(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[path] = cacheEntry{key: key, archive: a}
	c.mu.Unlock()
	return a, nil
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
