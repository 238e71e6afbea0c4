package script

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize is the number of compiled programs kept by NewCache
// when size is not positive.
const DefaultCacheSize = 16

// Cache keeps compiled programs keyed by engine, source name and digest.
// It is safe for concurrent use and may be shared between sessions.
type Cache struct {
	arc *lru.ARCCache
}

// NewCache creates a cache holding up to size programs.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &Cache{arc: arc}, nil
}

// Get returns the program compiled by engine for src, if cached.
func (c *Cache) Get(engine string, src Source) (Program, bool) {
	v, ok := c.arc.Get(cacheKey(engine, src))
	if !ok {
		return nil, false
	}
	return v.(Program), true
}

// Add stores a compiled program.
func (c *Cache) Add(engine string, src Source, p Program) {
	c.arc.Add(cacheKey(engine, src), p)
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	return c.arc.Len()
}

// Purge drops every cached program.
func (c *Cache) Purge() {
	c.arc.Purge()
}

func cacheKey(engine string, src Source) string {
	return engine + ":" + src.Name + ":" + src.Digest()
}
