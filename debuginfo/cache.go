package debuginfo

import (
	lru "github.com/hashicorp/golang-lru"
)

type cached struct {
	info Info
	err  error
}

// Cache remembers the answers of another Resolver, misses included.
type Cache struct {
	r     Resolver
	cache *lru.Cache
}

// NewCache wraps r with an LRU of size entries.
func NewCache(r Resolver, size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{r: r, cache: c}, nil
}

func (c *Cache) Lookup(pc uint64) (Info, error) {
	if v, ok := c.cache.Get(pc); ok {
		e := v.(cached)
		return e.info, e.err
	}
	info, err := c.r.Lookup(pc)
	c.cache.Add(pc, cached{info, err})
	return info, err
}
