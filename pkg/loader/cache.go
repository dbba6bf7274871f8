package loader

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = 5 * time.Minute
)

// Cache holds loaded sources for a bounded time. At most size entries are
// kept and each expires ttl after it was stored. Concurrent loads of the
// same key are collapsed into one call.
//
// A Cache created with a size of zero or less only collapses concurrent
// loads and stores nothing.
type Cache struct {
	lru   *expirable.LRU[string, []byte]
	group singleflight.Group
}

// NewCache creates a cache of at most size entries living for ttl.
func NewCache(size int, ttl time.Duration) *Cache {
	c := &Cache{}
	if size > 0 {
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		c.lru = expirable.NewLRU[string, []byte](size, nil, ttl)
	}
	return c
}

// Load returns the cached value of key or calls fn to produce and store it.
// Errors are not cached.
func (c *Cache) Load(key string, fn func() ([]byte, error)) ([]byte, error) {
	if c.lru != nil {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := fn()
		if err != nil {
			return nil, err
		}
		if c.lru != nil {
			c.lru.Add(key, res)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Options configures a loader.
type Options struct {
	Cache *Cache
}

// Option is a functional option for loader constructors.
type Option func(*Options)

// WithCache makes a loader keep its results in c. Every loader needs its own
// Cache since they store different representations under the same key.
func WithCache(c *Cache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

// ApplyOptions folds opts over the defaults. Without WithCache a loader gets
// a cache of DefaultCacheSize entries living DefaultCacheTTL.
func ApplyOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.Cache == nil {
		o.Cache = NewCache(DefaultCacheSize, DefaultCacheTTL)
	}
	return o
}
