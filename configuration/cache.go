package configuration

import (
	"crypto/md5"
	"encoding/hex"
	"sync"

	"github.com/nci/gomemcache/memcache"

	"github.com/nci/sdi/servicedef"
)

// Cache keeps encoded configuration documents so repeated reads of an
// instance configuration skip the disk. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
}

// CacheKey is the cache key of one file of an instance.
func CacheKey(spec servicedef.Specification, id, file string) string {
	return string(spec) + "/" + id + "/" + file
}

type noCache struct{}

// NoCache disables caching.
var NoCache Cache = noCache{}

func (noCache) Get(string) ([]byte, bool) { return nil, false }
func (noCache) Set(string, []byte)        {}
func (noCache) Delete(string)             {}

// MemoryCache is a process local cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *MemoryCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// MemcacheCache shares configurations between several server nodes
// through memcached.
type MemcacheCache struct {
	client     *memcache.Client
	expiration int32
}

// NewMemcacheCache connects lazily to the given host:port list; errors
// only surface as cache misses.
func NewMemcacheCache(expiration int32, servers ...string) *MemcacheCache {
	return &MemcacheCache{
		client:     memcache.New(servers...),
		expiration: expiration,
	}
}

func hashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (c *MemcacheCache) Get(key string) ([]byte, bool) {
	item, err := c.client.Get(hashKey(key))
	if err != nil {
		if err != memcache.ErrCacheMiss {
			logger.Debugf("memcache get %s: %v", key, err)
		}
		return nil, false
	}
	return item.Value, true
}

func (c *MemcacheCache) Set(key string, value []byte) {
	// memcache may not retain the value anyway
	err := c.client.Set(&memcache.Item{Key: hashKey(key), Value: value, Expiration: c.expiration})
	if err != nil {
		logger.Debugf("memcache set %s: %v", key, err)
	}
}

func (c *MemcacheCache) Delete(key string) {
	err := c.client.Delete(hashKey(key))
	if err != nil && err != memcache.ErrCacheMiss {
		logger.Warningf("memcache delete %s: %v", key, err)
	}
}
