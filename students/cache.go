package students

import (
	"sync"
	"time"

	"github.com/liamcoop/studentrisk/fairness"
)

// DatasetCache holds the labeled reference dataset between metrics requests.
type DatasetCache interface {
	// Get returns the cached dataset, or nil on a miss or after expiry.
	Get() *fairness.Dataset

	// Set stores a dataset.
	Set(ds *fairness.Dataset)

	// Invalidate clears the cache so the next Get misses.
	Invalidate()

	// IsValid reports whether Get would hit.
	IsValid() bool
}

// CacheConfig controls dataset cache expiry.
type CacheConfig struct {
	// TTL is how long a cached dataset is served. Zero means until
	// invalidated.
	TTL time.Duration
}

// DefaultCacheConfig expires the dataset after five minutes so writes made
// by other processes become visible.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 5 * time.Minute}
}

// InMemoryDatasetCache is a DatasetCache guarded by a RWMutex.
type InMemoryDatasetCache struct {
	ds       *fairness.Dataset
	cachedAt time.Time
	config   CacheConfig
	now      func() time.Time
	mu       sync.RWMutex
}

func NewInMemoryDatasetCache(config CacheConfig) *InMemoryDatasetCache {
	return &InMemoryDatasetCache{config: config, now: time.Now}
}

func (c *InMemoryDatasetCache) Get() *fairness.Dataset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil
	}
	return c.ds
}

func (c *InMemoryDatasetCache) Set(ds *fairness.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ds = ds
	c.cachedAt = c.now()
}

func (c *InMemoryDatasetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ds = nil
}

func (c *InMemoryDatasetCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.validLocked()
}

func (c *InMemoryDatasetCache) validLocked() bool {
	if c.ds == nil {
		return false
	}
	if c.config.TTL > 0 && c.now().Sub(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
