package cache

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryCacheSize bounds the in-memory backend.
const DefaultMemoryCacheSize = 4096

// memoryEntry carries the per-key deadline; the LRU's own TTL is disabled
// because entries need individual expiries.
type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is the cacheless-deployment and test backend: an expirable
// LRU with glob pattern scans over its key set.
type MemoryCache struct {
	lru     *expirable.LRU[string, memoryEntry]
	appName string

	// mu serializes read-modify-write in Increment.
	mu sync.Mutex
}

// NewMemoryCache creates an in-memory cache. size <= 0 uses the default.
func NewMemoryCache(size int, appName string) *MemoryCache {
	if size <= 0 {
		size = DefaultMemoryCacheSize
	}
	return &MemoryCache{
		lru:     expirable.NewLRU[string, memoryEntry](size, nil, 0),
		appName: appName,
	}
}

// Get returns the value and whether the key was present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	return entry.data, true, nil
}

// Set stores a value with a TTL; ttl <= 0 stores without expiry.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{data: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Exists checks presence without fetching.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

// Increment atomically adds one to a counter key. Counters never expire.
func (c *MemoryCache) Increment(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	if entry, ok := c.lru.Get(key); ok && !entry.expired(time.Now()) {
		parsed, err := strconv.ParseInt(string(entry.data), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("key %s holds a non-counter value", key)
		}
		n = parsed
	}
	n++
	c.lru.Add(key, memoryEntry{data: []byte(strconv.FormatInt(n, 10))})
	return n, nil
}

// GetPattern returns all unexpired key/value pairs matching the glob.
func (c *MemoryCache) GetPattern(_ context.Context, pattern string) (map[string][]byte, error) {
	now := time.Now()
	out := make(map[string][]byte)
	for _, key := range c.lru.Keys() {
		if matched, err := path.Match(pattern, key); err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		} else if !matched {
			continue
		}
		if entry, ok := c.lru.Get(key); ok && !entry.expired(now) {
			out[key] = entry.data
		}
	}
	return out, nil
}

// FlushPattern deletes all keys matching the glob.
func (c *MemoryCache) FlushPattern(_ context.Context, pattern string) (int, error) {
	count := 0
	for _, key := range c.lru.Keys() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return count, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if matched && c.lru.Remove(key) {
			count++
		}
	}
	return count, nil
}

// MakeKey joins parts under the application namespace.
func (c *MemoryCache) MakeKey(parts ...string) string {
	return joinKey(c.appName, parts)
}

// Close is a no-op for the memory backend.
func (c *MemoryCache) Close() error {
	return nil
}

var _ Cache = (*MemoryCache)(nil)
