// MIT License
//
// Copyright (c) 2023 kache.io
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

var _ Provider = (*inMemoryCache)(nil)

const (
	maxInt          = int(^uint(0) >> 1)
	sliceHeaderSize = 24
)

// inMemoryCache is a byte-bounded LRU Provider. It is the default
// backend for both cache tiers: entity blobs dominate its byte budget,
// metastore envelopes are small and mostly ride along.
type inMemoryCache struct {
	mu sync.RWMutex

	// inner is the backing LRU.
	inner *lru.Cache[string, []byte]

	// maxSizeBytes bounds the total bytes held.
	maxSizeBytes uint64

	// maxItemSizeBytes bounds a single item; larger items are dropped
	// rather than stored.
	maxItemSizeBytes uint64

	// curSize is the current total in bytes.
	curSize uint64

	// defaultTTL applies to items stored without an explicit ttl.
	defaultTTL time.Duration

	// expiries maps keys to their expiry deadline.
	expiries map[string]time.Time

	// ttlEviction enables expiry checks on read.
	ttlEviction bool

	// currentTime is the injectable time source for expiry checks.
	currentTime func() time.Time
}

// DefaultInMemoryCacheConfig provides default sizing for the cache.
var DefaultInMemoryCacheConfig = InMemoryCacheConfig{
	MaxSize:     1 << 28, // 256 MiB
	MaxItemSize: 1 << 27, // 128 MiB
	DefaultTTL:  "120s",
}

// InMemoryCacheConfig holds the in-memory cache config.
type InMemoryCacheConfig struct {
	// MaxSize is the overall maximum number of bytes the cache can hold.
	MaxSize uint64 `yaml:"max_size"`
	// MaxItemSize is the maximum size of a single item.
	MaxItemSize uint64 `yaml:"max_item_size"`
	// DefaultTTL is the default lifetime of a single item. "-1" disables
	// TTL eviction entirely.
	DefaultTTL string `yaml:"default_ttl"`
	// TTLEviction records whether expiry checks are enabled. Derived
	// from DefaultTTL by Sanitize.
	TTLEviction bool
}

// Sanitize checks the config and fills defaults for missing values.
func (c *InMemoryCacheConfig) Sanitize() {
	if c.MaxSize == 0 {
		c.MaxSize = DefaultInMemoryCacheConfig.MaxSize
	}
	if c.MaxItemSize == 0 {
		c.MaxItemSize = DefaultInMemoryCacheConfig.MaxItemSize
	}
	if len(c.DefaultTTL) == 0 {
		c.DefaultTTL = DefaultInMemoryCacheConfig.DefaultTTL
	}
	c.TTLEviction = c.DefaultTTL != "-1"
}

// NewInMemoryCache creates a thread-safe, byte-bounded LRU cache.
// The total held size approximately never exceeds MaxSize.
func NewInMemoryCache(config InMemoryCacheConfig) (Provider, error) {
	config.Sanitize()
	if config.MaxItemSize > config.MaxSize {
		return nil, fmt.Errorf("max item size (%v) must not exceed overall cache size (%v)",
			config.MaxItemSize, config.MaxSize)
	}

	ttl, err := time.ParseDuration(config.DefaultTTL)
	if err != nil {
		ttl = 120 * time.Second
	}

	c := &inMemoryCache{
		maxSizeBytes:     config.MaxSize,
		maxItemSizeBytes: config.MaxItemSize,
		defaultTTL:       ttl,
		ttlEviction:      config.TTLEviction,
		expiries:         make(map[string]time.Time),
		currentTime:      time.Now,
	}

	// The LRU's own entry limit is effectively unbounded; eviction is
	// driven by the byte accounting below instead.
	l, err := lru.NewWithEvict[string, []byte](maxInt, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.inner = l

	return c, nil
}

// onEvict keeps the byte accounting in step with LRU evictions.
func (c *inMemoryCache) onEvict(key string, val []byte) {
	c.curSize -= itemSize(val)
}

// Get retrieves the value stored under key, or nil if absent or expired.
func (c *inMemoryCache) Get(ctx context.Context, key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttlEviction {
		if expires, ok := c.expiries[key]; ok && expires.Before(c.currentTime()) {
			c.removeLocked(ctx, key)
			return nil
		}
	}

	v, ok := c.inner.Get(key)
	if !ok {
		return nil
	}
	return v
}

// Set stores value under key, evicting older items until it fits. Items
// larger than MaxItemSize are dropped.
func (c *inMemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	size := itemSize(value)
	if size > c.maxItemSizeBytes {
		log.Debug().Str("cache-key", key).Msg("Item exceeds max item size, not stored")
		return
	}

	// Shrinking an existing entry never needs an eviction pass.
	if ent, ok := c.inner.Get(key); ok {
		entSize := itemSize(ent)
		if size <= entSize {
			c.inner.Add(key, value)
			c.curSize -= entSize - size
			c.expiries[key] = c.currentTime().Add(ttl)
			return
		}
		c.inner.Remove(key)
	}

	c.ensureCapacity(size)

	c.inner.Add(key, value)
	c.curSize += size
	c.expiries[key] = c.currentTime().Add(ttl)
}

// ensureCapacity evicts oldest entries until size fits the byte budget.
func (c *inMemoryCache) ensureCapacity(size uint64) {
	for c.curSize+size > c.maxSizeBytes {
		if _, _, ok := c.inner.RemoveOldest(); !ok {
			log.Debug().Msg("Failed to free space for new item, resetting cache")
			c.reset()
		}
	}
}

// itemSize is the accounted size of a stored slice.
func itemSize(b []byte) uint64 {
	return sliceHeaderSize + uint64(len(b))
}

// reset drops every entry and zeroes the byte accounting.
func (c *inMemoryCache) reset() {
	c.inner.Purge()
	c.curSize = 0
	c.expiries = make(map[string]time.Time)
}

// Delete removes key, reporting whether it was present.
func (c *inMemoryCache) Delete(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, key)
}

// removeLocked removes an entry. Callers hold the mutex.
func (c *inMemoryCache) removeLocked(_ context.Context, key string) bool {
	delete(c.expiries, key)
	return c.inner.Remove(key)
}

// Keys lists the stored keys with the given prefix, oldest first. Expiry
// of the listed keys is not checked.
func (c *inMemoryCache) Keys(_ context.Context, prefix string) []string {
	if prefix == "" {
		return c.inner.Keys()
	}
	var keys []string
	for _, k := range c.inner.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Purge removes all keys matching the given wildcard pattern; an empty
// pattern flushes everything.
func (c *inMemoryCache) Purge(ctx context.Context, pattern string) error {
	if len(pattern) == 0 {
		return c.Flush(ctx)
	}
	r, err := regexp.Compile(wildcardToRegex(pattern))
	if err != nil {
		return err
	}
	for _, k := range c.inner.Keys() {
		if r.MatchString(k) {
			c.Delete(ctx, k)
		}
	}
	return nil
}

// Flush removes every entry.
func (c *inMemoryCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	return nil
}

// Size returns the number of entries currently held.
func (c *inMemoryCache) Size() int {
	return c.inner.Len()
}

// wildcardToRegex converts a '*' wildcard pattern into an anchored regex,
// quoting everything else.
func wildcardToRegex(pattern string) string {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return "^" + regexp.QuoteMeta(pattern) + "$"
	}
	var result strings.Builder
	for i, p := range parts {
		if i > 0 {
			_, _ = result.WriteString(".*")
		}
		_, _ = result.WriteString(regexp.QuoteMeta(p))
	}
	return "^" + result.String() + "$"
}
