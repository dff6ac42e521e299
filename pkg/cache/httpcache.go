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

// Package cache implements the request/response caching semantics described
// in RFC 2616 §13: freshness-based reuse, validator-based revalidation,
// invalidation on unsafe methods, and conditional-GET short-circuiting.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/relaycache/httpcache/pkg/utils/clock"
)

// HttpCache ties the configuration, the two-tier Store, and a time source
// together and exposes the operations the surrounding middleware drives.
type HttpCache struct {
	config atomic.Pointer[HttpCacheConfig]
	store  *Store
	clock  clock.TimeSource
}

// NewHttpCache creates a new HttpCache over the given metastore and
// entitystore backends.
func NewHttpCache(config *HttpCacheConfig, meta, entity KVStore) *HttpCache {
	if config == nil {
		config = DefaultHttpCacheConfig()
	}
	c := &HttpCache{
		store: NewStore(meta, entity),
		clock: clock.NewSystemTimeSource(),
	}
	c.UpdateConfig(config)
	return c
}

// Config returns the current configuration.
func (c *HttpCache) Config() *HttpCacheConfig {
	if cfg := c.config.Load(); cfg != nil {
		return cfg
	}
	return DefaultHttpCacheConfig()
}

// UpdateConfig hot-swaps the configuration in a concurrency-safe way,
// compiling any regex matchers it introduces.
func (c *HttpCache) UpdateConfig(config *HttpCacheConfig) {
	config.Sanitize()
	c.config.Store(config)
}

// SetClock overrides the time source used by the freshness calculus
// (the package-level Now hook in freshness.go). Intended for tests that
// want a single controlled clock shared by the cache and its backends,
// e.g. an EventTime also driving a provider's LRU eviction.
func (c *HttpCache) SetClock(ts clock.TimeSource) {
	c.clock = ts
	Now = ts.Now
}

// now returns the current time from the configured clock.
func (c *HttpCache) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock.Now()
}

// Lookup is a thin pass-through to the Store, kept on HttpCache so the
// middleware only ever talks to one type.
func (c *HttpCache) Lookup(ctx context.Context, req *RequestView) *Response {
	return c.store.Lookup(ctx, req)
}

// Purge deletes every variant at the request's cache key. Bodies no
// longer referenced are left for the entitystore backend to reap.
func (c *HttpCache) Purge(ctx context.Context, req *RequestView) {
	c.store.PurgeKey(ctx, Key(req))
}

// PurgeKey deletes a single metastore entry addressed directly by its raw
// cache key, for admin endpoints that don't have a full RequestView.
func (c *HttpCache) PurgeKey(ctx context.Context, key string) bool {
	return c.store.PurgeKey(ctx, key)
}

// Keys lists metastore keys under prefix. The bool return is false if the
// configured metastore backend doesn't support key listing.
func (c *HttpCache) Keys(ctx context.Context, prefix string) ([]string, bool) {
	return c.store.Keys(ctx, prefix)
}

// Flush deletes every key in the metastore.
func (c *HttpCache) Flush(ctx context.Context) error {
	return c.store.Flush(ctx)
}
