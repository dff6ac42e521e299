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
	"sync"
	"time"
)

var _ Provider = (*Cached)(nil)

// Cached layers a bounded in-memory cache over another Provider,
// typically a remote one. Hot metastore envelopes and entity blobs are
// then served without a network round trip.
type Cached struct {
	// inner is the authoritative tier (remote, network).
	inner Provider

	// outer is the fast tier (local, in-memory).
	outer Provider

	// name is the layered cache name.
	name string

	// ttl bounds how long the fast tier may serve an entry without
	// consulting the authoritative one.
	ttl time.Duration

	mu sync.Mutex
}

// NewCached wraps cache with a local in-memory layer. Writes go to both
// tiers; reads are satisfied locally when possible and fall through to
// the authoritative tier, re-warming the local layer on the way back.
func NewCached(cache Provider, name string, ttl time.Duration, config InMemoryCacheConfig) (*Cached, error) {
	config.Sanitize()
	if config.MaxItemSize > config.MaxSize {
		return nil, fmt.Errorf("max item size (%v) must not exceed overall cache size (%v)",
			config.MaxItemSize, config.MaxSize)
	}

	local, err := NewInMemoryCache(InMemoryCacheConfig{
		MaxSize:     config.MaxSize,
		MaxItemSize: config.MaxItemSize,
	})
	if err != nil {
		return nil, err
	}

	return &Cached{
		inner: cache,
		outer: local,
		ttl:   ttl,
		name:  "layered-" + name,
	}, nil
}

// Get retrieves the value stored under key, or nil if absent in both
// tiers.
func (c *Cached) Get(ctx context.Context, key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val := c.outer.Get(ctx, key); val != nil {
		return val
	}

	val := c.inner.Get(ctx, key)
	if val != nil {
		c.outer.Set(key, val, c.ttl)
	}
	return val
}

// Set stores value in both tiers.
func (c *Cached) Set(key string, value []byte, ttl time.Duration) {
	c.inner.Set(key, value, ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outer.Set(key, value, ttl)
}

// Delete removes key from both tiers, reporting the authoritative
// tier's result.
func (c *Cached) Delete(ctx context.Context, key string) bool {
	c.mu.Lock()
	c.outer.Delete(ctx, key)
	c.mu.Unlock()
	return c.inner.Delete(ctx, key)
}

// Keys lists keys from the authoritative tier.
func (c *Cached) Keys(ctx context.Context, prefix string) []string {
	return c.inner.Keys(ctx, prefix)
}

// Size counts entries in the authoritative tier.
func (c *Cached) Size() int {
	return len(c.inner.Keys(context.Background(), ""))
}
