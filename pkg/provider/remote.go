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
	"time"
)

var _ Provider = (*RemoteCache)(nil)

// RemoteCache adapts a RemoteCacheClient into a Provider. Writes go
// through the client's async path so storing a response never blocks the
// request that produced it.
type RemoteCache struct {
	// client is the remote cache client.
	client RemoteCacheClient
	// name identifies the remote client.
	name string
}

// NewRemoteCache creates a Provider over the given remote client.
func NewRemoteCache(name string, client RemoteCacheClient) *RemoteCache {
	return &RemoteCache{
		client: client,
		name:   name,
	}
}

// Get retrieves the value stored under key, or nil if absent.
func (c *RemoteCache) Get(ctx context.Context, key string) []byte {
	return c.client.Fetch(ctx, key)
}

// Set stores value under key asynchronously.
func (c *RemoteCache) Set(key string, value []byte, ttl time.Duration) {
	_ = c.client.StoreAsync(key, value, ttl)
}

// Delete removes key, reporting whether the remote delete succeeded.
func (c *RemoteCache) Delete(ctx context.Context, key string) bool {
	return c.client.Delete(ctx, key) == nil
}

// Size is not tracked for remote backends.
func (c *RemoteCache) Size() int { return -1 }

// Keys lists remote keys with the given prefix.
func (c *RemoteCache) Keys(ctx context.Context, prefix string) []string {
	return c.client.Keys(ctx, prefix)
}

// Stop closes the remote client connection.
func (c *RemoteCache) Stop() {
	c.client.Stop()
}
