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

// Package provider supplies the key/value backends the two-tier cache
// store runs on. A single Provider instance can back both tiers at once:
// metastore keys are canonical request URLs and entitystore keys are
// SHA-1 body digests, so the namespaces never collide.
package provider

import (
	"context"
	"errors"
	"time"
)

// Provider is a byte-oriented key/value backend. It satisfies
// cache.KVStore, and additionally supports key listing and sizing for the
// admin surface.
type Provider interface {
	// Get retrieves the value stored under key, or nil if absent.
	Get(ctx context.Context, key string) []byte

	// Set stores value under key. A zero ttl means no per-item expiry;
	// backends without TTL support may ignore it.
	Set(key string, value []byte, ttl time.Duration)

	// Delete removes key, reporting whether it was present.
	Delete(ctx context.Context, key string) bool

	// Keys lists the stored keys with the given prefix ("" for all).
	Keys(ctx context.Context, prefix string) []string

	// Size returns the number of entries currently held.
	Size() int
}

// RemoteCacheClient is the client half of a remote (out-of-process)
// backend such as Redis. It is wrapped into a Provider by RemoteCache.
type RemoteCacheClient interface {
	// Fetch retrieves a key from the remote cache, nil on error or miss.
	Fetch(ctx context.Context, key string) []byte

	// Store writes a key to the remote cache.
	Store(key string, value []byte, ttl time.Duration) error

	// StoreAsync queues a Store onto the client's background workers,
	// returning immediately. The write may be dropped if the queue is
	// full.
	StoreAsync(key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the remote cache.
	Delete(ctx context.Context, key string) error

	// Keys lists remote keys with the given prefix.
	Keys(ctx context.Context, prefix string) []string

	// Stop closes the client connection.
	Stop()
}

// SimpleOptions configures the unbounded map backend.
type SimpleOptions struct {
	// InitialCapacity presizes the underlying map.
	InitialCapacity int
}

// Supported backend names in the provider config.
const (
	BackendInMemory = "inmemory"
	BackendRedis    = "redis"
)

var errUnsupportedCacheBackend = errors.New("unsupported cache backend")

// ProviderBackendConfig selects and configures the backend the store
// runs on.
type ProviderBackendConfig struct {
	Backend    string              `yaml:"backend"`
	Layered    bool                `yaml:"layered"`
	LayeredTTL string              `yaml:"layered_ttl"`
	InMemory   InMemoryCacheConfig `yaml:"inmemory"`
	Redis      RedisClientConfig   `yaml:"redis"`
}

// CreateCacheProvider builds the configured backend. With Backend
// "redis" and Layered set, the Redis provider is fronted by a bounded
// in-memory layer holding hot entries for LayeredTTL.
func CreateCacheProvider(name string, config ProviderBackendConfig) (Provider, error) {
	switch config.Backend {
	case BackendInMemory:
		return NewInMemoryCache(config.InMemory)
	case BackendRedis:
		client, err := NewRedisClient(name, config.Redis)
		if err != nil {
			return nil, errors.Join(err, errors.New("failed to create redis client"))
		}
		cache := NewRemoteCache(name, client)
		if config.Layered {
			ttl, err := time.ParseDuration(config.LayeredTTL)
			if err != nil {
				ttl = 120 * time.Second
			}
			return NewCached(cache, name, ttl, config.InMemory)
		}
		return cache, nil
	default:
		return nil, errUnsupportedCacheBackend
	}
}
