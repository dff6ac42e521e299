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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimpleCacheRoundTrip(t *testing.T) {
	cache, _ := NewSimpleCache(nil)

	ctx := context.Background()
	ttl := 120 * time.Second

	cache.Set("http://www.example.com/", []byte("envelope"), ttl)
	assert.Equal(t, "envelope", string(cache.Get(ctx, "http://www.example.com/")))
	assert.Nil(t, cache.Get(ctx, "http://www.example.com/missing"))
	assert.Equal(t, 1, cache.Size())

	cache.Set("CA463BF731CA57F0DACECCED7E7BE545D3907F70", []byte("Pretty sweet content"), ttl)
	assert.Equal(t, 2, cache.Size())
	assert.Equal(t, "Pretty sweet content",
		string(cache.Get(ctx, "CA463BF731CA57F0DACECCED7E7BE545D3907F70")))

	cache.Set("http://www.example.com/", []byte("envelope2"), ttl)
	assert.Equal(t, "envelope2", string(cache.Get(ctx, "http://www.example.com/")))
	assert.Equal(t, 2, cache.Size())

	assert.True(t, cache.Delete(ctx, "http://www.example.com/"))
	assert.False(t, cache.Delete(ctx, "http://www.example.com/"))
	assert.Nil(t, cache.Get(ctx, "http://www.example.com/"))
}

func TestSimpleCacheKeysByPrefix(t *testing.T) {
	cache, _ := NewSimpleCache(&SimpleOptions{InitialCapacity: 8})
	ctx := context.Background()

	cache.Set("meta:a", []byte("x"), 0)
	cache.Set("meta:b", []byte("x"), 0)
	cache.Set("entity:a", []byte("x"), 0)

	assert.ElementsMatch(t, []string{"meta:a", "meta:b"}, cache.Keys(ctx, "meta:"))
	assert.Len(t, cache.Keys(ctx, ""), 3)
}

func TestSimpleCacheConcurrentAccess(t *testing.T) {
	cache, _ := NewSimpleCache(nil)
	ttl := 120 * time.Second

	cache.Set("contested", []byte("initial"), ttl)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 1000; j++ {
				cache.Get(context.Background(), "contested")
				cache.Set("contested", []byte("updated"), ttl)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, "updated", string(cache.Get(context.Background(), "contested")))
}
