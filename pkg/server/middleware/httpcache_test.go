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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/relaycache/httpcache/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlugCache() *cache.HttpCache {
	return cache.NewHttpCache(cache.DefaultHttpCacheConfig(), newMemKV(), newMemKV())
}

func TestPlugMissThenFreshHit(t *testing.T) {
	var hits int32
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	})

	plug := NewPlug(origin, newPlugCache())

	req1 := httptest.NewRequest(http.MethodGet, "http://example.com/widgets", nil)
	rec1 := httptest.NewRecorder()
	plug.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)
	assert.Equal(t, "hello", rec1.Body.String())
	assert.Contains(t, rec1.Header().Get("X-Plug-Cache"), "miss")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	req2 := httptest.NewRequest(http.MethodGet, "http://example.com/widgets", nil)
	rec2 := httptest.NewRecorder()
	plug.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, "hello", rec2.Body.String())
	assert.Contains(t, rec2.Header().Get("X-Plug-Cache"), "fresh")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "second request should be served from cache")
}

func TestPlugForcePassBypassesCache(t *testing.T) {
	var hits int32
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	})

	plug := NewPlug(origin, newPlugCache())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/widgets", nil)
		req = req.WithContext(WithForcePass(req.Context()))
		rec := httptest.NewRecorder()
		plug.ServeHTTP(rec, req)
		assert.Contains(t, rec.Header().Get("X-Plug-Cache"), "pass")
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits), "force-pass must never populate or serve from cache")
}

func TestPlugCacheKeyGeneratorOverrideSharesOneVariant(t *testing.T) {
	var hits int32
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	})
	plug := NewPlug(origin, newPlugCache())

	gen := func(*cache.RequestView) string { return "shared-key" }

	req1 := httptest.NewRequest(http.MethodGet, "http://example.com/a", nil)
	req1 = req1.WithContext(WithCacheKeyGenerator(req1.Context(), gen))
	rec1 := httptest.NewRecorder()
	plug.ServeHTTP(rec1, req1)
	assert.Contains(t, rec1.Header().Get("X-Plug-Cache"), "miss")

	req2 := httptest.NewRequest(http.MethodGet, "http://example.com/b", nil)
	req2 = req2.WithContext(WithCacheKeyGenerator(req2.Context(), gen))
	rec2 := httptest.NewRecorder()
	plug.ServeHTTP(rec2, req2)
	assert.Contains(t, rec2.Header().Get("X-Plug-Cache"), "fresh",
		"distinct URLs sharing an overridden cache key must be served from one variant")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestPlugUnsafeMethodInvalidatesThenRevalidates(t *testing.T) {
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(r.Method))
	})
	plug := NewPlug(origin, newPlugCache())

	get := httptest.NewRequest(http.MethodGet, "http://example.com/widgets", nil)
	recGet := httptest.NewRecorder()
	plug.ServeHTTP(recGet, get)
	assert.Contains(t, recGet.Header().Get("X-Plug-Cache"), "miss")

	post := httptest.NewRequest(http.MethodPost, "http://example.com/widgets", nil)
	recPost := httptest.NewRecorder()
	plug.ServeHTTP(recPost, post)
	assert.Contains(t, recPost.Header().Get("X-Plug-Cache"), "invalidate")

	get2 := httptest.NewRequest(http.MethodGet, "http://example.com/widgets", nil)
	recGet2 := httptest.NewRecorder()
	plug.ServeHTTP(recGet2, get2)
	assert.Contains(t, recGet2.Header().Get("X-Plug-Cache"), "stale",
		"after invalidation the variant exists but must validate, not serve fresh")
}

func TestPlugValidationUpgradesTo304AndServesCachedBody(t *testing.T) {
	var hits int32
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n == 1 {
			w.Header().Set("Cache-Control", "public, max-age=0")
			w.Header().Set("ETag", `"v1"`)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("original body"))
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.Header().Set("ETag", `"v1"`)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("changed body"))
	})

	plug := NewPlug(origin, newPlugCache())

	req1 := httptest.NewRequest(http.MethodGet, "http://example.com/doc", nil)
	rec1 := httptest.NewRecorder()
	plug.ServeHTTP(rec1, req1)
	require.Equal(t, "original body", rec1.Body.String())

	req2 := httptest.NewRequest(http.MethodGet, "http://example.com/doc", nil)
	rec2 := httptest.NewRecorder()
	plug.ServeHTTP(rec2, req2)
	assert.Equal(t, "original body", rec2.Body.String(), "a 304 revalidation must re-serve the cached body")
	assert.Contains(t, rec2.Header().Get("X-Plug-Cache"), "valid")
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}
