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
	"sync"

	"github.com/relaycache/httpcache/pkg/cache"
)

// fetchCoalescer collapses concurrent origin fetches for one cache key
// into a single downstream call. When a miss (or an unconditional stale
// revalidation) is already fetching a key, later requests for the same
// key park until it completes and then share its response, so a
// stampede of identical misses reaches the origin exactly once. The
// shared unit is a cache.Response, the same value the pipeline stores:
// each waiter receives its own clone, since Finalize mutates the
// response it is handed.
type fetchCoalescer struct {
	mu       sync.Mutex
	inflight map[string]*fetchCall

	// forward issues the actual downstream call.
	forward func(*http.Request) *cache.Response
}

// fetchCall is one in-flight origin fetch, identified by its cache key.
type fetchCall struct {
	*sync.Cond // rendezvous point for waiters.

	// coalesced records whether anyone is waiting for this fetch.
	coalesced bool

	// resp is set before Broadcast and only read by woken waiters.
	resp *cache.Response
}

// newFetchCoalescer wraps forward so concurrent fetches for one cache
// key share a single downstream call.
func newFetchCoalescer(forward func(*http.Request) *cache.Response) *fetchCoalescer {
	return &fetchCoalescer{
		inflight: make(map[string]*fetchCall),
		forward:  forward,
	}
}

// Forward issues req downstream, coalescing concurrent calls that share
// a cache key. Only GET fetches coalesce; anything else goes straight
// through.
func (fc *fetchCoalescer) Forward(key string, req *http.Request) *cache.Response {
	if req.Method != http.MethodGet {
		return fc.forward(req)
	}

	fc.mu.Lock()
	if inflight, ok := fc.inflight[key]; ok {
		// A fetch for this key is already in flight; wait for it. This
		// request's body is never sent, so close it.
		if req.Body != nil {
			defer req.Body.Close()
		}

		// The call must be locked before the coalescer is released, so
		// the initial fetch cannot complete and broadcast in between.
		inflight.L.Lock()
		fc.mu.Unlock()

		inflight.coalesced = true
		inflight.Wait()
		resp := inflight.resp
		inflight.L.Unlock()

		return resp.Clone()
	}

	// Common case: nothing in flight. Register the call and fetch.
	call := &fetchCall{Cond: sync.NewCond(&sync.Mutex{})}
	fc.inflight[key] = call
	fc.mu.Unlock()

	resp := fc.forward(req)

	// The call must leave the map before waiters are woken, or a new
	// request could still attach to the completed call.
	fc.mu.Lock()
	delete(fc.inflight, key)
	fc.mu.Unlock()

	call.L.Lock()
	if call.coalesced {
		// Waiters share a private clone: the pipeline mutates the
		// response returned to the initial caller.
		call.resp = resp.Clone()
		call.Broadcast()
	}
	call.L.Unlock()

	return resp
}
