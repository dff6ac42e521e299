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

// Package middleware hosts the "plug": an http.Handler wrapper implementing
// the request/response caching pipeline from pkg/cache in front of a
// caller-supplied downstream handler.
package middleware

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relaycache/httpcache/pkg/cache"
)

// Plug is the http.Handler implementing the classify/fetch/validate/finalize
// pipeline of pkg/cache in front of next.
type Plug struct {
	next  http.Handler
	cache *cache.HttpCache

	// coalescer collapses concurrent origin fetches per cache key
	// (see coalesce.go). Pass-through paths bypass it.
	coalescer *fetchCoalescer

	metrics *metrics
}

// NewPlug wraps next with the http cache described by c. Concurrent
// fetches for the same cache key share one downstream call (see
// coalesce.go).
func NewPlug(next http.Handler, c *cache.HttpCache, opts ...Option) *Plug {
	p := &Plug{
		next:    next,
		cache:   c,
		metrics: newMetrics(nil),
	}
	p.coalescer = newFetchCoalescer(p.forward)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Option configures a Plug.
type Option func(*Plug)

// WithMetrics registers the plug's counters against reg instead of leaving
// them unregistered.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Plug) { p.metrics = newMetrics(reg) }
}

func (p *Plug) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqView := requestViewOf(r)

	started := time.Now()
	decision := p.cache.Classify(ctx, reqView, ForcePassFromContext(ctx))
	p.metrics.observeVerb(decision.Verb)
	p.metrics.observeLookup(time.Since(started))

	var resp *cache.Response
	var trace []string

	switch decision.Verb {
	case cache.VerbInvalidatePass, cache.VerbPass:
		resp = p.forward(r)
		trace = decision.Trace

	case cache.VerbFresh:
		resp = p.cache.ServeFresh(decision.Cached)
		trace = decision.Trace

	case cache.VerbFetch:
		fetchReq := cloneWithMethod(r, p.cache.PrepareFetch(reqView))
		origin := p.coalescer.Forward(cache.Key(reqView), fetchReq)
		resp = p.cache.CompleteFetch(ctx, reqView, origin)
		trace = decision.Trace

	case cache.VerbStale:
		vreq, clientEtags := p.cache.PrepareValidation(reqView, decision.Cached)
		validationReq := cloneWithHeaders(r, vreq.Method, vreq.Headers)

		// A client that sent its own validators gets a private origin
		// round trip: the origin's 304 may be specific to the client's
		// variant. Unconditional revalidations can share one call.
		var origin *cache.Response
		if len(clientEtags) == 0 && !reqView.HasHeader(cache.HeaderIfModifiedSince) {
			origin = p.coalescer.Forward(cache.Key(reqView), validationReq)
		} else {
			origin = p.forward(validationReq)
		}

		merged, extra := p.cache.CompleteValidation(ctx, reqView, decision.Cached, origin, clientEtags)
		resp = merged
		trace = append(append([]string{}, decision.Trace...), extra...)
	}

	cache.Finalize(reqView, resp, trace)

	if cfg := p.cache.Config(); cfg.XCache {
		marker := "MISS"
		if decision.Verb == cache.VerbFresh {
			marker = "HIT"
		}
		resp.SetHeader(cfg.XCacheHeader(), marker)
	}

	writeResponse(w, resp)
}

// forward invokes the downstream handler against a buffering recorder
// and captures the staged result as a cache.Response, so the pipeline
// can post-process it before anything reaches the real connection.
func (p *Plug) forward(req *http.Request) *cache.Response {
	rec := httptest.NewRecorder()
	p.next.ServeHTTP(rec, req)
	return responseOf(rec.Result())
}
