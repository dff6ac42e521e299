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

package cache

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Verb is the pipeline's verdict on how a request should be handled.
type Verb int

const (
	// VerbInvalidatePass: an unsafe method; invalidate stored variants,
	// then pass through untouched.
	VerbInvalidatePass Verb = iota
	// VerbPass: bypass the cache entirely (force-pass, Expect, excluded).
	VerbPass
	// VerbFetch: forward as a cache miss or a forced reload.
	VerbFetch
	// VerbFresh: serve a fresh cached variant directly.
	VerbFresh
	// VerbStale: forward as a conditional (validating) request.
	VerbStale
)

const (
	traceInvalidate = "invalidate"
	tracePass       = "pass"
	traceReload     = "reload"
	traceMiss       = "miss"
	traceFresh      = "fresh"
	traceStale      = "stale"
	traceValid      = "valid"
)

// safeMethods are the methods that may be served from, or populate, the
// cache. Anything else is an invalidating write.
func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// Decision is the result of classifying a request: what to do, and the
// trace labels accumulated so far.
type Decision struct {
	Verb   Verb
	Trace  []string
	Cached *Response // set when Verb == VerbFresh or VerbStale
}

// Classify decides how a request is handled. Rules are evaluated in
// order: unsafe method, force-pass, Expect header, excluded path/header,
// no-cache/Pragma, else a store lookup.
func (c *HttpCache) Classify(ctx context.Context, req *RequestView, forcePass bool) (decision Decision) {
	cfg := c.Config()
	defer func() { logTrace(Key(req), decision.Trace) }()

	if !isSafeMethod(req.Method) {
		c.store.Invalidate(ctx, req, cfg.PathTTL(req.Path))
		return Decision{Verb: VerbInvalidatePass, Trace: []string{traceInvalidate, tracePass}}
	}

	if forcePass {
		return Decision{Verb: VerbPass, Trace: []string{tracePass}}
	}

	if req.HasHeader(HeaderExpect) {
		return Decision{Verb: VerbPass, Trace: []string{tracePass}}
	}

	if cfg.IsExcludedPath(req.Path) || cfg.IsExcludedHeader(req.Headers) {
		return Decision{Verb: VerbPass, Trace: []string{tracePass}}
	}

	reqDirectives := ParseDirectives(req.Header(HeaderCacheControl))
	if reqDirectives.NoCache() || strings.EqualFold(req.Header(HeaderPragma), "no-cache") {
		return Decision{Verb: VerbFetch, Trace: []string{traceReload}}
	}

	cached := c.store.Lookup(ctx, req)
	if cached == nil {
		return Decision{Verb: VerbFetch, Trace: []string{traceMiss}}
	}

	if c.freshEnough(cached, req, cfg) {
		return Decision{Verb: VerbFresh, Trace: []string{traceFresh}, Cached: cached}
	}
	return Decision{Verb: VerbStale, Trace: []string{traceStale}, Cached: cached}
}

// freshEnough reports whether a cached response may be served without
// revalidation, honoring the request's own max-age when AllowRevalidate
// is on.
func (c *HttpCache) freshEnough(cached *Response, req *RequestView, cfg *HttpCacheConfig) bool {
	if !Fresh(cached) {
		return false
	}
	if !cfg.AllowRevalidate {
		return true
	}
	reqDirectives := ParseDirectives(req.Header(HeaderCacheControl))
	maxAge := reqDirectives.MaxAge()
	if maxAge == nil {
		return true
	}
	return *maxAge > Age(cached)
}

// ServeFresh stamps the recomputed Age onto the cached response, ready to
// be written to the connection in place of invoking the downstream
// handler.
func (c *HttpCache) ServeFresh(cached *Response) *Response {
	cached.SetHeader(HeaderAge, strconv.Itoa(Age(cached)))
	return cached
}

// ValidationRequest is the outcome of PrepareValidation: the (possibly
// forked) outbound request headers to send to the origin, plus the method
// the pipeline forces to GET.
type ValidationRequest struct {
	Headers map[string][]string
	Method  string
}

// PrepareValidation builds the conditional-GET headers for revalidating a
// stale cached response, and records which etags the client itself
// presented, needed later by CompleteValidation to detect a
// client-variant validation.
func (c *HttpCache) PrepareValidation(req *RequestView, cached *Response) (ValidationRequest, []string) {
	clientEtags := splitEtags(req.Header(HeaderIfNoneMatch))
	cachedEtags := splitEtags(cached.Header(HeaderETag))
	union := unionStrings(clientEtags, cachedEtags)

	headers := cloneHeaders(req.Headers)
	headers[HeaderIfNoneMatch] = []string{strings.Join(union, ", ")}
	if lm := cached.Header(HeaderLastModified); lm != "" {
		headers[HeaderIfModifiedSince] = []string{lm}
	} else {
		delete(headers, HeaderIfModifiedSince)
	}

	return ValidationRequest{Headers: headers, Method: http.MethodGet}, clientEtags
}

// CompleteValidation handles the origin's response to the conditional
// request: it decides whether to pass a 304 straight through (the origin
// validated the client's own variant, not ours), merge the 304 into the
// cached variant and store it, or treat a non-304 as a fresh miss.
func (c *HttpCache) CompleteValidation(ctx context.Context, req *RequestView, cached *Response,
	origin *Response, clientEtags []string) (*Response, []string) {

	cfg := c.Config()

	if origin.Status == http.StatusNotModified {
		originEtag := origin.Header(HeaderETag)
		cachedEtags := splitEtags(cached.Header(HeaderETag))
		if originEtag != "" && contains(clientEtags, originEtag) && !contains(cachedEtags, originEtag) {
			// The origin validated a variant the client held, not ours: let
			// the 304 pass through unmodified.
			return origin, []string{traceValid}
		}
		merged := mergeValidation(cached, origin)
		stored := c.Store(ctx, req, merged, cfg)
		stored.SetHeader(HeaderAge, strconv.Itoa(Age(stored)))
		return stored, []string{traceValid}
	}

	// Any other status is treated as a fresh miss.
	stored := c.Store(ctx, req, origin, cfg)
	stored.SetHeader(HeaderAge, strconv.Itoa(Age(stored)))
	return stored, nil
}

// mergeValidation overwrites the freshness/validator headers on the cached
// response with the 304's values, keeping everything else.
func mergeValidation(cached, origin *Response) *Response {
	merged := cached.Clone()
	for _, h := range []string{HeaderDate, HeaderExpires, HeaderCacheControl, HeaderETag, HeaderLastModified} {
		if v := origin.Header(h); v != "" {
			merged.SetHeader(h, v)
		}
	}
	return merged
}

// PrepareFetch returns the method to forward on a cache miss: always GET,
// so the origin produces a body even for a HEAD request.
func (c *HttpCache) PrepareFetch(req *RequestView) string {
	return http.MethodGet
}

// CompleteFetch post-processes a fetched origin response: clean its
// Cache-Control, store it if cacheable, and stamp Age.
func (c *HttpCache) CompleteFetch(ctx context.Context, req *RequestView, resp *Response) *Response {
	cfg := c.Config()
	c.CleanCacheControl(resp, cfg, req.Path)

	if !Cacheable(resp) {
		return resp
	}
	if cfg.IsExcludedContent(resp.Header(HeaderContentType), int64(len(resp.Body))) {
		return resp
	}

	stored := c.Store(ctx, req, resp, cfg)
	stored.SetHeader(HeaderAge, strconv.Itoa(Age(stored)))
	return stored
}

// CleanCacheControl normalizes a fetched response's Cache-Control before
// storage: responses carrying any of the configured private headers are
// forced private, and responses lacking any TTL receive the configured
// default as s-maxage. The ttl consulted is the per-path override from
// cfg.PathTTL, falling back to cfg.DefaultTTL when no pattern matches.
func (c *HttpCache) CleanCacheControl(resp *Response, cfg *HttpCacheConfig, path string) {
	directives := ParseDirectives(resp.Header(HeaderCacheControl))

	if hasAnyHeader(resp.Headers, cfg.PrivateHeaderKeys) && !directives.Public() {
		directives.Set(DirPublic, false)
		directives.Set(DirPrivate, true)
	} else if ttl := cfg.PathTTL(path); ttl > 0 && TTL(resp) == nil && !directives.MustRevalidate() {
		directives.SetInt(DirSharedMaxAge, Age(resp)+int(ttl.Seconds()))
	}

	resp.SetHeader(HeaderCacheControl, directives.String())
}

// Store strips the configured ignored headers and persists the response
// via the backing Store; the caller stamps Age afterwards.
func (c *HttpCache) Store(ctx context.Context, req *RequestView, resp *Response, cfg *HttpCacheConfig) *Response {
	for _, h := range cfg.IgnoredHeaders {
		resp.DelHeader(h)
	}
	return c.store.StoreResponse(ctx, req, resp, cfg.PathTTL(req.Path))
}

func splitEtags(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func cloneHeaders(h map[string][]string) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, vv := range h {
		cp := make([]string, len(vv))
		copy(cp, vv)
		out[k] = cp
	}
	return out
}

func hasAnyHeader(headers map[string]string, names []string) bool {
	for _, n := range names {
		if _, ok := headers[n]; ok {
			return true
		}
	}
	return false
}

// logTrace emits one debug event per classified request, carrying the
// cache key and the trace labels accumulated so far.
func logTrace(key string, trace []string) {
	log.Debug().Str("cache-key", key).Strs("trace", trace).Msg("cache pipeline")
}
