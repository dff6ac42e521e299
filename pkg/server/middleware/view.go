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
	"context"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/relaycache/httpcache/pkg/cache"
)

// requestViewOf builds the cache.RequestView the core reads from a real
// inbound *http.Request.
func requestViewOf(r *http.Request) *cache.RequestView {
	host, portStr := r.URL.Hostname(), r.URL.Port()
	if host == "" {
		host, portStr, _ = net.SplitHostPort(r.Host)
		if host == "" {
			host = r.Host
		}
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	port, _ := strconv.Atoi(portStr)

	return &cache.RequestView{
		Method:       r.Method,
		Scheme:       scheme,
		Host:         host,
		Port:         port,
		Path:         r.URL.Path,
		Query:        r.URL.RawQuery,
		Headers:      map[string][]string(r.Header),
		KeyGenerator: cacheKeyGeneratorFromContext(r.Context()),
	}
}

// responseOf captures a downstream *http.Response into a cache.Response,
// draining and closing the body.
func responseOf(res *http.Response) *cache.Response {
	headers := make(map[string]string, len(res.Header))
	for k, vv := range res.Header {
		if len(vv) > 0 {
			headers[k] = vv[0]
		}
	}

	var body []byte
	if res.Body != nil {
		body, _ = io.ReadAll(res.Body)
		_ = res.Body.Close()
	}

	return &cache.Response{Status: res.StatusCode, Headers: headers, Body: body}
}

// writeResponse writes a cache.Response to a real http.ResponseWriter.
func writeResponse(w http.ResponseWriter, resp *cache.Response) {
	h := w.Header()
	for k, v := range resp.Headers {
		h.Set(k, v)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// cloneWithMethod forks r into a shallow clone with its method overridden.
func cloneWithMethod(r *http.Request, method string) *http.Request {
	clone := r.Clone(r.Context())
	clone.Method = method
	return clone
}

// cloneWithHeaders forks r into a shallow clone with its method and headers
// overridden by a prepared validation request.
func cloneWithHeaders(r *http.Request, method string, headers map[string][]string) *http.Request {
	clone := r.Clone(r.Context())
	clone.Method = method
	clone.Header = http.Header(headers)
	return clone
}

// forcePassKey carries the per-request opt-out toggle an upstream
// collaborator can set to bypass the cache entirely.
type forcePassKey struct{}

// WithForcePass returns a context that forces the plug to bypass the cache
// for the request it is attached to.
func WithForcePass(ctx context.Context) context.Context {
	return context.WithValue(ctx, forcePassKey{}, true)
}

// ForcePassFromContext reports whether ctx carries the force-pass toggle.
func ForcePassFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(forcePassKey{}).(bool)
	return v
}

// cacheKeyGeneratorKey carries a per-request override of cache.Key
// derivation.
type cacheKeyGeneratorKey struct{}

// WithCacheKeyGenerator returns a context that overrides cache key
// derivation for the request it is attached to.
func WithCacheKeyGenerator(ctx context.Context, gen func(*cache.RequestView) string) context.Context {
	return context.WithValue(ctx, cacheKeyGeneratorKey{}, gen)
}

func cacheKeyGeneratorFromContext(ctx context.Context) func(*cache.RequestView) string {
	gen, _ := ctx.Value(cacheKeyGeneratorKey{}).(func(*cache.RequestView) string)
	return gen
}
