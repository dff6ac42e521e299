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
	"net/url"
	"sort"
	"strconv"
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
)

// RequestView is what the core reads from a request to derive a cache key
// and drive classification. The surrounding pipeline is responsible for
// populating it from the real inbound request.
type RequestView struct {
	Method     string
	Scheme     string
	Host       string
	Port       int
	ScriptName string
	Path       string
	Query      string
	Headers    map[string][]string

	// KeyGenerator, if set, overrides Key derivation entirely. Wired from
	// the request context, see middleware.WithCacheKeyGenerator.
	KeyGenerator func(*RequestView) string
}

// HeaderValues returns the values of a request header, or nil if absent.
func (rv *RequestView) HeaderValues(name string) []string {
	if rv.Headers == nil {
		return nil
	}
	return rv.Headers[name]
}

// Header returns the first value of a request header, or "" if absent.
func (rv *RequestView) Header(name string) string {
	vv := rv.HeaderValues(name)
	if len(vv) == 0 {
		return ""
	}
	return vv[0]
}

// HasHeader reports whether a header with the given name is present at
// all, regardless of its value.
func (rv *RequestView) HasHeader(name string) bool {
	_, ok := rv.Headers[name]
	return ok
}

// Key derives the canonical cache key for a request: scheme, host,
// non-default port, script name, path, and the sorted normalized query.
func Key(req *RequestView) string {
	if req.KeyGenerator != nil {
		return req.KeyGenerator(req)
	}

	var b strings.Builder
	b.WriteString(req.Scheme)
	b.WriteString("://")
	b.WriteString(req.Host)

	if needsExplicitPort(req.Scheme, req.Port) {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(req.Port))
	}

	b.WriteString(req.ScriptName)
	b.WriteString(req.Path)

	if req.Query != "" {
		if normalized := normalizeQuery(req.Query); normalized != "" {
			b.WriteByte('?')
			b.WriteString(normalized)
		}
	}

	return b.String()
}

func needsExplicitPort(scheme string, port int) bool {
	switch scheme {
	case "https":
		return port != 0 && port != 443
	case "http":
		return port != 0 && port != 80
	default:
		return port != 0
	}
}

// normalizeQuery canonicalizes a query string: split on '&'/';', URL-decode
// each pair, split into (k, v) on the first '=', sort pairs lexicographically
// as tuples, URL-encode k and v, and join with '&'. Two requests differing
// only in parameter order or percent-encoding share one cache key.
func normalizeQuery(raw string) string {
	type pair struct{ k, v string }

	var pairs []pair
	for _, seg := range splitQuery(raw) {
		if seg == "" {
			continue
		}
		k, v, hasV := strings.Cut(seg, "=")
		dk, err := url.QueryUnescape(k)
		if err != nil {
			dk = k
		}
		dv := ""
		if hasV {
			if decoded, err := url.QueryUnescape(v); err == nil {
				dv = decoded
			} else {
				dv = v
			}
		}
		pairs = append(pairs, pair{dk, dv})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = url.QueryEscape(p.k) + "=" + url.QueryEscape(p.v)
	}
	return strings.Join(parts, "&")
}

// splitQuery splits a query string on '&' or ';' followed by any amount of
// whitespace.
func splitQuery(raw string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == '&' || raw[i] == ';' {
			segs = append(segs, raw[start:i])
			i++
			for i < len(raw) && raw[i] == ' ' {
				i++
			}
			start = i
			i--
		}
	}
	segs = append(segs, raw[start:])
	return segs
}

// KeyHash produces a stable 64-bit hash of a cache key, used to pick a
// store shard (see store.go) rather than as part of the key's identity.
func KeyHash(key string) uint64 {
	return xxhash.Sum64String(key)
}
