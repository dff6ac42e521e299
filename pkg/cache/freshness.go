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
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderCacheControl     = "Cache-Control"
	HeaderDate             = "Date"
	HeaderAge              = "Age"
	HeaderExpires          = "Expires"
	HeaderETag             = "ETag"
	HeaderLastModified     = "Last-Modified"
	HeaderVary             = "Vary"
	HeaderIfNoneMatch      = "If-None-Match"
	HeaderIfModifiedSince  = "If-Modified-Since"
	HeaderPragma           = "Pragma"
	HeaderExpect           = "Expect"
	HeaderAllow            = "Allow"
	HeaderContentEncoding  = "Content-Encoding"
	HeaderContentLanguage  = "Content-Language"
	HeaderContentLength    = "Content-Length"
	HeaderContentMD5       = "Content-MD5"
	HeaderContentType      = "Content-Type"
	HeaderTransferEncoding = "Transfer-Encoding"

	HeaderXStatus        = "X-Status"
	HeaderXContentDigest = "X-Content-Digest"
	HeaderXPlugCache     = "X-Plug-Cache"
)

// httpRFC850 mirrors time.RFC850 but hard-codes the GMT zone name, matching
// the obsolete RFC 850 date format HTTP recipients must still accept.
const httpRFC850 = "Monday, 02-Jan-06 15:04:05 GMT"

// parseHTTPDate parses an HTTP-date header value, accepting the three
// formats RFC 7231 §7.1.1.1 requires recipients to support. Returns the
// zero Time if the value is empty or unparseable.
func parseHTTPDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range [...]string{http.TimeFormat, httpRFC850, time.ANSIC} {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Now is the injectable time source used by the freshness calculus when a
// response carries no Date header. Tests replace this via SetClock rather
// than relying on wall-clock time.
var Now = time.Now

// responseDate returns Date(R): the parsed Date header, or the current time
// if absent or malformed.
func responseDate(r *Response) time.Time {
	if d := parseHTTPDate(r.Header(HeaderDate)); !d.IsZero() {
		return d
	}
	return Now().UTC()
}

// MaxAge returns a response's effective max age in seconds: the first of
// r-maxage, s-maxage, max-age (from its Cache-Control), else
// Expires - Date if Expires is present, else nil. The shared-cache
// directives override max-age because this cache acts as a shared
// reverse cache.
func MaxAge(r *Response) *int {
	d := ParseDirectives(r.Header(HeaderCacheControl))
	if v := d.ReverseMaxAge(); v != nil {
		return v
	}
	if v := d.SharedMaxAge(); v != nil {
		return v
	}
	if v := d.MaxAge(); v != nil {
		return v
	}
	if expires := r.Header(HeaderExpires); expires != "" {
		exp := parseHTTPDate(expires)
		if exp.IsZero() {
			return nil
		}
		date := responseDate(r)
		secs := int(exp.Sub(date).Seconds())
		return &secs
	}
	return nil
}

// Age returns a response's current age in seconds: the Age header's
// integer value if present, else max(0, now - Date).
func Age(r *Response) int {
	if raw := r.Header(HeaderAge); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	elapsed := int(Now().UTC().Sub(responseDate(r)).Seconds())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// TTL computes ttl(R) = max_age(R) - age(R), or nil when max_age is undefined.
func TTL(r *Response) *int {
	maxAge := MaxAge(r)
	if maxAge == nil {
		return nil
	}
	ttl := *maxAge - Age(r)
	return &ttl
}

// Fresh reports fresh?(R): ttl(R) is defined and strictly positive.
func Fresh(r *Response) bool {
	ttl := TTL(r)
	return ttl != nil && *ttl > 0
}

// Validateable reports validateable?(R): the response carries Last-Modified
// and/or ETag.
func Validateable(r *Response) bool {
	return r.Header(HeaderLastModified) != "" || r.Header(HeaderETag) != ""
}

// Cacheable reports whether a response may be stored: its status must be
// one of the cacheable codes, it must be neither private nor no-store,
// and it must be fresh or validateable.
func Cacheable(r *Response) bool {
	if !isCacheableStatus(r.Status) {
		return false
	}
	d := ParseDirectives(r.Header(HeaderCacheControl))
	if d.NoStore() || d.Private() {
		return false
	}
	return Validateable(r) || Fresh(r)
}

// Expire implements expire!(R): if the response is fresh, rewrite its Age
// header to its max-age, making it stale on the next read. A non-fresh
// response is left unchanged. Applying Expire twice is idempotent: the
// first application leaves a TTL of zero, so the second finds the
// response no longer fresh and leaves it as it is.
func Expire(r *Response) {
	if !Fresh(r) {
		return
	}
	maxAge := MaxAge(r)
	r.SetHeader(HeaderAge, strconv.Itoa(*maxAge))
}
