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
	"strings"
)

// omitOn304 lists the entity headers a 304 response must never carry
// (RFC 2616 §10.3.5).
var omitOn304 = []string{
	HeaderAllow,
	HeaderContentEncoding,
	HeaderContentLanguage,
	HeaderContentLength,
	HeaderContentMD5,
	HeaderContentType,
	HeaderLastModified,
}

// NotModified reports whether the staged response matches the request's
// conditional headers. When If-None-Match is present it drives the
// decision (folding in If-Modified-Since if also present); otherwise
// If-Modified-Since alone decides.
func NotModified(req *RequestView, resp *Response) bool {
	if req.HasHeader(HeaderIfNoneMatch) {
		reqEtags := splitEtags(req.Header(HeaderIfNoneMatch))
		etag := resp.Header(HeaderETag)

		if etag == "" {
			return contains(reqEtags, "*")
		}
		if !req.HasHeader(HeaderIfModifiedSince) {
			return contains(reqEtags, etag) || contains(reqEtags, "*")
		}
		return req.Header(HeaderIfModifiedSince) == resp.Header(HeaderLastModified) &&
			(contains(reqEtags, etag) || contains(reqEtags, "*"))
	}

	if req.HasHeader(HeaderIfModifiedSince) {
		return req.Header(HeaderIfModifiedSince) == resp.Header(HeaderLastModified)
	}

	return false
}

// Finalize runs on every outbound response before it is flushed: it
// appends the trace to X-Plug-Cache, and either rewrites the response
// into a 304 (stripping the entity headers and emptying the body) or, for
// a HEAD request, empties the body while leaving status and headers
// untouched.
func Finalize(req *RequestView, resp *Response, trace []string) {
	if existing := resp.Header(HeaderXPlugCache); existing != "" {
		resp.SetHeader(HeaderXPlugCache, existing+", "+strings.Join(trace, ", "))
	} else {
		resp.SetHeader(HeaderXPlugCache, strings.Join(trace, ", "))
	}

	if isSafeMethod(req.Method) && NotModified(req, resp) {
		for _, h := range omitOn304 {
			resp.DelHeader(h)
		}
		resp.Status = http.StatusNotModified
		resp.Body = nil
		return
	}

	if req.Method == http.MethodHead {
		resp.Body = nil
	}
}
