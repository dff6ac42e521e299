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

// Response is the cached unit of work: a status code, a header map, and a
// body blob. Header lookups are case-sensitive here; the surrounding
// pipeline is expected to present headers in canonical form before they
// reach the core.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Header returns the named header value, or "" if absent.
func (r *Response) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[name]
}

// SetHeader sets the named header.
func (r *Response) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers[name] = value
}

// DelHeader removes the named header.
func (r *Response) DelHeader(name string) {
	delete(r.Headers, name)
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{Status: r.Status, Headers: headers, Body: body}
}

// cacheableStatusCodes is the set of statuses eligible for caching.
var cacheableStatusCodes = map[int]struct{}{
	200: {},
	203: {},
	300: {},
	301: {},
	302: {},
	404: {},
	410: {},
}

func isCacheableStatus(status int) bool {
	_, ok := cacheableStatusCodes[status]
	return ok
}
