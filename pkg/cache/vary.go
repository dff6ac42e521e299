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

import "strings"

// varyHeaderNames splits a Vary header value on runs of whitespace and/or
// commas into the list of header names it names.
func varyHeaderNames(vary string) []string {
	return strings.FieldsFunc(vary, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// VaryMatches reports whether a stored variant (recorded with the given
// vary value and persisted request headers) matches the current request's
// headers:
//
//   - an empty or absent Vary matches trivially.
//   - otherwise every header named in Vary must have equal values in both
//     the saved and current request (both absent counts as equal).
func VaryMatches(vary string, saved, current map[string]string) bool {
	names := varyHeaderNames(vary)
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if saved[name] != current[name] {
			return false
		}
	}
	return true
}
