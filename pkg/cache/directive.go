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
	"sort"
	"strconv"
	"strings"
)

// Directives is a parsed Cache-Control header: a mapping from lowercase
// directive name to either a boolean flag or a string value.
//
// https://httpwg.org/specs/rfc7234.html#header.cache-control
type Directives map[string]any

// Known directive names.
const (
	DirPublic          = "public"
	DirPrivate         = "private"
	DirNoCache         = "no-cache"
	DirNoStore         = "no-store"
	DirMaxAge          = "max-age"
	DirSharedMaxAge    = "s-maxage"
	DirReverseMaxAge   = "r-maxage"
	DirMustRevalidate  = "must-revalidate"
	DirProxyRevalidate = "proxy-revalidate"
)

// ParseDirectives parses a Cache-Control header value into a Directives map.
// An empty or absent header yields an empty map, never nil.
func ParseDirectives(header string) Directives {
	d := Directives{}
	if header == "" {
		return d
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, hasVal := strings.Cut(part, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if hasVal {
			d[name] = strings.TrimSpace(val)
		} else {
			d[name] = true
		}
	}
	return d
}

// Bool returns the boolean-ish directive's value, or false if absent.
func (d Directives) Bool(name string) bool {
	v, ok := d[name]
	if !ok {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true // a valued directive used where a flag is expected still counts as present.
}

// Public reports whether the 'public' directive is present.
func (d Directives) Public() bool { return d.Bool(DirPublic) }

// Private reports whether the 'private' directive is present.
func (d Directives) Private() bool { return d.Bool(DirPrivate) }

// NoCache reports whether the 'no-cache' directive is present.
func (d Directives) NoCache() bool { return d.Bool(DirNoCache) }

// NoStore reports whether the 'no-store' directive is present.
func (d Directives) NoStore() bool { return d.Bool(DirNoStore) }

// MustRevalidate reports whether the 'must-revalidate' directive is present.
func (d Directives) MustRevalidate() bool { return d.Bool(DirMustRevalidate) }

// ProxyRevalidate reports whether the 'proxy-revalidate' directive is present.
func (d Directives) ProxyRevalidate() bool { return d.Bool(DirProxyRevalidate) }

// int returns the integer value of a directive, or nil if absent.
// A malformed numeric value is treated as absent.
func (d Directives) int(name string) *int {
	v, ok := d[name]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &n
}

// MaxAge returns the 'max-age' directive value in seconds, or nil if absent.
func (d Directives) MaxAge() *int { return d.int(DirMaxAge) }

// SharedMaxAge returns the 's-maxage' directive value in seconds, or nil if absent.
func (d Directives) SharedMaxAge() *int { return d.int(DirSharedMaxAge) }

// ReverseMaxAge returns the 'r-maxage' directive value in seconds, or nil if absent.
func (d Directives) ReverseMaxAge() *int { return d.int(DirReverseMaxAge) }

// Set assigns a directive. A bool true sets a boolean flag; anything else is
// stored as given, as a valued directive. Setting to nil removes the
// directive, same as delete.
func (d Directives) Set(name string, value any) {
	if value == nil {
		delete(d, name)
		return
	}
	d[name] = value
}

// SetInt sets an integer-valued directive.
func (d Directives) SetInt(name string, value int) {
	d[name] = strconv.Itoa(value)
}

// String serializes the directive map back into a Cache-Control header
// value. Boolean directives are emitted first, sorted alphabetically,
// followed by valued directives, also sorted alphabetically. Directives
// whose value is nil (absent) are omitted. The ordering is observable and
// covered by golden tests.
func (d Directives) String() string {
	var bools, valued []string
	for name, v := range d {
		if v == nil {
			continue
		}
		if b, ok := v.(bool); ok {
			if b {
				bools = append(bools, name)
			}
			continue
		}
		valued = append(valued, name)
	}
	sort.Strings(bools)
	sort.Strings(valued)

	parts := make([]string, 0, len(bools)+len(valued))
	parts = append(parts, bools...)
	for _, name := range valued {
		parts = append(parts, name+"="+toString(d[name]))
	}
	return strings.Join(parts, ", ")
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}
