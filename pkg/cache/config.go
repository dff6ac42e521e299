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
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
)

// HttpCacheConfig holds the cache's tunable behavior: revalidation
// policy, default and per-path TTLs, forced-private and ignored headers,
// and bypass rules.
type HttpCacheConfig struct {
	// AllowRevalidate, if false, never shortens freshness using the
	// request's max-age directive (default true).
	AllowRevalidate bool `yaml:"allow_revalidate" json:"allow_revalidate"`

	// DefaultTTL is assigned as s-maxage to responses lacking any TTL and
	// not must-revalidate, if greater than zero. Expressed as a duration
	// string ("120s"); parsed by Sanitize.
	DefaultTTL string `yaml:"default_ttl" json:"default_ttl"`

	defaultTTL time.Duration

	// PrivateHeaderKeys forces a response private if any of these headers
	// is present on it.
	PrivateHeaderKeys []string `yaml:"private_header_keys" json:"private_header_keys"`

	// IgnoredHeaders are stripped from responses before storage.
	IgnoredHeaders []string `yaml:"ignored_headers" json:"ignored_headers"`

	// Verbose enables additional debug logging. No semantic effect.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// XCache, if true, attaches an additional X-Cache debug header (HIT/MISS)
	// to responses, independent of the mandatory X-Plug-Cache trace header.
	XCache bool `yaml:"x_cache" json:"x_cache"`

	// XCacheName overrides the name of the X-Cache header.
	XCacheName string `yaml:"x_cache_name" json:"x_cache_name"`

	// Timeouts holds per-path TTL overrides, applied before DefaultTTL.
	Timeouts []Timeout `yaml:"timeouts" json:"timeouts"`

	// Exclude holds cache bypass rules evaluated during classification.
	Exclude *Exclude `yaml:"exclude" json:"exclude"`
}

// Timeout overrides the default TTL for paths matching Path.
type Timeout struct {
	Path string `yaml:"path" json:"path"`

	// TTL is a duration string ("900s"); parsed by Sanitize.
	TTL string `yaml:"ttl" json:"ttl"`

	ttl     time.Duration
	Matcher *regexp.Regexp `yaml:"-" json:"-"`
}

// Exclude holds cache bypass rules.
type Exclude struct {
	// Path holds path patterns to bypass entirely (forces Pass).
	Path []string `yaml:"path" json:"path"`

	PathMatcher []*regexp.Regexp `yaml:"-" json:"-"`

	// Header holds request header name/value pairs that force a Pass.
	Header map[string]string `yaml:"header" json:"header"`

	// Content holds response content-type/size rules excluding a response
	// from storage.
	Content []Content `yaml:"content" json:"content"`
}

// Content excludes responses matching a content-type (and optionally
// exceeding a max size) from being stored.
type Content struct {
	Type        string         `yaml:"type" json:"type"`
	TypeMatcher *regexp.Regexp `yaml:"-" json:"-"`
	Size        int            `yaml:"size,omitempty" json:"size,omitempty"`
}

// DefaultHttpCacheConfig returns the default cache configuration.
func DefaultHttpCacheConfig() *HttpCacheConfig {
	return &HttpCacheConfig{
		AllowRevalidate: true,
	}
}

// Sanitize compiles regex matchers and parses duration strings. An
// invalid pattern or duration is logged and skipped rather than failing
// the whole config.
func (c *HttpCacheConfig) Sanitize() {
	if c.DefaultTTL != "" {
		d, err := time.ParseDuration(c.DefaultTTL)
		if err != nil {
			log.Error().Err(err).Str("default_ttl", c.DefaultTTL).Msg("invalid default ttl")
		} else {
			c.defaultTTL = d
		}
	}

	for i, t := range c.Timeouts {
		if t.TTL != "" {
			d, err := time.ParseDuration(t.TTL)
			if err != nil {
				log.Error().Err(err).Str("ttl", t.TTL).Msg("invalid timeout ttl")
			} else {
				c.Timeouts[i].ttl = d
			}
		}
		r, err := regexp.Compile(t.Path)
		if err != nil {
			log.Error().Err(err).Str("path", t.Path).Msg("invalid timeout path regex")
			continue
		}
		c.Timeouts[i].Matcher = r
	}

	if c.Exclude == nil {
		return
	}
	c.Exclude.PathMatcher = make([]*regexp.Regexp, 0, len(c.Exclude.Path))
	for _, p := range c.Exclude.Path {
		r, err := regexp.Compile(p)
		if err != nil {
			log.Error().Err(err).Str("path", p).Msg("invalid exclude path regex")
			continue
		}
		c.Exclude.PathMatcher = append(c.Exclude.PathMatcher, r)
	}
	for i, co := range c.Exclude.Content {
		r, err := regexp.Compile(co.Type)
		if err != nil {
			log.Error().Err(err).Str("content", co.Type).Msg("invalid exclude content regex")
			continue
		}
		c.Exclude.Content[i].TypeMatcher = r
	}
}

// PathTTL returns the TTL override for the given path, or the default TTL.
func (c *HttpCacheConfig) PathTTL(path string) time.Duration {
	for _, t := range c.Timeouts {
		if t.Matcher != nil && t.Matcher.MatchString(path) {
			return t.ttl
		}
	}
	return c.defaultTTL
}

// IsExcludedPath reports whether a path bypasses the cache entirely.
func (c *HttpCacheConfig) IsExcludedPath(p string) bool {
	if c.Exclude == nil {
		return false
	}
	for _, m := range c.Exclude.PathMatcher {
		if m.MatchString(p) {
			return true
		}
	}
	return false
}

// IsExcludedHeader reports whether a request header forces a bypass.
func (c *HttpCacheConfig) IsExcludedHeader(headers map[string][]string) bool {
	if c.Exclude == nil {
		return false
	}
	for name, want := range c.Exclude.Header {
		vv := headers[name]
		for _, v := range vv {
			if v == want {
				return true
			}
		}
	}
	return false
}

// IsExcludedContent reports whether a response's content-type/size is
// excluded from storage.
func (c *HttpCacheConfig) IsExcludedContent(contentType string, size int64) bool {
	if c.Exclude == nil || contentType == "" {
		return false
	}
	for _, t := range c.Exclude.Content {
		if t.TypeMatcher == nil || !t.TypeMatcher.MatchString(contentType) {
			continue
		}
		if t.Size > 0 {
			return int64(t.Size) < size
		}
		return true
	}
	return false
}

// XCacheHeader returns the configured X-Cache debug header name.
func (c *HttpCacheConfig) XCacheHeader() string {
	if c.XCacheName != "" {
		return c.XCacheName
	}
	return "X-Cache"
}
