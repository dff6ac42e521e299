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
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // content addressing, not a security primitive.
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Variant is one (persisted-request-headers, persisted-response-headers)
// pair within a cache key's variant list, distinguished by the headers
// named in the response's Vary.
type Variant struct {
	RequestHeaders  map[string]string
	ResponseHeaders map[string]string
}

// metaEnvelope is the gob-encoded unit held under a metastore key: the
// ordered variant list, most recent first.
type metaEnvelope struct {
	Variants []Variant
}

func (e *metaEnvelope) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(data []byte) (*metaEnvelope, error) {
	var e metaEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// KVStore is the abstract key/value backend both the metastore and the
// entitystore are built on. provider.Provider satisfies this interface
// directly (see pkg/provider).
type KVStore interface {
	Get(ctx context.Context, key string) []byte
	Set(key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string) bool
}

// KeyLister is an optional capability a KVStore backend can implement to
// support the admin listing and flush endpoints. provider.Provider
// implementations all satisfy it (see pkg/provider); a bare map-backed
// KVStore used only in tests typically does not.
type KeyLister interface {
	Keys(ctx context.Context, prefix string) []string
}

// shardCount controls how many independent mutexes guard metastore writes.
// Requests hash to a shard via KeyHash, so concurrent writers to different
// cache keys need not contend on one global lock, while writers to the same
// key still serialize.
const shardCount = 64

// Store is the two-tier cache store: a metastore of per-key variant lists
// and a content-addressed entitystore of bodies.
type Store struct {
	meta   KVStore
	entity KVStore

	shardLocks [shardCount]sync.Mutex
}

// NewStore creates a Store backed by the given metastore and entitystore
// KVStores. Both are required.
func NewStore(meta, entity KVStore) *Store {
	return &Store{meta: meta, entity: entity}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	return &s.shardLocks[KeyHash(key)%shardCount]
}

// persistedRequest collects a request's headers into the flat map persisted
// alongside a variant.
func persistedRequest(req *RequestView) map[string]string {
	out := make(map[string]string, len(req.Headers))
	for name, vv := range req.Headers {
		if len(vv) > 0 {
			out[name] = vv[0]
		}
	}
	return out
}

// Lookup finds the first stored variant whose Vary-selected request
// headers match the current request, and reconstructs its response from
// the entitystore. Returns nil on a miss.
func (s *Store) Lookup(ctx context.Context, req *RequestView) *Response {
	key := Key(req)
	lock := s.lockFor(key)
	lock.Lock()
	variants := s.loadVariants(key)
	lock.Unlock()

	current := persistedRequest(req)
	for _, v := range variants {
		if VaryMatches(v.ResponseHeaders[HeaderVary], v.RequestHeaders, current) {
			body := s.entity.Get(ctx, v.ResponseHeaders[HeaderXContentDigest])
			if body == nil {
				// Orphaned metastore entry: the entity was evicted out from
				// under us. Treat as a miss.
				// TODO: purge the orphaned variant once eviction lands.
				return nil
			}
			return reconstructResponse(v.ResponseHeaders, body)
		}
	}
	return nil
}

func reconstructResponse(headers map[string]string, body []byte) *Response {
	status, _ := strconv.Atoi(headers[HeaderXStatus])
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if k == HeaderXStatus {
			continue
		}
		out[k] = v
	}
	return &Response{Status: status, Headers: out, Body: body}
}

// StoreResponse persists a response under the request's cache key: the
// body goes to the entitystore under its content digest, and a new
// variant is prepended to the key's list, replacing any stored variant
// with the same Vary value and matching selected request headers.
func (s *Store) StoreResponse(ctx context.Context, req *RequestView, resp *Response, ttl time.Duration) *Response {
	if resp.Header(HeaderXContentDigest) == "" {
		digest := digestOf(resp.Body)
		s.entity.Set(digest, resp.Body, 0)
		resp.SetHeader(HeaderXContentDigest, digest)
		if resp.Header(HeaderTransferEncoding) == "" {
			resp.SetHeader(HeaderContentLength, strconv.Itoa(len(resp.Body)))
		}
	}

	key := Key(req)
	stored := persistedRequest(req)
	vary := resp.Header(HeaderVary)

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	variants := s.loadVariants(key)
	filtered := variants[:0]
	for _, v := range variants {
		if v.ResponseHeaders[HeaderVary] == vary && VaryMatches(vary, v.RequestHeaders, stored) {
			continue // dedupe: an equivalent variant is replaced below.
		}
		filtered = append(filtered, v)
	}

	persistedResponse := make(map[string]string, len(resp.Headers)+2)
	for k, v := range resp.Headers {
		if k == HeaderAge {
			continue // Age is recomputed on read, never persisted.
		}
		persistedResponse[k] = v
	}
	persistedResponse[HeaderXStatus] = strconv.Itoa(resp.Status)

	variant := Variant{RequestHeaders: stored, ResponseHeaders: persistedResponse}
	variants = append([]Variant{variant}, filtered...)

	if err := s.saveVariants(key, variants, ttl); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to persist cache variant")
	}

	return resp
}

// Invalidate rewrites every fresh variant at the request's cache key as
// stale via Expire; already-stale variants are untouched. The entitystore
// is never modified by invalidation.
func (s *Store) Invalidate(ctx context.Context, req *RequestView, ttl time.Duration) {
	key := Key(req)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	variants := s.loadVariants(key)
	if len(variants) == 0 {
		return
	}

	changed := false
	for i := range variants {
		status, _ := strconv.Atoi(variants[i].ResponseHeaders[HeaderXStatus])
		transient := &Response{Status: status, Headers: variants[i].ResponseHeaders}
		if Fresh(transient) {
			Expire(transient)
			variants[i].ResponseHeaders = transient.Headers
			changed = true
		}
	}
	if changed {
		if err := s.saveVariants(key, variants, ttl); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to persist invalidated variants")
		}
	}
}

// Keys lists metastore keys under prefix, when the backing KVStore supports
// it. Returns nil, false if the backend does not implement KeyLister.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, bool) {
	lister, ok := s.meta.(KeyLister)
	if !ok {
		return nil, false
	}
	return lister.Keys(ctx, prefix), true
}

// PurgeKey deletes a single metastore entry by its raw cache key, bypassing
// RequestView reconstruction. Used by the admin purge/invalidate endpoints
// where the caller supplies the key directly.
func (s *Store) PurgeKey(ctx context.Context, key string) bool {
	return s.meta.Delete(ctx, key)
}

// Flush deletes every key in the metastore. Returns an error if the backing
// KVStore does not support key listing.
func (s *Store) Flush(ctx context.Context) error {
	keys, ok := s.Keys(ctx, "")
	if !ok {
		return fmt.Errorf("flush unsupported: metastore does not implement key listing")
	}
	for _, key := range keys {
		s.meta.Delete(ctx, key)
	}
	return nil
}

func (s *Store) loadVariants(key string) []Variant {
	raw := s.meta.Get(context.Background(), key)
	if raw == nil {
		return nil
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to decode cache metadata")
		return nil
	}
	return env.Variants
}

func (s *Store) saveVariants(key string, variants []Variant, ttl time.Duration) error {
	env := &metaEnvelope{Variants: variants}
	enc, err := env.encode()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	s.meta.Set(key, enc, ttl)
	return nil
}

// digestOf computes the entity digest of a body: hex-uppercased SHA-1.
func digestOf(body []byte) string {
	sum := sha1.Sum(body) //nolint:gosec
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
