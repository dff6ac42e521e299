package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeKV is a minimal in-memory KVStore for tests.
type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string][]byte{}} }

func (f *fakeKV) Get(_ context.Context, key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil
	}
	return v
}

func (f *fakeKV) Set(key string, value []byte, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

func (f *fakeKV) Delete(_ context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	delete(f.data, key)
	return ok
}

func (f *fakeKV) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

func testRequest(path string) *RequestView {
	return &RequestView{
		Method: "GET", Scheme: "http", Host: "www.example.com",
		Path: path, Headers: map[string][]string{},
	}
}

func TestStoreDigestDedupe(t *testing.T) {
	meta, entity := newFakeKV(), newFakeKV()
	s := NewStore(meta, entity)
	ctx := context.Background()

	req := testRequest("/")
	body := []byte("Pretty sweet content")

	r1 := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: body}
	s.StoreResponse(ctx, req, r1, 0)

	req2 := testRequest("/other")
	r2 := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: body}
	s.StoreResponse(ctx, req2, r2, 0)

	if entity.size() != 1 {
		t.Fatalf("expected a single deduped entitystore entry, got %d", entity.size())
	}
}

func TestStoreDigestIsSHA1HexUpper(t *testing.T) {
	meta, entity := newFakeKV(), newFakeKV()
	s := NewStore(meta, entity)
	ctx := context.Background()

	req := testRequest("/")
	body := []byte("Pretty sweet content")
	r := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: body}
	stored := s.StoreResponse(ctx, req, r, 0)

	want := "CA463BF731CA57F0DACECCED7E7BE545D3907F70"
	if got := stored.Header(HeaderXContentDigest); got != want {
		t.Fatalf("got digest %q, want %q", got, want)
	}
}

func TestStoreVaryDedupeAndCoexist(t *testing.T) {
	meta, entity := newFakeKV(), newFakeKV()
	s := NewStore(meta, entity)
	ctx := context.Background()

	makeReq := func(enc string) *RequestView {
		return &RequestView{
			Method: "GET", Scheme: "http", Host: "www.example.com", Path: "/",
			Headers: map[string][]string{"Accept-Encoding": {enc}},
		}
	}

	r1 := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "public, max-age=60", HeaderVary: "Accept-Encoding",
	}, Body: []byte("gzip-body")}
	s.StoreResponse(ctx, makeReq("gzip"), r1, 0)

	// Same key, same Vary, same selected header value: replaces the first.
	r1b := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "public, max-age=60", HeaderVary: "Accept-Encoding",
	}, Body: []byte("gzip-body-2")}
	s.StoreResponse(ctx, makeReq("gzip"), r1b, 0)

	variants := s.loadVariants(Key(makeReq("gzip")))
	if len(variants) != 1 {
		t.Fatalf("expected replaced variant to dedupe to 1, got %d", len(variants))
	}

	// Differing selected header value: coexists.
	r2 := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "public, max-age=60", HeaderVary: "Accept-Encoding",
	}, Body: []byte("br-body")}
	s.StoreResponse(ctx, makeReq("br"), r2, 0)

	variants = s.loadVariants(Key(makeReq("gzip")))
	if len(variants) != 2 {
		t.Fatalf("expected 2 coexisting variants, got %d", len(variants))
	}
}

func TestStoreLookupOrphanedMetaIsMiss(t *testing.T) {
	meta, entity := newFakeKV(), newFakeKV()
	s := NewStore(meta, entity)
	ctx := context.Background()

	req := testRequest("/")
	r := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: []byte("x")}
	stored := s.StoreResponse(ctx, req, r, 0)

	// Simulate the entity being evicted out from under the metastore.
	entity.Delete(ctx, stored.Header(HeaderXContentDigest))

	if got := s.Lookup(ctx, req); got != nil {
		t.Fatalf("expected orphaned metastore entry to resolve as a miss, got %+v", got)
	}
}

func TestStoreLookupRoundTrip(t *testing.T) {
	meta, entity := newFakeKV(), newFakeKV()
	s := NewStore(meta, entity)
	ctx := context.Background()

	req := testRequest("/")
	r := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: []byte("Hi")}
	s.StoreResponse(ctx, req, r, 0)

	got := s.Lookup(ctx, req)
	if got == nil {
		t.Fatalf("expected cache hit")
	}
	if string(got.Body) != "Hi" {
		t.Fatalf("expected body round-trip, got %q", got.Body)
	}
	if got.Header(HeaderAge) != "" {
		t.Fatalf("Age must never be persisted, got %q", got.Header(HeaderAge))
	}
}

func TestInvalidateRewritesFreshVariantsStale(t *testing.T) {
	meta, entity := newFakeKV(), newFakeKV()
	s := NewStore(meta, entity)
	ctx := context.Background()

	req := testRequest("/")
	r := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: []byte("x")}
	s.StoreResponse(ctx, req, r, 0)

	s.Invalidate(ctx, req, 0)

	got := s.Lookup(ctx, req)
	if got == nil {
		t.Fatalf("expected entry to still exist after invalidate")
	}
	if Fresh(got) {
		t.Fatalf("expected invalidated entry to be stale")
	}
}
