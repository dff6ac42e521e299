package cache

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func newTestCache() (*HttpCache, *fakeKV, *fakeKV) {
	meta, entity := newFakeKV(), newFakeKV()
	c := NewHttpCache(DefaultHttpCacheConfig(), meta, entity)
	return c, meta, entity
}

func TestClassifyUnsafeMethodInvalidates(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()

	req := testRequest("/widgets")
	req.Method = http.MethodGet
	resp := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: []byte("x")}
	c.CompleteFetch(ctx, req, resp)

	post := testRequest("/widgets")
	post.Method = http.MethodPost
	decision := c.Classify(ctx, post, false)
	if decision.Verb != VerbInvalidatePass {
		t.Fatalf("expected invalidate-pass for unsafe method, got %v", decision.Verb)
	}

	get := testRequest("/widgets")
	lookup := c.Lookup(ctx, get)
	if lookup != nil && Fresh(lookup) {
		t.Fatalf("expected variant to be invalidated by the POST")
	}
}

func TestClassifyForcePassBypasses(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()
	req := testRequest("/")
	decision := c.Classify(ctx, req, true)
	if decision.Verb != VerbPass {
		t.Fatalf("expected pass, got %v", decision.Verb)
	}
}

func TestClassifyExpectHeaderBypasses(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()
	req := testRequest("/")
	req.Headers[HeaderExpect] = []string{"100-continue"}
	decision := c.Classify(ctx, req, false)
	if decision.Verb != VerbPass {
		t.Fatalf("expected pass for Expect header, got %v", decision.Verb)
	}
}

func TestClassifyExcludedPathBypasses(t *testing.T) {
	c, _, _ := newTestCache()
	cfg := DefaultHttpCacheConfig()
	cfg.Exclude = &Exclude{Path: []string{"^/admin"}}
	c.UpdateConfig(cfg)

	ctx := context.Background()
	req := testRequest("/admin/status")
	decision := c.Classify(ctx, req, false)
	if decision.Verb != VerbPass {
		t.Fatalf("expected pass for excluded path, got %v", decision.Verb)
	}
}

func TestClassifyNoCacheForcesReload(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()

	req := testRequest("/")
	resp := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: []byte("x")}
	c.CompleteFetch(ctx, req, resp)

	req2 := testRequest("/")
	req2.Headers[HeaderCacheControl] = []string{"no-cache"}
	decision := c.Classify(ctx, req2, false)
	if decision.Verb != VerbFetch {
		t.Fatalf("expected forced reload to fetch, got %v", decision.Verb)
	}
}

func TestClassifyMissThenFreshThenStale(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()
	req := testRequest("/")

	miss := c.Classify(ctx, req, false)
	if miss.Verb != VerbFetch {
		t.Fatalf("expected miss to fetch, got %v", miss.Verb)
	}

	resp := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: []byte("x")}
	c.CompleteFetch(ctx, req, resp)

	fresh := c.Classify(ctx, req, false)
	if fresh.Verb != VerbFresh {
		t.Fatalf("expected fresh hit, got %v", fresh.Verb)
	}

	// Age the cached variant past max-age by backdating its stored Date
	// (StoreResponse does not persist the Age header).
	cached := c.Lookup(ctx, req)
	cached.SetHeader(HeaderDate, time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))
	c.store.StoreResponse(ctx, req, cached, 0)

	stale := c.Classify(ctx, req, false)
	if stale.Verb != VerbStale {
		t.Fatalf("expected stale hit, got %v", stale.Verb)
	}
}

func TestCleanCacheControlPrivateHeaderForcesPrivate(t *testing.T) {
	c, _, _ := newTestCache()
	cfg := DefaultHttpCacheConfig()
	cfg.PrivateHeaderKeys = []string{"Set-Cookie"}
	c.UpdateConfig(cfg)

	resp := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "max-age=60",
		"Set-Cookie":       "sid=abc",
	}}
	c.CleanCacheControl(resp, c.Config(), "/")

	d := ParseDirectives(resp.Header(HeaderCacheControl))
	if !d.Private() || d.Public() {
		t.Fatalf("expected response forced private, got %q", resp.Header(HeaderCacheControl))
	}
}

func TestCleanCacheControlDefaultTTLAppliesSharedMaxAge(t *testing.T) {
	c, _, _ := newTestCache()
	cfg := DefaultHttpCacheConfig()
	cfg.DefaultTTL = "120s"
	c.UpdateConfig(cfg)

	resp := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public"}}
	c.CleanCacheControl(resp, c.Config(), "/")

	d := ParseDirectives(resp.Header(HeaderCacheControl))
	if sm := d.SharedMaxAge(); sm == nil || *sm != 120 {
		t.Fatalf("expected s-maxage=120 applied by default ttl, got %v", sm)
	}
}

func TestCleanCacheControlPerPathTimeoutOverridesDefaultTTL(t *testing.T) {
	c, _, _ := newTestCache()
	cfg := DefaultHttpCacheConfig()
	cfg.DefaultTTL = "30s"
	cfg.Timeouts = []Timeout{{Path: "^/slow/", TTL: "900s"}}
	c.UpdateConfig(cfg)

	resp := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public"}}
	c.CleanCacheControl(resp, c.Config(), "/slow/report")

	d := ParseDirectives(resp.Header(HeaderCacheControl))
	if sm := d.SharedMaxAge(); sm == nil || *sm != 900 {
		t.Fatalf("expected s-maxage=900 from the /slow/ path override, got %v", sm)
	}

	other := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public"}}
	c.CleanCacheControl(other, c.Config(), "/fast")
	d = ParseDirectives(other.Header(HeaderCacheControl))
	if sm := d.SharedMaxAge(); sm == nil || *sm != 30 {
		t.Fatalf("expected s-maxage=30 from the default ttl on a non-matching path, got %v", sm)
	}
}

func TestPrepareAndCompleteValidationMerge(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()
	req := testRequest("/")
	cached := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "public, max-age=60",
		HeaderETag:         `"v1"`,
	}, Body: []byte("old")}
	c.store.StoreResponse(ctx, req, cached, 0)

	vreq, clientEtags := c.PrepareValidation(req, cached)
	if vreq.Method != http.MethodGet {
		t.Fatalf("expected validation request forced to GET")
	}
	if got := vreq.Headers[HeaderIfNoneMatch][0]; got != `"v1"` {
		t.Fatalf("expected If-None-Match to carry cached etag, got %q", got)
	}

	origin := &Response{Status: http.StatusNotModified, Headers: map[string]string{
		HeaderETag: `"v1"`,
	}}
	merged, trace := c.CompleteValidation(ctx, req, cached, origin, clientEtags)
	if merged.Status != 200 {
		t.Fatalf("expected merged response to keep cached 200 status, got %d", merged.Status)
	}
	if string(merged.Body) != "old" {
		t.Fatalf("expected merged response to keep cached body, got %q", merged.Body)
	}
	if len(trace) != 1 || trace[0] != traceValid {
		t.Fatalf("expected valid trace, got %v", trace)
	}
}

func TestCompleteValidationClientVariantPassesThrough(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()
	req := testRequest("/")
	cached := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "public, max-age=60",
		HeaderETag:         `"ours"`,
	}, Body: []byte("ours")}
	c.store.StoreResponse(ctx, req, cached, 0)

	clientEtags := []string{`"theirs"`}
	origin := &Response{Status: http.StatusNotModified, Headers: map[string]string{
		HeaderETag: `"theirs"`,
	}}
	result, _ := c.CompleteValidation(ctx, req, cached, origin, clientEtags)
	if result != origin {
		t.Fatalf("expected origin 304 to pass through unmodified for a client-held variant")
	}
}
