package cache

import (
	"context"
	"testing"
)

func TestNewHttpCacheDefaultsConfig(t *testing.T) {
	c := NewHttpCache(nil, newFakeKV(), newFakeKV())
	if !c.Config().AllowRevalidate {
		t.Fatalf("expected default config to allow revalidation")
	}
}

func TestUpdateConfigHotSwapsAndSanitizes(t *testing.T) {
	c := NewHttpCache(DefaultHttpCacheConfig(), newFakeKV(), newFakeKV())
	cfg := DefaultHttpCacheConfig()
	cfg.Exclude = &Exclude{Path: []string{"^/health"}}
	c.UpdateConfig(cfg)

	if !c.Config().IsExcludedPath("/health") {
		t.Fatalf("expected updated config's compiled matcher to be active")
	}
}

func TestPurgeRemovesStoredVariants(t *testing.T) {
	c := NewHttpCache(DefaultHttpCacheConfig(), newFakeKV(), newFakeKV())
	ctx := context.Background()
	req := testRequest("/")

	resp := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}, Body: []byte("x")}
	c.CompleteFetch(ctx, req, resp)

	if c.Lookup(ctx, req) == nil {
		t.Fatalf("expected entry to be stored before purge")
	}

	c.Purge(ctx, req)

	if c.Lookup(ctx, req) != nil {
		t.Fatalf("expected entry to be gone after purge")
	}
}
