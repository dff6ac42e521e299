package cache

import (
	"net/http"
	"testing"
	"time"
)

func withFixedNow(t *testing.T, now time.Time) {
	t.Helper()
	prev := Now
	Now = func() time.Time { return now }
	t.Cleanup(func() { Now = prev })
}

func TestFreshWithMaxAgeAndAge(t *testing.T) {
	r := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "public, max-age=300",
		HeaderAge:          "299",
	}}
	if !Fresh(r) {
		t.Fatalf("expected fresh response")
	}

	r.SetHeader(HeaderAge, "301")
	if Fresh(r) {
		t.Fatalf("expected stale response once age exceeds max-age")
	}
}

func TestFreshWithExpiresAndDate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	withFixedNow(t, now)

	date := now.Add(-10 * time.Second)
	expires := now.Add(50 * time.Second) // freshness lifetime 60s, age 10s
	r := &Response{Status: 200, Headers: map[string]string{
		HeaderDate:    date.Format(http.TimeFormat),
		HeaderExpires: expires.Format(http.TimeFormat),
	}}
	if !Fresh(r) {
		t.Fatalf("expected fresh response (age < expires-date)")
	}

	expires2 := now.Add(-20 * time.Second) // already expired
	r2 := &Response{Status: 200, Headers: map[string]string{
		HeaderDate:    date.Format(http.TimeFormat),
		HeaderExpires: expires2.Format(http.TimeFormat),
	}}
	if Fresh(r2) {
		t.Fatalf("expected stale response once past expires")
	}
}

func TestExpireSetsAgeToMaxAge(t *testing.T) {
	r := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "public, max-age=60",
		HeaderAge:          "10",
	}}
	Expire(r)
	if r.Header(HeaderAge) != "60" {
		t.Fatalf("expected Age=60 after expire, got %q", r.Header(HeaderAge))
	}

	// Applying twice has the same effect as once.
	Expire(r)
	if r.Header(HeaderAge) != "60" {
		t.Fatalf("expected idempotent expire, got %q", r.Header(HeaderAge))
	}
}

func TestExpireLeavesStaleResponseUnchanged(t *testing.T) {
	r := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "public, max-age=60",
		HeaderAge:          "120",
	}}
	Expire(r)
	if r.Header(HeaderAge) != "120" {
		t.Fatalf("expected stale response untouched by expire, got %q", r.Header(HeaderAge))
	}
}

func TestCacheableRequiresValidatorOrFreshness(t *testing.T) {
	fresh := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}}
	if !Cacheable(fresh) {
		t.Fatalf("expected fresh 200 to be cacheable")
	}

	validateable := &Response{Status: 200, Headers: map[string]string{HeaderETag: `"abc"`}}
	if !Cacheable(validateable) {
		t.Fatalf("expected validateable 200 to be cacheable")
	}

	neither := &Response{Status: 200, Headers: map[string]string{}}
	if Cacheable(neither) {
		t.Fatalf("expected response with no validator or freshness data to be uncacheable")
	}

	private := &Response{Status: 200, Headers: map[string]string{HeaderCacheControl: "private, max-age=60"}}
	if Cacheable(private) {
		t.Fatalf("expected private response to be uncacheable")
	}

	wrongStatus := &Response{Status: 204, Headers: map[string]string{HeaderCacheControl: "public, max-age=60"}}
	if Cacheable(wrongStatus) {
		t.Fatalf("expected non-cacheable status to be uncacheable")
	}
}

func TestMaxAgePrecedence(t *testing.T) {
	r := &Response{Status: 200, Headers: map[string]string{
		HeaderCacheControl: "max-age=10, s-maxage=20, r-maxage=30",
	}}
	got := MaxAge(r)
	if got == nil || *got != 30 {
		t.Fatalf("expected r-maxage to win, got %v", got)
	}
}
