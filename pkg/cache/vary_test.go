package cache

import "testing"

func TestVaryMatchesEmpty(t *testing.T) {
	if !VaryMatches("", map[string]string{"Accept": "text/html"}, map[string]string{"Accept": "application/json"}) {
		t.Fatalf("expected empty Vary to match trivially")
	}
}

func TestVaryMatchesAllListedHeadersEqual(t *testing.T) {
	saved := map[string]string{"Accept-Encoding": "gzip", "Accept-Language": "en"}
	current := map[string]string{"Accept-Encoding": "gzip", "Accept-Language": "en"}
	if !VaryMatches("Accept-Encoding, Accept-Language", saved, current) {
		t.Fatalf("expected matching variant")
	}
}

func TestVaryMatchesDiffering(t *testing.T) {
	saved := map[string]string{"Accept-Encoding": "gzip"}
	current := map[string]string{"Accept-Encoding": "br"}
	if VaryMatches("Accept-Encoding", saved, current) {
		t.Fatalf("expected differing variant to not match")
	}
}

func TestVaryMatchesBothAbsent(t *testing.T) {
	saved := map[string]string{}
	current := map[string]string{}
	if !VaryMatches("Accept-Encoding", saved, current) {
		t.Fatalf("expected both-absent header to match")
	}
}
