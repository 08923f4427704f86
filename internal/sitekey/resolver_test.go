package sitekey

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(16, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return r
}

func TestResolve(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name    string
		address string
		wantKey string
		wantOK  bool
	}{
		{"plain domain", "https://youtube.com/watch", "youtube.com", true},
		{"www subdomain", "https://www.youtube.com/", "youtube.com", true},
		{"mobile subdomain", "https://m.youtube.com/watch?v=x", "youtube.com", true},
		{"deep subdomain", "https://music.m.youtube.com/", "youtube.com", true},
		{"single label host", "http://localhost:8080/page", "localhost", true},
		{"uppercase host", "https://WWW.Reddit.COM/r/golang", "reddit.com", true},
		{"host with port", "https://news.example.org:8443/story", "example.org", true},
		{"empty address", "", "", false},
		{"no host", "file:///tmp/page.html", "", false},
		{"garbage", "http://%zz%", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := r.Resolve(tt.address)
			if key != tt.wantKey || ok != tt.wantOK {
				t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)",
					tt.address, key, ok, tt.wantKey, tt.wantOK)
			}
		})
	}
}

func TestResolveCached(t *testing.T) {
	r := newTestResolver(t)

	// Same address twice must give identical results through the cache.
	for i := 0; i < 2; i++ {
		key, ok := r.Resolve("https://m.youtube.com/watch")
		if key != "youtube.com" || !ok {
			t.Fatalf("Resolve() pass %d = (%q, %v), want (youtube.com, true)", i, key, ok)
		}
	}
}

func TestIsTracked(t *testing.T) {
	tracked := []string{"youtube.com", "m.twitter.com", "reddit.com"}

	tests := []struct {
		name    string
		siteKey string
		want    bool
	}{
		{"exact match", "youtube.com", true},
		{"key contains tracked entry", "youtube.com.au", true},
		{"tracked entry contains key", "twitter.com", true},
		{"unrelated", "example.org", false},
		{"empty key", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTracked(tt.siteKey, tracked); got != tt.want {
				t.Errorf("IsTracked(%q) = %v, want %v", tt.siteKey, got, tt.want)
			}
		})
	}
}

func TestIsTrackedEmptyList(t *testing.T) {
	if IsTracked("youtube.com", nil) {
		t.Error("IsTracked() with no tracked sites = true, want false")
	}
	if IsTracked("youtube.com", []string{""}) {
		t.Error("IsTracked() with empty tracked entry = true, want false")
	}
}
