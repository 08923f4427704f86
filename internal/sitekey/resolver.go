// Package sitekey derives canonical site identities from page addresses.
// Two URLs with the same site key are treated as the same tracked site.
package sitekey

import (
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// DefaultCacheSize bounds the address resolution cache. Heartbeat
// evaluation resolves the same handful of addresses every tick, so even a
// small cache absorbs nearly all parsing work.
const DefaultCacheSize = 1024

// Resolver derives site keys from raw page addresses.
type Resolver struct {
	cache  *lru.Cache[string, result]
	logger zerolog.Logger
}

type result struct {
	key string
	ok  bool
}

// NewResolver creates a resolver with a bounded memoization cache.
func NewResolver(cacheSize int, logger zerolog.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, result](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		cache:  cache,
		logger: logger.With().Str("component", "sitekey").Logger(),
	}, nil
}

// Resolve derives the site key for a page address. The key is the
// registrable domain: the last two dot-separated labels of the hostname,
// or the full hostname when it has fewer. Unparseable or hostless
// addresses resolve to not-tracked (ok=false), never an error.
func (r *Resolver) Resolve(address string) (string, bool) {
	if cached, found := r.cache.Get(address); found {
		return cached.key, cached.ok
	}

	key, ok := resolve(address)
	r.cache.Add(address, result{key: key, ok: ok})

	if !ok {
		r.logger.Debug().Str("address", address).Msg("Address not resolvable to a site key")
	}
	return key, ok
}

func resolve(address string) (string, bool) {
	u, err := url.Parse(address)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}

	labels := strings.Split(host, ".")
	if len(labels) >= 2 {
		return strings.Join(labels[len(labels)-2:], "."), true
	}
	return host, true
}

// IsTracked reports whether a site key matches any configured tracked
// site. Matching is substring containment in both directions, so a
// tracked entry of "youtube.com" also covers "m.youtube.com" and an entry
// of "m.youtube.com" still matches the key "youtube.com".
func IsTracked(siteKey string, trackedSites []string) bool {
	if siteKey == "" {
		return false
	}
	for _, tracked := range trackedSites {
		if tracked == "" {
			continue
		}
		if strings.Contains(siteKey, tracked) || strings.Contains(tracked, siteKey) {
			return true
		}
	}
	return false
}
