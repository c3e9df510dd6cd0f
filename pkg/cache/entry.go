package cache

import (
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
)

// CacheEntry is a cached league list.
type CacheEntry struct {
	// Leagues as returned by the last successful fetch.
	Leagues []fpl.League `json:"leagues"`

	// FetchedAt is when the leagues were fetched.
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry must no longer be served.
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
