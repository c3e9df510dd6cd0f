package cache

import "fmt"

// KeyPrefix namespaces every key written to Redis.
const KeyPrefix = "fpl"

// CacheKey identifies the cached league list of one entry.
type CacheKey struct {
	EntryID int
}

// String generates the Redis key.
// Format: fpl:entry:{id}:leagues
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:entry:%d:leagues", KeyPrefix, k.EntryID)
}
