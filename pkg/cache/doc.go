// Package cache stores successfully fetched league lists so a re-run can skip
// entries it already has.
//
// Entries live in Redis so they are shared between runs and processes. A
// manager without a Redis client is disabled. Only successful fetch results
// are stored; failures are never cached, so a later run retries them.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, cache.Options{TTL: 24 * time.Hour})
//
//	leagues, err := manager.Get(ctx, entryID)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then
//		_ = manager.Set(ctx, entryID, leagues)
//	}
//
// # Metrics
//
//   - fpl_cache_hits_total{layer="redis"}
//   - fpl_cache_misses_total
//   - fpl_cache_errors_total{operation}
package cache
