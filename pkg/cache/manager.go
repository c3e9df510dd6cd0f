package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the entry was not found or has expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cached value could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is how long a fetched league list is served from cache.
const DefaultTTL = 24 * time.Hour

// Options configures a Manager.
type Options struct {
	// TTL of stored entries. Defaults to DefaultTTL.
	TTL time.Duration
}

// Manager is a Redis-backed league cache. It is safe for concurrent use.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager. A nil redisClient yields a disabled
// manager on which every Get misses and every write is a no-op.
func NewManager(redisClient *redis.Client, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   opts.TTL,
	}
}

// Enabled reports whether a Redis client is configured.
func (m *Manager) Enabled() bool {
	return m != nil && m.redis != nil
}

// Get returns the cached leagues of an entry.
// Returns ErrCacheMiss if no live entry exists.
func (m *Manager) Get(ctx context.Context, entryID int) ([]fpl.League, error) {
	if !m.Enabled() {
		return nil, ErrCacheMiss
	}

	key := CacheKey{EntryID: entryID}
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, entryID)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	if entry.Leagues == nil {
		entry.Leagues = []fpl.League{}
	}
	return entry.Leagues, nil
}

// Set stores the leagues of a successful fetch.
func (m *Manager) Set(ctx context.Context, entryID int, leagues []fpl.League) error {
	if !m.Enabled() {
		return nil
	}
	if leagues == nil {
		leagues = []fpl.League{}
	}

	now := time.Now()
	data, err := json.Marshal(&CacheEntry{
		Leagues:   leagues,
		FetchedAt: now,
		Expires:   now.Add(m.ttl),
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	key := CacheKey{EntryID: entryID}
	if err := m.redis.Set(ctx, key.String(), data, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes an entry.
func (m *Manager) Delete(ctx context.Context, entryID int) error {
	if !m.Enabled() {
		return nil
	}

	key := CacheKey{EntryID: entryID}
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}
