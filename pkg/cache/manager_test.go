package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis returns a client whose every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(nil, Options{})

	assert.Equal(t, DefaultTTL, m.ttl)
	assert.False(t, m.Enabled(), "no redis client means disabled")

	m = NewManager(unreachableRedis(t), Options{TTL: time.Minute})
	assert.Equal(t, time.Minute, m.ttl)
	assert.True(t, m.Enabled())
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(nil, Options{})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, 1, []fpl.League{{ID: 1}}))
	_, err := m.Get(ctx, 1)
	assert.True(t, errors.Is(err, ErrCacheMiss))
	assert.NoError(t, m.Delete(ctx, 1))

	var nilManager *Manager
	assert.False(t, nilManager.Enabled())
	_, err = nilManager.Get(ctx, 1)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestManager_RedisErrors(t *testing.T) {
	m := NewManager(unreachableRedis(t), Options{})
	ctx := context.Background()

	tests := []struct {
		operation string
		call      func() error
		errorMsg  string
	}{
		{
			operation: "get",
			call: func() error {
				_, err := m.Get(ctx, 1)
				return err
			},
			errorMsg: "redis get",
		},
		{
			operation: "set",
			call:      func() error { return m.Set(ctx, 1, []fpl.League{{ID: 1}}) },
			errorMsg:  "redis set",
		},
		{
			operation: "delete",
			call:      func() error { return m.Delete(ctx, 1) },
			errorMsg:  "redis del",
		},
	}

	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
			assert.False(t, errors.Is(err, ErrCacheMiss), "connection errors are not misses")
		})
	}
}
