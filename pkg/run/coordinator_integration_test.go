//go:build integration

package run

import (
	"context"
	"testing"

	"github.com/Sternrassler/fpl-league-fetcher/internal/testutil"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "start redis container")

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() {
		rdb.Close()
		_ = redisC.Terminate(ctx)
	})
	return rdb
}

func TestRun_RedisCacheSkipsFetchedEntries(t *testing.T) {
	rdb := setupTestRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetDefault(testutil.NewLeaguesResponse(fpl.League{ID: 314, Name: "Overall"}))

	cfg := testConfig(t, mock)
	writeInput(t, cfg.InputPath, numberedEntries(10))

	first, err := newCoordinator(t, cfg, WithRedis(rdb)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, first.CacheHits)
	assert.Equal(t, 10, mock.TotalRequests())
	firstOutput := readFile(t, cfg.OutputPath)

	second, err := newCoordinator(t, cfg, WithRedis(rdb)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, second.CacheHits)
	assert.Zero(t, second.Requests)
	assert.Equal(t, 10, mock.TotalRequests(), "cached entries must not be fetched again")
	assert.Equal(t, firstOutput, readFile(t, cfg.OutputPath))
}

func TestRun_FailedEntriesAreNotCached(t *testing.T) {
	rdb := setupTestRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetScript(1, testutil.NewStatusResponse(503))

	cfg := testConfig(t, mock)
	cfg.Retries = 1
	writeInput(t, cfg.InputPath, numberedEntries(1))

	_, err := newCoordinator(t, cfg, WithRedis(rdb)).Run(context.Background())
	require.NoError(t, err)
	summary, err := newCoordinator(t, cfg, WithRedis(rdb)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.CacheHits)
	assert.Equal(t, 2, mock.RequestCount(1))
}
