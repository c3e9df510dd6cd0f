// Package run drives one complete fetch: load entries, fetch their leagues in
// sequential batches through a shared gate, then persist the rows once.
package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/aggregate"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/batch"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/cache"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/client"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/config"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/dataset"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/logging"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Summary totals one run.
type Summary struct {
	Entries      int
	Duplicates   int
	Batches      int
	Rows         int
	Succeeded    int
	NoData       int
	Failed       int
	CacheHits    int
	Requests     int
	RateLimited  int64
	PeakInFlight int
	Duration     time.Duration
}

// Coordinator owns the lifecycle of a run.
type Coordinator struct {
	cfg        config.Config
	logger     zerolog.Logger
	httpClient *http.Client
	sleep      client.SleepFunc
	redis      *redis.Client
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the run's observability sink.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the session built from the TLS settings.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Coordinator) {
		c.httpClient = httpClient
	}
}

// WithSleep replaces how jitter, backoff and rate-limit waits are performed.
func WithSleep(sleep client.SleepFunc) Option {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

// WithRedis supplies a Redis client for the cache instead of dialing
// cfg.RedisURL. The caller keeps ownership.
func WithRedis(rdb *redis.Client) Option {
	return func(c *Coordinator) {
		c.redis = rdb
	}
}

// New validates cfg and creates a coordinator.
func New(cfg config.Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	c := &Coordinator{
		cfg:    cfg,
		logger: logging.NewLogger("run"),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Run executes the whole fetch. Per-entry failures never fail the run; any
// returned error means no output file was written.
func (c *Coordinator) Run(ctx context.Context) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		summary.Duration = time.Since(start)
		if err != nil {
			c.logger.Error().
				Err(err).
				Str("input", c.cfg.InputPath).
				Str("output", c.cfg.OutputPath).
				Dur("duration", summary.Duration).
				Msg("Run failed, output not written")
		}
	}()

	entries, err := dataset.LoadEntries(c.cfg.InputPath)
	if err != nil {
		return summary, err
	}
	entries, summary.Duplicates = dataset.Dedupe(entries)
	summary.Entries = len(entries)
	if summary.Duplicates > 0 {
		c.logger.Warn().
			Int("duplicates", summary.Duplicates).
			Msg("Duplicate entry IDs in input skipped")
	}

	if c.cfg.MetricsAddr != "" {
		srv, err := metrics.Start(c.cfg.MetricsAddr, c.logger)
		if err != nil {
			return summary, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cacheManager, closeCache, err := c.openCache(ctx)
	if err != nil {
		return summary, err
	}
	defer closeCache()

	fetcher, err := client.New(c.clientConfig())
	if err != nil {
		return summary, fmt.Errorf("create session: %w", err)
	}
	defer fetcher.Close()

	c.logger.Info().
		Int("entries", summary.Entries).
		Int("concurrency", c.cfg.Concurrency).
		Int("batch_size", c.cfg.BatchSize).
		Int("retries", c.cfg.Retries).
		Bool("cache", cacheManager.Enabled()).
		Msg("Starting run")

	var cacheHits atomic.Int64
	agg := aggregate.New()
	scheduler := batch.NewScheduler(batch.Config{
		BatchSize: c.cfg.BatchSize,
		Logger:    &c.logger,
	})

	err = scheduler.Run(ctx, entries, c.fetchTask(fetcher, cacheManager, &cacheHits), func(b batch.Batch, results []client.Result) {
		agg.Add(b.Entries, results)
		for _, res := range results {
			summary.Requests += res.Requests
		}
		summary.Batches++
		c.logger.Debug().
			Int("batch", b.Index+1).
			Int("rows", len(agg.Rows())).
			Msg("Batch aggregated")
	})
	if err != nil {
		return summary, fmt.Errorf("fetch aborted: %w", err)
	}

	summary.Rows = len(agg.Rows())
	summary.Succeeded = agg.Count(aggregate.OutcomeOK)
	summary.NoData = agg.Count(aggregate.OutcomeNoData)
	summary.Failed = agg.Count(aggregate.OutcomeFailed)
	summary.CacheHits = int(cacheHits.Load())
	summary.RateLimited = fetcher.RateLimiter().Count()
	summary.PeakInFlight = fetcher.Gate().Peak()

	if err := dataset.WriteRows(c.cfg.OutputPath, agg.Rows()); err != nil {
		return summary, err
	}
	if c.cfg.ReportPath != "" {
		if err := dataset.WriteReport(c.cfg.ReportPath, agg.Report()); err != nil {
			// rows are already persisted; a missing report does not fail the run
			c.logger.Error().Err(err).Str("path", c.cfg.ReportPath).Msg("Failed to write entry report")
		}
	}

	c.logger.Info().
		Int("entries", summary.Entries).
		Int("batches", summary.Batches).
		Int("rows", summary.Rows).
		Int("succeeded", summary.Succeeded).
		Int("no_data", summary.NoData).
		Int("failed", summary.Failed).
		Int("cache_hits", summary.CacheHits).
		Int("requests", summary.Requests).
		Int64("rate_limited", summary.RateLimited).
		Int("peak_in_flight", summary.PeakInFlight).
		Dur("duration", time.Since(start)).
		Str("output", c.cfg.OutputPath).
		Msg("Run complete")

	return summary, nil
}

// fetchTask serves entries from the cache when possible and stores every
// successful fetch. Cache failures are logged and treated as misses.
func (c *Coordinator) fetchTask(fetcher *client.Client, cm *cache.Manager, hits *atomic.Int64) batch.Task {
	return func(ctx context.Context, entry fpl.Entry) client.Result {
		if cm.Enabled() {
			leagues, err := cm.Get(ctx, entry.ID)
			switch {
			case err == nil:
				hits.Add(1)
				return client.Result{
					EntryID: entry.ID,
					Leagues: leagues,
					Status:  client.StatusOK,
				}
			case !errors.Is(err, cache.ErrCacheMiss):
				c.logger.Warn().Err(err).Int("entry_id", entry.ID).Msg("Cache read failed")
			}
		}

		res := fetcher.FetchLeagues(ctx, entry.ID)
		if res.OK() && cm.Enabled() {
			if err := cm.Set(ctx, entry.ID, res.Leagues); err != nil {
				c.logger.Warn().Err(err).Int("entry_id", entry.ID).Msg("Cache write failed")
			}
		}
		return res
	}
}

// openCache builds the cache manager. Without a reachable Redis the manager
// is disabled and every entry is fetched.
func (c *Coordinator) openCache(ctx context.Context) (*cache.Manager, func(), error) {
	noop := func() {}

	if c.redis != nil {
		return cache.NewManager(c.redis, cache.Options{TTL: c.cfg.CacheTTL}), noop, nil
	}
	if c.cfg.RedisURL == "" {
		return cache.NewManager(nil, cache.Options{}), noop, nil
	}

	opts, err := redis.ParseURL(c.cfg.RedisURL)
	if err != nil {
		return nil, noop, fmt.Errorf("invalid redis_url: %w", err)
	}
	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis unreachable, continuing without the cache")
		_ = rdb.Close()
		return cache.NewManager(nil, cache.Options{}), noop, nil
	}
	c.logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to Redis")

	return cache.NewManager(rdb, cache.Options{TTL: c.cfg.CacheTTL}), func() { _ = rdb.Close() }, nil
}

func (c *Coordinator) clientConfig() client.Config {
	return client.Config{
		BaseURL:        c.cfg.BaseURL,
		UserAgent:      c.cfg.UserAgent,
		MaxRetries:     c.cfg.Retries,
		RequestTimeout: c.cfg.RequestTimeout,
		RateLimitWait:  c.cfg.RateLimitWait,
		BackoffBase:    c.cfg.BackoffBase,
		Jitter:         c.cfg.Jitter,
		MaxConcurrency: c.cfg.Concurrency,
		CABundle:       c.cfg.CABundle,
		HTTPClient:     c.httpClient,
		Sleep:          c.sleep,
		Logger:         &c.logger,
	}
}
