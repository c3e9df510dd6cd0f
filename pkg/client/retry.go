package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	fplRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fplRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fpl_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	fplRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_retry_exhausted_total",
		Help: "Total number of entries whose attempts were exhausted by last error class",
	}, []string{"error_class"})
)

// maxBackoffExponent keeps base<<attempt from overflowing.
const maxBackoffExponent = 16

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the default SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the wait after the given failed attempt (1-based):
// base * 2^attempt plus a random jitter in [0, jitter).
func Backoff(attempt int, base, jitter time.Duration, rng *rand.Rand) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffExponent {
		attempt = maxBackoffExponent
	}
	return base*time.Duration(1<<attempt) + randomJitter(rng, jitter)
}

// randomJitter returns a uniform duration in [0, max).
func randomJitter(rng *rand.Rand, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int64N(int64(max)))
}

// newRand returns a source local to one fetch so concurrent fetches never
// share RNG state.
func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// retryStats describes how an attempt sequence went.
type retryStats struct {
	// Attempts is the number of attempts charged against the budget.
	Attempts int
	// Requests counts every request issued, including rate-limited ones.
	Requests int
	// RateLimited counts 429 responses.
	RateLimited int
}

// retryWithBackoff runs fn until it succeeds or MaxRetries attempts have
// failed. Every attempt is preceded by a short jitter sleep. A RateLimitError
// is waited out and retried without consuming an attempt.
func (c *Client) retryWithBackoff(ctx context.Context, entryID int, fn func() error) (retryStats, error) {
	var (
		stats   retryStats
		lastErr error
		class   ErrorClass
	)
	rng := newRand()
	maxAttempts := c.config.MaxRetries

	for attempt := 1; attempt <= maxAttempts; {
		if err := c.sleep(ctx, randomJitter(rng, c.config.Jitter)); err != nil {
			return stats, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		stats.Requests++
		err := fn()
		if err == nil {
			stats.Attempts = attempt
			if attempt > 1 || stats.RateLimited > 0 {
				c.logger.Info().
					Int("entry_id", entryID).
					Int("attempt", attempt).
					Int("rate_limited", stats.RateLimited).
					Msg("Entry fetched after retry")
			}
			return stats, nil
		}
		if ctx.Err() != nil {
			return stats, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		class = errorClassOf(err)
		if !consumesAttempt(class) {
			var rl *RateLimitError
			wait := c.config.RateLimitWait
			if errors.As(err, &rl) {
				wait = rl.Signal.Wait
				c.rateLimiter.Record(entryID, rl.Signal)
			}
			stats.RateLimited++
			if err := c.sleep(ctx, wait); err != nil {
				return stats, fmt.Errorf("%w: %v", ErrContextCancelled, err)
			}
			continue
		}

		lastErr = err
		stats.Attempts = attempt

		if attempt >= maxAttempts {
			break
		}

		backoff := Backoff(attempt, c.config.BackoffBase, c.config.Jitter, rng)
		fplRetriesTotal.WithLabelValues(string(class)).Inc()
		fplRetryBackoffSeconds.WithLabelValues(string(class)).Observe(backoff.Seconds())

		c.logger.Warn().
			Err(err).
			Int("entry_id", entryID).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Str("error_class", string(class)).
			Dur("backoff", backoff).
			Msg("Fetch attempt failed, retrying after backoff")

		if err := c.sleep(ctx, backoff); err != nil {
			return stats, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
		attempt++
	}

	fplRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	c.logger.Error().
		Err(lastErr).
		Int("entry_id", entryID).
		Int("max_attempts", maxAttempts).
		Str("error_class", string(class)).
		Msg("All attempts failed for entry")

	return stats, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
