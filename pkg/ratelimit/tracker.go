package ratelimit

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	fplRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpl_rate_limited_total",
		Help: "Total number of 429 responses received",
	})

	fplRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fpl_rate_limit_wait_seconds",
		Help:    "Wait duration requested by 429 responses",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
	})
)

// Tracker records rate-limit signals observed by all fetches of a run.
// It is safe for concurrent use.
type Tracker struct {
	logger zerolog.Logger
	count  atomic.Int64

	mu   sync.Mutex
	last Signal
}

// NewTracker creates a new rate limit tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// Record registers a 429 for entryID and logs the wait that will follow.
func (t *Tracker) Record(entryID int, s Signal) {
	t.count.Add(1)
	fplRateLimitedTotal.Inc()
	fplRateLimitWaitSeconds.Observe(s.Wait.Seconds())

	t.mu.Lock()
	if s.ReceivedAt.After(t.last.ReceivedAt) {
		t.last = s
	}
	t.mu.Unlock()

	t.logger.Warn().
		Int("entry_id", entryID).
		Dur("wait", s.Wait).
		Bool("from_header", s.FromHeader).
		Msg("Rate limited, waiting before retry")
}

// Count returns the number of 429 responses recorded.
func (t *Tracker) Count() int64 {
	return t.count.Load()
}

// Last returns the most recent signal, or the zero Signal if none was seen.
func (t *Tracker) Last() Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
