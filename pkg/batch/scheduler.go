package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/client"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the default maximum number of entries per batch.
const DefaultBatchSize = 1000

// ErrTaskPanic marks a result produced from a recovered task panic.
var ErrTaskPanic = errors.New("fetch task panicked")

var (
	fplBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpl_batches_total",
		Help: "Total number of completed batches",
	})

	fplBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fpl_batch_duration_seconds",
		Help:    "Wall time from batch fan-out to fan-in",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	fplTaskPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpl_task_panics_total",
		Help: "Total number of recovered fetch task panics",
	})
)

// Config holds scheduler configuration.
type Config struct {
	// BatchSize is the maximum number of entries fetched concurrently per batch.
	BatchSize int

	// Logger receives batch progress. Defaults to the "batch" component logger.
	Logger *zerolog.Logger
}

// Batch is one contiguous slice of the entry list.
type Batch struct {
	// Index is the zero-based batch number.
	Index int
	// Total is the number of batches in the run.
	Total int
	// Offset is the position of Entries[0] in the full list.
	Offset int
	// Entries in submission order.
	Entries []fpl.Entry
}

// Task fetches one entry. It must not return until its fetch is finished.
type Task func(ctx context.Context, entry fpl.Entry) client.Result

// Sink consumes one batch's results after the fan-in barrier. It is always
// called from the goroutine running Run, never concurrently.
type Sink func(b Batch, results []client.Result)

// Scheduler runs batches strictly one after another.
type Scheduler struct {
	config Config
	logger zerolog.Logger
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	logger := logging.NewLogger("batch")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Scheduler{config: cfg, logger: logger}
}

// BatchSize returns the effective batch size.
func (s *Scheduler) BatchSize() int {
	return s.config.BatchSize
}

// Split partitions entries into consecutive batches of at most size entries.
func Split(entries []fpl.Entry, size int) []Batch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	total := (len(entries) + size - 1) / size
	batches := make([]Batch, 0, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := min(start+size, len(entries))
		batches = append(batches, Batch{
			Index:   i,
			Total:   total,
			Offset:  start,
			Entries: entries[start:end:end],
		})
	}
	return batches
}

// Run fetches all entries batch by batch. It returns early only when ctx is
// done between batches; per-entry failures are carried in the results.
func (s *Scheduler) Run(ctx context.Context, entries []fpl.Entry, task Task, sink Sink) error {
	batches := Split(entries, s.config.BatchSize)
	start := time.Now()

	s.logger.Info().
		Int("entries", len(entries)).
		Int("batches", len(batches)).
		Int("batch_size", s.config.BatchSize).
		Msg("Starting batched fetch")

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("batch %d/%d not started: %w", b.Index+1, b.Total, err)
		}

		results := s.runBatch(ctx, b, task)
		sink(b, results)

		s.logger.Info().
			Int("batch", b.Index+1).
			Int("batches", b.Total).
			Int("entries_done", b.Offset+len(b.Entries)).
			Float64("progress_pct", float64(b.Offset+len(b.Entries))/float64(len(entries))*100).
			Msg("Batch complete")
	}

	s.logger.Info().
		Int("entries", len(entries)).
		Int("batches", len(batches)).
		Dur("duration", time.Since(start)).
		Msg("All batches complete")

	return nil
}

// runBatch fans out one goroutine per entry and waits for all of them.
func (s *Scheduler) runBatch(ctx context.Context, b Batch, task Task) []client.Result {
	batchStart := time.Now()
	results := make([]client.Result, len(b.Entries))

	var wg sync.WaitGroup
	for i, entry := range b.Entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fplTaskPanicsTotal.Inc()
					s.logger.Error().
						Int("entry_id", entry.ID).
						Str("panic", fmt.Sprintf("%v", r)).
						Msg("Fetch task panicked")
					results[i] = client.Failed(entry.ID, fmt.Errorf("%w: %v", ErrTaskPanic, r))
				}
			}()
			results[i] = task(ctx, entry)
		}()
	}
	wg.Wait()

	fplBatchesTotal.Inc()
	fplBatchDuration.Observe(time.Since(batchStart).Seconds())

	return results
}
