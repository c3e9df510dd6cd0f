// Package batch drives entry fetches in sequential batches.
//
// The entry list is split into consecutive batches of at most BatchSize
// entries. Every entry of a batch is fetched on its own goroutine; the
// scheduler waits for all of them (the fan-in barrier) before handing the
// batch's results to the sink and moving on. Batches never overlap.
//
// The number of requests actually in flight is not bounded here but by the
// gate shared by the fetch tasks, so launching a 1000-entry batch does not
// exceed the run's concurrency budget.
//
// Example usage:
//
//	sched := batch.NewScheduler(batch.Config{BatchSize: 1000})
//	err := sched.Run(ctx, entries, fetcher.FetchEntry, func(b batch.Batch, results []client.Result) {
//		agg.Add(b.Entries, results)
//	})
//
// Results passed to the sink are index-aligned with b.Entries regardless of
// completion order. A panicking task yields a failed result for its entry.
package batch
