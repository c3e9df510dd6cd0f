// Package gate bounds the number of entry fetches in flight across a run.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the default number of concurrent fetches.
const DefaultCapacity = 50

var (
	gateInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fpl_gate_in_flight",
		Help: "Number of fetches currently holding a gate slot",
	})

	gateWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fpl_gate_waits_total",
		Help: "Total number of acquires that had to wait for a free slot",
	})
)

// Gate is a counting admission primitive. It is safe for concurrent use.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a gate with the given capacity. A non-positive capacity falls
// back to DefaultCapacity.
func New(capacity int) *Gate {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Acquire blocks until a slot is free. It only returns an error when ctx is
// done before a slot became available; in that case no slot is held.
func (g *Gate) Acquire(ctx context.Context) error {
	if !g.sem.TryAcquire(1) {
		gateWaitsTotal.Inc()
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire gate slot: %w", err)
		}
	}

	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	gateInFlight.Inc()
	return nil
}

// Release frees a slot taken by Acquire and wakes one waiter, if any.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	gateInFlight.Dec()
	g.sem.Release(1)
}

// Capacity returns the configured number of slots.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// InFlight returns the number of currently held slots.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest number of simultaneously held slots observed.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}
