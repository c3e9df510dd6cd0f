// Package aggregate flattens fetch results into output rows and keeps a
// per-entry outcome record.
package aggregate

import (
	"github.com/Sternrassler/fpl-league-fetcher/pkg/client"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fplOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fpl_entry_outcomes_total",
	Help: "Aggregated entries by outcome",
}, []string{"outcome"})

// Outcome is what an entry contributed to the output.
type Outcome string

const (
	// OutcomeOK means the entry produced at least one row.
	OutcomeOK Outcome = "ok"

	// OutcomeNoData means the fetch succeeded with an empty league list.
	OutcomeNoData Outcome = "no_data"

	// OutcomeFailed means every attempt failed.
	OutcomeFailed Outcome = "failed"
)

// Report lists the entries that produced no rows, split by reason.
type Report struct {
	Failed []int `json:"Failed Entries"`
	NoData []int `json:"No Data Entries"`
}

// Aggregator accumulates rows across batches. It is not safe for concurrent
// use; the scheduler calls it only after a batch's fan-in barrier.
type Aggregator struct {
	rows   []fpl.Row
	report Report
	counts map[Outcome]int
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		rows:   []fpl.Row{},
		report: Report{Failed: []int{}, NoData: []int{}},
		counts: make(map[Outcome]int),
	}
}

// Add pairs entries[i] with results[i] and appends their rows in entry
// order. It returns the outcome of each pair.
func (a *Aggregator) Add(entries []fpl.Entry, results []client.Result) []Outcome {
	outcomes := make([]Outcome, len(entries))
	for i, entry := range entries {
		var res client.Result
		if i < len(results) {
			res = results[i]
		} else {
			res = client.Failed(entry.ID, nil)
		}
		outcomes[i] = a.add(entry, res)
	}
	return outcomes
}

func (a *Aggregator) add(entry fpl.Entry, res client.Result) Outcome {
	var outcome Outcome
	switch {
	case !res.OK():
		outcome = OutcomeFailed
		a.report.Failed = append(a.report.Failed, entry.ID)
	case len(res.Leagues) == 0:
		outcome = OutcomeNoData
		a.report.NoData = append(a.report.NoData, entry.ID)
	default:
		outcome = OutcomeOK
		for _, league := range res.Leagues {
			a.rows = append(a.rows, fpl.NewRow(entry, league))
		}
	}

	a.counts[outcome]++
	fplOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

// Rows returns the accumulated rows. The slice is shared; do not modify it.
func (a *Aggregator) Rows() []fpl.Row {
	return a.rows
}

// Report returns the entries that produced no rows.
func (a *Aggregator) Report() Report {
	return a.report
}

// Count returns how many entries ended with the given outcome.
func (a *Aggregator) Count(o Outcome) int {
	return a.counts[o]
}

// Entries returns the number of entries aggregated so far.
func (a *Aggregator) Entries() int {
	return a.counts[OutcomeOK] + a.counts[OutcomeNoData] + a.counts[OutcomeFailed]
}
