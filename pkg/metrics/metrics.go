// Package metrics exposes the Prometheus registry used by the fetcher and an
// optional HTTP endpoint that serves it while a run is in progress.
// Metrics are defined in the packages that record them (client, gate,
// ratelimit, batch, aggregate, cache) and registered through promauto.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the registerer every fetcher metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - fpl_requests_total{status} (Counter): HTTP responses by status code
//   - fpl_request_duration_seconds (Histogram): single request duration
//   - fpl_errors_total{class} (Counter): failed requests by error class
//   - fpl_fetches_total{status} (Counter): finished entry fetches (ok, failed)
//
// Retry Metrics (pkg/client):
//   - fpl_retries_total{error_class} (Counter): attempts followed by a backoff
//   - fpl_retry_backoff_seconds{error_class} (Histogram): backoff durations
//   - fpl_retry_exhausted_total{error_class} (Counter): entries out of attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - fpl_rate_limited_total (Counter): 429 responses
//   - fpl_rate_limit_wait_seconds (Histogram): waits taken after a 429
//
// Admission Metrics (pkg/gate):
//   - fpl_gate_in_flight (Gauge): requests currently holding a slot
//   - fpl_gate_waits_total (Counter): acquisitions that had to wait
//
// Batch Metrics (pkg/batch, pkg/aggregate):
//   - fpl_batches_total (Counter): completed batches
//   - fpl_batch_duration_seconds (Histogram): fan-out to barrier duration
//   - fpl_task_panics_total (Counter): recovered task panics
//   - fpl_entry_outcomes_total{outcome} (Counter): ok, no_data, failed
//
// Cache Metrics (pkg/cache):
//   - fpl_cache_hits_total{layer} (Counter): hits by layer (redis)
//   - fpl_cache_misses_total (Counter): misses
//   - fpl_cache_errors_total{operation} (Counter): cache operation errors
//
// Example Prometheus Queries:
//
//   # Failure ratio
//   sum(fpl_fetches_total{status="failed"}) / sum(fpl_fetches_total)
//
//   # Gate saturation
//   fpl_gate_in_flight
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(fpl_request_duration_seconds_bucket[5m]))

// Handler returns the mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Server serves Handler on a listener owned by one run.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger zerolog.Logger
	done   chan struct{}
}

// Start binds addr and serves in the background. A bind failure is returned
// immediately.
func Start(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on metrics address %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	logger.Info().Str("addr", s.Addr()).Msg("Metrics endpoint enabled")
	return s, nil
}

// Addr returns the bound address, useful when started on port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server and waits for the serve loop to return.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
