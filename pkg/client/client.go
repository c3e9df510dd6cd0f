// Package client fetches classic league memberships for FPL entries with
// bounded concurrency, rate-limit awareness and retry with backoff.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/gate"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/logging"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for entry fetches.
var (
	fplRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_requests_total",
		Help: "Total entry requests by status",
	}, []string{"status"})

	fplRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fpl_request_duration_seconds",
		Help:    "Entry request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	fplErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_errors_total",
		Help: "Total entry request errors by class",
	}, []string{"class"})

	fplFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fpl_fetches_total",
		Help: "Total entry fetches by final status",
	}, []string{"status"})
)

// DefaultBaseURL is the public FPL API root.
const DefaultBaseURL = "https://fantasy.premierleague.com/api"

// Status is the final state of an entry's attempt sequence.
type Status string

const (
	// StatusOK means the last attempt returned a parseable 2xx body.
	StatusOK Status = "ok"

	// StatusFailed means every attempt failed; Leagues is empty.
	StatusFailed Status = "failed"
)

// Result is the outcome of FetchLeagues for one entry.
type Result struct {
	EntryID     int
	Leagues     []fpl.League
	Status      Status
	Attempts    int
	Requests    int
	RateLimited int
	Duration    time.Duration
	Err         error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Failed builds a failed result. Used for paths where no fetch was made.
func Failed(entryID int, err error) Result {
	return Result{
		EntryID: entryID,
		Leagues: []fpl.League{},
		Status:  StatusFailed,
		Err:     err,
	}
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root; requests go to BaseURL + "/entry/{id}/".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// MaxRetries is the number of attempts per entry (rate limits excluded).
	MaxRetries int

	// RequestTimeout bounds a single request including the body read.
	RequestTimeout time.Duration

	// RateLimitWait applies to 429 responses without a usable Retry-After.
	RateLimitWait time.Duration

	// BackoffBase scales the exponential backoff: BackoffBase * 2^attempt.
	BackoffBase time.Duration

	// Jitter is the upper bound of the random pre-request and backoff jitter.
	Jitter time.Duration

	// MaxConcurrency sizes the gate (when Gate is nil) and the idle pool.
	MaxConcurrency int

	// CABundle is an optional PEM file added to the system trust store.
	CABundle string

	// Gate is shared by every fetch of a run. Created from MaxConcurrency if nil.
	Gate *gate.Gate

	// RateLimiter collects 429 statistics. Created if nil.
	RateLimiter *ratelimit.Tracker

	// HTTPClient overrides the session built by NewHTTPClient.
	HTTPClient *http.Client

	// Sleep overrides how waits are performed.
	Sleep SleepFunc

	// Logger is the observability sink. Defaults to the "fpl-client" component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      "fpl-league-fetcher/0.1.0",
		MaxRetries:     5,
		RequestTimeout: 30 * time.Second,
		RateLimitWait:  ratelimit.DefaultWait,
		BackoffBase:    1 * time.Second,
		Jitter:         500 * time.Millisecond,
		MaxConcurrency: gate.DefaultCapacity,
	}
}

// Client fetches league memberships for entries.
type Client struct {
	httpClient  *http.Client
	gate        *gate.Gate
	rateLimiter *ratelimit.Tracker
	sleep       SleepFunc
	baseURL     string
	config      Config
	logger      zerolog.Logger
}

// New creates a new client. Zero-valued numeric fields take their defaults.
func New(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.RateLimitWait <= 0 {
		cfg.RateLimitWait = def.RateLimitWait
	}
	if cfg.BackoffBase < 0 {
		return nil, fmt.Errorf("backoff_base must be >= 0 (got %s)", cfg.BackoffBase)
	}
	if cfg.Jitter < 0 {
		return nil, fmt.Errorf("jitter must be >= 0 (got %s)", cfg.Jitter)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}

	logger := logging.NewLogger("fpl-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = NewHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	}

	g := cfg.Gate
	if g == nil {
		g = gate.New(cfg.MaxConcurrency)
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = ratelimit.NewTracker(logger)
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Client{
		httpClient:  httpClient,
		gate:        g,
		rateLimiter: rl,
		sleep:       sleep,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		config:      cfg,
		logger:      logger,
	}, nil
}

// NewHTTPClient builds the shared session: TLS against the system roots plus
// an optional CA bundle, no cap on connections per host, and a per-request
// timeout. Concurrency is bounded by the gate, not by the transport.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	roots, err := x509.SystemCertPool()
	if err != nil || roots == nil {
		roots = x509.NewCertPool()
	}
	if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %s contains no certificates", cfg.CABundle)
		}
	}

	idle := cfg.MaxConcurrency
	if idle <= 0 {
		idle = gate.DefaultCapacity
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:   true,
		MaxConnsPerHost:     0,
		MaxIdleConns:        0,
		MaxIdleConnsPerHost: idle,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// FetchLeagues returns the classic leagues of one entry. It never returns an
// error: every failure path yields a Result with StatusFailed and no leagues.
func (c *Client) FetchLeagues(ctx context.Context, entryID int) Result {
	start := time.Now()

	var leagues []fpl.League
	stats, err := c.retryWithBackoff(ctx, entryID, func() error {
		var attemptErr error
		leagues, attemptErr = c.attempt(ctx, entryID)
		return attemptErr
	})

	result := Result{
		EntryID:     entryID,
		Attempts:    stats.Attempts,
		Requests:    stats.Requests,
		RateLimited: stats.RateLimited,
		Duration:    time.Since(start),
	}
	if err != nil {
		result.Status = StatusFailed
		result.Leagues = []fpl.League{}
		result.Err = err
		fplFetchesTotal.WithLabelValues(string(StatusFailed)).Inc()
		return result
	}

	result.Status = StatusOK
	result.Leagues = leagues
	fplFetchesTotal.WithLabelValues(string(StatusOK)).Inc()

	c.logger.Debug().
		Int("entry_id", entryID).
		Int("leagues", len(leagues)).
		Int("attempt", stats.Attempts).
		Int("requests", stats.Requests).
		Dur("duration", result.Duration).
		Msg("Entry fetched")

	return result
}

// attempt holds a gate slot for exactly one request and releases it before
// any rate-limit wait or backoff happens.
func (c *Client) attempt(ctx context.Context, entryID int) ([]fpl.League, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	return c.fetchOnce(ctx, entryID)
}

// fetchOnce performs a single GET /entry/{id}/.
func (c *Client) fetchOnce(ctx context.Context, entryID int) ([]fpl.League, error) {
	startTime := time.Now()
	defer func() {
		fplRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.EntryURL(entryID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Int("entry_id", entryID).
		Str("url", req.URL.String()).
		Msg("Executing entry request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		class := classifyTransportError(err)
		fplErrorsTotal.WithLabelValues(string(class)).Inc()
		fplRequestsTotal.WithLabelValues(string(class)).Inc()
		return nil, &APIError{
			ErrorClass: class,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	fplRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if ratelimit.IsRateLimited(resp) {
		fplErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, &RateLimitError{Signal: ratelimit.FromResponse(resp, c.config.RateLimitWait)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		fplErrorsTotal.WithLabelValues(string(class)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	body, err := decodeEntry(resp.Body)
	if err != nil {
		class := ErrorClassDecode
		if classifyTransportError(err) == ErrorClassTimeout {
			class = ErrorClassTimeout
		}
		fplErrorsTotal.WithLabelValues(string(class)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    "decode entry body",
			Err:        fmt.Errorf("%w: %v", ErrMalformedBody, err),
		}
	}

	leagues := body.Leagues.Classic
	if leagues == nil {
		leagues = []fpl.League{}
	}
	return leagues, nil
}

// decodeEntry reads exactly one JSON document. Anything but whitespace after
// it makes the body malformed.
func decodeEntry(r io.Reader) (fpl.EntryResponse, error) {
	var body fpl.EntryResponse
	dec := json.NewDecoder(r)
	if err := dec.Decode(&body); err != nil {
		return body, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("unexpected data after entry document")
		}
		return body, err
	}
	return body, nil
}

// EntryURL returns the endpoint for one entry.
func (c *Client) EntryURL(entryID int) string {
	return fmt.Sprintf("%s/entry/%d/", c.baseURL, entryID)
}

// Gate returns the admission gate shared by this client's fetches.
func (c *Client) Gate() *gate.Gate {
	return c.gate
}

// RateLimiter returns the rate-limit tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

// Close releases idle connections held by the session.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
