// Package testutil provides testing utilities for the league fetcher.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/fpl"
)

// MockResponse defines one scripted response of the mock entry endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RequestRecord is one request observed by the mock.
type RequestRecord struct {
	EntryID int
	Start   time.Time
	End     time.Time
}

// MockAPI is a configurable mock of GET /entry/{id}/.
//
// Each entry has a script of responses consumed in order; once exhausted the
// last response repeats. Entries without a script get the default response.
type MockAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	scripts   map[int][]MockResponse
	fallback  MockResponse
	counts    map[int]int
	records   []RequestRecord
	inFlight  int
	peak      int
	userAgent string
}

// NewMockAPI creates and starts a mock API. The default response is an
// entry with no classic leagues.
func NewMockAPI() *MockAPI {
	m := &MockAPI{
		scripts:  make(map[int][]MockResponse),
		counts:   make(map[int]int),
		fallback: NewLeaguesResponse(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /entry/{id}/", m.handleEntry)
	m.server = httptest.NewServer(mux)

	return m
}

// URL returns the base URL to configure the client with.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetScript sets the responses returned for an entry, in order.
func (m *MockAPI) SetScript(entryID int, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[entryID] = responses
}

// SetDefault sets the response for entries without a script.
func (m *MockAPI) SetDefault(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = resp
}

// RequestCount returns how many requests an entry received.
func (m *MockAPI) RequestCount(entryID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[entryID]
}

// TotalRequests returns the number of requests received.
func (m *MockAPI) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// PeakConcurrency returns the highest number of requests handled at once.
func (m *MockAPI) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Records returns a copy of completed request records.
func (m *MockAPI) Records() []RequestRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RequestRecord, len(m.records))
	copy(out, m.records)
	return out
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockAPI) LastUserAgent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userAgent
}

func (m *MockAPI) handleEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "bad entry id", http.StatusBadRequest)
		return
	}

	start := time.Now()
	m.mu.Lock()
	resp := m.next(entryID)
	m.counts[entryID]++
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	m.userAgent = r.Header.Get("User-Agent")
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.records = append(m.records, RequestRecord{EntryID: entryID, Start: start, End: time.Now()})
		m.mu.Unlock()
	}()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// next pops the entry's next scripted response. Caller holds m.mu.
func (m *MockAPI) next(entryID int) MockResponse {
	script, ok := m.scripts[entryID]
	if !ok || len(script) == 0 {
		return m.fallback
	}
	resp := script[0]
	if len(script) > 1 {
		m.scripts[entryID] = script[1:]
	}
	return resp
}

// NewLeaguesResponse creates a 200 OK entry body listing the given leagues.
func NewLeaguesResponse(leagues ...fpl.League) MockResponse {
	var body fpl.EntryResponse
	body.Leagues.Classic = leagues
	if body.Leagues.Classic == nil {
		body.Leagues.Classic = []fpl.League{}
	}
	data, _ := json.Marshal(body)

	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(data),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRawResponse creates a 200 OK with an arbitrary body.
func NewRawResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 response. An empty retryAfter omits the header.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"detail":"Too many requests"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewStatusResponse creates an error response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"detail":"` + http.StatusText(status) + `"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewSlowResponse delays a successful response, used to trigger timeouts.
func NewSlowResponse(delay time.Duration, leagues ...fpl.League) MockResponse {
	resp := NewLeaguesResponse(leagues...)
	resp.Delay = delay
	return resp
}
