// Package ratelimit interprets server rate-limit signals (HTTP 429 with an
// optional Retry-After header) and keeps run-wide rate-limit statistics.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultWait is used when a 429 response carries no usable Retry-After.
const DefaultWait = 60 * time.Second

// HeaderRetryAfter is the header carrying the server-requested wait.
const HeaderRetryAfter = "Retry-After"

// Signal describes one rate-limit response.
type Signal struct {
	// Wait is how long the caller must pause before retrying.
	Wait time.Duration `json:"wait"`

	// FromHeader reports whether Wait came from Retry-After or the default.
	FromHeader bool `json:"from_header"`

	// ReceivedAt is when the 429 was observed.
	ReceivedAt time.Time `json:"received_at"`
}

// ResumeAt returns the earliest time a retry may be issued.
func (s Signal) ResumeAt() time.Time {
	return s.ReceivedAt.Add(s.Wait)
}

// IsRateLimited reports whether the response status signals rate limiting.
func IsRateLimited(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

// FromResponse builds a Signal from a 429 response. def is used when the
// header is absent or unparsable.
func FromResponse(resp *http.Response, def time.Duration) Signal {
	wait, ok := ParseRetryAfter(resp.Header, def)
	return Signal{
		Wait:       wait,
		FromHeader: ok,
		ReceivedAt: time.Now(),
	}
}

// ParseRetryAfter reads Retry-After as integer seconds (or, failing that, an
// HTTP date). It returns def and false when the header is missing or invalid.
func ParseRetryAfter(h http.Header, def time.Duration) (time.Duration, bool) {
	if def <= 0 {
		def = DefaultWait
	}
	v := strings.TrimSpace(h.Get(HeaderRetryAfter))
	if v == "" {
		return def, false
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return def, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return def, false
}
