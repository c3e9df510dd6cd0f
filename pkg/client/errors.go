package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all attempts for an entry failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends while waiting.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrMalformedBody is returned when a 2xx body cannot be decoded.
	ErrMalformedBody = errors.New("malformed response body")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection level failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents requests exceeding the request timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassDecode represents 2xx responses with an unusable body.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError represents a failed attempt against the entry endpoint.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("FPL %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("FPL %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned for a 429 response. It never consumes an attempt.
type RateLimitError struct {
	Signal ratelimit.Signal
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("FPL rate_limit error (status 429): retry after %s", e.Signal.Wait)
}

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that survived redirect handling
		return ErrorClassClient
	}
}

// classifyTransportError separates timeouts from other transport failures.
func classifyTransportError(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}
	return ErrorClassNetwork
}

// errorClassOf extracts the class from an attempt error.
func errorClassOf(err error) ErrorClass {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ErrorClassRateLimit
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return classifyTransportError(err)
}

// consumesAttempt reports whether an error of this class uses up one of the
// entry's attempts. Rate limiting is waited out without charging the budget.
func consumesAttempt(class ErrorClass) bool {
	return class != ErrorClassRateLimit
}
