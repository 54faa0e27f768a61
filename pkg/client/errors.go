package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is matched by every TransientFetchError.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// UpstreamError is a non-retryable HTTP failure reported by the remote API.
// It is surfaced on the first occurrence, without retries.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Method     string
	URL        string
	Body       []byte
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream %s error: %s %s returned %d %s",
		e.ErrorClass, e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 {
		msg += ": " + truncate(string(e.Body), 256)
	}
	return msg
}

// TransientFetchError is returned once the retry budget for a transient
// failure (network error, 429 or retryable 5xx) is used up.
type TransientFetchError struct {
	Attempts   int
	ErrorClass ErrorClass
	StatusCode int // 0 for network errors
	Err        error
}

// Error implements the error interface.
func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient %s failure after %d attempts: %v", e.ErrorClass, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRetryExhausted.
func (e *TransientFetchError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// retryableStatus reports whether a status code belongs to the transient set.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// retryableMethod reports whether requests with this method may be re-sent.
// POST is included because every POST this client issues is a read
// (token exchange).
func retryableMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPost:
		return true
	default:
		return false
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
