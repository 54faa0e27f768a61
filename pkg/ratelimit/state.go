// Package ratelimit paces outbound API requests and interprets the
// back-pressure headers returned by the Credly API.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response headers carrying the quota state.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// ThresholdWarning marks the remaining-quota level below which the client logs warnings.
const ThresholdWarning = 10

// State is the quota snapshot parsed from a single response.
type State struct {
	// Limit is the request allowance of the current window.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the window resets. Zero if unknown.
	ResetAt time.Time
}

// NeedsThrottling returns true when the remaining quota is below ThresholdWarning.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time is unknown or has already passed.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	if s.ResetAt.IsZero() {
		return 0
	}
	if d := s.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ParseHeaders extracts the quota state from response headers.
// The second return value is false when the response carries no quota headers.
//
// X-RateLimit-Reset is accepted either as a unix timestamp or as seconds
// until reset; values smaller than a day are treated as a delta.
func ParseHeaders(h http.Header, now time.Time) (State, bool) {
	remainStr := h.Get(HeaderRemaining)
	if remainStr == "" {
		return State{}, false
	}
	remain, err := strconv.Atoi(strings.TrimSpace(remainStr))
	if err != nil {
		return State{}, false
	}

	state := State{Remaining: remain}
	if limit, err := strconv.Atoi(strings.TrimSpace(h.Get(HeaderLimit))); err == nil {
		state.Limit = limit
	}
	if reset, err := strconv.ParseInt(strings.TrimSpace(h.Get(HeaderReset)), 10, 64); err == nil && reset > 0 {
		if reset < int64((24 * time.Hour).Seconds()) {
			state.ResetAt = now.Add(time.Duration(reset) * time.Second)
		} else {
			state.ResetAt = time.Unix(reset, 0)
		}
	}
	return state, true
}

// RetryAfter parses the Retry-After header, given either as delta-seconds or
// as an HTTP date. Returns 0 when the header is absent or malformed.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get(HeaderRetryAfter))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
