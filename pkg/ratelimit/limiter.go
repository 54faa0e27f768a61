package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "credly_rate_limit_remaining",
		Help: "Requests remaining in the current API rate limit window",
	})

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "credly_rate_limit_wait_seconds",
		Help:    "Time spent waiting for the client-side request limiter",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Limiter paces outbound requests. A nil *Limiter never waits.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewLimiter creates a limiter allowing requestsPerSecond with the given burst.
// Returns nil when requestsPerSecond <= 0, which disables pacing.
func NewLimiter(requestsPerSecond float64, burst int, logger zerolog.Logger) *Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		logger:  logger,
	}
}

// Wait blocks until the next request is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	throttleWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Observe records the quota state carried by a response.
func (l *Limiter) Observe(state State, now time.Time) {
	quotaRemaining.Set(float64(state.Remaining))
	if l == nil || !state.NeedsThrottling() {
		return
	}
	l.logger.Warn().
		Int("remaining", state.Remaining).
		Int("limit", state.Limit).
		Dur("reset_in", state.TimeUntilReset(now)).
		Msg("API rate limit nearly exhausted")
}
