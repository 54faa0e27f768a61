package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_http_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credly_http_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_http_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass derives the retry configuration for an error class
// from a base configuration. Rate limiting backs off twice as long as the base.
func RetryConfigForErrorClass(base RetryConfig, errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassRateLimit:
		cfg := base
		cfg.InitialBackoff = 2 * base.InitialBackoff
		cfg.MaxBackoff = 2 * base.MaxBackoff
		return cfg
	default:
		return base
	}
}

// retryable marks an attempt failure that may be retried.
type retryable struct {
	class      ErrorClass
	statusCode int
	retryAfter time.Duration
	err        error
}

func (r *retryable) Error() string { return r.err.Error() }

func (r *retryable) Unwrap() error { return r.err }

// retryWithBackoff executes fn until it succeeds, returns a non-retryable
// error, or the attempt budget is exhausted. Only errors of type *retryable
// are retried. It respects context cancellation and adds jitter to the backoff.
func retryWithBackoff(ctx context.Context, base RetryConfig, logger zerolog.Logger, fn func(attempt int) error) error {
	var backoff time.Duration

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return nil
		}

		var r *retryable
		if !errors.As(err, &r) || !shouldRetry(r.class) {
			return err
		}

		config := RetryConfigForErrorClass(base, r.class)
		if attempt == 1 {
			backoff = config.InitialBackoff
		}

		if attempt >= config.MaxAttempts {
			retryExhaustedTotal.WithLabelValues(string(r.class)).Inc()
			logger.Warn().
				Str("error_class", string(r.class)).
				Int("max_attempts", config.MaxAttempts).
				Msg("Retry attempts exhausted")
			return &TransientFetchError{
				Attempts:   attempt,
				ErrorClass: r.class,
				StatusCode: r.statusCode,
				Err:        r.err,
			}
		}

		retriesTotal.WithLabelValues(string(r.class)).Inc()

		// ±20% jitter
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		if r.retryAfter > wait {
			wait = min(r.retryAfter, config.MaxBackoff)
		}
		retryBackoffSeconds.WithLabelValues(string(r.class)).Observe(wait.Seconds())

		logger.Warn().
			Err(r.err).
			Str("error_class", string(r.class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
}
