package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        40 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	base := DefaultRetryConfig()

	tests := []struct {
		name            string
		errorClass      ErrorClass
		expectedInitial time.Duration
		expectedMax     time.Duration
	}{
		{
			name:            "server error uses base",
			errorClass:      ErrorClassServer,
			expectedInitial: 1 * time.Second,
			expectedMax:     30 * time.Second,
		},
		{
			name:            "rate limit doubles backoff",
			errorClass:      ErrorClassRateLimit,
			expectedInitial: 2 * time.Second,
			expectedMax:     60 * time.Second,
		},
		{
			name:            "network error uses base",
			errorClass:      ErrorClassNetwork,
			expectedInitial: 1 * time.Second,
			expectedMax:     30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := RetryConfigForErrorClass(base, tt.errorClass)

			if config.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.expectedInitial)
			}
			if config.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", config.MaxBackoff, tt.expectedMax)
			}
			if config.MaxAttempts != base.MaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, base.MaxAttempts)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), zerolog.Nop(), func(int) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(), zerolog.Nop(), func(attempt int) error {
		callCount++
		if attempt != callCount {
			t.Errorf("attempt = %d, want %d", attempt, callCount)
		}
		if callCount < 3 {
			return &retryable{class: ErrorClassServer, err: errors.New("temporary error")}
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	inner := errors.New("persistent error")
	err := retryWithBackoff(context.Background(), testRetryConfig(), zerolog.Nop(), func(int) error {
		callCount++
		return &retryable{class: ErrorClassServer, statusCode: 500, err: inner}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, inner) {
		t.Errorf("Expected wrapped inner error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_PlainErrorNoRetry(t *testing.T) {
	callCount := 0
	clientErr := &UpstreamError{StatusCode: 404, ErrorClass: ErrorClassClient}
	err := retryWithBackoff(context.Background(), testRetryConfig(), zerolog.Nop(), func(int) error {
		callCount++
		return clientErr
	})

	if !errors.Is(err, clientErr) {
		t.Errorf("Expected the upstream error unchanged, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	cfg := testRetryConfig()
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	callCount := 0
	err := retryWithBackoff(ctx, cfg, zerolog.Nop(), func(int) error {
		callCount++
		return &retryable{class: ErrorClassNetwork, err: errors.New("dial tcp")}
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	var timestamps []time.Time
	cfg := testRetryConfig()
	cfg.MaxAttempts = 4
	cfg.MaxBackoff = time.Second

	_ = retryWithBackoff(context.Background(), cfg, zerolog.Nop(), func(int) error {
		timestamps = append(timestamps, time.Now())
		return &retryable{class: ErrorClassServer, err: errors.New("boom")}
	})

	if len(timestamps) != 4 {
		t.Fatalf("Expected 4 calls, got %d", len(timestamps))
	}

	// 10ms, 20ms, 40ms with ±20% jitter
	first := timestamps[1].Sub(timestamps[0])
	third := timestamps[3].Sub(timestamps[2])
	if first < 8*time.Millisecond {
		t.Errorf("first backoff = %v, want >= 8ms", first)
	}
	if third < 32*time.Millisecond {
		t.Errorf("third backoff = %v, want >= 32ms", third)
	}
}

func TestRetryWithBackoff_RetryAfterCappedByMaxBackoff(t *testing.T) {
	cfg := testRetryConfig()

	start := time.Now()
	calls := 0
	_ = retryWithBackoff(context.Background(), cfg, zerolog.Nop(), func(int) error {
		calls++
		if calls == 1 {
			return &retryable{class: ErrorClassServer, retryAfter: time.Hour, err: errors.New("busy")}
		}
		return nil
	})

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("elapsed = %v, Retry-After should be capped at MaxBackoff", elapsed)
	}
}
