// Package client provides the HTTP client used to talk to the Credly API,
// with fixed per-call timeouts, request pacing and bounded retries for
// transient failures.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for HTTP operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_http_requests_total",
		Help: "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credly_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_http_errors_total",
		Help: "Total HTTP errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Config holds the client configuration.
type Config struct {
	// Timeout bounds every single HTTP attempt.
	Timeout time.Duration

	// Retry controls the backoff policy for transient failures.
	Retry RetryConfig

	// UserAgent is sent with every request.
	UserAgent string

	// Limiter paces requests. Nil disables pacing.
	Limiter *ratelimit.Limiter
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
		UserAgent: "credly-ingest/1.0",
	}
}

// Client issues HTTP requests with retries. It carries no business logic.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	if cfg.Retry.BackoffMultiplier < 1 {
		return nil, fmt.Errorf("backoff_multiplier must be >= 1 (got %v)", cfg.Retry.BackoffMultiplier)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "http-client").Logger(),
		now:    time.Now,
	}, nil
}

// Request describes one logical HTTP call. The body is buffered so that it
// can be re-sent on every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do performs the request. Network failures and statuses 429, 500, 502, 503
// and 504 are retried for GET, HEAD, OPTIONS and POST. When the budget runs
// out a *TransientFetchError is returned. Any other status >= 400 is returned
// immediately as an *UpstreamError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	canRetry := retryableMethod(method)
	endpoint := redactQuery(req.URL)

	var result *Response

	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func(attempt int) error {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		for key, values := range req.Header {
			for _, v := range values {
				httpReq.Header.Add(key, v)
			}
		}
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
		if httpReq.Header.Get("Accept") == "" {
			httpReq.Header.Set("Accept", "application/json")
		}

		c.logger.Debug().
			Str("method", method).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Msg("Executing request")

		start := c.now()
		resp, err := c.httpClient.Do(httpReq)
		requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %v", ErrContextCancelled, ctxErr)
			}
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(method, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")

			if !canRetry {
				return &TransientFetchError{Attempts: attempt, ErrorClass: ErrorClassNetwork, Err: err}
			}
			return &retryable{class: ErrorClassNetwork, err: err}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

		if state, ok := ratelimit.ParseHeaders(resp.Header, c.now()); ok {
			c.config.Limiter.Observe(state, c.now())
		}

		if resp.StatusCode >= 400 {
			errClass := classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Request error")

			if retryableStatus(resp.StatusCode) {
				statusErr := fmt.Errorf("%s %s returned %d %s", method, endpoint,
					resp.StatusCode, http.StatusText(resp.StatusCode))
				if !canRetry {
					return &TransientFetchError{
						Attempts:   attempt,
						ErrorClass: errClass,
						StatusCode: resp.StatusCode,
						Err:        statusErr,
					}
				}
				return &retryable{
					class:      errClass,
					statusCode: resp.StatusCode,
					retryAfter: ratelimit.RetryAfter(resp.Header, c.now()),
					err:        statusErr,
				}
			}

			return &UpstreamError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Method:     method,
				URL:        endpoint,
				Body:       body,
			}
		}

		if readErr != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			if !canRetry {
				return &TransientFetchError{Attempts: attempt, ErrorClass: ErrorClassNetwork, Err: readErr}
			}
			return &retryable{class: ErrorClassNetwork, err: fmt.Errorf("read body: %w", readErr)}
		}

		result = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Header: header})
}

// PostForm performs a form-encoded POST request.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (*Response, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(ctx, Request{
		Method: http.MethodPost,
		URL:    rawURL,
		Header: h,
		Body:   []byte(form.Encode()),
	})
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// redactQuery strips the query string so that logs never carry filter values
// or continuation tokens.
func redactQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
