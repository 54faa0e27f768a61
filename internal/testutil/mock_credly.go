// Package testutil provides testing utilities for the Credly ingestion engine.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is what the mock saw for one request.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// MockCredly is a configurable mock Credly API server for testing.
type MockCredly struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests []RecordedRequest
}

// NewMockCredly creates a new mock Credly server.
func NewMockCredly() *MockCredly {
	mock := &MockCredly{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"data":{"message":"not found"}}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCredly) URL() string {
	return m.server.URL
}

// BaseURL returns the URL to use as the API base (server URL + "/v1").
func (m *MockCredly) BaseURL() string {
	return m.server.URL + "/v1"
}

// Close shuts down the mock server.
func (m *MockCredly) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockCredly) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCredly) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockCredly) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence serves the responses in order, repeating the last one once
// the sequence is used up.
func (m *MockCredly) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(next, len(responses)-1)]
		next++
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// SetPages serves a paginated collection at path. pages[i] is the JSON array
// body of the data field of page i+1. Every page but the last links to the
// next one through metadata.next_page_url using a "page" query parameter,
// preserving any extra query the first request carried.
func (m *MockCredly) SetPages(path string, pages ...string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		n := 1
		if p := r.URL.Query().Get("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil {
				n = v
			}
		}
		if n < 1 || n > len(pages) {
			writeResponse(w, MockResponse{StatusCode: http.StatusBadRequest, Body: `{"data":{"message":"bad page"}}`})
			return
		}

		next := ""
		if n < len(pages) {
			q := r.URL.Query()
			q.Set("page", strconv.Itoa(n+1))
			next = m.server.URL + path + "?" + q.Encode()
		}
		writeResponse(w, NewHealthyResponse(PageBody(pages[n-1], next)))
	})
}

// Requests returns a copy of the recorded requests.
func (m *MockCredly) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCredly) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// CountPath returns the number of requests made to path.
func (m *MockCredly) CountPath(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// PageBody builds a list envelope around a JSON array of records.
// An empty next produces a page without continuation.
func PageBody(dataArray string, next string) string {
	if next == "" {
		return fmt.Sprintf(`{"data":%s,"metadata":{"count":0,"next_page_url":null}}`, dataArray)
	}
	return fmt.Sprintf(`{"data":%s,"metadata":{"next_page_url":%q}}`, dataArray, next)
}

// BadgesPath returns the badge search path for an organization.
func BadgesPath(orgID string) string {
	return "/v1/organizations/" + orgID + "/high_volume_issued_badge_search"
}

// TemplatesPath returns the badge templates path for an organization.
func TemplatesPath(orgID string) string {
	return "/v1/organizations/" + orgID + "/badge_templates"
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":          "application/json; charset=utf-8",
			"X-RateLimit-Limit":     "1000",
			"X-RateLimit-Remaining": "999",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"data":{"message":"Rate limit exceeded"}}`,
		Headers: map[string]string{
			"Content-Type":          "application/json; charset=utf-8",
			"X-RateLimit-Remaining": "0",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"data":{"message":"Internal server error"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewUnauthorizedResponse creates a 401 Unauthorized response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"data":{"message":"Unauthorized"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewTokenResponse creates a Credly OAuth token response.
func NewTokenResponse(token string, expiresIn int) MockResponse {
	return NewHealthyResponse(fmt.Sprintf(`{"data":{"token":%q,"expires_in":%d}}`, token, expiresIn))
}
