package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Sternrassler/credly-ingest/pkg/ingest"
	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedInvoker returns one response per page and records every event.
type pagedInvoker struct {
	mu     sync.Mutex
	pages  []int
	err    error
	events []ingest.Event
}

func (p *pagedInvoker) Invoke(_ context.Context, event ingest.Event) (ingest.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	if p.err != nil {
		return ingest.Response{}, p.err
	}

	i := len(p.events) - 1
	body := ingest.ResponseBody{Message: "ok", RecordsProcessed: p.pages[i]}
	if i < len(p.pages)-1 {
		next := "cursor-" + string(rune('a'+i))
		body.NextPage = &next
	}
	return ingest.Response{StatusCode: 200, Body: body}, nil
}

func TestRunLoop_FollowsCursorsToTheEnd(t *testing.T) {
	inv := &pagedInvoker{pages: []int{10, 20, 5}}

	sum, err := runLoop(context.Background(), inv, ingest.Event{LoadType: "badges", Mode: "daily"}, 0, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Invocations)
	assert.Equal(t, 35, sum.RecordsProcessed)
	assert.Nil(t, sum.NextPage)
	assert.Equal(t, []string{"", "cursor-a", "cursor-b"}, []string{inv.events[0].Page, inv.events[1].Page, inv.events[2].Page})
}

func TestRunLoop_MaxPagesLeavesRunResumable(t *testing.T) {
	inv := &pagedInvoker{pages: []int{1, 1, 1, 1}}

	sum, err := runLoop(context.Background(), inv, ingest.Event{LoadType: "badges"}, 2, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Invocations)
	require.NotNil(t, sum.NextPage)
	assert.Equal(t, "cursor-b", *sum.NextPage)
}

func TestRunLoop_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	inv := &pagedInvoker{err: boom}

	sum, err := runLoop(context.Background(), inv, ingest.Event{LoadType: "badges"}, 0, zerolog.Nop())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, sum.Invocations)
}

func TestRunLoop_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := &pagedInvoker{pages: []int{1}}

	_, err := runLoop(ctx, inv, ingest.Event{LoadType: "badges"}, 0, zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, inv.events)
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	newMux(&pagedInvoker{}, zerolog.Nop()).ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	newMux(&pagedInvoker{}, zerolog.Nop()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestInvokeEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		invoker    Invoker
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			invoker:    &pagedInvoker{pages: []int{2}},
			body:       `{"load_type":"badges","mode":"historical"}`,
			wantStatus: http.StatusOK,
			wantBody:   `"records_processed": 2`,
		},
		{
			name:       "malformed body",
			invoker:    &pagedInvoker{pages: []int{2}},
			body:       `{"load_type":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid event",
		},
		{
			name:       "invalid event",
			invoker:    &pagedInvoker{err: &ingest.InvalidEventError{Field: "load_type"}},
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "missing 'load_type' in event",
		},
		{
			name:       "step failure",
			invoker:    &pagedInvoker{err: errors.New("upstream down")},
			body:       `{"load_type":"templates"}`,
			wantStatus: http.StatusInternalServerError,
			wantBody:   "upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/invoke", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			newMux(tt.invoker, zerolog.Nop()).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestInvokeCommand(t *testing.T) {
	inv := &pagedInvoker{pages: []int{7, 1}}
	closed := false
	build := func(context.Context) (*env, error) {
		return &env{
			invoker: inv,
			logger:  zerolog.Nop(),
			close:   func() error { closed = true; return nil },
		}, nil
	}

	var out bytes.Buffer
	root := rootCommand(build)
	root.Writer = &out

	err := root.Run(context.Background(), []string{"credly-ingest", "invoke", "--load-type", "badges", "--mode", "historical", "--page", "c0"})
	require.NoError(t, err)

	require.Len(t, inv.events, 1)
	assert.Equal(t, ingest.Event{LoadType: "badges", Mode: "historical", Page: "c0"}, inv.events[0])
	assert.True(t, closed)

	var resp ingest.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, 7, resp.Body.RecordsProcessed)
	require.NotNil(t, resp.Body.NextPage)
}

func TestRunCommand(t *testing.T) {
	inv := &pagedInvoker{pages: []int{3, 4}}
	build := func(context.Context) (*env, error) {
		return &env{invoker: inv, logger: zerolog.Nop(), close: func() error { return nil }}, nil
	}

	var out bytes.Buffer
	root := rootCommand(build)
	root.Writer = &out

	err := root.Run(context.Background(), []string{"credly-ingest", "run", "--mode", "daily"})
	require.NoError(t, err)

	var sum runSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &sum))
	assert.Equal(t, 2, sum.Invocations)
	assert.Equal(t, 7, sum.RecordsProcessed)
	assert.Equal(t, "badges", sum.LoadType)
	assert.Nil(t, sum.NextPage)
}

func TestCommand_BuildFailure(t *testing.T) {
	build := func(context.Context) (*env, error) {
		return nil, errors.New("CREDLY_ORG_ID is required")
	}

	root := rootCommand(build)
	root.Writer = io.Discard
	err := root.Run(context.Background(), []string{"credly-ingest", "invoke"})
	assert.ErrorContains(t, err, "CREDLY_ORG_ID")
}
