package ingest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/Sternrassler/credly-ingest/pkg/client"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBadges struct {
	result  *StepResult
	err     error
	calls   int
	mode    Mode
	cursor  string
	context context.Context
}

func (f *fakeBadges) Run(ctx context.Context, mode Mode, cursor string) (*StepResult, error) {
	f.calls++
	f.mode, f.cursor, f.context = mode, cursor, ctx
	return f.result, f.err
}

type fakeTemplates struct {
	result *StepResult
	err    error
	calls  int
	mode   Mode
}

func (f *fakeTemplates) Run(_ context.Context, mode Mode) (*StepResult, error) {
	f.calls++
	f.mode = mode
	return f.result, f.err
}

func TestHandler_RejectsInvalidEvents(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantMsg string
	}{
		{
			name:    "missing load type",
			event:   Event{},
			wantMsg: "missing 'load_type' in event",
		},
		{
			name:    "unknown load type",
			event:   Event{LoadType: "users"},
			wantMsg: "unknown load_type: users",
		},
		{
			name:    "unknown mode",
			event:   Event{LoadType: LoadTypeBadges, Mode: "weekly"},
			wantMsg: "unknown mode: weekly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			badges := &fakeBadges{result: &StepResult{}}
			templates := &fakeTemplates{result: &StepResult{}}
			h := NewHandler(badges, templates, zerolog.Nop())

			_, err := h.Invoke(context.Background(), tt.event)

			var invalid *InvalidEventError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Zero(t, badges.calls+templates.calls, "nothing runs for an invalid event")
		})
	}
}

func TestHandler_InvalidEventCounted(t *testing.T) {
	h := NewHandler(&fakeBadges{}, &fakeTemplates{}, zerolog.Nop())
	before := promtest.ToFloat64(failuresTotal.WithLabelValues("invalid"))

	_, err := h.Invoke(context.Background(), Event{LoadType: "nope"})
	require.Error(t, err)

	assert.Equal(t, before+1, promtest.ToFloat64(failuresTotal.WithLabelValues("invalid")))
}

func TestHandler_BadgesDispatch(t *testing.T) {
	var buf bytes.Buffer
	badges := &fakeBadges{result: &StepResult{RecordsProcessed: 50, NextCursor: "c2"}}
	h := NewHandler(badges, &fakeTemplates{}, zerolog.New(&buf))

	resp, err := h.Invoke(context.Background(), Event{LoadType: LoadTypeBadges, Page: "c1"})
	require.NoError(t, err)

	assert.Equal(t, ModeDaily, badges.mode, "mode defaults to daily")
	assert.Equal(t, "c1", badges.cursor)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Successfully processed badges in daily mode", resp.Body.Message)
	assert.Equal(t, 50, resp.Body.RecordsProcessed)
	require.NotNil(t, resp.Body.NextPage)
	assert.Equal(t, "c2", *resp.Body.NextPage)

	// The step logs through the run logger carried by the context.
	zerolog.Ctx(badges.context).Info().Msg("from step")
	assert.Contains(t, buf.String(), `"run_id":`)
	assert.Contains(t, buf.String(), `"load_type":"badges"`)
	assert.Contains(t, buf.String(), `"from step"`)
}

func TestHandler_TemplatesDispatch(t *testing.T) {
	templates := &fakeTemplates{result: &StepResult{RecordsProcessed: 3}}
	h := NewHandler(&fakeBadges{}, templates, zerolog.Nop())

	resp, err := h.Invoke(context.Background(), Event{LoadType: LoadTypeTemplates, Mode: "historical", Page: "ignored"})
	require.NoError(t, err)

	assert.Equal(t, 1, templates.calls)
	assert.Equal(t, ModeHistorical, templates.mode)
	assert.Equal(t, "Successfully processed templates in historical mode", resp.Body.Message)
	assert.Nil(t, resp.Body.NextPage)
}

func TestHandler_StepFailure(t *testing.T) {
	upstream := &client.UpstreamError{StatusCode: 401, Body: []byte("denied")}
	badges := &fakeBadges{err: upstream}
	h := NewHandler(badges, &fakeTemplates{}, zerolog.Nop())
	before := promtest.ToFloat64(failuresTotal.WithLabelValues(LoadTypeBadges))

	resp, err := h.Invoke(context.Background(), Event{LoadType: LoadTypeBadges})

	assert.Zero(t, resp)
	assert.True(t, errors.Is(err, upstream), "the step error is returned unchanged")
	assert.Equal(t, before+1, promtest.ToFloat64(failuresTotal.WithLabelValues(LoadTypeBadges)))
}

func TestResponse_JSONShape(t *testing.T) {
	tests := []struct {
		name string
		body ResponseBody
		want string
	}{
		{
			name: "final page",
			body: ResponseBody{Message: "ok", RecordsProcessed: 2},
			want: `{"statusCode":200,"body":{"message":"ok","records_processed":2,"next_page":null}}`,
		},
		{
			name: "more pages",
			body: ResponseBody{Message: "ok", RecordsProcessed: 2, NextPage: ptr("abc")},
			want: `{"statusCode":200,"body":{"message":"ok","records_processed":2,"next_page":"abc"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(Response{StatusCode: 200, Body: tt.body})
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestEvent_Decode(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"load_type":"badges","mode":"historical","page":"https://x/?page=2"}`), &ev))
	assert.Equal(t, Event{LoadType: "badges", Mode: "historical", Page: "https://x/?page=2"}, ev)
}
