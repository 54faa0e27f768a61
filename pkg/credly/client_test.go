package credly

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/credly-ingest/internal/testutil"
	"github.com/Sternrassler/credly-ingest/pkg/auth"
	"github.com/Sternrassler/credly-ingest/pkg/client"
	"github.com/Sternrassler/credly-ingest/pkg/secrets"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

const orgID = "org-1"

func newTestFetcher(t *testing.T, mock *testutil.MockCredly) *Client {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	httpClient, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() failed: %v", err)
	}

	store := secrets.NewStaticStore(map[string]map[string]string{
		"creds": {"api_token": "tok"},
	})
	provider := auth.NewStaticProvider(store, "creds", zerolog.Nop())

	c, err := New(httpClient, provider, Config{BaseURL: mock.BaseURL() + "/", OrgID: orgID}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	httpClient, _ := client.New(client.DefaultConfig())
	provider := auth.NewStaticProvider(secrets.NewStaticStore(nil), "x", zerolog.Nop())

	if _, err := New(nil, provider, Config{OrgID: "o"}, zerolog.Nop()); err == nil {
		t.Error("expected error for nil http client")
	}
	if _, err := New(httpClient, nil, Config{OrgID: "o"}, zerolog.Nop()); err == nil {
		t.Error("expected error for nil auth provider")
	}
	if _, err := New(httpClient, provider, Config{}, zerolog.Nop()); err == nil {
		t.Error("expected error for missing org id")
	}

	c, err := New(httpClient, provider, Config{OrgID: "o"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if c.config.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.config.BaseURL, DefaultBaseURL)
	}
}

func TestFetchPage_FirstPageUsesParams(t *testing.T) {
	mock := testutil.NewMockCredly()
	defer mock.Close()
	mock.SetResponse(testutil.BadgesPath(orgID), testutil.NewHealthyResponse(
		testutil.PageBody(`[{"id":"b1"},{"id":"b2"}]`, ""),
	))

	c := newTestFetcher(t, mock)
	params := url.Values{"start_date": {"2025-03-09 00:00:00"}, "end_date": {"2025-03-10 12:00:00"}}

	page, err := c.FetchPage(context.Background(), ResourceBadges, params, "")
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}

	if len(page.Items) != 2 {
		t.Errorf("Items = %d, want 2", len(page.Items))
	}
	if page.NextCursor != "" {
		t.Errorf("NextCursor = %q, want empty", page.NextCursor)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	q, _ := url.ParseQuery(reqs[0].Query)
	if q.Get("start_date") != "2025-03-09 00:00:00" || q.Get("end_date") != "2025-03-10 12:00:00" {
		t.Errorf("query = %q", reqs[0].Query)
	}
	if !strings.HasPrefix(reqs[0].Header.Get("Authorization"), "Basic ") {
		t.Errorf("Authorization = %q", reqs[0].Header.Get("Authorization"))
	}
}

func TestFetchPage_CursorUsedVerbatim(t *testing.T) {
	mock := testutil.NewMockCredly()
	defer mock.Close()
	mock.SetResponse(testutil.BadgesPath(orgID), testutil.NewHealthyResponse(
		testutil.PageBody(`[{"id":"b3"}]`, ""),
	))

	c := newTestFetcher(t, mock)
	cursor := mock.URL() + testutil.BadgesPath(orgID) + "?page=7&start_date=2000-01-01+00%3A00%3A00&badge_format=minimal"
	params := url.Values{"start_date": {"ignored"}}

	if _, err := c.FetchPage(context.Background(), ResourceBadges, params, cursor); err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}

	reqs := mock.Requests()
	if got := reqs[0].Query; got != "page=7&start_date=2000-01-01+00%3A00%3A00&badge_format=minimal" {
		t.Errorf("query = %q, the cursor must be requested as is", got)
	}
}

func TestFetchPage_NextCursorNormalized(t *testing.T) {
	mock := testutil.NewMockCredly()
	defer mock.Close()
	next := "https://api.credly.com/v1/organizations/org-1/high_volume_issued_badge_search?badge_format=default&page=2"
	mock.SetResponse(testutil.BadgesPath(orgID), testutil.NewHealthyResponse(
		testutil.PageBody(`[]`, next),
	))

	c := newTestFetcher(t, mock)
	page, err := c.FetchPage(context.Background(), ResourceBadges, nil, "")
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}

	want := "https://api.credly.com/v1/organizations/org-1/high_volume_issued_badge_search?badge_format=minimal&page=2"
	if page.NextCursor != want {
		t.Errorf("NextCursor = %q, want %q", page.NextCursor, want)
	}
}

func TestFetchPage_EnvelopeVariants(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantItems int
		wantNext  string
		wantParse bool
	}{
		{name: "no metadata", body: `{"data":[{"id":1}]}`, wantItems: 1},
		{name: "null next", body: `{"data":[],"metadata":{"next_page_url":null}}`},
		{name: "next present", body: `{"data":[{"id":1}],"metadata":{"next_page_url":"https://x/p2"}}`, wantItems: 1, wantNext: "https://x/p2"},
		{name: "data missing", body: `{"metadata":{}}`, wantParse: true},
		{name: "data not array", body: `{"data":{"id":1}}`, wantParse: true},
		{name: "not json", body: `<html></html>`, wantParse: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCredly()
			defer mock.Close()
			mock.SetResponse(testutil.TemplatesPath(orgID), testutil.NewHealthyResponse(tt.body))

			c := newTestFetcher(t, mock)
			page, err := c.FetchPage(context.Background(), ResourceTemplates, nil, "")

			if tt.wantParse {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Fatalf("error = %v, want *ParseError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchPage() failed: %v", err)
			}
			if len(page.Items) != tt.wantItems {
				t.Errorf("Items = %d, want %d", len(page.Items), tt.wantItems)
			}
			if page.NextCursor != tt.wantNext {
				t.Errorf("NextCursor = %q, want %q", page.NextCursor, tt.wantNext)
			}
		})
	}
}

func TestFetchPage_ErrorsPropagate(t *testing.T) {
	t.Run("upstream", func(t *testing.T) {
		mock := testutil.NewMockCredly()
		defer mock.Close()
		mock.SetResponse(testutil.BadgesPath(orgID), testutil.NewUnauthorizedResponse())

		c := newTestFetcher(t, mock)
		_, err := c.FetchPage(context.Background(), ResourceBadges, nil, "")

		var upstream *client.UpstreamError
		if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusUnauthorized {
			t.Errorf("error = %v, want *client.UpstreamError with 401", err)
		}
	})

	t.Run("transient", func(t *testing.T) {
		mock := testutil.NewMockCredly()
		defer mock.Close()
		mock.SetResponse(testutil.BadgesPath(orgID), testutil.NewServerErrorResponse())

		c := newTestFetcher(t, mock)
		_, err := c.FetchPage(context.Background(), ResourceBadges, nil, "")

		var transient *client.TransientFetchError
		if !errors.As(err, &transient) {
			t.Errorf("error = %v, want *client.TransientFetchError", err)
		}
		if mock.GetRequestCount() != 3 {
			t.Errorf("requests = %d, want 3", mock.GetRequestCount())
		}
	})

	t.Run("auth", func(t *testing.T) {
		mock := testutil.NewMockCredly()
		defer mock.Close()

		httpClient, _ := client.New(client.DefaultConfig())
		provider := auth.NewStaticProvider(secrets.NewStaticStore(map[string]map[string]string{"creds": {}}), "creds", zerolog.Nop())
		c, _ := New(httpClient, provider, Config{BaseURL: mock.BaseURL(), OrgID: orgID}, zerolog.Nop())

		_, err := c.FetchPage(context.Background(), ResourceBadges, nil, "")
		var cfgErr *auth.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("error = %v, want *auth.ConfigurationError", err)
		}
		if mock.GetRequestCount() != 0 {
			t.Error("no API request should be made without credentials")
		}
	})
}

func TestFetchPage_CountsRequestsRegardlessOfOutcome(t *testing.T) {
	mock := testutil.NewMockCredly()
	defer mock.Close()
	mock.SetSequence(testutil.TemplatesPath(orgID),
		testutil.NewHealthyResponse(testutil.PageBody(`[]`, "")),
		testutil.MockResponse{StatusCode: http.StatusNotFound},
	)

	c := newTestFetcher(t, mock)
	counter := apiRequestsTotal.WithLabelValues(string(ResourceTemplates))
	before := promtest.ToFloat64(counter)

	if _, err := c.FetchPage(context.Background(), ResourceTemplates, nil, ""); err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if _, err := c.FetchPage(context.Background(), ResourceTemplates, nil, ""); err == nil {
		t.Fatal("expected 404 error")
	}

	if got := promtest.ToFloat64(counter) - before; got != 2 {
		t.Errorf("request counter delta = %v, want 2", got)
	}
}

func TestNormalizeCursor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "https://x/p?page=2", want: "https://x/p?page=2"},
		{in: "https://x/p?badge_format=default", want: "https://x/p?badge_format=minimal"},
		{in: "https://x/p?badge_format=minimal&page=3", want: "https://x/p?badge_format=minimal&page=3"},
	}

	for _, tt := range tests {
		if got := NormalizeCursor(tt.in); got != tt.want {
			t.Errorf("NormalizeCursor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResourcePath(t *testing.T) {
	if _, err := Resource("widgets").path("o"); err == nil {
		t.Error("expected error for unknown resource")
	}
	p, _ := ResourceTemplates.path("a b")
	if p != "organizations/a%20b/badge_templates" {
		t.Errorf("path = %q", p)
	}
}
