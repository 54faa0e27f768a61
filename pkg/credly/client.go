// Package credly fetches single pages from the Credly organization API.
package credly

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/credly-ingest/pkg/auth"
	"github.com/Sternrassler/credly-ingest/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/segmentio/encoding/json"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.credly.com/v1"

// apiRequestsTotal counts page requests before they are sent, whatever
// their outcome.
var apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "credly_api_requests_total",
	Help: "Credly API page requests by resource, counted before execution",
}, []string{"resource"})

// Resource is an organization-scoped API collection.
type Resource string

const (
	// ResourceBadges is the high-volume issued badge search.
	ResourceBadges Resource = "badges"

	// ResourceTemplates lists badge templates.
	ResourceTemplates Resource = "templates"
)

// path returns the resource path relative to the base URL.
func (r Resource) path(orgID string) (string, error) {
	switch r {
	case ResourceBadges:
		return "organizations/" + url.PathEscape(orgID) + "/high_volume_issued_badge_search", nil
	case ResourceTemplates:
		return "organizations/" + url.PathEscape(orgID) + "/badge_templates", nil
	default:
		return "", fmt.Errorf("unknown resource %q", string(r))
	}
}

// Page is one page of raw records plus the continuation cursor.
// NextCursor is empty on the last page.
type Page struct {
	Items      []json.RawMessage
	NextCursor string
}

// envelope is the response wrapper shared by all list endpoints.
type envelope struct {
	Data     *[]json.RawMessage `json:"data"`
	Metadata *struct {
		NextPageURL *string `json:"next_page_url"`
	} `json:"metadata"`
}

// HTTPDoer is the subset of *client.Client used by the fetcher.
type HTTPDoer interface {
	Get(ctx context.Context, rawURL string, header http.Header) (*client.Response, error)
}

// Config holds the fetcher configuration.
type Config struct {
	BaseURL string
	OrgID   string
}

// Client fetches pages of one organization's resources.
type Client struct {
	http   HTTPDoer
	auth   auth.Provider
	config Config
	logger zerolog.Logger
}

// New creates a page fetcher.
func New(httpClient HTTPDoer, provider auth.Provider, cfg Config, logger zerolog.Logger) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("auth provider is required")
	}
	if cfg.OrgID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		http:   httpClient,
		auth:   provider,
		config: cfg,
		logger: logger,
	}, nil
}

// FetchPage fetches exactly one page. A non-empty cursor is requested
// verbatim and params are ignored, because the cursor already encodes every
// filter. Otherwise the resource URL is combined with params.
//
// Errors from the HTTP client (*client.TransientFetchError,
// *client.UpstreamError) and from authentication are returned unchanged.
func (c *Client) FetchPage(ctx context.Context, resource Resource, params url.Values, cursor string) (*Page, error) {
	requestURL := cursor
	if requestURL == "" {
		var err error
		requestURL, err = c.resourceURL(resource, params)
		if err != nil {
			return nil, err
		}
	}

	apiRequestsTotal.WithLabelValues(string(resource)).Inc()

	header, err := c.auth.AuthHeaders(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("resource", string(resource)).
		Bool("cursor_present", cursor != "").
		Msg("Fetching page")

	resp, err := c.http.Get(ctx, requestURL, header)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, &ParseError{Resource: resource, Index: -1, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if env.Data == nil {
		return nil, &ParseError{Resource: resource, Index: -1, Err: fmt.Errorf("response has no data array")}
	}

	page := &Page{Items: *env.Data}
	if env.Metadata != nil && env.Metadata.NextPageURL != nil {
		page.NextCursor = NormalizeCursor(*env.Metadata.NextPageURL)
	}

	c.logger.Debug().
		Str("resource", string(resource)).
		Int("records", len(page.Items)).
		Bool("has_next", page.NextCursor != "").
		Msg("Fetched page")

	return page, nil
}

func (c *Client) resourceURL(resource Resource, params url.Values) (string, error) {
	path, err := resource.path(c.config.OrgID)
	if err != nil {
		return "", err
	}
	u := c.config.BaseURL + "/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u, nil
}

// NormalizeCursor downgrades a continuation URL that asks for the verbose
// badge format to the minimal one, keeping later pages small. Everything
// else in the cursor is left byte-for-byte intact.
func NormalizeCursor(cursor string) string {
	return strings.ReplaceAll(cursor, "badge_format=default", "badge_format=minimal")
}
