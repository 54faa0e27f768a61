package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/credly"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
)

// Config holds collector configuration.
type Config struct {
	// MaxPages stops the walk after this many pages. 0 means no limit.
	MaxPages int

	// Timeout per page fetch. 0 means only the caller's context applies.
	Timeout time.Duration

	// ProgressEvery logs progress every N pages.
	ProgressEvery int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxPages:      0,
		Timeout:       2 * time.Minute,
		ProgressEvery: 50,
	}
}

// PageFetcher fetches a single page of a resource. *credly.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, resource credly.Resource, params url.Values, cursor string) (*credly.Page, error)
}

// Result is everything gathered by one walk.
type Result struct {
	Items []json.RawMessage
	Pages int

	// Truncated is true when MaxPages stopped the walk before the last page.
	Truncated bool
}

// ErrCursorLoop is returned when upstream hands out a cursor that was
// already followed in the same walk.
var ErrCursorLoop = errors.New("pagination cursor repeats")

// Collector follows cursors until a collection is exhausted.
type Collector struct {
	fetcher PageFetcher
	config  Config
}

// NewCollector creates a new collector.
func NewCollector(fetcher PageFetcher, config Config) *Collector {
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = 50
	}
	return &Collector{
		fetcher: fetcher,
		config:  config,
	}
}

// Collect fetches every page of the resource, in order.
func (c *Collector) Collect(ctx context.Context, resource credly.Resource, params url.Values) (*Result, error) {
	start := time.Now()
	result := &Result{}
	cursor := ""
	seen := make(map[string]struct{})

	for {
		page, err := c.fetch(ctx, resource, params, cursor)
		if err != nil {
			log.Error().
				Err(err).
				Str("resource", string(resource)).
				Int("page", result.Pages+1).
				Msg("Page fetch failed")
			return nil, err
		}

		result.Items = append(result.Items, page.Items...)
		result.Pages++
		cursor = page.NextCursor

		if result.Pages%c.config.ProgressEvery == 0 {
			log.Info().
				Str("resource", string(resource)).
				Int("pages", result.Pages).
				Int("records", len(result.Items)).
				Msg("Fetch progress")
		}

		if cursor == "" {
			break
		}
		if _, ok := seen[cursor]; ok {
			log.Error().
				Str("resource", string(resource)).
				Int("pages", result.Pages).
				Msg("Cursor repeats, stopping the walk")
			return nil, fmt.Errorf("%w: %s after %d pages", ErrCursorLoop, resource, result.Pages)
		}
		seen[cursor] = struct{}{}
		if c.config.MaxPages > 0 && result.Pages >= c.config.MaxPages {
			result.Truncated = true
			log.Warn().
				Str("resource", string(resource)).
				Int("max_pages", c.config.MaxPages).
				Msg("Page limit reached before the last page")
			break
		}
	}

	log.Info().
		Str("resource", string(resource)).
		Int("pages", result.Pages).
		Int("records", len(result.Items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return result, nil
}

func (c *Collector) fetch(ctx context.Context, resource credly.Resource, params url.Values, cursor string) (*credly.Page, error) {
	if c.config.Timeout <= 0 {
		return c.fetcher.FetchPage(ctx, resource, params, cursor)
	}
	pageCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return c.fetcher.FetchPage(pageCtx, resource, params, cursor)
}
