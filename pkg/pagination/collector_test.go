package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/Sternrassler/credly-ingest/pkg/credly"
	"github.com/segmentio/encoding/json"
)

var errBoom = errors.New("boom")

// scriptedFetcher serves pages keyed by cursor ("" is the first page).
type scriptedFetcher struct {
	pages   map[string]*credly.Page
	errAt   string
	cursors []string
	params  []url.Values
}

func (f *scriptedFetcher) FetchPage(_ context.Context, _ credly.Resource, params url.Values, cursor string) (*credly.Page, error) {
	f.cursors = append(f.cursors, cursor)
	f.params = append(f.params, params)
	if cursor == f.errAt && f.errAt != "" {
		return nil, errBoom
	}
	page, ok := f.pages[cursor]
	if !ok {
		return nil, fmt.Errorf("unexpected cursor %q", cursor)
	}
	return page, nil
}

func items(ids ...int) []json.RawMessage {
	out := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		out[i] = json.RawMessage(fmt.Sprintf(`{"id":%d}`, id))
	}
	return out
}

func threePages() *scriptedFetcher {
	return &scriptedFetcher{pages: map[string]*credly.Page{
		"":               {Items: items(1, 2), NextCursor: "https://api/p2"},
		"https://api/p2": {Items: items(3), NextCursor: "https://api/p3"},
		"https://api/p3": {Items: items(4, 5)},
	}}
}

func TestCollect_AllPages(t *testing.T) {
	f := threePages()
	c := NewCollector(f, DefaultConfig())

	params := url.Values{"filter": {"x"}}
	result, err := c.Collect(context.Background(), credly.ResourceTemplates, params)
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if result.Pages != 3 {
		t.Errorf("Pages = %d, want 3", result.Pages)
	}
	if len(result.Items) != 5 {
		t.Errorf("Items = %d, want 5", len(result.Items))
	}
	if result.Truncated {
		t.Error("Truncated should be false")
	}

	wantCursors := []string{"", "https://api/p2", "https://api/p3"}
	for i, want := range wantCursors {
		if f.cursors[i] != want {
			t.Errorf("cursor[%d] = %q, want %q", i, f.cursors[i], want)
		}
	}
	if f.params[0].Get("filter") != "x" {
		t.Error("params should be passed to the first page")
	}
}

func TestCollect_MaxPages(t *testing.T) {
	f := threePages()
	cfg := DefaultConfig()
	cfg.MaxPages = 2
	c := NewCollector(f, cfg)

	result, err := c.Collect(context.Background(), credly.ResourceTemplates, nil)
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if result.Pages != 2 || len(result.Items) != 3 {
		t.Errorf("Pages = %d, Items = %d, want 2 and 3", result.Pages, len(result.Items))
	}
	if !result.Truncated {
		t.Error("Truncated should be true")
	}
}

func TestCollect_ErrorIsFatal(t *testing.T) {
	f := threePages()
	f.errAt = "https://api/p2"
	c := NewCollector(f, DefaultConfig())

	result, err := c.Collect(context.Background(), credly.ResourceTemplates, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err != errBoom {
		t.Errorf("error = %v, want the fetcher's error unchanged", err)
	}
	if result != nil {
		t.Error("no partial result should be returned")
	}
}

func TestCollect_RepeatedCursorStops(t *testing.T) {
	tests := []struct {
		name  string
		pages map[string]*credly.Page
		want  int
	}{
		{
			name: "same cursor again",
			pages: map[string]*credly.Page{
				"":               {Items: items(1), NextCursor: "https://api/p2"},
				"https://api/p2": {Items: items(2), NextCursor: "https://api/p2"},
			},
			want: 2,
		},
		{
			name: "cycle back to an earlier cursor",
			pages: map[string]*credly.Page{
				"":               {Items: items(1), NextCursor: "https://api/p2"},
				"https://api/p2": {Items: items(2), NextCursor: "https://api/p3"},
				"https://api/p3": {Items: items(3), NextCursor: "https://api/p2"},
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{pages: tt.pages}
			c := NewCollector(f, DefaultConfig())

			result, err := c.Collect(context.Background(), credly.ResourceTemplates, nil)
			if !errors.Is(err, ErrCursorLoop) {
				t.Fatalf("error = %v, want ErrCursorLoop", err)
			}
			if result != nil {
				t.Error("no partial result should be returned")
			}
			if len(f.cursors) != tt.want {
				t.Errorf("fetched %d pages, want %d", len(f.cursors), tt.want)
			}
		})
	}
}

func TestCollect_EmptyCollection(t *testing.T) {
	f := &scriptedFetcher{pages: map[string]*credly.Page{"": {}}}
	c := NewCollector(f, DefaultConfig())

	result, err := c.Collect(context.Background(), credly.ResourceTemplates, nil)
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if result.Pages != 1 || len(result.Items) != 0 {
		t.Errorf("Pages = %d, Items = %d, want 1 and 0", result.Pages, len(result.Items))
	}
}
