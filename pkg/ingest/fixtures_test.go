package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/Sternrassler/credly-ingest/pkg/credly"
	"github.com/segmentio/encoding/json"
)

// scriptedFetcher serves pages keyed by cursor ("" is the first page).
type scriptedFetcher struct {
	mu      sync.Mutex
	pages   map[string]*credly.Page
	errs    map[string]error
	cursors []string
	params  []url.Values
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		pages: make(map[string]*credly.Page),
		errs:  make(map[string]error),
	}
}

func (f *scriptedFetcher) FetchPage(_ context.Context, _ credly.Resource, params url.Values, cursor string) (*credly.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cursors = append(f.cursors, cursor)
	f.params = append(f.params, params)
	if err := f.errs[cursor]; err != nil {
		return nil, err
	}
	page, ok := f.pages[cursor]
	if !ok {
		return nil, fmt.Errorf("unexpected cursor %q", cursor)
	}
	return page, nil
}

// chain serves pages in order; each page's cursor is "p{n}".
func (f *scriptedFetcher) chain(pages ...[]json.RawMessage) {
	for i, items := range pages {
		cursor := ""
		if i > 0 {
			cursor = fmt.Sprintf("p%d", i+1)
		}
		next := ""
		if i < len(pages)-1 {
			next = fmt.Sprintf("p%d", i+2)
		}
		f.pages[cursor] = &credly.Page{Items: items, NextCursor: next}
	}
}

// seqParts hands out 1, 2, 3, ...
type seqParts struct {
	mu   sync.Mutex
	next int64
}

func (p *seqParts) Next() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return p.next
}

func badgeItems(ids ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		out[i] = json.RawMessage(fmt.Sprintf(`{"id":%q,"issued_to":"user %s","public":true,"issuer":{"entities":[{"id":"org","name":"ACME"}]}}`, id, id))
	}
	return out
}

// templateItem builds a raw template with n activities.
func templateItem(id, updatedAt string, activities int) json.RawMessage {
	acts := make([]string, activities)
	for i := range acts {
		acts[i] = fmt.Sprintf(`{"id":"%s-a%d","title":"Activity %d","activity_type":"Assessment","url":"https://x/%d"}`, id, i, i, i)
	}
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"name":"Template %s","updated_at":%q,"skills":["Go"],"owner":{"id":"org","name":"ACME"},"badge_template_activities":[%s]}`,
		id, id, updatedAt, strings.Join(acts, ",")))
}

var errBoom = errors.New("boom")
