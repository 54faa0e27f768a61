// Package pagination walks cursor-paginated Credly collections.
//
// Credly list endpoints return a next_page_url in the response metadata. The
// cursor is opaque: it is passed back exactly as received until the API stops
// returning one. Pages are fetched one after another, never in parallel,
// because each cursor is only known once the previous page has arrived.
//
// Example usage:
//
//	collector := pagination.NewCollector(credlyClient, pagination.DefaultConfig())
//	result, err := collector.Collect(ctx, credly.ResourceTemplates, nil)
//
// The collector:
//   - Starts from the resource URL and the given query parameters
//   - Follows cursors until none is returned or MaxPages is reached
//   - Applies a per-page timeout
//   - Fails on the first page error (no partial results)
//
// Resumable datasets do not use the collector. They fetch one page per
// invocation and hand the cursor back to their caller.
package pagination
