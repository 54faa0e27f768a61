// Package sink stores partition artifacts in a blob store.
package sink

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ContentTypeParquet is the content type of columnar artifacts.
const ContentTypeParquet = "application/x-parquet"

// Sink is a flat key-value blob store.
type Sink interface {
	// List returns every key under prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// DeleteBatch removes up to MaxDeleteBatch keys in one request.
	DeleteBatch(ctx context.Context, keys []string) error

	// PutObject stores body under key, replacing any previous object.
	PutObject(ctx context.Context, key string, body []byte, contentType string) error

	// MaxDeleteBatch is the per-request deletion limit.
	MaxDeleteBatch() int
}

// ErrBatchTooLarge is returned when a delete batch exceeds MaxDeleteBatch.
var ErrBatchTooLarge = errors.New("delete batch exceeds sink limit")

// Object is a stored blob.
type Object struct {
	Body        []byte
	ContentType string
}

// MemorySink keeps objects in memory. Failures can be injected per
// operation for tests.
type MemorySink struct {
	mu        sync.Mutex
	objects   map[string]Object
	batchSize int

	// ListErr, DeleteErr and PutErr are returned by the matching operation
	// when set.
	ListErr   error
	DeleteErr error
	PutErr    error

	puts    int
	deletes int
	lists   int
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		objects:   make(map[string]Object),
		batchSize: 1000,
	}
}

// SetMaxDeleteBatch overrides the deletion limit.
func (m *MemorySink) SetMaxDeleteBatch(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSize = n
}

// List implements Sink.
func (m *MemorySink) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteBatch implements Sink.
func (m *MemorySink) DeleteBatch(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes++
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if len(keys) > m.batchSize {
		return ErrBatchTooLarge
	}
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

// PutObject implements Sink.
func (m *MemorySink) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if m.PutErr != nil {
		return m.PutErr
	}
	m.objects[key] = Object{Body: append([]byte(nil), body...), ContentType: contentType}
	return nil
}

// MaxDeleteBatch implements Sink.
func (m *MemorySink) MaxDeleteBatch() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchSize
}

// Keys returns all stored keys in lexical order.
func (m *MemorySink) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a stored object.
func (m *MemorySink) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Puts returns the number of PutObject calls, failed ones included.
func (m *MemorySink) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Deletes returns the number of DeleteBatch calls, failed ones included.
func (m *MemorySink) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

// Lists returns the number of List calls, failed ones included.
func (m *MemorySink) Lists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}
