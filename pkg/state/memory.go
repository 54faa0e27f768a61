package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps watermarks and fingerprints in process memory. It
// implements both store interfaces.
type MemoryStore struct {
	mu           sync.Mutex
	watermarks   map[string]Watermark
	fingerprints map[string]Fingerprint
	now          func() time.Time

	// GetErr and PutErr are returned by every Get and Put when set.
	GetErr error
	PutErr error

	watermarkPuts   int
	fingerprintPuts int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		watermarks:   make(map[string]Watermark),
		fingerprints: make(map[string]Fingerprint),
		now:          time.Now,
	}
}

// GetWatermark implements WatermarkStore.
func (m *MemoryStore) GetWatermark(_ context.Context, key string) (*Watermark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	w, ok := m.watermarks[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

// PutWatermark implements WatermarkStore.
func (m *MemoryStore) PutWatermark(_ context.Context, key string, watermark time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	m.watermarkPuts++
	m.watermarks[key] = Watermark{Key: key, Watermark: watermark.UTC(), UpdatedAt: m.now().UTC()}
	return nil
}

// GetFingerprint implements FingerprintStore.
func (m *MemoryStore) GetFingerprint(_ context.Context, dataset string) (*Fingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	fp, ok := m.fingerprints[dataset]
	if !ok {
		return nil, ErrNotFound
	}
	return &fp, nil
}

// PutFingerprint implements FingerprintStore.
func (m *MemoryStore) PutFingerprint(_ context.Context, fp Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	m.fingerprintPuts++
	m.fingerprints[fp.Dataset] = fp
	return nil
}

// WatermarkPuts returns the number of successful watermark writes.
func (m *MemoryStore) WatermarkPuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermarkPuts
}

// FingerprintPuts returns the number of successful fingerprint writes.
func (m *MemoryStore) FingerprintPuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fingerprintPuts
}
