// Package state persists incremental-load progress: a watermark per dataset
// and a content fingerprint per snapshot dataset.
//
// Each store keeps at most one record per key and overwrites it in place.
// There is no versioning or conditional write; the last writer wins.
package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("state record not found")

// WatermarkLayout is the text form of stored watermarks. It is also the
// date format the badge search API expects.
const WatermarkLayout = "2006-01-02 15:04:05"

var storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "credly_state_errors_total",
	Help: "State store operation errors by backend and operation",
}, []string{"backend", "operation"})

// Watermark is the exclusive end of the data already loaded for a key.
type Watermark struct {
	Key       string
	Watermark time.Time
	UpdatedAt time.Time
}

// Fingerprint describes the last snapshot loaded for a dataset.
type Fingerprint struct {
	Dataset       string
	PayloadHash   string
	RecordCount   int
	LastUpdatedAt time.Time
}

// WatermarkStore reads and writes watermarks.
type WatermarkStore interface {
	GetWatermark(ctx context.Context, key string) (*Watermark, error)
	PutWatermark(ctx context.Context, key string, watermark time.Time) error
}

// FingerprintStore reads and writes snapshot fingerprints.
type FingerprintStore interface {
	GetFingerprint(ctx context.Context, dataset string) (*Fingerprint, error)
	PutFingerprint(ctx context.Context, fp Fingerprint) error
}

// Identity is the pair a fingerprint is computed over.
type Identity struct {
	ID        string
	UpdatedAt string
}

// ComputeFingerprint returns the hex SHA-256 of the sorted "{id}-{updated_at}"
// strings, concatenated. The result does not depend on input order.
func ComputeFingerprint(items []Identity) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.ID + "-" + it.UpdatedAt
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])
}

// FormatWatermark renders t in WatermarkLayout, in UTC.
func FormatWatermark(t time.Time) string {
	return t.UTC().Format(WatermarkLayout)
}

// ParseWatermark parses WatermarkLayout, falling back to RFC 3339.
func ParseWatermark(s string) (time.Time, error) {
	t, err := time.ParseInLocation(WatermarkLayout, s, time.UTC)
	if err == nil {
		return t, nil
	}
	if t, rfcErr := time.Parse(time.RFC3339, s); rfcErr == nil {
		return t.UTC(), nil
	}
	return time.Time{}, err
}
