// Package ingest orchestrates Credly loads into the data lake.
//
// Badges are loaded one page per call: the caller threads the returned
// cursor into the next call until none is returned. The first call of a run
// (no cursor) clears today's partition. Templates are loaded as a whole
// snapshot in a single call and skipped when their fingerprint is unchanged.
package ingest

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/credly"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Mode selects the date window of a badge load.
type Mode string

const (
	// ModeDaily loads from the stored watermark (minus an overlap) to now.
	ModeDaily Mode = "daily"

	// ModeHistorical loads everything since HistoricalStart.
	ModeHistorical Mode = "historical"
)

// ParseMode validates a mode string. An empty string is ModeDaily.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeDaily, nil
	case ModeDaily, ModeHistorical:
		return Mode(s), nil
	default:
		return "", &InvalidEventError{Field: "mode", Value: s}
	}
}

// Datasets names the lake datasets written by the ingester.
type Datasets struct {
	Badges             string
	Templates          string
	TemplateActivities string
}

// DefaultDatasets returns the standard dataset names.
func DefaultDatasets() Datasets {
	return Datasets{
		Badges:             "badges_emitidas",
		Templates:          "badges_templates",
		TemplateActivities: "badges_templates_activities",
	}
}

// StepResult is the outcome of one call. An empty NextCursor means the
// run is complete.
type StepResult struct {
	RecordsProcessed int
	NextCursor       string
}

// PageFetcher fetches one page of a resource. *credly.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, resource credly.Resource, params url.Values, cursor string) (*credly.Page, error)
}

// PartitionWriter clears and writes dataset partitions.
// *partition.Writer implements it.
type PartitionWriter interface {
	ClearPartition(ctx context.Context, dataset string, date time.Time) int
	Write(ctx context.Context, dataset string, records []any, date time.Time, part int64) error
}

// PartSource hands out part numbers.
type PartSource interface {
	Next() int64
}

var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_ingest_records_total",
		Help: "Records fetched and written by dataset",
	}, []string{"dataset"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_ingest_failures_total",
		Help: "Failed invocations by load type",
	}, []string{"load_type"})

	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credly_ingest_invocation_duration_seconds",
		Help:    "Invocation duration by load type",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"load_type"})

	fingerprintSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credly_template_fingerprint_skips_total",
		Help: "Template runs skipped because the snapshot fingerprint was unchanged",
	})
)

// loggerFrom prefers the run-scoped logger carried by ctx.
func loggerFrom(ctx context.Context, fallback *zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return fallback
}

// InvalidEventError reports an invocation payload that cannot be
// dispatched.
type InvalidEventError struct {
	Field string
	Value string
}

// Error implements the error interface.
func (e *InvalidEventError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("missing '%s' in event", e.Field)
	}
	return fmt.Sprintf("unknown %s: %s", e.Field, e.Value)
}
