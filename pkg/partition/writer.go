// Package partition clears and writes date partitions of a dataset.
//
// A partition is every artifact stored under
//
//	{prefix}/{dataset}/date={YYYYMMDD}/
//
// and is replaced as a unit: callers clear it once at the start of a run and
// then add part files to it.
package partition

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/credly-ingest/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultPrefix is the root of every partition key.
const DefaultPrefix = "raw"

var (
	objectsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_partition_objects_written_total",
		Help: "Part files written by dataset",
	}, []string{"dataset"})

	bytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_partition_bytes_written_total",
		Help: "Encoded bytes written by dataset",
	}, []string{"dataset"})

	objectsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_partition_objects_deleted_total",
		Help: "Part files deleted while clearing partitions",
	}, []string{"dataset"})

	clearFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credly_partition_clear_failures_total",
		Help: "Partition clears that could not complete",
	}, []string{"dataset"})
)

// SinkWriteError reports a part file that could not be stored.
type SinkWriteError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Key, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SinkWriteError) Unwrap() error {
	return e.Err
}

// Encoder serializes rows of one struct type into a single artifact.
type Encoder interface {
	Encode(records []any) ([]byte, error)
	ContentType() string
}

// Writer owns partition layout on a sink.
type Writer struct {
	sink    sink.Sink
	encoder Encoder
	prefix  string
	logger  zerolog.Logger
}

// NewWriter creates a partition writer. An empty prefix uses DefaultPrefix.
func NewWriter(s sink.Sink, encoder Encoder, prefix string, logger zerolog.Logger) *Writer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Writer{
		sink:    s,
		encoder: encoder,
		prefix:  prefix,
		logger:  logger.With().Str("component", "partition-writer").Logger(),
	}
}

// Prefix returns the directory holding every part of the partition,
// including the trailing slash.
func (w *Writer) Prefix(dataset string, date time.Time) string {
	return fmt.Sprintf("%s/%s/date=%s/", w.prefix, dataset, date.Format("20060102"))
}

// Key returns the object key of one part file.
func (w *Writer) Key(dataset string, date time.Time, part int64) string {
	return fmt.Sprintf("%spart-%05d.parquet", w.Prefix(dataset, date), part)
}

// ClearPartition deletes every artifact of the partition in batches no
// larger than the sink allows. Failures are logged and counted but never
// returned: a run that cannot clear carries on and may leave duplicates.
// It reports how many objects were deleted.
func (w *Writer) ClearPartition(ctx context.Context, dataset string, date time.Time) int {
	prefix := w.Prefix(dataset, date)
	logger := w.logger.With().Str("dataset", dataset).Str("prefix", prefix).Logger()

	keys, err := w.sink.List(ctx, prefix)
	if err != nil {
		clearFailures.WithLabelValues(dataset).Inc()
		logger.Error().Err(err).Msg("Failed to list partition, continuing without clear")
		return 0
	}
	if len(keys) == 0 {
		logger.Debug().Msg("Partition already empty")
		return 0
	}

	batch := w.sink.MaxDeleteBatch()
	if batch <= 0 {
		batch = len(keys)
	}

	deleted := 0
	for start := 0; start < len(keys); start += batch {
		end := min(start+batch, len(keys))
		if err := w.sink.DeleteBatch(ctx, keys[start:end]); err != nil {
			clearFailures.WithLabelValues(dataset).Inc()
			logger.Error().
				Err(err).
				Int("deleted", deleted).
				Int("remaining", len(keys)-deleted).
				Msg("Failed to clear partition, continuing")
			return deleted
		}
		deleted += end - start
	}

	objectsDeleted.WithLabelValues(dataset).Add(float64(deleted))
	logger.Info().Int("deleted", deleted).Msg("Cleared partition")
	return deleted
}

// Write encodes records into one part file. An empty slice writes nothing.
// Any failure is returned as *SinkWriteError.
func (w *Writer) Write(ctx context.Context, dataset string, records []any, date time.Time, part int64) error {
	if len(records) == 0 {
		return nil
	}

	key := w.Key(dataset, date, part)

	body, err := w.encoder.Encode(records)
	if err != nil {
		return &SinkWriteError{Key: key, Err: fmt.Errorf("encode: %w", err)}
	}
	if err := w.sink.PutObject(ctx, key, body, w.encoder.ContentType()); err != nil {
		return &SinkWriteError{Key: key, Err: err}
	}

	objectsWritten.WithLabelValues(dataset).Inc()
	bytesWritten.WithLabelValues(dataset).Add(float64(len(body)))

	w.logger.Info().
		Str("dataset", dataset).
		Str("key", key).
		Int64("part", part).
		Int("records", len(records)).
		Int("bytes", len(body)).
		Msg("Wrote part file")

	return nil
}
