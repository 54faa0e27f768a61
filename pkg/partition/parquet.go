package partition

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/Sternrassler/credly-ingest/pkg/sink"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetEncoder writes rows as a Snappy-compressed Parquet file. The
// schema comes from the parquet struct tags of the row type; every record in
// one call must have the same type.
type ParquetEncoder struct {
	Compression parquet.CompressionCodec
	RowGroup    int64
}

// NewParquetEncoder returns an encoder with Snappy compression.
func NewParquetEncoder() *ParquetEncoder {
	return &ParquetEncoder{
		Compression: parquet.CompressionCodec_SNAPPY,
		RowGroup:    128 * 1024 * 1024,
	}
}

// ContentType implements Encoder.
func (e *ParquetEncoder) ContentType() string {
	return sink.ContentTypeParquet
}

// Encode implements Encoder.
func (e *ParquetEncoder) Encode(records []any) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	rowType := reflect.TypeOf(records[0])
	if rowType.Kind() == reflect.Pointer {
		rowType = rowType.Elem()
	}
	if rowType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("records must be structs, got %s", rowType)
	}

	var buf bytes.Buffer
	pw, err := writer.NewParquetWriterFromWriter(&buf, reflect.New(rowType).Interface(), 1)
	if err != nil {
		return nil, fmt.Errorf("creating parquet writer: %w", err)
	}
	pw.CompressionType = e.Compression
	if e.RowGroup > 0 {
		pw.RowGroupSize = e.RowGroup
	}

	for i, rec := range records {
		t := reflect.TypeOf(rec)
		if t != rowType && !(t.Kind() == reflect.Pointer && t.Elem() == rowType) {
			return nil, fmt.Errorf("record %d is %s, want %s", i, t, rowType)
		}
		if err := pw.Write(rec); err != nil {
			return nil, fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("stopping writer: %w", err)
	}

	return buf.Bytes(), nil
}
