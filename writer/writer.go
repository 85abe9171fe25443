// Package writer serializes Arrow record batches to parquet files,
// with a choice between the standard three-level list encoding and the
// legacy two-level encoding used by older writers.
package writer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/prometheus/client_golang/prometheus"
)

// ---------------------------------------------------------------------
// Prometheus Metrics
// ---------------------------------------------------------------------

var (
	writeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "parqgen_write_latency_seconds",
		Help: "Parquet write latency distribution",
	})
	rowsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parqgen_rows_written_total",
		Help: "Total rows written to parquet files",
	})
)

func init() {
	// Register Prometheus metrics.
	prometheus.MustRegister(writeLatency, rowsWritten)
}

// ---------------------------------------------------------------------
// Standard (compliant) writes via pqarrow
// ---------------------------------------------------------------------

// Write serializes the record to w using the arrow parquet writer with
// default properties. List columns get the standard three-level
// encoding (list group, repeated "list", "element" child).
func Write(w io.Writer, rec arrow.Record) error {
	start := time.Now()

	props := parquet.NewWriterProperties(parquet.WithAllocator(memory.DefaultAllocator))
	arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(memory.DefaultAllocator))

	fw, err := pqarrow.NewFileWriter(rec.Schema(), w, props, arrProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	writeLatency.Observe(time.Since(start).Seconds())
	rowsWritten.Add(float64(rec.NumRows()))
	return nil
}

// WriteFile writes the record to a parquet file at path, overwriting
// any existing file.
func WriteFile(path string, rec arrow.Record) error {
	return writeToFile(path, rec, Write)
}

// WriteTwoLevelFile is WriteFile with the legacy two-level list
// encoding.
func WriteTwoLevelFile(path string, rec arrow.Record) error {
	return writeToFile(path, rec, WriteTwoLevel)
}

func writeToFile(path string, rec arrow.Record, write func(io.Writer, arrow.Record) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %q: %w", path, err)
	}
	if err := write(file, rec); err != nil {
		_ = file.Close()
		return err
	}
	// The parquet writers close the sink themselves when it is an
	// io.Closer, so the file is usually closed by the time write
	// returns.
	if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close file %q: %w", path, err)
	}
	return nil
}
