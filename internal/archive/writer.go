package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"fleetmon/internal/telemetry"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("archive writer is closed")

// Options configures the Parquet output.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
		RowGroupSize:     100000,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// SampleRow represents a sample in Parquet format. Column names match the
// live table so archived files can be re-attached with a plain COPY.
type SampleRow struct {
	SourceID   string  `parquet:"source_id,zstd"`
	ObservedAt int64   `parquet:"observed_at"`
	CPU        float64 `parquet:"cpu_pct"`
	RAM        float64 `parquet:"ram_pct"`
	Disk       float64 `parquet:"disk_pct"`
	OS         string  `parquet:"os,zstd"`
	UptimeSec  int64   `parquet:"uptime_sec"`
}

// SampleToRow converts a Sample to a SampleRow.
func SampleToRow(s *telemetry.Sample) SampleRow {
	return SampleRow{
		SourceID:   s.SourceID,
		ObservedAt: s.ObservedAt,
		CPU:        s.CPU,
		RAM:        s.RAM,
		Disk:       s.Disk,
		OS:         s.OS,
		UptimeSec:  s.UptimeSeconds,
	}
}

// RowToSample converts a SampleRow to a Sample.
func RowToSample(r *SampleRow) telemetry.Sample {
	return telemetry.Sample{
		SourceID:      r.SourceID,
		ObservedAt:    r.ObservedAt,
		CPU:           r.CPU,
		RAM:           r.RAM,
		Disk:          r.Disk,
		OS:            r.OS,
		UptimeSeconds: r.UptimeSec,
	}
}

// Writer writes samples to a Parquet file.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[SampleRow]
	rowCount int64
	closed   bool
}

// NewWriter creates a Parquet writer at path, creating parent directories
// as needed.
func NewWriter(path string, opts Options) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}

	writer := parquet.NewGenericWriter[SampleRow](f, writerOpts...)

	return &Writer{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends samples to the Parquet file.
func (w *Writer) Write(samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	rows := make([]SampleRow, len(samples))
	for i := range samples {
		rows[i] = SampleToRow(&samples[i])
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// fileTimeLayout is millisecond-resolution so back-to-back runs never
// collide on the same file name.
const fileTimeLayout = "2006-01-02_15-04-05.000"

// FileName returns the archive file name for a cleanup run at t.
func FileName(t time.Time) string {
	return "samples_" + t.UTC().Format(fileTimeLayout) + ".parquet"
}

// ParseFileTime extracts the run timestamp from an archive file name.
func ParseFileTime(name string) (time.Time, error) {
	base := name[:len(name)-len(filepath.Ext(name))]
	const prefix = "samples_"
	if len(base) <= len(prefix) || base[:len(prefix)] != prefix {
		return time.Time{}, fmt.Errorf("not an archive file: %s", name)
	}
	return time.Parse(fileTimeLayout, base[len(prefix):])
}
