package archive

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"fleetmon/internal/telemetry"
)

// Reader reads samples back from a Parquet archive file.
type Reader struct {
	file   *os.File
	reader *parquet.GenericReader[SampleRow]
	path   string
}

// NewReader opens an archive file for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[SampleRow](pf)

	return &Reader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// Read reads up to n samples from the file.
func (r *Reader) Read(n int) ([]telemetry.Sample, error) {
	rows := make([]SampleRow, n)
	count, err := r.reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	samples := make([]telemetry.Sample, count)
	for i := 0; i < count; i++ {
		samples[i] = RowToSample(&rows[i])
	}

	return samples, nil
}

// ReadAll reads every sample from the file.
func (r *Reader) ReadAll() ([]telemetry.Sample, error) {
	numRows := r.reader.NumRows()
	rows := make([]SampleRow, numRows)

	n, err := r.reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	samples := make([]telemetry.Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = RowToSample(&rows[i])
	}

	return samples, nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader) Path() string {
	return r.path
}
