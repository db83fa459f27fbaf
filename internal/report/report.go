// Package report writes flattened audit events to tabular sinks. Every sink
// receives its header once, then one row per event in input order.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/cdtdelta/oci-audit-csv/internal/model"
)

// Sink is a destination for report rows.
type Sink interface {
	// WriteHeader is called once, before any record.
	WriteHeader(columns []string) error
	WriteRecord(rec model.Record) error
	Close() error
}

// Target pairs a sink with the columns it should receive.
type Target struct {
	Sink    Sink
	Columns []string
}

// CSVSink writes rows as comma-separated values. Record keys outside the
// header are dropped and missing ones are written as empty cells.
type CSVSink struct {
	closer  io.Closer
	writer  *csv.Writer
	columns []string
}

// CreateCSV creates (or truncates) path and returns a sink writing to it.
func CreateCSV(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	s := NewCSV(f)
	s.closer = f
	return s, nil
}

// NewCSV wraps w. Close flushes but only closes w if it was opened by CreateCSV.
// Rows end in CRLF as RFC 4180 prescribes.
func NewCSV(w io.Writer) *CSVSink {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	return &CSVSink{writer: cw}
}

func (s *CSVSink) WriteHeader(columns []string) error {
	s.columns = columns
	if err := s.writer.Write(columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

func (s *CSVSink) WriteRecord(rec model.Record) error {
	if err := s.writer.Write(rec.Row(s.columns)); err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.writer.Flush()
	err := s.writer.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}

// Stats summarizes a streaming pass.
type Stats struct {
	Files  int
	Events int
}

// Write streams every event of files, in order, to each target. Files are
// processed one at a time on the calling goroutine. All sinks are closed
// before returning, whether or not an error occurred; the first error wins.
func Write(ctx context.Context, files []string, events model.Source, targets ...Target) (stats Stats, err error) {
	defer func() {
		for _, t := range targets {
			if cerr := t.Sink.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing output: %w", cerr)
			}
		}
	}()

	for _, t := range targets {
		if err := t.Sink.WriteHeader(t.Columns); err != nil {
			return stats, err
		}
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		for rec := range events(path) {
			for _, t := range targets {
				if err := t.Sink.WriteRecord(rec); err != nil {
					return stats, err
				}
			}
			stats.Events++
		}
		stats.Files++
	}

	return stats, nil
}
