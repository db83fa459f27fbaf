// Package auditreader reads OCI audit-log JSON files and yields their events
// as flattened records.
package auditreader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/cdtdelta/oci-audit-csv/internal/flatten"
	"github.com/cdtdelta/oci-audit-csv/internal/model"
)

// Logger receives per-file diagnostics.
type Logger interface {
	Warnf(msg string, args ...any)
	Debugf(msg string, args ...any)
}

// Reader turns audit files into flat records. Malformed files are reported
// through Log and contribute no events.
type Reader struct {
	Flattener *flatten.Flattener
	Log       Logger
}

// New returns a Reader with the default flatten rules.
func New(log Logger) *Reader {
	return &Reader{Flattener: flatten.New(), Log: log}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Each returns the flattened events of one file. The sequence re-opens and
// re-parses the file every time it is ranged over.
func (r *Reader) Each(path string) iter.Seq[model.Record] {
	return func(yield func(model.Record) bool) {
		doc, err := DecodeFile(path)
		if err != nil {
			if r.Log != nil {
				r.Log.Warnf("%s parse error: %v", filepath.Base(path), err)
			}
			return
		}

		events := Normalize(doc)
		if r.Log != nil {
			r.Log.Debugf("%s: %d events", filepath.Base(path), len(events))
		}

		for i, ev := range events {
			obj, ok := ev.(map[string]any)
			if !ok {
				if r.Log != nil {
					r.Log.Warnf("%s event %d is not a JSON object, skipping", filepath.Base(path), i)
				}
				continue
			}
			if !yield(r.Flattener.Flatten(obj)) {
				return
			}
		}
	}
}

// DecodeFile parses path as exactly one JSON document. Numbers are kept as
// json.Number so their text survives unchanged into the CSV.
func DecodeFile(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1024*1024)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("extra data after JSON document at offset %d", dec.InputOffset())
	}

	return doc, nil
}

// Normalize extracts the event list from a parsed document. OCI exports
// wrap events under "data", either as a list or a single object; bare
// arrays are taken as-is and anything else is treated as one event.
func Normalize(doc any) []any {
	switch v := doc.(type) {
	case map[string]any:
		if data, ok := v["data"]; ok {
			if list, ok := data.([]any); ok {
				return list
			}
			return []any{data}
		}
		return []any{v}
	case []any:
		return v
	default:
		return []any{doc}
	}
}
