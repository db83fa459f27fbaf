// Package flatten turns nested audit events into flat, dotted-path records
// suitable for CSV rows.
package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/cdtdelta/oci-audit-csv/internal/model"
)

// AdditionalDetails is the column holding the JSON text of an event's
// data.additional-details subtree.
const AdditionalDetails = "data.additional-details"

// Flattener controls how nested keys are joined and which paths are kept
// opaque. The zero value is not usable; call New.
type Flattener struct {
	Sep string

	// Opaque lists key paths, one key per element, whose subtree is
	// kept as a single JSON text column. A top-level key that merely
	// contains Sep never matches a nested path.
	Opaque [][]string
}

// New returns a Flattener using "." as separator with data.additional-details opaque.
func New() *Flattener {
	return &Flattener{
		Sep:    ".",
		Opaque: [][]string{{"data", "additional-details"}},
	}
}

var std = New()

// Flatten flattens event with the default rules.
func Flatten(event map[string]any) model.Record {
	return std.Flatten(event)
}

// Flatten maps every leaf of event to its dotted path. Sequences are joined
// with commas and opaque paths hold the compact JSON of their subtree. Keys are visited in sorted order so that colliding paths
// (e.g. {"a.b": 1} next to {"a": {"b": 2}}) resolve the same way every run.
func (f *Flattener) Flatten(event map[string]any) model.Record {
	out := make(model.Record, len(event))
	f.walk(out, "", nil, event)
	return out
}

func (f *Flattener) walk(out model.Record, parent string, segs []string, obj map[string]any) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := obj[k]
		key := k
		if parent != "" {
			key = parent + f.Sep + k
		}
		path := append(segs[:len(segs):len(segs)], k)

		if f.opaque(path) {
			if v == nil {
				out[key] = ""
			} else {
				out[key] = marshal(v)
			}
			continue
		}

		switch val := v.(type) {
		case map[string]any:
			f.walk(out, key, path, val)
		case []any:
			out[key] = joinList(val)
		default:
			out[key] = Scalar(val)
		}
	}
}

func (f *Flattener) opaque(path []string) bool {
	for _, o := range f.Opaque {
		if slices.Equal(o, path) {
			return true
		}
	}
	return false
}

// joinList renders a JSON array as one comma-joined cell.
func joinList(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case map[string]any, []any:
			parts[i] = marshal(v)
		default:
			parts[i] = Scalar(v)
		}
	}
	return strings.Join(parts, ",")
}

// Scalar converts a decoded JSON scalar to its cell text.
func Scalar(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// marshal returns compact JSON without HTML escaping; map keys come out sorted.
func marshal(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
