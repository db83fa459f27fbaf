package model

import "iter"

// Record is one audit event after flattening. Keys are dotted paths from the
// event root ("data.identity.principal-name"), values are CSV-ready strings.
type Record map[string]string

// Row projects the record onto columns. Missing columns become "" and keys
// not listed in columns are dropped.
func (r Record) Row(columns []string) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		row[i] = r[c]
	}
	return row
}

// Source yields the flattened events of one input file.
type Source func(path string) iter.Seq[Record]
