// Package dataset holds the tabular data model shared by the data store,
// the executor and the analyzers. A Table is an ordered sequence of row
// records and serializes to the JSON array-of-records form the persisted
// key namespaces require.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Row is one record. Values decoded from JSON are float64, string, bool or
// nil; nested values are left as decoded.
type Row map[string]any

// Table is an ordered sequence of rows.
type Table []Row

// Canonical OHLCV column order, used where a stable ordering is needed
// (CSV export). Extra columns follow alphabetically.
var canonicalColumns = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// FromJSON decodes a JSON array of records.
func FromJSON(data []byte) (Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	return t, nil
}

// ToJSON encodes the table as a JSON array of records. Non-finite floats
// are replaced with null first, since JSON cannot represent them.
func (t Table) ToJSON() ([]byte, error) {
	data, err := json.Marshal(t.NormalizeInfinities())
	if err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	return data, nil
}

// Columns returns the table's column names: canonical OHLCV columns first,
// remaining names sorted.
func (t Table) Columns() []string {
	if len(t) == 0 {
		return nil
	}
	present := make(map[string]bool, len(t[0]))
	for _, row := range t {
		for name := range row {
			present[name] = true
		}
	}

	var cols []string
	for _, name := range canonicalColumns {
		if present[name] {
			cols = append(cols, name)
			delete(present, name)
		}
	}
	var rest []string
	for name := range present {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

// Floats extracts a numeric column. Nil cells become NaN so positional
// alignment with other columns is preserved.
func (t Table) Floats(column string) ([]float64, error) {
	out := make([]float64, len(t))
	for i, row := range t {
		value, ok := row[column]
		if !ok {
			return nil, fmt.Errorf("row %d: missing column %q", i, column)
		}
		switch v := value.(type) {
		case float64:
			out[i] = v
		case int:
			out[i] = float64(v)
		case int64:
			out[i] = float64(v)
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("row %d: column %q: %w", i, column, err)
			}
			out[i] = f
		case nil:
			out[i] = math.NaN()
		default:
			return nil, fmt.Errorf("row %d: column %q is not numeric (%T)", i, column, value)
		}
	}
	return out, nil
}

// SetFloats writes a numeric column. NaN values are stored as nil.
func (t Table) SetFloats(column string, values []float64) {
	for i := range t {
		if i >= len(values) {
			break
		}
		if math.IsNaN(values[i]) {
			t[i][column] = nil
			continue
		}
		t[i][column] = values[i]
	}
}

// NormalizeInfinities returns a copy of the table with every +Inf/-Inf
// numeric cell replaced by nil. Stored tables must never surface raw
// infinities to callers.
func (t Table) NormalizeInfinities() Table {
	out := make(Table, len(t))
	for i, row := range t {
		clean := make(Row, len(row))
		for name, value := range row {
			if f, ok := value.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
				clean[name] = nil
				continue
			}
			clean[name] = value
		}
		out[i] = clean
	}
	return out
}
