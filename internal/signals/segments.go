package signals

import (
	"github.com/pkoukos/stockroom/internal/analysis"
	"github.com/pkoukos/stockroom/internal/dataset"
)

// Default segment window, in rows around the pattern occurrence.
const (
	DefaultDaysBefore = 7
	DefaultDaysAfter  = 3
)

// ExtractSegment returns the rows around index, windowPrev rows before
// through windowPost rows after inclusive, clamped to the table bounds.
func ExtractSegment(table dataset.Table, index, windowPrev, windowPost int) dataset.Table {
	if len(table) == 0 || index < 0 || index >= len(table) {
		return nil
	}
	start := index - windowPrev
	if start < 0 {
		start = 0
	}
	end := index + windowPost
	if end > len(table)-1 {
		end = len(table) - 1
	}
	segment := make(dataset.Table, end-start+1)
	copy(segment, table[start:end+1])
	return segment
}

// SegmentsByPattern collects, per pattern label, the segments around
// each labeled row. Rows too close to either edge for a full window are
// skipped, as are rows without a pattern. Non-positive windows fall back
// to the defaults.
func SegmentsByPattern(table dataset.Table, windowPrev, windowPost int) map[string][]dataset.Table {
	if windowPrev <= 0 {
		windowPrev = DefaultDaysBefore
	}
	if windowPost <= 0 {
		windowPost = DefaultDaysAfter
	}

	out := make(map[string][]dataset.Table)
	for i, row := range table {
		label, _ := row["Pattern"].(string)
		if label == "" || label == analysis.PatternNone {
			continue
		}
		if i < windowPrev || i > len(table)-windowPost-1 {
			continue
		}
		out[label] = append(out[label], ExtractSegment(table, i, windowPrev, windowPost))
	}
	return out
}
