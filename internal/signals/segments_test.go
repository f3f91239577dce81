package signals

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkoukos/stockroom/internal/analysis"
	"github.com/pkoukos/stockroom/internal/dataset"
)

// patternTable builds rows Day-0..Day-(n-1); labels maps row index to a
// Pattern value, unlabeled rows get "None".
func patternTable(n int, labels map[int]string) dataset.Table {
	table := make(dataset.Table, n)
	for i := range table {
		label, ok := labels[i]
		if !ok {
			label = analysis.PatternNone
		}
		table[i] = dataset.Row{"Date": fmt.Sprintf("Day-%d", i), "Pattern": label}
	}
	return table
}

func TestExtractSegment(t *testing.T) {
	table := patternTable(10, nil)

	t.Run("interior", func(t *testing.T) {
		segment := ExtractSegment(table, 5, 3, 2)
		require.Len(t, segment, 6)
		assert.Equal(t, "Day-2", segment[0]["Date"])
		assert.Equal(t, "Day-7", segment[5]["Date"])
	})

	t.Run("clamped at start", func(t *testing.T) {
		segment := ExtractSegment(table, 0, 3, 2)
		require.Len(t, segment, 3)
		assert.Equal(t, "Day-0", segment[0]["Date"])
	})

	t.Run("clamped at end", func(t *testing.T) {
		segment := ExtractSegment(table, 9, 3, 2)
		require.Len(t, segment, 4)
		assert.Equal(t, "Day-9", segment[3]["Date"])
	})

	t.Run("out of range", func(t *testing.T) {
		assert.Nil(t, ExtractSegment(table, 10, 3, 2))
		assert.Nil(t, ExtractSegment(table, -1, 3, 2))
		assert.Nil(t, ExtractSegment(nil, 0, 3, 2))
	})
}

func TestSegmentsByPattern(t *testing.T) {
	table := patternTable(15, map[int]string{
		1:  analysis.PatternDoji,   // too close to the start
		5:  analysis.PatternDoji,   // full window available
		8:  analysis.PatternHammer, // full window available
		13: analysis.PatternDoji,   // too close to the end
	})

	segments := SegmentsByPattern(table, 2, 2)
	require.Len(t, segments, 2)

	require.Len(t, segments[analysis.PatternDoji], 1)
	doji := segments[analysis.PatternDoji][0]
	require.Len(t, doji, 5)
	assert.Equal(t, "Day-3", doji[0]["Date"])
	assert.Equal(t, "Day-7", doji[4]["Date"])

	require.Len(t, segments[analysis.PatternHammer], 1)
	hammer := segments[analysis.PatternHammer][0]
	assert.Equal(t, "Day-6", hammer[0]["Date"])
	assert.Equal(t, "Day-10", hammer[4]["Date"])
}

func TestSegmentsByPattern_Defaults(t *testing.T) {
	table := patternTable(15, map[int]string{7: analysis.PatternShootingStar})

	segments := SegmentsByPattern(table, 0, 0)
	require.Len(t, segments[analysis.PatternShootingStar], 1)

	segment := segments[analysis.PatternShootingStar][0]
	require.Len(t, segment, DefaultDaysBefore+DefaultDaysAfter+1)
	assert.Equal(t, "Day-0", segment[0]["Date"])
	assert.Equal(t, "Day-10", segment[10]["Date"])
}

func TestSegmentsByPattern_NoPatterns(t *testing.T) {
	table := patternTable(10, nil)
	assert.Empty(t, SegmentsByPattern(table, 2, 2))

	// Rows without a Pattern column are skipped too.
	assert.Empty(t, SegmentsByPattern(closesTable(1, 2, 3, 4, 5), 1, 1))
}
