package analysis

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkoukos/stockroom/internal/dataset"
	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/fetch"
	"github.com/pkoukos/stockroom/internal/storage"
)

type stubFetcher struct {
	table dataset.Table
	err   error
}

func (s *stubFetcher) Fetch(context.Context, string, string, string) (dataset.Table, error) {
	return s.table, s.err
}

func newTestAnalyzer(t *testing.T, fetcher fetch.Fetcher) (*Analyzer, *datastore.Butler) {
	t.Helper()
	butler := datastore.NewButler(storage.NewMemory(), zerolog.Nop())
	return NewAnalyzer(butler, fetcher, zerolog.Nop()), butler
}

func closesTable(closes ...float64) dataset.Table {
	table := make(dataset.Table, len(closes))
	for i, c := range closes {
		table[i] = dataset.Row{"Close": c}
	}
	return table
}

func TestApplyMovingAverages(t *testing.T) {
	table := closesTable(1, 2, 3, 4)
	require.NoError(t, applyMovingAverages(table, []int{2}))

	assert.Nil(t, table[0]["MA_2_days"], "warmup row is null")
	assert.InDelta(t, 1.5, table[1]["MA_2_days"], 1e-9)
	assert.InDelta(t, 2.5, table[2]["MA_2_days"], 1e-9)
	assert.InDelta(t, 3.5, table[3]["MA_2_days"], 1e-9)
}

func TestApplyMovingAverages_WindowLargerThanSeries(t *testing.T) {
	table := closesTable(1, 2, 3)
	require.NoError(t, applyMovingAverages(table, []int{10}))

	for i := range table {
		assert.Nil(t, table[i]["MA_10_days"], "row %d", i)
	}
}

func TestApplyMovingAverages_InvalidWindow(t *testing.T) {
	table := closesTable(1, 2, 3)
	assert.Error(t, applyMovingAverages(table, []int{0}))
	assert.Error(t, applyMovingAverages(table, []int{-5}))
}

func TestApplyDailyReturn(t *testing.T) {
	table := closesTable(100, 110, 99)
	require.NoError(t, applyDailyReturn(table))

	assert.Nil(t, table[0]["Daily_Return"], "no previous close")
	assert.InDelta(t, 0.10, table[1]["Daily_Return"], 1e-9)
	assert.InDelta(t, -0.10, table[2]["Daily_Return"], 1e-9)
}

func TestApplyDailyReturn_SingleRow(t *testing.T) {
	table := closesTable(100)
	require.NoError(t, applyDailyReturn(table))
	assert.Nil(t, table[0]["Daily_Return"])
}

func TestApplyAdvancedIndicators_Validation(t *testing.T) {
	ohlcvRow := func(c float64) dataset.Row {
		return dataset.Row{"Open": c, "High": c + 1, "Low": c - 1, "Close": c, "Volume": 1000.0}
	}
	table := dataset.Table{ohlcvRow(10), ohlcvRow(11), ohlcvRow(12)}

	assert.Error(t, applyAdvancedIndicators(table, 0, 26, 20), "non-positive short window")
	assert.Error(t, applyAdvancedIndicators(table, 26, 12, 20), "long must exceed short")
	assert.Error(t, applyAdvancedIndicators(table, 12, 26, 0), "non-positive bollinger window")

	missingVolume := closesTable(1, 2, 3)
	assert.Error(t, applyAdvancedIndicators(missingVolume, 12, 26, 20))
}

func TestApplyAdvancedIndicators_Columns(t *testing.T) {
	table := make(dataset.Table, 60)
	for i := range table {
		c := 100 + float64(i%7)
		table[i] = dataset.Row{"Open": c, "High": c + 2, "Low": c - 2, "Close": c, "Volume": float64(1000 + i)}
	}
	require.NoError(t, applyAdvancedIndicators(table, 12, 26, 20))

	last := table[len(table)-1]
	for _, col := range []string{"MACD", "Signal_Line", "MACD_Histogram", "Bollinger_Upper", "Bollinger_Mid", "Bollinger_Lower", "RSI"} {
		assert.NotNil(t, last[col], "column %s", col)
	}
	// everything is null inside the warmup region
	assert.Nil(t, table[0]["MACD"])
	assert.Nil(t, table[0]["RSI"])
	assert.Nil(t, table[0]["Bollinger_Upper"])
}

func TestAnalyzer_MovingAverageRoundTrip(t *testing.T) {
	analyzer, butler := newTestAnalyzer(t, &stubFetcher{})

	scope := datastore.SingleScope{Prefix: "analyzed_stock_data", StockID: "AAPL", StartDate: "2025-01-01", EndDate: "2025-01-31"}
	require.NoError(t, butler.Save(scope, closesTable(10, 20, 30), nil))

	require.NoError(t, analyzer.MovingAverage(scope, []int{2}))

	stored, err := butler.Get(scope)
	require.NoError(t, err)
	assert.Nil(t, stored[0]["MA_2_days"])
	assert.InDelta(t, 15.0, stored[1]["MA_2_days"], 1e-9)
	assert.InDelta(t, 25.0, stored[2]["MA_2_days"], 1e-9)
}

func TestAnalyzer_MovingAverageMissingData(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t, &stubFetcher{})

	scope := datastore.SingleScope{Prefix: "analyzed_stock_data", StockID: "GHOST", StartDate: "2025-01-01", EndDate: "2025-01-31"}
	err := analyzer.MovingAverage(scope, []int{2})
	assert.ErrorIs(t, err, datastore.ErrDataNotFound)
}

func TestAnalyzer_FetchAndAnalyzeBasic(t *testing.T) {
	fetched := dataset.Table{
		{"Date": "2025-01-01", "Open": 10.0, "High": 11.0, "Low": 9.0, "Close": 10.0, "Volume": 100.0},
		{"Date": "2025-01-02", "Open": 10.0, "High": 11.5, "Low": 9.5, "Close": 11.0, "Volume": 110.0},
		{"Date": "2025-01-03", "Open": 11.0, "High": 12.0, "Low": 10.5, "Close": 11.5, "Volume": 120.0},
	}
	analyzer, butler := newTestAnalyzer(t, &stubFetcher{table: fetched})

	err := analyzer.FetchAndAnalyzeBasic(context.Background(), "analyzed_stock_data", "AAPL", "2025-01-01", "2025-01-03", []int{2})
	require.NoError(t, err)

	scope := datastore.SingleScope{Prefix: "analyzed_stock_data", StockID: "AAPL", StartDate: "2025-01-01", EndDate: "2025-01-03"}
	stored, err := butler.Get(scope)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Contains(t, stored[1], "MA_2_days")
	assert.Contains(t, stored[1], "Daily_Return")
	assert.Contains(t, stored[1], "Pattern")
}
