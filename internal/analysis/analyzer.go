package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/dataset"
	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/fetch"
)

// Default indicator windows.
const (
	DefaultRSIPeriod    = 14
	DefaultSignalPeriod = 9
)

// Analyzer enriches stored price tables with derived columns. Read-and-
// update operations work on data already in the store; fetch-and-analyze
// operations pull fresh data first and save the enriched result.
type Analyzer struct {
	butler  *datastore.Butler
	fetcher fetch.Fetcher
	log     zerolog.Logger
}

// NewAnalyzer creates an analyzer over the given store and fetcher.
func NewAnalyzer(butler *datastore.Butler, fetcher fetch.Fetcher, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		butler:  butler,
		fetcher: fetcher,
		log:     log.With().Str("component", "analyzer").Logger(),
	}
}

// MovingAverage appends MA_{w}_days columns for each window size to a
// stored table and writes it back.
func (a *Analyzer) MovingAverage(scope datastore.SingleScope, windowSizes []int) error {
	if len(windowSizes) == 0 {
		a.log.Warn().Str("stock_id", scope.StockID).Msg("No window sizes provided for moving average")
		return nil
	}

	table, err := a.butler.Get(scope)
	if err != nil {
		return err
	}
	if err := applyMovingAverages(table, windowSizes); err != nil {
		return err
	}
	return a.butler.Update(scope, table)
}

// DailyReturn appends a Daily_Return column (day-over-day fractional
// change of Close) to a stored table and writes it back.
func (a *Analyzer) DailyReturn(scope datastore.SingleScope) error {
	table, err := a.butler.Get(scope)
	if err != nil {
		return err
	}
	if err := applyDailyReturn(table); err != nil {
		return err
	}
	return a.butler.Update(scope, table)
}

// AdvancedIndicators appends MACD, Bollinger and RSI columns to a stored
// table and writes it back.
func (a *Analyzer) AdvancedIndicators(scope datastore.SingleScope, shortWindow, longWindow, volumeWindow int) error {
	table, err := a.butler.Get(scope)
	if err != nil {
		return err
	}
	if err := applyAdvancedIndicators(table, shortWindow, longWindow, volumeWindow); err != nil {
		return err
	}
	return a.butler.Update(scope, table)
}

// CandlestickPatterns appends a Pattern column to a stored table and
// writes it back.
func (a *Analyzer) CandlestickPatterns(scope datastore.SingleScope) error {
	table, err := a.butler.Get(scope)
	if err != nil {
		return err
	}
	if err := applyCandlestickPatterns(table); err != nil {
		return err
	}
	return a.butler.Update(scope, table)
}

// FetchAndAnalyzeBasic fetches fresh data, applies moving averages, daily
// return and candlestick patterns, and saves the result under prefix.
func (a *Analyzer) FetchAndAnalyzeBasic(ctx context.Context, prefix, stockID, startDate, endDate string, windowSizes []int) error {
	table, err := a.fetcher.Fetch(ctx, stockID, startDate, endDate)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", stockID, err)
	}

	if err := applyMovingAverages(table, windowSizes); err != nil {
		return err
	}
	if err := applyDailyReturn(table); err != nil {
		return err
	}
	if err := applyCandlestickPatterns(table); err != nil {
		return err
	}

	scope := datastore.SingleScope{Prefix: prefix, StockID: stockID, StartDate: startDate, EndDate: endDate}
	if err := a.butler.Save(scope, table, nil); err != nil {
		return err
	}

	a.log.Info().
		Str("stock_id", stockID).
		Str("prefix", prefix).
		Ints("windows", windowSizes).
		Msg("Basic analysis saved")
	return nil
}

// FetchAndAnalyzeAdvanced fetches fresh data, applies the advanced
// indicator set and saves the result under prefix.
func (a *Analyzer) FetchAndAnalyzeAdvanced(ctx context.Context, prefix, stockID, startDate, endDate string, shortWindow, longWindow, volumeWindow int) error {
	table, err := a.fetcher.Fetch(ctx, stockID, startDate, endDate)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", stockID, err)
	}

	if err := applyAdvancedIndicators(table, shortWindow, longWindow, volumeWindow); err != nil {
		return err
	}

	scope := datastore.SingleScope{Prefix: prefix, StockID: stockID, StartDate: startDate, EndDate: endDate}
	if err := a.butler.Save(scope, table, nil); err != nil {
		return err
	}

	a.log.Info().
		Str("stock_id", stockID).
		Str("prefix", prefix).
		Msg("Advanced analysis saved")
	return nil
}

func applyMovingAverages(table dataset.Table, windowSizes []int) error {
	closes, err := table.Floats("Close")
	if err != nil {
		return err
	}
	for _, w := range windowSizes {
		if w <= 0 {
			return fmt.Errorf("moving average window must be positive, got %d", w)
		}
		if w > len(closes) {
			// talib returns all zeros when the window exceeds the
			// series; an all-empty column is the honest answer.
			table.SetFloats(fmt.Sprintf("MA_%d_days", w), nanSlice(len(closes)))
			continue
		}
		table.SetFloats(fmt.Sprintf("MA_%d_days", w), withLeadingNaN(talib.Sma(closes, w), w-1))
	}
	return nil
}

func applyDailyReturn(table dataset.Table) error {
	closes, err := table.Floats("Close")
	if err != nil {
		return err
	}
	if len(closes) < 2 {
		table.SetFloats("Daily_Return", nanSlice(len(closes)))
		return nil
	}
	// Roc reports percent change; Daily_Return is the fraction.
	roc := talib.Roc(closes, 1)
	returns := withLeadingNaN(roc, 1)
	for i := range returns {
		returns[i] /= 100
	}
	table.SetFloats("Daily_Return", returns)
	return nil
}

func applyAdvancedIndicators(table dataset.Table, shortWindow, longWindow, volumeWindow int) error {
	for _, col := range []string{"Open", "High", "Low", "Close", "Volume"} {
		if _, err := table.Floats(col); err != nil {
			return fmt.Errorf("advanced analysis: %w", err)
		}
	}
	closes, _ := table.Floats("Close")
	if shortWindow <= 0 || longWindow <= shortWindow {
		return fmt.Errorf("invalid MACD windows: short=%d long=%d", shortWindow, longWindow)
	}
	if volumeWindow <= 0 {
		return fmt.Errorf("bollinger window must be positive, got %d", volumeWindow)
	}

	macd, signal, hist := talib.Macd(closes, shortWindow, longWindow, DefaultSignalPeriod)
	table.SetFloats("MACD", withLeadingNaN(macd, longWindow-1))
	table.SetFloats("Signal_Line", withLeadingNaN(signal, longWindow+DefaultSignalPeriod-2))
	table.SetFloats("MACD_Histogram", withLeadingNaN(hist, longWindow+DefaultSignalPeriod-2))

	upper, middle, lower := talib.BBands(closes, volumeWindow, 2, 2, 0)
	table.SetFloats("Bollinger_Upper", withLeadingNaN(upper, volumeWindow-1))
	table.SetFloats("Bollinger_Mid", withLeadingNaN(middle, volumeWindow-1))
	table.SetFloats("Bollinger_Lower", withLeadingNaN(lower, volumeWindow-1))

	table.SetFloats("RSI", withLeadingNaN(talib.Rsi(closes, DefaultRSIPeriod), DefaultRSIPeriod))
	return nil
}

// nanSlice returns n NaNs, which SetFloats stores as nulls.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// withLeadingNaN replaces the first warmup entries with NaN. talib zero-
// fills its warmup region, which would otherwise be indistinguishable
// from real values.
func withLeadingNaN(values []float64, warmup int) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	for i := 0; i < warmup && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}
