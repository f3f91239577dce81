package signals

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"github.com/pkoukos/stockroom/internal/dataset"
)

// Default strategy parameters.
const (
	DefaultShortWindow      = 12
	DefaultLongWindow       = 26
	DefaultBollingerWindow  = 20
	DefaultNumStdDev        = 2.0
	DefaultRSIBuyThreshold  = 30.0
	DefaultRSISellThreshold = 70.0
)

// MACrossoverLabeler signals on short/long moving-average position:
// buy while the short MA is above the long MA, sell while below. Rows
// inside either warmup region carry no signal.
type MACrossoverLabeler struct {
	shortWindow int
	longWindow  int
}

// NewMACrossoverLabeler creates the crossover labeler. Non-positive
// windows fall back to the defaults.
func NewMACrossoverLabeler(shortWindow, longWindow int) *MACrossoverLabeler {
	if shortWindow <= 0 {
		shortWindow = DefaultShortWindow
	}
	if longWindow <= 0 {
		longWindow = DefaultLongWindow
	}
	return &MACrossoverLabeler{shortWindow: shortWindow, longWindow: longWindow}
}

func (l *MACrossoverLabeler) Apply(table dataset.Table) error {
	closes, err := table.Floats("Close")
	if err != nil {
		return fmt.Errorf("moving average crossover: %w", err)
	}
	if l.shortWindow >= l.longWindow {
		return fmt.Errorf("moving average crossover: short window %d must be below long window %d", l.shortWindow, l.longWindow)
	}

	shortMA := maWithWarmup(closes, l.shortWindow)
	longMA := maWithWarmup(closes, l.longWindow)
	table.SetFloats("Short_MA", shortMA)
	table.SetFloats("Long_MA", longMA)

	buy := make([]bool, len(table))
	sell := make([]bool, len(table))
	for i := range table {
		if math.IsNaN(shortMA[i]) || math.IsNaN(longMA[i]) {
			continue
		}
		buy[i] = shortMA[i] > longMA[i]
		sell[i] = shortMA[i] < longMA[i]
	}
	setSignals(table, buy, sell)
	return nil
}

// BollingerBandsLabeler signals on band breakouts: buy when Close drops
// under the lower band, sell when it rises over the upper band. The
// bands are written as Middle_Band/Upper_Band/Lower_Band columns.
type BollingerBandsLabeler struct {
	window    int
	numStdDev float64
}

// NewBollingerBandsLabeler creates the band labeler. Non-positive
// parameters fall back to the defaults.
func NewBollingerBandsLabeler(window int, numStdDev float64) *BollingerBandsLabeler {
	if window <= 0 {
		window = DefaultBollingerWindow
	}
	if numStdDev <= 0 {
		numStdDev = DefaultNumStdDev
	}
	return &BollingerBandsLabeler{window: window, numStdDev: numStdDev}
}

func (l *BollingerBandsLabeler) Apply(table dataset.Table) error {
	closes, err := table.Floats("Close")
	if err != nil {
		return fmt.Errorf("bollinger bands: %w", err)
	}
	if l.window > len(closes) {
		return fmt.Errorf("bollinger bands: window %d exceeds series length %d", l.window, len(closes))
	}

	upper, middle, lower := talib.BBands(closes, l.window, l.numStdDev, l.numStdDev, 0)
	upper = leadingNaN(upper, l.window-1)
	middle = leadingNaN(middle, l.window-1)
	lower = leadingNaN(lower, l.window-1)
	table.SetFloats("Upper_Band", upper)
	table.SetFloats("Middle_Band", middle)
	table.SetFloats("Lower_Band", lower)

	buy := make([]bool, len(table))
	sell := make([]bool, len(table))
	for i := range table {
		if math.IsNaN(upper[i]) || math.IsNaN(lower[i]) {
			continue
		}
		buy[i] = closes[i] < lower[i]
		sell[i] = closes[i] > upper[i]
	}
	setSignals(table, buy, sell)
	return nil
}

// RSIDominateLabeler signals on MACD position confirmed by RSI extremes:
// buy when MACD sits above the signal line with RSI under the buy
// threshold, sell when MACD sits below with RSI over the sell threshold.
// It requires the MACD, Signal_Line and RSI columns already present.
type RSIDominateLabeler struct {
	buyThreshold  float64
	sellThreshold float64
}

// NewRSIDominateLabeler creates the RSI-confirmed labeler. Non-positive
// thresholds fall back to the 30/70 defaults.
func NewRSIDominateLabeler(buyThreshold, sellThreshold float64) *RSIDominateLabeler {
	if buyThreshold <= 0 {
		buyThreshold = DefaultRSIBuyThreshold
	}
	if sellThreshold <= 0 {
		sellThreshold = DefaultRSISellThreshold
	}
	return &RSIDominateLabeler{buyThreshold: buyThreshold, sellThreshold: sellThreshold}
}

func (l *RSIDominateLabeler) Apply(table dataset.Table) error {
	macd, err := table.Floats("MACD")
	if err != nil {
		return fmt.Errorf("rsi dominate: %w", err)
	}
	signal, err := table.Floats("Signal_Line")
	if err != nil {
		return fmt.Errorf("rsi dominate: %w", err)
	}
	rsi, err := table.Floats("RSI")
	if err != nil {
		return fmt.Errorf("rsi dominate: %w", err)
	}

	buy := make([]bool, len(table))
	sell := make([]bool, len(table))
	for i := range table {
		if math.IsNaN(macd[i]) || math.IsNaN(signal[i]) || math.IsNaN(rsi[i]) {
			continue
		}
		switch {
		case macd[i] > signal[i] && rsi[i] < l.buyThreshold:
			buy[i] = true
		case macd[i] < signal[i] && rsi[i] > l.sellThreshold:
			sell[i] = true
		}
	}
	setSignals(table, buy, sell)
	return nil
}

// maWithWarmup computes an SMA with NaN over the warmup region; windows
// longer than the series yield all NaN.
func maWithWarmup(values []float64, window int) []float64 {
	if window > len(values) {
		out := make([]float64, len(values))
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	return leadingNaN(talib.Sma(values, window), window-1)
}

// leadingNaN replaces talib's zero-filled warmup entries with NaN so
// SetFloats stores them as nulls.
func leadingNaN(values []float64, warmup int) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	for i := 0; i < warmup && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}
