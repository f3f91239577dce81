package analysis

import (
	"fmt"
	"math"

	"github.com/pkoukos/stockroom/internal/dataset"
)

// Candlestick pattern labels written to the Pattern column.
const (
	PatternNone             = "None"
	PatternDoji             = "Doji"
	PatternHammer           = "Hammer"
	PatternShootingStar     = "Shooting_Star"
	PatternBullishEngulfing = "Bullish_Engulfing"
	PatternBearishEngulfing = "Bearish_Engulfing"
)

// applyCandlestickPatterns labels each row with the first matching
// single- or two-candle pattern. Engulfing patterns need the previous
// row, so the first row can only match single-candle shapes.
func applyCandlestickPatterns(table dataset.Table) error {
	opens, err := table.Floats("Open")
	if err != nil {
		return fmt.Errorf("pattern analysis: %w", err)
	}
	highs, err := table.Floats("High")
	if err != nil {
		return fmt.Errorf("pattern analysis: %w", err)
	}
	lows, err := table.Floats("Low")
	if err != nil {
		return fmt.Errorf("pattern analysis: %w", err)
	}
	closes, err := table.Floats("Close")
	if err != nil {
		return fmt.Errorf("pattern analysis: %w", err)
	}

	for i := range table {
		label := PatternNone
		switch {
		case hasNaN(opens[i], highs[i], lows[i], closes[i]):
			// leave unlabeled rows as None
		case isDoji(opens[i], highs[i], lows[i], closes[i]):
			label = PatternDoji
		case isHammer(opens[i], highs[i], lows[i], closes[i]):
			label = PatternHammer
		case isShootingStar(opens[i], highs[i], lows[i], closes[i]):
			label = PatternShootingStar
		case i > 0 && isBullishEngulfing(opens[i-1], closes[i-1], opens[i], closes[i]):
			label = PatternBullishEngulfing
		case i > 0 && isBearishEngulfing(opens[i-1], closes[i-1], opens[i], closes[i]):
			label = PatternBearishEngulfing
		}
		table[i]["Pattern"] = label
	}
	return nil
}

func hasNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// isDoji: body is under 10% of the full range.
func isDoji(open, high, low, close float64) bool {
	fullRange := high - low
	if fullRange <= 0 {
		return false
	}
	return math.Abs(close-open) <= 0.1*fullRange
}

// isHammer: small body near the top, lower shadow at least twice the body.
func isHammer(open, high, low, close float64) bool {
	body := math.Abs(close - open)
	if body == 0 {
		return false
	}
	lowerShadow := math.Min(open, close) - low
	upperShadow := high - math.Max(open, close)
	return lowerShadow >= 2*body && upperShadow <= body
}

// isShootingStar: small body near the bottom, upper shadow at least twice
// the body.
func isShootingStar(open, high, low, close float64) bool {
	body := math.Abs(close - open)
	if body == 0 {
		return false
	}
	upperShadow := high - math.Max(open, close)
	lowerShadow := math.Min(open, close) - low
	return upperShadow >= 2*body && lowerShadow <= body
}

// isBullishEngulfing: a down candle followed by an up candle whose body
// covers the previous body.
func isBullishEngulfing(prevOpen, prevClose, open, close float64) bool {
	return prevClose < prevOpen && close > open && open <= prevClose && close >= prevOpen
}

// isBearishEngulfing: an up candle followed by a down candle whose body
// covers the previous body.
func isBearishEngulfing(prevOpen, prevClose, open, close float64) bool {
	return prevClose > prevOpen && close < open && open >= prevClose && close <= prevOpen
}
