// Package signals labels stored price tables with buy/sell signal
// columns and extracts pattern-centered segments from analyzed data.
package signals

import (
	"errors"
	"fmt"

	"github.com/pkoukos/stockroom/internal/dataset"
)

// Signal columns appended by labelers.
const (
	BuySignalColumn  = "Buy_Signal"
	SellSignalColumn = "Sell_Signal"
)

// ErrUnknownStrategy is returned by NewLabeler for unrecognized names.
var ErrUnknownStrategy = errors.New("unknown labeling strategy")

// Labeler appends Buy_Signal and Sell_Signal boolean columns to a table
// in place. Implementations may add intermediate indicator columns.
type Labeler interface {
	Apply(table dataset.Table) error
}

// Params carries the tunables of every strategy; each labeler reads only
// the fields it needs and substitutes defaults for zero values.
type Params struct {
	ShortWindow      int     `json:"short_window,omitempty"`
	LongWindow       int     `json:"long_window,omitempty"`
	Window           int     `json:"window,omitempty"`
	NumStdDev        float64 `json:"num_std_dev,omitempty"`
	RSIBuyThreshold  float64 `json:"rsi_buy_threshold,omitempty"`
	RSISellThreshold float64 `json:"rsi_sell_threshold,omitempty"`
}

// Strategy names accepted by NewLabeler.
const (
	StrategyBollingerBands = "bollinger_bands"
	StrategyMACrossover    = "moving_average_crossover"
	StrategyRSIDominate    = "rsi_dominate_buy_sell"
)

// NewLabeler builds the named strategy with its parameters.
func NewLabeler(name string, p Params) (Labeler, error) {
	switch name {
	case StrategyBollingerBands:
		return NewBollingerBandsLabeler(p.Window, p.NumStdDev), nil
	case StrategyMACrossover:
		return NewMACrossoverLabeler(p.ShortWindow, p.LongWindow), nil
	case StrategyRSIDominate:
		return NewRSIDominateLabeler(p.RSIBuyThreshold, p.RSISellThreshold), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// setSignals writes the two boolean columns.
func setSignals(table dataset.Table, buy, sell []bool) {
	for i := range table {
		table[i][BuySignalColumn] = buy[i]
		table[i][SellSignalColumn] = sell[i]
	}
}
