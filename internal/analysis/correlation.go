package analysis

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/pkoukos/stockroom/internal/datastore"
)

// CorrelationMatrix is a symmetric Pearson correlation matrix over a set
// of symbols. Values[i][j] correlates Symbols[i] with Symbols[j].
type CorrelationMatrix struct {
	Symbols []string    `json:"symbols"`
	Values  [][]float64 `json:"values"`
}

// Correlation reads the stored table for every symbol under prefix,
// extracts the metric column and returns the pairwise Pearson correlation
// matrix. Symbols with no stored data are skipped rather than failing the
// whole request. Series are truncated to the shortest shared length.
func (a *Analyzer) Correlation(prefix string, stockIDs []string, startDate, endDate, metric string) (*CorrelationMatrix, error) {
	symbols := make([]string, 0, len(stockIDs))
	series := make([][]float64, 0, len(stockIDs))

	for _, stockID := range stockIDs {
		scope := datastore.SingleScope{Prefix: prefix, StockID: stockID, StartDate: startDate, EndDate: endDate}
		table, err := a.butler.Get(scope)
		if err != nil {
			if errors.Is(err, datastore.ErrDataNotFound) {
				a.log.Warn().Str("stock_id", stockID).Msg("No data for correlation, skipping symbol")
				continue
			}
			return nil, err
		}
		values, err := table.Floats(metric)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, stockID)
		series = append(series, values)
	}

	if len(series) == 0 {
		return &CorrelationMatrix{Symbols: []string{}, Values: [][]float64{}}, nil
	}

	minLen := len(series[0])
	for _, s := range series {
		if len(s) < minLen {
			minLen = len(s)
		}
	}
	for i := range series {
		series[i] = series[i][:minLen]
	}

	n := len(series)
	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		values[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			switch {
			case i == j:
				values[i][j] = 1
			case j < i:
				values[i][j] = values[j][i]
			default:
				c := stat.Correlation(series[i], series[j], nil)
				if math.IsNaN(c) {
					c = 0
				}
				values[i][j] = c
			}
		}
	}

	return &CorrelationMatrix{Symbols: symbols, Values: values}, nil
}
