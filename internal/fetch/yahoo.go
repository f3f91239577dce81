package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/dataset"
)

// Yahoo fetches daily OHLCV history from Yahoo Finance.
type Yahoo struct {
	log zerolog.Logger
}

var _ Fetcher = (*Yahoo)(nil)

// NewYahoo creates the Yahoo Finance fetcher.
func NewYahoo(log zerolog.Logger) *Yahoo {
	return &Yahoo{log: log.With().Str("component", "yahoo_fetcher").Logger()}
}

// Fetch returns one row per trading day between startDate and endDate.
func (y *Yahoo) Fetch(ctx context.Context, symbol, startDate, endDate string) (dataset.Table, error) {
	start, err := time.Parse(DateFormat, startDate)
	if err != nil {
		return nil, &Error{Symbol: symbol, Err: fmt.Errorf("invalid start date %q: %w", startDate, err)}
	}
	end, err := time.Parse(DateFormat, endDate)
	if err != nil {
		return nil, &Error{Symbol: symbol, Err: fmt.Errorf("invalid end date %q: %w", endDate, err)}
	}

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}
	params.Context = &ctx

	iter := chart.Get(params)

	var table dataset.Table
	for iter.Next() {
		bar := iter.Bar()

		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		closePrice, _ := bar.Close.Float64()

		table = append(table, dataset.Row{
			"Date":   time.Unix(int64(bar.Timestamp), 0).UTC().Format(DateFormat),
			"Open":   open,
			"High":   high,
			"Low":    low,
			"Close":  closePrice,
			"Volume": float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, &Error{Symbol: symbol, Err: err}
	}
	if len(table) == 0 {
		return nil, &Error{Symbol: symbol, Err: ErrNoData}
	}

	y.log.Debug().
		Str("symbol", symbol).
		Str("start", startDate).
		Str("end", endDate).
		Int("rows", len(table)).
		Msg("Fetched OHLCV history")

	return table, nil
}
