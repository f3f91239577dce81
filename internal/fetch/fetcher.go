// Package fetch defines the external market-data collaborator: given a
// symbol and a date range, return daily OHLCV rows as a dataset table.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkoukos/stockroom/internal/dataset"
)

// DateFormat is the wire format of start/end dates.
const DateFormat = "2006-01-02"

// ErrNoData reports a fetch that completed but returned zero rows. The
// executor treats it like any other per-symbol failure.
var ErrNoData = errors.New("no data returned")

// Error wraps a provider failure for one symbol.
type Error struct {
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher retrieves daily OHLCV rows for a symbol between two dates
// (inclusive, YYYY-MM-DD).
type Fetcher interface {
	Fetch(ctx context.Context, symbol, startDate, endDate string) (dataset.Table, error)
}
