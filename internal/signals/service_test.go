package signals

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkoukos/stockroom/internal/analysis"
	"github.com/pkoukos/stockroom/internal/dataset"
	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/storage"
)

func newTestService(t *testing.T) (*Service, *datastore.Butler) {
	t.Helper()
	butler := datastore.NewButler(storage.NewMemory(), zerolog.Nop())
	return NewService(butler, zerolog.Nop()), butler
}

func analyzedScope(stockID string) datastore.SingleScope {
	return datastore.SingleScope{
		Prefix:    "analyzed_stock_data",
		StockID:   stockID,
		StartDate: "2025-01-01",
		EndDate:   "2025-01-31",
	}
}

func TestService_Label(t *testing.T) {
	svc, butler := newTestService(t)
	scope := analyzedScope("AAPL")
	require.NoError(t, butler.Save(scope, closesTable(1, 2, 3, 4, 5, 4, 3, 2, 1), nil))

	require.NoError(t, svc.Label(scope, StrategyMACrossover, Params{ShortWindow: 2, LongWindow: 3}))

	stored, err := butler.Get(scope)
	require.NoError(t, err)
	assert.True(t, stored[4][BuySignalColumn].(bool))
	assert.True(t, stored[8][SellSignalColumn].(bool))
	assert.Contains(t, stored[0], "Short_MA")
}

func TestService_LabelUnknownStrategy(t *testing.T) {
	svc, butler := newTestService(t)
	scope := analyzedScope("AAPL")
	require.NoError(t, butler.Save(scope, closesTable(1, 2, 3), nil))

	err := svc.Label(scope, "momentum", Params{})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestService_LabelMissingData(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Label(analyzedScope("MSFT"), StrategyMACrossover, Params{})
	assert.ErrorIs(t, err, datastore.ErrDataNotFound)
}

func TestService_PatternSegments(t *testing.T) {
	svc, butler := newTestService(t)
	scope := analyzedScope("AAPL")
	require.NoError(t, butler.Save(scope, patternTable(15, map[int]string{5: analysis.PatternDoji}), nil))

	segments, err := svc.PatternSegments(scope, 2, 2)
	require.NoError(t, err)
	require.Len(t, segments[analysis.PatternDoji], 1)
	assert.Len(t, segments[analysis.PatternDoji][0], 5)
}

func TestService_PatternSegmentsMissingData(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.PatternSegments(analyzedScope("MSFT"), 2, 2)
	assert.ErrorIs(t, err, datastore.ErrDataNotFound)
}

func TestService_LabelPreservesExistingColumns(t *testing.T) {
	svc, butler := newTestService(t)
	scope := analyzedScope("AAPL")
	table := dataset.Table{
		{"Close": 100.0, "MACD": 1.0, "Signal_Line": 0.5, "RSI": 25.0},
		{"Close": 101.0, "MACD": -1.0, "Signal_Line": 0.5, "RSI": 80.0},
	}
	require.NoError(t, butler.Save(scope, table, nil))

	require.NoError(t, svc.Label(scope, StrategyRSIDominate, Params{}))

	stored, err := butler.Get(scope)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, stored[0]["MACD"], 1e-9)
	assert.True(t, stored[0][BuySignalColumn].(bool))
	assert.True(t, stored[1][SellSignalColumn].(bool))
}
