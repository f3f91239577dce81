package signals

import (
	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/dataset"
	"github.com/pkoukos/stockroom/internal/datastore"
)

// Service applies signal labelers to stored tables and extracts
// pattern-centered segments from analyzed data.
type Service struct {
	butler *datastore.Butler
	log    zerolog.Logger
}

// NewService creates a signals service over the given store.
func NewService(butler *datastore.Butler, log zerolog.Logger) *Service {
	return &Service{
		butler: butler,
		log:    log.With().Str("component", "signals").Logger(),
	}
}

// Label loads a stored table, applies the named strategy and writes the
// labeled table back under the same key.
func (s *Service) Label(scope datastore.SingleScope, strategy string, params Params) error {
	labeler, err := NewLabeler(strategy, params)
	if err != nil {
		return err
	}

	table, err := s.butler.Get(scope)
	if err != nil {
		return err
	}
	if err := labeler.Apply(table); err != nil {
		return err
	}
	if err := s.butler.Update(scope, table); err != nil {
		return err
	}

	s.log.Info().
		Str("stock_id", scope.StockID).
		Str("strategy", strategy).
		Msg("Labeled stored data with buy/sell signals")
	return nil
}

// PatternSegments loads a stored table and groups the rows around each
// pattern occurrence by pattern label.
func (s *Service) PatternSegments(scope datastore.SingleScope, daysBefore, daysAfter int) (map[string][]dataset.Table, error) {
	table, err := s.butler.Get(scope)
	if err != nil {
		return nil, err
	}
	segments := SegmentsByPattern(table, daysBefore, daysAfter)

	s.log.Debug().
		Str("stock_id", scope.StockID).
		Int("patterns", len(segments)).
		Msg("Extracted pattern segments")
	return segments, nil
}
