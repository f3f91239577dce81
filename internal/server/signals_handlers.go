package server

import (
	"errors"
	"net/http"

	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/signals"
)

type labelSignalsRequest struct {
	Prefix    string         `json:"prefix"`
	StockID   string         `json:"stock_id"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Strategy  string         `json:"strategy"`
	Params    signals.Params `json:"params"`
}

// handleLabelSignals applies a buy/sell labeling strategy to a stored
// table and writes the labeled table back.
func (s *Server) handleLabelSignals(w http.ResponseWriter, r *http.Request) {
	var req labelSignalsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Prefix == "" {
		req.Prefix = AnalyzedDataPrefix
	}
	if req.Strategy == "" {
		s.writeError(w, http.StatusBadRequest, "strategy must not be empty")
		return
	}

	scope := datastore.SingleScope{Prefix: req.Prefix, StockID: req.StockID, StartDate: req.StartDate, EndDate: req.EndDate}
	if err := s.signals.Label(scope, req.Strategy, req.Params); err != nil {
		switch {
		case errors.Is(err, signals.ErrUnknownStrategy):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, datastore.ErrDataNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Buy/sell signals labeled and stored successfully"})
}

type patternSegmentsRequest struct {
	Prefix     string `json:"prefix"`
	StockID    string `json:"stock_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	DaysBefore int    `json:"days_before"`
	DaysAfter  int    `json:"days_after"`
}

// handlePatternSegments returns the rows around each candlestick pattern
// occurrence in a stored table, grouped by pattern label.
func (s *Server) handlePatternSegments(w http.ResponseWriter, r *http.Request) {
	var req patternSegmentsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Prefix == "" {
		req.Prefix = AnalyzedDataPrefix
	}

	scope := datastore.SingleScope{Prefix: req.Prefix, StockID: req.StockID, StartDate: req.StartDate, EndDate: req.EndDate}
	segments, err := s.signals.PatternSegments(scope, req.DaysBefore, req.DaysAfter)
	if err != nil {
		if errors.Is(err, datastore.ErrDataNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}
