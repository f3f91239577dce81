package server

import (
	"net/http"
)

// AnalyzedDataPrefix is the conventional prefix for analyzer output.
const AnalyzedDataPrefix = "analyzed_stock_data"

type basicAnalysisRequest struct {
	Prefix      string `json:"prefix"`
	StockID     string `json:"stock_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	WindowSizes []int  `json:"window_sizes"`
}

// handleBasicAnalysis fetches fresh data, applies moving averages, daily
// return and candlestick patterns, and stores the result.
func (s *Server) handleBasicAnalysis(w http.ResponseWriter, r *http.Request) {
	var req basicAnalysisRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Prefix == "" {
		req.Prefix = AnalyzedDataPrefix
	}
	if len(req.WindowSizes) == 0 {
		s.writeError(w, http.StatusBadRequest, "window_sizes must not be empty")
		return
	}

	err := s.analyzer.FetchAndAnalyzeBasic(r.Context(), req.Prefix, req.StockID, req.StartDate, req.EndDate, req.WindowSizes)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Analysis computed and stored successfully"})
}

type advancedAnalysisRequest struct {
	Prefix       string `json:"prefix"`
	StockID      string `json:"stock_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	ShortWindow  int    `json:"short_window"`
	LongWindow   int    `json:"long_window"`
	VolumeWindow int    `json:"volume_window"`
}

// handleAdvancedAnalysis fetches fresh data, applies MACD, Bollinger and
// RSI columns, and stores the result.
func (s *Server) handleAdvancedAnalysis(w http.ResponseWriter, r *http.Request) {
	var req advancedAnalysisRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Prefix == "" {
		req.Prefix = AnalyzedDataPrefix
	}

	err := s.analyzer.FetchAndAnalyzeAdvanced(r.Context(), req.Prefix, req.StockID, req.StartDate, req.EndDate,
		req.ShortWindow, req.LongWindow, req.VolumeWindow)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Advanced analysis computed and stored successfully"})
}

type correlationRequest struct {
	Prefix    string   `json:"prefix"`
	StockIDs  []string `json:"stock_ids"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Metric    string   `json:"metric"`
}

// handleCorrelation computes the pairwise correlation matrix over stored
// datasets.
func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	var req correlationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Prefix == "" {
		req.Prefix = AnalyzedDataPrefix
	}
	if req.Metric == "" {
		req.Metric = "Close"
	}
	if len(req.StockIDs) < 2 {
		s.writeError(w, http.StatusBadRequest, "at least two stock_ids are required")
		return
	}

	matrix, err := s.analyzer.Correlation(req.Prefix, req.StockIDs, req.StartDate, req.EndDate, req.Metric)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, matrix)
}
