package server

import (
	"errors"
	"net/http"

	"github.com/pkoukos/stockroom/internal/dataset"
	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/fetch"
	"github.com/pkoukos/stockroom/internal/metadata"
)

// RawDataPrefix is where ad-hoc fetches are stashed.
const RawDataPrefix = "raw_stock_data"

type fetchRequest struct {
	StockID   string `json:"stock_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// handleFetchAndGet fetches fresh data and returns it without storing.
func (s *Server) handleFetchAndGet(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	table, err := s.fetcher.Fetch(r.Context(), req.StockID, req.StartDate, req.EndDate)
	if err != nil {
		if errors.Is(err, fetch.ErrNoData) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"data": table})
}

// handleFetchAndStash fetches fresh data and stores it under the raw
// prefix with manual-fetch metadata.
func (s *Server) handleFetchAndStash(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	table, err := s.fetcher.Fetch(r.Context(), req.StockID, req.StartDate, req.EndDate)
	if err != nil {
		if errors.Is(err, fetch.ErrNoData) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	meta := metadata.CreateDefault(metadata.SourceManualFetch)
	scope := datastore.SingleScope{
		Prefix:    RawDataPrefix,
		StockID:   req.StockID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if err := s.butler.Save(scope, table, &meta); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Data fetched and stashed successfully",
		"key":     scope.Key(),
		"rows":    len(table),
	})
}

type prefixRequest struct {
	Prefix string `json:"prefix"`
}

// handleGetAllKeys lists keys under a prefix.
func (s *Server) handleGetAllKeys(w http.ResponseWriter, r *http.Request) {
	var req prefixRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	keys, err := s.butler.ListKeys(req.Prefix)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// resolveScope maps a raw parameter bundle to a scope, translating
// unresolvable bundles to a 400.
func (s *Server) resolveScope(w http.ResponseWriter, params map[string]string) (datastore.Scope, bool) {
	scope, err := datastore.ResolveScope(params)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return scope, true
}

// handleGetData returns a stored dataset with its metadata.
func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	var params map[string]string
	if !s.decodeBody(w, r, &params) {
		return
	}
	scope, ok := s.resolveScope(w, params)
	if !ok {
		return
	}

	table, meta, err := s.butler.GetWithMetadata(scope)
	if err != nil {
		if errors.Is(err, datastore.ErrDataNotFound) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"data":     table,
		"metadata": meta,
	})
}

// handleCheckDataExists reports whether a dataset is stored.
func (s *Server) handleCheckDataExists(w http.ResponseWriter, r *http.Request) {
	var params map[string]string
	if !s.decodeBody(w, r, &params) {
		return
	}
	scope, ok := s.resolveScope(w, params)
	if !ok {
		return
	}

	exists, err := s.butler.Exists(scope)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

type updateDataRequest struct {
	Prefix    string        `json:"prefix"`
	StockID   string        `json:"stock_id"`
	StartDate string        `json:"start_date"`
	EndDate   string        `json:"end_date"`
	Data      dataset.Table `json:"data"`
}

// handleUpdateData replaces a stored dataset.
func (s *Server) handleUpdateData(w http.ResponseWriter, r *http.Request) {
	var req updateDataRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	scope := datastore.SingleScope{
		Prefix:    req.Prefix,
		StockID:   req.StockID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if err := s.butler.Update(scope, req.Data); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Data updated successfully"})
}

// handleDeleteData deletes a stored dataset.
func (s *Server) handleDeleteData(w http.ResponseWriter, r *http.Request) {
	var params map[string]string
	if !s.decodeBody(w, r, &params) {
		return
	}
	scope, ok := s.resolveScope(w, params)
	if !ok {
		return
	}

	deleted, err := s.butler.Delete(scope)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "data not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Data deleted successfully"})
}

type groupRequest struct {
	GroupID   string          `json:"group_id"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Data      []dataset.Table `json:"data,omitempty"`
}

func (r groupRequest) scope() datastore.GroupScope {
	return datastore.GroupScope{GroupID: r.GroupID, StartDate: r.StartDate, EndDate: r.EndDate}
}

// handleSaveGroup stores a group of datasets under one hash key.
func (s *Server) handleSaveGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		s.writeError(w, http.StatusBadRequest, "group data must not be empty")
		return
	}

	if err := s.butler.SaveGroup(req.scope(), req.Data); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Group saved successfully",
		"key":     req.scope().Key(),
		"members": len(req.Data),
	})
}

// handleGetGroup returns all member tables of a group.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	tables, err := s.butler.GetGroup(req.scope())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(tables) == 0 {
		s.writeError(w, http.StatusNotFound, "group not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"data": tables})
}

// handleDeleteGroup deletes a group.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	deleted, err := s.butler.DeleteGroup(req.scope())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "group not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Group deleted successfully"})
}

// handleListDatasets returns summaries of stored datasets matching the
// pattern query parameter (default all single-dataset keys).
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}

	summaries, err := s.butler.ListAllDatasets(pattern)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"datasets": summaries})
}
