package server

import (
	"errors"
	"net/http"

	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/export"
)

type exportCSVRequest struct {
	Key      string `json:"key"`
	Filepath string `json:"filepath"`
}

// handleExportCSV writes the dataset at key to a CSV file on the server.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var req exportCSVRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Filepath == "" {
		s.writeError(w, http.StatusBadRequest, "filepath is required")
		return
	}

	if err := s.exporter.ExportCSV(req.Key, req.Filepath); err != nil {
		s.writeExportError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Data exported to CSV successfully"})
}

type exportHTTPRequest struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
}

// handleExportHTTP posts the dataset (or group) at key to an external
// HTTP endpoint.
func (s *Server) handleExportHTTP(w http.ResponseWriter, r *http.Request) {
	var req exportHTTPRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	if err := s.exporter.SendHTTP(r.Context(), req.Key, req.URL, req.Method); err != nil {
		s.writeExportError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Data sent successfully"})
}

func (s *Server) writeExportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, export.ErrUnsupportedKey):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, datastore.ErrDataNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
