// Package server provides the HTTP server and routing for stockroom.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/analysis"
	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/export"
	"github.com/pkoukos/stockroom/internal/fetch"
	"github.com/pkoukos/stockroom/internal/scheduler"
	"github.com/pkoukos/stockroom/internal/signals"
)

// Config holds the server's collaborators; everything is injected.
type Config struct {
	Log      zerolog.Logger
	Port     int
	DevMode  bool
	Butler   *datastore.Butler
	Fetcher  fetch.Fetcher
	Registry *scheduler.Registry
	History  *scheduler.HistoryRegistry
	Sched    *scheduler.Scheduler
	Analyzer *analysis.Analyzer
	Exporter *export.Service
	Signals  *signals.Service
}

// Server is the HTTP front of the data store, analyzers and scheduler.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	butler   *datastore.Butler
	fetcher  fetch.Fetcher
	registry *scheduler.Registry
	history  *scheduler.HistoryRegistry
	sched    *scheduler.Scheduler
	analyzer *analysis.Analyzer
	exporter *export.Service
	signals  *signals.Service
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		butler:   cfg.Butler,
		fetcher:  cfg.Fetcher,
		registry: cfg.Registry,
		history:  cfg.History,
		sched:    cfg.Sched,
		analyzer: cfg.Analyzer,
		exporter: cfg.Exporter,
		signals:  cfg.Signals,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/system/info", s.handleSystemInfo)

		r.Route("/stock_data", func(r chi.Router) {
			r.Post("/fetch_and_get_as_dataframe", s.handleFetchAndGet)
			r.Post("/fetch_and_stash", s.handleFetchAndStash)

			r.Post("/get_all_keys", s.handleGetAllKeys)
			r.Post("/get_data", s.handleGetData)
			r.Post("/check_data_exists", s.handleCheckDataExists)
			r.Post("/update_data", s.handleUpdateData)
			r.Post("/delete_data", s.handleDeleteData)

			r.Post("/save_group", s.handleSaveGroup)
			r.Post("/get_group", s.handleGetGroup)
			r.Post("/delete_group", s.handleDeleteGroup)
			r.Get("/datasets", s.handleListDatasets)

			r.Post("/compute_full_analysis_and_store", s.handleBasicAnalysis)
			r.Post("/compute_advanced_analysis_and_store", s.handleAdvancedAnalysis)
			r.Post("/calculate_correlation", s.handleCorrelation)

			r.Post("/label_signals", s.handleLabelSignals)
			r.Post("/extract_pattern_segments", s.handlePatternSegments)
		})

		r.Route("/export_data", func(r chi.Router) {
			r.Post("/csv", s.handleExportCSV)
			r.Post("/http", s.handleExportHTTP)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/jobs", s.handleCreateJob)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Put("/jobs/{jobID}", s.handleUpdateJob)
			r.Delete("/jobs/{jobID}", s.handleDeleteJob)
			r.Post("/jobs/{jobID}/start", s.handleStartJob)
			r.Post("/jobs/{jobID}/stop", s.handleStopJob)
			r.Post("/jobs/{jobID}/run-now", s.handleRunJobNow)
			r.Get("/jobs/{jobID}/history", s.handleJobHistory)
			r.Get("/jobs/{jobID}/latest-execution", s.handleLatestExecution)
			r.Get("/executions/{executionID}", s.handleGetExecution)
			r.Get("/status", s.handleSchedulerStatus)
		})
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "stockroom",
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree; tests mount it directly.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response with a detail message.
func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

// decodeBody decodes a JSON request body into dst.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
