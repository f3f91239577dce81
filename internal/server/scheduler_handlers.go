package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pkoukos/stockroom/internal/scheduler"
)

type createJobRequest struct {
	Name         string   `json:"name"`
	StockIDs     []string `json:"stock_ids"`
	ScheduleTime string   `json:"schedule_time"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
	DurationDays *int     `json:"duration_days,omitempty"`
	Prefix       string   `json:"prefix,omitempty"`
}

// handleCreateJob creates a scheduled job. A duration_days value makes
// the fetch window slide: each run covers (today - duration_days) to
// today, overriding start_date.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	job := scheduler.NewJob(req.Name, req.StockIDs, req.ScheduleTime)
	job.StartDate = req.StartDate
	job.EndDate = req.EndDate
	job.DurationDays = req.DurationDays
	if req.Prefix != "" {
		job.Prefix = req.Prefix
	}

	jobID, err := s.registry.Create(job)
	if err != nil {
		var vErr *scheduler.ValidationError
		if errors.As(err, &vErr) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Job created successfully",
		"job_id":  jobID,
	})
}

// handleListJobs lists scheduled jobs, optionally active_only.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active_only"))

	jobs, err := s.registry.List(activeOnly)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, jobs)
}

// loadJob fetches a path-addressed job, writing a 404 when it is absent.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*scheduler.Job, bool) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.registry.Get(jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	return job, true
}

// handleGetJob returns one job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

type updateJobRequest struct {
	Name         *string   `json:"name,omitempty"`
	StockIDs     *[]string `json:"stock_ids,omitempty"`
	ScheduleTime *string   `json:"schedule_time,omitempty"`
	StartDate    *string   `json:"start_date,omitempty"`
	EndDate      *string   `json:"end_date,omitempty"`
	DurationDays *int      `json:"duration_days,omitempty"`
	IsActive     *bool     `json:"is_active,omitempty"`
}

// handleUpdateJob applies a partial update to a job.
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var req updateJobRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if req.Name != nil {
		job.Name = *req.Name
	}
	if req.StockIDs != nil {
		job.StockIDs = *req.StockIDs
	}
	if req.ScheduleTime != nil {
		job.ScheduleTime = *req.ScheduleTime
		job.NextRun = nil // recomputed on the next poll
	}
	if req.StartDate != nil {
		job.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		job.EndDate = *req.EndDate
	}
	if req.DurationDays != nil {
		job.DurationDays = req.DurationDays
	}
	if req.IsActive != nil {
		job.IsActive = *req.IsActive
	}

	if err := job.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.registry.Update(job); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Job updated successfully"})
}

// handleDeleteJob removes a job and its execution history.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	deleted, err := s.registry.Delete(jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	if err := s.history.DeleteJobHistory(jobID); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete job history")
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Job deleted successfully"})
}

// handleStartJob activates a job so the scheduler picks it up.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	s.setJobActive(w, r, true, "Job started successfully")
}

// handleStopJob deactivates a job.
func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	s.setJobActive(w, r, false, "Job stopped successfully")
}

func (s *Server) setJobActive(w http.ResponseWriter, r *http.Request, active bool, message string) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	job.IsActive = active
	if active {
		job.Status = scheduler.StatusPending
	} else {
		job.Status = scheduler.StatusPaused
	}

	if _, err := s.registry.Update(job); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": message})
}

// handleRunJobNow triggers a job immediately, outside its schedule.
func (s *Server) handleRunJobNow(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	record, err := s.sched.RunNow(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		if record != nil {
			// total failure still carries an execution record
			s.writeJSON(w, http.StatusOK, record)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

// handleJobHistory returns execution records for a job, newest first.
// Query parameters: limit (default 50) and status.
func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	status := scheduler.ExecutionStatus(r.URL.Query().Get("status"))

	records, err := s.history.JobHistory(jobID, limit, status)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, records)
}

// handleLatestExecution returns the most recent execution for a job.
func (s *Server) handleLatestExecution(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	record, err := s.history.Latest(jobID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "No execution history found for this job")
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

// handleGetExecution returns one execution record by ID.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")

	record, err := s.history.Get(executionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "Execution not found")
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

// handleSchedulerStatus reports the poll loop state and job counts.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.registry.List(false)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	active := 0
	for _, job := range jobs {
		if job.IsActive {
			active++
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"running":     s.sched.IsRunning(),
		"total_jobs":  len(jobs),
		"active_jobs": active,
	})
}
