// Package scheduler implements the recurring fetch-job subsystem: the
// persisted job definitions and their registry, the execution-history
// ledger, the per-job executor and the background polling scheduler.
package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkoukos/stockroom/internal/metadata"
)

// Status is the lifecycle state of a scheduled job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// DefaultPrefix is the storage namespace for data fetched by jobs.
const DefaultPrefix = "scheduled_stock_data"

// DefaultScheduleTime is used when a job is created without one.
const DefaultScheduleTime = "17:00"

// Job is a recurring data-fetch job. Its ID is stable across updates.
type Job struct {
	ID           string     `json:"job_id"`
	Name         string     `json:"name"`
	StockIDs     []string   `json:"stock_ids"`
	ScheduleTime string     `json:"schedule_time"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	Status       Status     `json:"status"`
	StartDate    string     `json:"start_date,omitempty"`
	EndDate      string     `json:"end_date,omitempty"`
	DurationDays *int       `json:"duration_days,omitempty"`
	Prefix       string     `json:"prefix"`
}

// NewJob creates a pending, active job with generated identity and
// defaults filled in. Call Validate before persisting.
func NewJob(name string, stockIDs []string, scheduleTime string) *Job {
	if scheduleTime == "" {
		scheduleTime = DefaultScheduleTime
	}
	return &Job{
		ID:           uuid.NewString(),
		Name:         name,
		StockIDs:     stockIDs,
		ScheduleTime: scheduleTime,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		Status:       StatusPending,
		Prefix:       DefaultPrefix,
	}
}

// ValidationError reports a job field that fails validation. It is never
// silently coerced; create/update surface it to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job: %s %s", e.Field, e.Reason)
}

// Validate checks the job's configuration.
func (j *Job) Validate() error {
	if j.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if len(j.StockIDs) == 0 {
		return &ValidationError{Field: "stock_ids", Reason: "requires at least one symbol"}
	}
	if _, _, err := metadata.ParseScheduleTime(j.ScheduleTime); err != nil {
		return &ValidationError{Field: "schedule_time", Reason: "must be HH:MM"}
	}
	if j.DurationDays != nil && *j.DurationDays <= 0 {
		return &ValidationError{Field: "duration_days", Reason: "must be positive"}
	}
	return nil
}
