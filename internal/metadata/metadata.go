// Package metadata implements the dataset provenance envelope: every table
// persisted through the data store can carry a record of where it came
// from, which job produced it and when it will be refreshed. Legacy values
// stored before the envelope existed are still readable (see Unwrap).
package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceType classifies how a dataset entered the store.
type SourceType string

const (
	SourceScheduledJob SourceType = "scheduled_job"
	SourceManualFetch  SourceType = "manual_fetch"
	SourceUnknown      SourceType = "unknown"
)

// Metadata is the provenance record persisted next to a dataset.
// CreatedAt never changes after creation; UpdatedAt is refreshed by every
// field mutation.
type Metadata struct {
	SourceType   SourceType `json:"source_type"`
	JobID        string     `json:"job_id,omitempty"`
	JobName      string     `json:"job_name,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ScheduleTime string     `json:"schedule_time,omitempty"`
	IsRecurring  bool       `json:"is_recurring"`
	NextUpdate   *time.Time `json:"next_update,omitempty"`
	Tags         []string   `json:"tags"`
	Description  string     `json:"description"`
}

// Clock is the package's notion of now, swapped in tests.
var Clock = func() time.Time { return time.Now().UTC() }

// CreateDefault builds metadata for manual fetches or unknown sources.
func CreateDefault(source SourceType) Metadata {
	now := Clock()
	createdBy := "unknown"
	if source == SourceManualFetch {
		createdBy = "user"
	}
	return Metadata{
		SourceType:  source,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsRecurring: false,
		Tags:        []string{},
		Description: "",
	}
}

// CreateJobMetadata builds metadata for data fetched by a scheduled job.
func CreateJobMetadata(jobID, jobName, scheduleTime string, nextUpdate *time.Time) Metadata {
	now := Clock()
	return Metadata{
		SourceType:   SourceScheduledJob,
		JobID:        jobID,
		JobName:      jobName,
		CreatedBy:    "job_scheduler",
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduleTime: scheduleTime,
		IsRecurring:  true,
		NextUpdate:   nextUpdate,
		Tags:         []string{"scheduled", "auto-updating"},
		Description:  fmt.Sprintf("Data from scheduled job '%s' at %s", jobName, scheduleTime),
	}
}

// CalculateNextRunTime returns the next occurrence of scheduleTime (HH:MM,
// UTC): today if still in the future, otherwise tomorrow. Malformed input
// yields nil, never an error.
func CalculateNextRunTime(scheduleTime string) *time.Time {
	return NextRunFrom(scheduleTime, Clock())
}

// NextRunFrom is CalculateNextRunTime relative to an explicit now.
func NextRunFrom(scheduleTime string, now time.Time) *time.Time {
	hour, minute, ok := parseScheduleTime(scheduleTime)
	if !ok {
		return nil
	}
	run := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !run.After(now) {
		run = run.Add(24 * time.Hour)
	}
	return &run
}

// ParseScheduleTime validates an HH:MM string with hour 0-23, minute 0-59.
func ParseScheduleTime(scheduleTime string) (hour, minute int, err error) {
	h, m, ok := parseScheduleTime(scheduleTime)
	if !ok {
		return 0, 0, fmt.Errorf("invalid schedule time %q: expected HH:MM", scheduleTime)
	}
	return h, m, nil
}

func parseScheduleTime(scheduleTime string) (int, int, bool) {
	parts := strings.Split(scheduleTime, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// Update sets a named field and refreshes UpdatedAt. Unknown field names
// are an error; CreatedAt is immutable.
func (m *Metadata) Update(field string, value any) error {
	var err error
	switch field {
	case "source_type":
		var s string
		if s, err = asString(field, value); err == nil {
			m.SourceType = SourceType(s)
		}
	case "job_id":
		m.JobID, err = asString(field, value)
	case "job_name":
		m.JobName, err = asString(field, value)
	case "created_by":
		m.CreatedBy, err = asString(field, value)
	case "schedule_time":
		m.ScheduleTime, err = asString(field, value)
	case "description":
		m.Description, err = asString(field, value)
	case "is_recurring":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("is_recurring requires a bool, got %T", value)
		}
		m.IsRecurring = b
	case "tags":
		tags, ok := value.([]string)
		if !ok {
			return fmt.Errorf("tags requires []string, got %T", value)
		}
		m.Tags = tags
	case "next_update":
		t, ok := value.(*time.Time)
		if !ok {
			return fmt.Errorf("next_update requires *time.Time, got %T", value)
		}
		m.NextUpdate = t
	default:
		return fmt.Errorf("unknown metadata field %q", field)
	}
	if err != nil {
		return err
	}
	m.UpdatedAt = Clock()
	return nil
}

func asString(field string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s requires a string, got %T", field, value)
	}
	return s, nil
}
