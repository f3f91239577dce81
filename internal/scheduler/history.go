package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/storage"
)

const (
	executionKeyPrefix = "scheduler:execution_history:"

	// JobHistoryIndexPrefix prefixes the per-job history index keys;
	// the maintenance sweeper enumerates indexes by it.
	JobHistoryIndexPrefix = "scheduler:job_history_index:"

	// HistoryTTL bounds how long execution records are retained.
	HistoryTTL = 30 * 24 * time.Hour

	// MaxHistoryPerJob caps the per-job index; older entries fall off.
	MaxHistoryPerJob = 100
)

// ExecutionStatus is the outcome of one job execution.
type ExecutionStatus string

const (
	ExecutionRunning        ExecutionStatus = "running"
	ExecutionSuccess        ExecutionStatus = "success"
	ExecutionPartialSuccess ExecutionStatus = "partial_success"
	ExecutionFailed         ExecutionStatus = "failed"
)

// TriggeredBy records what started an execution.
type TriggeredBy string

const (
	TriggeredBySchedulerAuto TriggeredBy = "scheduler_auto"
	TriggeredByManual        TriggeredBy = "manual_trigger"
	TriggeredByRetry         TriggeredBy = "retry"
)

// ExecutionRecord captures one job run. Its identity is immutable: the
// record is created when the run starts, finalized once at completion and
// never mutated afterwards.
type ExecutionRecord struct {
	ExecutionID     string          `json:"execution_id"`
	JobID           string          `json:"job_id"`
	JobName         string          `json:"job_name"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	Status          ExecutionStatus `json:"status"`
	FetchedStocks   []string        `json:"fetched_stocks"`
	FailedStocks    []string        `json:"failed_stocks"`
	Errors          []string        `json:"errors"`
	TotalStocks     int             `json:"total_stocks"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty"`
	TriggeredBy     TriggeredBy     `json:"triggered_by"`
	Metadata        map[string]any  `json:"metadata"`
}

// NewExecutionRecord starts a record for a job run.
func NewExecutionRecord(job *Job, triggeredBy TriggeredBy, startTime time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		ExecutionID:   uuid.NewString(),
		JobID:         job.ID,
		JobName:       job.Name,
		StartTime:     startTime,
		Status:        ExecutionRunning,
		FetchedStocks: []string{},
		FailedStocks:  []string{},
		Errors:        []string{},
		TotalStocks:   len(job.StockIDs),
		TriggeredBy:   triggeredBy,
		Metadata:      map[string]any{},
	}
}

// HistoryRegistry persists execution records with a retention TTL and a
// per-job, newest-first index capped at MaxHistoryPerJob entries.
type HistoryRegistry struct {
	adapter storage.Adapter
	log     zerolog.Logger
}

// NewHistoryRegistry creates an execution-history registry.
func NewHistoryRegistry(adapter storage.Adapter, log zerolog.Logger) *HistoryRegistry {
	return &HistoryRegistry{
		adapter: adapter,
		log:     log.With().Str("component", "execution_history").Logger(),
	}
}

func executionKey(executionID string) string {
	return executionKeyPrefix + executionID
}

func historyIndexKey(jobID string) string {
	return JobHistoryIndexPrefix + jobID
}

// Save persists the record and prepends its ID to the job's history index,
// truncating the index to the newest MaxHistoryPerJob entries.
func (h *HistoryRegistry) Save(record *ExecutionRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", record.ExecutionID, err)
	}
	if err := h.adapter.SaveWithTTL(executionKey(record.ExecutionID), string(encoded), HistoryTTL); err != nil {
		return fmt.Errorf("save execution %s: %w", record.ExecutionID, err)
	}

	if err := h.addToIndex(record.JobID, record.ExecutionID); err != nil {
		return err
	}

	h.log.Debug().
		Str("execution_id", record.ExecutionID).
		Str("job_id", record.JobID).
		Str("status", string(record.Status)).
		Msg("Execution record saved")
	return nil
}

// Get returns one execution record, or nil when absent or expired.
func (h *HistoryRegistry) Get(executionID string) (*ExecutionRecord, error) {
	raw, ok, err := h.adapter.Get(executionKey(executionID))
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", executionID, err)
	}
	if !ok {
		return nil, nil
	}

	var record ExecutionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode execution %s: %w", executionID, err)
	}
	return &record, nil
}

// JobHistory returns up to limit execution records for a job, newest
// first, optionally filtered by exact status.
//
// The status filter is applied while walking the first limit index
// entries, not after collecting limit matches. A filtered query can
// therefore return fewer than limit records even when more matches exist
// deeper in the index. This mirrors the long-standing persisted-history
// behavior and is pinned by tests; callers needing exhaustive filtering
// should pass a larger limit.
func (h *HistoryRegistry) JobHistory(jobID string, limit int, status ExecutionStatus) ([]*ExecutionRecord, error) {
	ids, err := h.indexIDs(jobID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]*ExecutionRecord, 0, len(ids))
	for _, id := range ids {
		record, err := h.Get(id)
		if err != nil {
			return nil, err
		}
		if record == nil {
			continue
		}
		if status != "" && record.Status != status {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// Latest returns the most recent execution record for a job, or nil.
func (h *HistoryRegistry) Latest(jobID string) (*ExecutionRecord, error) {
	records, err := h.JobHistory(jobID, 1, "")
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// DeleteExecution removes one execution record. The job index is left to
// self-heal: lookups skip missing records and the maintenance sweeper
// prunes dangling IDs.
func (h *HistoryRegistry) DeleteExecution(executionID string) (bool, error) {
	existed, err := h.adapter.Delete(executionKey(executionID))
	if err != nil {
		return false, fmt.Errorf("delete execution %s: %w", executionID, err)
	}
	return existed, nil
}

// DeleteJobHistory removes every listed execution for a job, then the
// index itself.
func (h *HistoryRegistry) DeleteJobHistory(jobID string) error {
	ids, err := h.indexIDs(jobID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := h.DeleteExecution(id); err != nil {
			return err
		}
	}
	if _, err := h.adapter.Delete(historyIndexKey(jobID)); err != nil {
		return fmt.Errorf("delete history index %s: %w", jobID, err)
	}
	h.log.Info().Str("job_id", jobID).Int("executions", len(ids)).Msg("Job history deleted")
	return nil
}

// ExecutionCount returns the number of indexed executions for a job.
func (h *HistoryRegistry) ExecutionCount(jobID string) (int, error) {
	ids, err := h.indexIDs(jobID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// PruneIndex drops index entries whose execution record has expired.
// Called by the maintenance sweeper.
func (h *HistoryRegistry) PruneIndex(jobID string) (int, error) {
	ids, err := h.indexIDs(jobID)
	if err != nil {
		return 0, err
	}

	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := h.adapter.Exists(executionKey(id))
		if err != nil {
			return 0, err
		}
		if ok {
			kept = append(kept, id)
		}
	}
	dropped := len(ids) - len(kept)
	if dropped > 0 {
		if err := h.saveIndex(jobID, kept); err != nil {
			return 0, err
		}
	}
	return dropped, nil
}

func (h *HistoryRegistry) indexIDs(jobID string) ([]string, error) {
	raw, ok, err := h.adapter.Get(historyIndexKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("get history index %s: %w", jobID, err)
	}
	if !ok {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode history index %s: %w", jobID, err)
	}
	return ids, nil
}

func (h *HistoryRegistry) saveIndex(jobID string, ids []string) error {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode history index %s: %w", jobID, err)
	}
	if err := h.adapter.SaveWithTTL(historyIndexKey(jobID), string(encoded), HistoryTTL); err != nil {
		return fmt.Errorf("save history index %s: %w", jobID, err)
	}
	return nil
}

// addToIndex prepends (newest first) and truncates to the cap. Saving the
// same execution again (e.g. finalizing a running record) leaves the index
// unchanged.
func (h *HistoryRegistry) addToIndex(jobID, executionID string) error {
	ids, err := h.indexIDs(jobID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == executionID {
			return nil
		}
	}
	ids = append([]string{executionID}, ids...)
	if len(ids) > MaxHistoryPerJob {
		ids = ids[:MaxHistoryPerJob]
	}
	return h.saveIndex(jobID, ids)
}
