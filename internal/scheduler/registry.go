package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/storage"
)

const (
	jobKeyPrefix = "scheduler:job"
	jobIndexKey  = "scheduler:job_index"
)

// ErrJobNotFound is returned by operations that require an existing job.
var ErrJobNotFound = errors.New("job not found")

// Registry persists scheduled jobs in the storage adapter and maintains an
// index of all job IDs at a well-known key.
type Registry struct {
	adapter storage.Adapter
	log     zerolog.Logger
	mu      sync.Mutex
}

// NewRegistry creates a job registry over the given adapter.
func NewRegistry(adapter storage.Adapter, log zerolog.Logger) *Registry {
	return &Registry{
		adapter: adapter,
		log:     log.With().Str("component", "job_registry").Logger(),
	}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("%s:%s", jobKeyPrefix, jobID)
}

// Create validates and persists a new job, adding it to the index.
func (r *Registry) Create(job *Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.saveJob(job); err != nil {
		return "", err
	}
	if err := r.addToIndex(job.ID); err != nil {
		return "", err
	}

	r.log.Info().Str("job_id", job.ID).Str("name", job.Name).Msg("Job created")
	return job.ID, nil
}

// Get returns a job by ID, or nil when absent.
func (r *Registry) Get(jobID string) (*Job, error) {
	raw, ok, err := r.adapter.Get(jobKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if !ok {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// List returns all jobs in index order, optionally only active ones.
// Index entries whose job document is missing are skipped.
func (r *Registry) List(activeOnly bool) ([]*Job, error) {
	ids, err := r.indexIDs()
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			continue
		}
		if activeOnly && !job.IsActive {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ActiveJobs returns all jobs with IsActive set.
func (r *Registry) ActiveJobs() ([]*Job, error) {
	return r.List(true)
}

// Update overwrites an existing job. It reports false when the job does
// not exist.
func (r *Registry) Update(job *Job) (bool, error) {
	if err := job.Validate(); err != nil {
		return false, err
	}

	exists, err := r.adapter.Exists(jobKey(job.ID))
	if err != nil {
		return false, fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if !exists {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.saveJob(job); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a job and its index entry. It reports whether the job
// existed.
func (r *Registry) Delete(jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existed, err := r.adapter.Delete(jobKey(jobID))
	if err != nil {
		return false, fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if existed {
		if err := r.removeFromIndex(jobID); err != nil {
			return false, err
		}
		r.log.Info().Str("job_id", jobID).Msg("Job deleted")
	}
	return existed, nil
}

func (r *Registry) saveJob(job *Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := r.adapter.Save(jobKey(job.ID), string(encoded)); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// indexIDs loads the job index; a missing index is an empty list.
func (r *Registry) indexIDs() ([]string, error) {
	raw, ok, err := r.adapter.Get(jobIndexKey)
	if err != nil {
		return nil, fmt.Errorf("get job index: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode job index: %w", err)
	}
	return ids, nil
}

func (r *Registry) saveIndex(ids []string) error {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode job index: %w", err)
	}
	if err := r.adapter.Save(jobIndexKey, string(encoded)); err != nil {
		return fmt.Errorf("save job index: %w", err)
	}
	return nil
}

// addToIndex is idempotent: an already-present ID is a no-op.
func (r *Registry) addToIndex(jobID string) error {
	ids, err := r.indexIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == jobID {
			return nil
		}
	}
	return r.saveIndex(append(ids, jobID))
}

// removeFromIndex is idempotent: an absent ID is a no-op.
func (r *Registry) removeFromIndex(jobID string) error {
	ids, err := r.indexIDs()
	if err != nil {
		return err
	}
	kept := ids[:0]
	removed := false
	for _, id := range ids {
		if id == jobID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	if !removed {
		return nil
	}
	return r.saveIndex(kept)
}
