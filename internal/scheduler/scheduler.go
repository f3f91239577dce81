package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/metadata"
)

// DefaultCheckInterval is how often the scheduler polls for due jobs.
const DefaultCheckInterval = 60 * time.Second

// Scheduler polls the job registry and dispatches due jobs to the
// executor. Each due job runs in its own goroutine so a slow fetch never
// delays the poll loop or other jobs.
type Scheduler struct {
	registry      *Registry
	executor      *Executor
	checkInterval time.Duration
	log           zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewScheduler creates a scheduler. A non-positive checkInterval falls
// back to DefaultCheckInterval.
func NewScheduler(registry *Registry, executor *Executor, checkInterval time.Duration, log zerolog.Logger) *Scheduler {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	return &Scheduler{
		registry:      registry,
		executor:      executor,
		checkInterval: checkInterval,
		log:           log.With().Str("component", "scheduler").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the scheduler's time source. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start launches the poll loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn().Msg("Scheduler already running")
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stop)

	s.log.Info().Dur("check_interval", s.checkInterval).Msg("Scheduler started")
}

// Stop signals the poll loop and waits for it to exit. In-flight job
// runs are not joined; they finish in the background and persist their
// own bookkeeping. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("Scheduler not running")
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the poll loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Check immediately on start so a restart doesn't wait a full
	// interval for already-due jobs.
	s.checkJobs()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.checkJobs()
		}
	}
}

// checkJobs scans active jobs and dispatches the due ones. Errors on one
// job never prevent the rest from being checked.
func (s *Scheduler) checkJobs() {
	jobs, err := s.registry.ActiveJobs()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list active jobs")
		return
	}

	now := s.now()
	for _, job := range jobs {
		if err := s.checkJob(job, now); err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Msg("Job check failed")
		}
	}
}

func (s *Scheduler) checkJob(job *Job, now time.Time) error {
	if job.NextRun == nil {
		next := metadata.NextRunFrom(job.ScheduleTime, now)
		if next == nil {
			s.log.Warn().
				Str("job_id", job.ID).
				Str("schedule_time", job.ScheduleTime).
				Msg("Job has unparseable schedule time, skipping")
			return nil
		}
		job.NextRun = next
		if _, err := s.registry.Update(job); err != nil {
			return err
		}
		return nil
	}

	if now.Before(*job.NextRun) {
		return nil
	}
	if job.Status == StatusRunning {
		s.log.Debug().Str("job_id", job.ID).Msg("Job already running, skipping dispatch")
		return nil
	}

	s.dispatch(job, now)
	return nil
}

// dispatch marks the job running and executes it in the background.
// Job goroutines are not tracked by the WaitGroup; Stop joins only the
// poll loop, never an in-flight provider call.
func (s *Scheduler) dispatch(job *Job, now time.Time) {
	job.Status = StatusRunning
	if _, err := s.registry.Update(job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job running")
		return
	}

	go s.runJob(job, now)
}

func (s *Scheduler) runJob(job *Job, startedAt time.Time) {
	record, err := s.executor.Execute(context.Background(), job, TriggeredBySchedulerAuto)

	job.LastRun = &startedAt
	job.NextRun = metadata.NextRunFrom(job.ScheduleTime, startedAt)
	if err != nil || (record != nil && record.Status == ExecutionFailed) {
		job.Status = StatusFailed
	} else {
		// partial_success still counts as a completed run.
		job.Status = StatusCompleted
	}

	if _, err := s.registry.Update(job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist job state after run")
	}
}

// RunNow executes a job immediately, outside its schedule. The job's
// schedule and next-run bookkeeping are updated the same way an automatic
// run would update them.
func (s *Scheduler) RunNow(ctx context.Context, jobID string) (*ExecutionRecord, error) {
	job, err := s.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	startedAt := s.now()
	job.Status = StatusRunning
	if _, err := s.registry.Update(job); err != nil {
		return nil, err
	}

	record, execErr := s.executor.Execute(ctx, job, TriggeredByManual)

	job.LastRun = &startedAt
	job.NextRun = metadata.NextRunFrom(job.ScheduleTime, startedAt)
	if execErr != nil {
		job.Status = StatusFailed
	} else {
		job.Status = StatusCompleted
	}
	if _, err := s.registry.Update(job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist job state after manual run")
	}

	return record, execErr
}
