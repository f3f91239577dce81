package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/fetch"
	"github.com/pkoukos/stockroom/internal/metadata"
)

// DefaultWindowDays is the lookback used when a job specifies neither an
// explicit date range nor a sliding duration.
const DefaultWindowDays = 30

// Executor runs one job: it resolves the job's date window, fetches every
// symbol, stores each dataset under the job's prefix and records the run
// in the execution history.
type Executor struct {
	fetcher fetch.Fetcher
	butler  *datastore.Butler
	history *HistoryRegistry
	log     zerolog.Logger
	now     func() time.Time
}

// NewExecutor creates a job executor.
func NewExecutor(fetcher fetch.Fetcher, butler *datastore.Butler, history *HistoryRegistry, log zerolog.Logger) *Executor {
	return &Executor{
		fetcher: fetcher,
		butler:  butler,
		history: history,
		log:     log.With().Str("component", "job_executor").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the executor's time source. Test hook.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// dateWindow resolves the fetch range for a job. A sliding duration is
// always anchored at today, regardless of when the job was created.
func (e *Executor) dateWindow(job *Job) (startDate, endDate string) {
	today := e.now()

	endDate = job.EndDate
	if endDate == "" {
		endDate = today.Format(fetch.DateFormat)
	}

	switch {
	case job.DurationDays != nil:
		startDate = today.AddDate(0, 0, -*job.DurationDays).Format(fetch.DateFormat)
	case job.StartDate != "":
		startDate = job.StartDate
	default:
		startDate = today.AddDate(0, 0, -DefaultWindowDays).Format(fetch.DateFormat)
	}
	return startDate, endDate
}

// Execute runs the job once and returns the finalized execution record.
// Individual symbol failures do not abort the run; they are collected and
// reflected in the record's status. A non-nil error is returned only for
// a total failure (every symbol failed).
func (e *Executor) Execute(ctx context.Context, job *Job, triggeredBy TriggeredBy) (*ExecutionRecord, error) {
	record := NewExecutionRecord(job, triggeredBy, e.now())
	if err := e.history.Save(record); err != nil {
		// A history write failure must not block the run itself.
		e.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record execution start")
	}

	startDate, endDate := e.dateWindow(job)
	record.Metadata["start_date"] = startDate
	record.Metadata["end_date"] = endDate
	record.Metadata["prefix"] = job.Prefix

	e.log.Info().
		Str("job_id", job.ID).
		Str("job_name", job.Name).
		Int("stocks", len(job.StockIDs)).
		Str("start_date", startDate).
		Str("end_date", endDate).
		Msg("Executing job")

	nextRun := metadata.NextRunFrom(job.ScheduleTime, e.now())
	for _, stockID := range job.StockIDs {
		if err := e.fetchAndStore(ctx, job, stockID, startDate, endDate, nextRun); err != nil {
			record.FailedStocks = append(record.FailedStocks, stockID)
			record.Errors = append(record.Errors, err.Error())
			e.log.Warn().Err(err).
				Str("job_id", job.ID).
				Str("stock_id", stockID).
				Msg("Stock fetch failed")
			continue
		}
		record.FetchedStocks = append(record.FetchedStocks, stockID)
	}

	endTime := e.now()
	record.EndTime = &endTime
	duration := endTime.Sub(record.StartTime).Seconds()
	record.DurationSeconds = &duration

	switch {
	case len(record.FailedStocks) == 0:
		record.Status = ExecutionSuccess
	case len(record.FetchedStocks) > 0:
		record.Status = ExecutionPartialSuccess
	default:
		record.Status = ExecutionFailed
	}

	if err := e.history.Save(record); err != nil {
		e.log.Error().Err(err).Str("execution_id", record.ExecutionID).Msg("Failed to save execution record")
	}

	e.log.Info().
		Str("job_id", job.ID).
		Str("status", string(record.Status)).
		Int("fetched", len(record.FetchedStocks)).
		Int("failed", len(record.FailedStocks)).
		Float64("duration_seconds", duration).
		Msg("Job execution finished")

	if record.Status == ExecutionFailed {
		return record, fmt.Errorf("job %s: all %d stocks failed", job.ID, record.TotalStocks)
	}
	return record, nil
}

func (e *Executor) fetchAndStore(ctx context.Context, job *Job, stockID, startDate, endDate string, nextRun *time.Time) error {
	table, err := e.fetcher.Fetch(ctx, stockID, startDate, endDate)
	if err != nil {
		return err
	}
	if len(table) == 0 {
		// Not every Fetcher implementation reports this itself.
		return &fetch.Error{Symbol: stockID, Err: fetch.ErrNoData}
	}

	meta := metadata.CreateJobMetadata(job.ID, job.Name, job.ScheduleTime, nextRun)

	scope := datastore.SingleScope{
		Prefix:    job.Prefix,
		StockID:   stockID,
		StartDate: startDate,
		EndDate:   endDate,
	}
	if err := e.butler.Save(scope, table, &meta); err != nil {
		return fmt.Errorf("store %s: %w", stockID, err)
	}
	return nil
}
