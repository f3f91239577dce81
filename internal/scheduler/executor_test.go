package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkoukos/stockroom/internal/dataset"
	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/fetch"
	"github.com/pkoukos/stockroom/internal/storage"
)

// fakeFetcher returns canned rows per symbol and records the date ranges
// it was asked for.
type fakeFetcher struct {
	fail  map[string]error
	calls []fetchCall
}

type fetchCall struct {
	symbol    string
	startDate string
	endDate   string
}

func (f *fakeFetcher) Fetch(_ context.Context, symbol, startDate, endDate string) (dataset.Table, error) {
	f.calls = append(f.calls, fetchCall{symbol, startDate, endDate})
	if err, ok := f.fail[symbol]; ok {
		return nil, err
	}
	return dataset.Table{
		{"Date": startDate, "Close": 100.0},
		{"Date": endDate, "Close": 101.0},
	}, nil
}

func newTestExecutor(t *testing.T, fetcher *fakeFetcher) (*Executor, *datastore.Butler, *HistoryRegistry) {
	t.Helper()
	adapter := storage.NewMemory()
	butler := datastore.NewButler(adapter, zerolog.Nop())
	history := NewHistoryRegistry(adapter, zerolog.Nop())
	return NewExecutor(fetcher, butler, history, zerolog.Nop()), butler, history
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestExecutor_DateWindow(t *testing.T) {
	now := time.Date(2025, 10, 23, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		job       *Job
		wantStart string
		wantEnd   string
	}{
		{
			name:      "default thirty day window",
			job:       &Job{},
			wantStart: "2025-09-23",
			wantEnd:   "2025-10-23",
		},
		{
			name:      "sliding duration anchored at today",
			job:       &Job{DurationDays: intPtr(60), StartDate: "2020-01-01"},
			wantStart: "2025-08-24",
			wantEnd:   "2025-10-23",
		},
		{
			name:      "explicit range preserved",
			job:       &Job{StartDate: "2024-01-01", EndDate: "2024-06-30"},
			wantStart: "2024-01-01",
			wantEnd:   "2024-06-30",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, _, _ := newTestExecutor(t, &fakeFetcher{})
			exec.SetClock(fixedClock(now))
			start, end := exec.dateWindow(tt.job)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestExecutor_Success(t *testing.T) {
	fetcher := &fakeFetcher{}
	exec, butler, history := newTestExecutor(t, fetcher)
	now := time.Date(2025, 10, 23, 9, 0, 0, 0, time.UTC)
	exec.SetClock(fixedClock(now))

	job := NewJob("daily sync", []string{"AAPL", "MSFT"}, "17:00")

	record, err := exec.Execute(context.Background(), job, TriggeredBySchedulerAuto)
	require.NoError(t, err)
	assert.Equal(t, ExecutionSuccess, record.Status)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, record.FetchedStocks)
	assert.Empty(t, record.FailedStocks)
	assert.Equal(t, 2, record.TotalStocks)
	require.NotNil(t, record.EndTime)
	require.NotNil(t, record.DurationSeconds)

	// stored under the job prefix with job metadata attached
	scope := datastore.SingleScope{
		Prefix:    job.Prefix,
		StockID:   "AAPL",
		StartDate: "2025-09-23",
		EndDate:   "2025-10-23",
	}
	table, meta, err := butler.GetWithMetadata(scope)
	require.NoError(t, err)
	assert.Len(t, table, 2)
	require.NotNil(t, meta)
	assert.Equal(t, job.ID, meta.JobID)
	require.NotNil(t, meta.NextUpdate)
	assert.Equal(t, time.Date(2025, 10, 23, 17, 0, 0, 0, time.UTC), meta.NextUpdate.UTC())

	// the history record is persisted, not just returned
	saved, err := history.Get(record.ExecutionID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, ExecutionSuccess, saved.Status)
	assert.Equal(t, "2025-09-23", saved.Metadata["start_date"])
	assert.Equal(t, job.Prefix, saved.Metadata["prefix"])
}

func TestExecutor_PartialSuccess(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{"BBB": errors.New("provider timeout")}}
	exec, _, history := newTestExecutor(t, fetcher)

	job := NewJob("mixed batch", []string{"AAA", "BBB"}, "17:00")

	record, err := exec.Execute(context.Background(), job, TriggeredByManual)
	require.NoError(t, err, "partial failure is not an execution error")
	assert.Equal(t, ExecutionPartialSuccess, record.Status)
	assert.Equal(t, []string{"AAA"}, record.FetchedStocks)
	assert.Equal(t, []string{"BBB"}, record.FailedStocks)
	require.Len(t, record.Errors, 1)
	assert.Contains(t, record.Errors[0], "provider timeout")
	assert.Equal(t, TriggeredByManual, record.TriggeredBy)

	saved, err := history.Get(record.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionPartialSuccess, saved.Status)
}

func TestExecutor_TotalFailure(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{
		"AAA": errors.New("boom"),
		"BBB": errors.New("boom"),
	}}
	exec, _, history := newTestExecutor(t, fetcher)

	job := NewJob("doomed", []string{"AAA", "BBB"}, "17:00")

	record, err := exec.Execute(context.Background(), job, TriggeredBySchedulerAuto)
	require.Error(t, err)
	require.NotNil(t, record)
	assert.Equal(t, ExecutionFailed, record.Status)
	assert.Empty(t, record.FetchedStocks)
	assert.Len(t, record.FailedStocks, 2)

	saved, err := history.Get(record.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, saved.Status)
}

// emptyFetcher returns zero rows with no error, like a provider that has
// nothing for the requested range.
type emptyFetcher struct{}

func (emptyFetcher) Fetch(context.Context, string, string, string) (dataset.Table, error) {
	return dataset.Table{}, nil
}

func TestExecutor_EmptyFetchIsFailure(t *testing.T) {
	adapter := storage.NewMemory()
	butler := datastore.NewButler(adapter, zerolog.Nop())
	history := NewHistoryRegistry(adapter, zerolog.Nop())
	exec := NewExecutor(emptyFetcher{}, butler, history, zerolog.Nop())

	job := NewJob("dry well", []string{"AAPL"}, "17:00")

	record, err := exec.Execute(context.Background(), job, TriggeredBySchedulerAuto)
	require.Error(t, err)
	assert.Equal(t, ExecutionFailed, record.Status)
	assert.Equal(t, []string{"AAPL"}, record.FailedStocks)
	require.Len(t, record.Errors, 1)
	assert.Contains(t, record.Errors[0], fetch.ErrNoData.Error())

	exists, err := butler.Exists(datastore.SingleScope{
		Prefix:    job.Prefix,
		StockID:   "AAPL",
		StartDate: record.Metadata["start_date"].(string),
		EndDate:   record.Metadata["end_date"].(string),
	})
	require.NoError(t, err)
	assert.False(t, exists, "nothing stored for an empty fetch")
}

func TestExecutor_FetchesResolvedWindow(t *testing.T) {
	fetcher := &fakeFetcher{}
	exec, _, _ := newTestExecutor(t, fetcher)
	exec.SetClock(fixedClock(time.Date(2025, 10, 23, 0, 0, 0, 0, time.UTC)))

	job := NewJob("sliding", []string{"AAPL"}, "17:00")
	job.DurationDays = intPtr(7)

	_, err := exec.Execute(context.Background(), job, TriggeredBySchedulerAuto)
	require.NoError(t, err)

	require.Len(t, fetcher.calls, 1)
	assert.Equal(t, fetchCall{"AAPL", "2025-10-16", "2025-10-23"}, fetcher.calls[0])
}

func intPtr(n int) *int { return &n }
