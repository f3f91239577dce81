package maintenance

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkoukos/stockroom/internal/scheduler"
	"github.com/pkoukos/stockroom/internal/storage"
)

func TestSweep_PurgesExpiredAndPrunesIndexes(t *testing.T) {
	adapter := storage.NewMemory()
	history := scheduler.NewHistoryRegistry(adapter, zerolog.Nop())
	sweeper := NewSweeper(adapter, history, zerolog.Nop())

	job := &scheduler.Job{ID: "job-1", Name: "daily sync", StockIDs: []string{"AAPL"}}

	stale := scheduler.NewExecutionRecord(job, scheduler.TriggeredBySchedulerAuto, time.Now().UTC())
	require.NoError(t, history.Save(stale))
	fresh := scheduler.NewExecutionRecord(job, scheduler.TriggeredBySchedulerAuto, time.Now().UTC())
	require.NoError(t, history.Save(fresh))

	// an orphaned entry that already hit its TTL
	require.NoError(t, adapter.SaveWithTTL("orphan", "v", time.Nanosecond))

	// drop one record out from under its index, as TTL expiry would
	_, err := adapter.Delete("scheduler:execution_history:" + stale.ExecutionID)
	require.NoError(t, err)

	count, err := history.ExecutionCount(job.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	sweeper.Sweep()

	count, err = history.ExecutionCount(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "stale entry pruned from the index")

	got, err := history.Get(fresh.ExecutionID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	exists, err := adapter.Exists("orphan")
	require.NoError(t, err)
	assert.False(t, exists, "expired key purged")
}

func TestSweeper_StartStop(t *testing.T) {
	adapter := storage.NewMemory()
	history := scheduler.NewHistoryRegistry(adapter, zerolog.Nop())

	sweeper := NewSweeper(adapter, history, zerolog.Nop())
	require.NoError(t, sweeper.Start(""))
	sweeper.Stop()
}

func TestSweeper_BadSchedule(t *testing.T) {
	adapter := storage.NewMemory()
	history := scheduler.NewHistoryRegistry(adapter, zerolog.Nop())

	sweeper := NewSweeper(adapter, history, zerolog.Nop())
	assert.Error(t, sweeper.Start("not a cron spec"))
}
