package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob_Defaults(t *testing.T) {
	job := NewJob("Daily tech", []string{"AAPL", "MSFT"}, "")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, DefaultScheduleTime, job.ScheduleTime)
	assert.Equal(t, DefaultPrefix, job.Prefix)
	assert.True(t, job.IsActive)
	assert.Equal(t, StatusPending, job.Status)
	assert.Nil(t, job.NextRun)

	other := NewJob("Another", []string{"AAPL"}, "09:00")
	assert.NotEqual(t, job.ID, other.ID)
	assert.Equal(t, "09:00", other.ScheduleTime)
}

func TestJobValidate(t *testing.T) {
	valid := func() *Job { return NewJob("j", []string{"AAPL"}, "17:00") }

	require.NoError(t, valid().Validate())

	t.Run("missing name", func(t *testing.T) {
		job := valid()
		job.Name = ""
		err := job.Validate()
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "name", vErr.Field)
	})

	t.Run("empty stock list", func(t *testing.T) {
		job := valid()
		job.StockIDs = nil
		var vErr *ValidationError
		require.ErrorAs(t, job.Validate(), &vErr)
		assert.Equal(t, "stock_ids", vErr.Field)
	})

	t.Run("bad schedule time", func(t *testing.T) {
		job := valid()
		job.ScheduleTime = "25:99"
		var vErr *ValidationError
		require.ErrorAs(t, job.Validate(), &vErr)
		assert.Equal(t, "schedule_time", vErr.Field)
	})

	t.Run("non-positive duration", func(t *testing.T) {
		job := valid()
		zero := 0
		job.DurationDays = &zero
		var vErr *ValidationError
		require.ErrorAs(t, job.Validate(), &vErr)
		assert.Equal(t, "duration_days", vErr.Field)
	})

	t.Run("positive duration ok", func(t *testing.T) {
		job := valid()
		thirty := 30
		job.DurationDays = &thirty
		assert.NoError(t, job.Validate())
	})
}
