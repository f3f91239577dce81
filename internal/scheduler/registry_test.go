package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkoukos/stockroom/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.Memory) {
	t.Helper()
	adapter := storage.NewMemory()
	return NewRegistry(adapter, zerolog.Nop()), adapter
}

func TestRegistry_CreateAndGet(t *testing.T) {
	registry, _ := newTestRegistry(t)

	job := NewJob("Daily tech", []string{"AAPL"}, "17:00")
	jobID, err := registry.Create(job)
	require.NoError(t, err)
	assert.Equal(t, job.ID, jobID)

	got, err := registry.Get(jobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Daily tech", got.Name)
	assert.Equal(t, []string{"AAPL"}, got.StockIDs)

	missing, err := registry.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRegistry_Create_RejectsInvalid(t *testing.T) {
	registry, _ := newTestRegistry(t)

	job := NewJob("", []string{"AAPL"}, "17:00")
	_, err := registry.Create(job)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestRegistry_List_IndexOrderAndFiltering(t *testing.T) {
	registry, _ := newTestRegistry(t)

	first := NewJob("first", []string{"AAPL"}, "17:00")
	second := NewJob("second", []string{"MSFT"}, "18:00")
	second.IsActive = false
	third := NewJob("third", []string{"GOOG"}, "19:00")

	for _, job := range []*Job{first, second, third} {
		_, err := registry.Create(job)
		require.NoError(t, err)
	}

	jobs, err := registry.List(false)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{jobs[0].Name, jobs[1].Name, jobs[2].Name})

	active, err := registry.ActiveJobs()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "first", active[0].Name)
	assert.Equal(t, "third", active[1].Name)
}

func TestRegistry_List_SkipsDanglingIndexEntries(t *testing.T) {
	registry, adapter := newTestRegistry(t)

	job := NewJob("kept", []string{"AAPL"}, "17:00")
	_, err := registry.Create(job)
	require.NoError(t, err)

	ghost := NewJob("ghost", []string{"MSFT"}, "18:00")
	_, err = registry.Create(ghost)
	require.NoError(t, err)

	// remove the document but leave the index entry behind
	_, err = adapter.Delete("scheduler:job:" + ghost.ID)
	require.NoError(t, err)

	jobs, err := registry.List(false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "kept", jobs[0].Name)
}

func TestRegistry_Update(t *testing.T) {
	registry, _ := newTestRegistry(t)

	job := NewJob("before", []string{"AAPL"}, "17:00")
	_, err := registry.Create(job)
	require.NoError(t, err)

	job.Name = "after"
	ok, err := registry.Update(job)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := registry.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)

	phantom := NewJob("never saved", []string{"AAPL"}, "17:00")
	ok, err = registry.Update(phantom)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_Delete(t *testing.T) {
	registry, _ := newTestRegistry(t)

	job := NewJob("doomed", []string{"AAPL"}, "17:00")
	_, err := registry.Create(job)
	require.NoError(t, err)

	deleted, err := registry.Delete(job.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := registry.Get(job.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	jobs, err := registry.List(false)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	deleted, err = registry.Delete(job.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRegistry_IndexIdempotence(t *testing.T) {
	registry, _ := newTestRegistry(t)

	job := NewJob("once", []string{"AAPL"}, "17:00")
	_, err := registry.Create(job)
	require.NoError(t, err)

	// creating the same job again must not duplicate the index entry
	_, err = registry.Create(job)
	require.NoError(t, err)

	jobs, err := registry.List(false)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
