package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopress/autopress/internal/models"
)

func newTestRuns(t *testing.T) *RunService {
	return NewRunService(newTestDB(t), testLogger())
}

func TestStartIsIdempotent(t *testing.T) {
	runs := newTestRuns(t)
	date := time.Now().UTC().Truncate(24 * time.Hour)

	run, resumed, err := runs.Start("daily-20260901", date, 3)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Equal(t, 3, run.PlannedCount)

	// second submission with the same id is a no-op
	dup, resumed, err := runs.Start("daily-20260901", date, 3)
	assert.ErrorIs(t, err, ErrDuplicateRun)
	assert.False(t, resumed)
	assert.Equal(t, run.RunID, dup.RunID)
}

func TestStartRejectsEmptyRunID(t *testing.T) {
	runs := newTestRuns(t)
	_, _, err := runs.Start("", time.Now().UTC(), 1)
	assert.Error(t, err)
}

func TestStartResumesScheduledRun(t *testing.T) {
	runs := newTestRuns(t)
	date := time.Now().UTC().Truncate(24 * time.Hour)

	_, _, err := runs.Start("run-1", date, 3)
	require.NoError(t, err)
	require.NoError(t, runs.Finish("run-1", models.RunStatusScheduled, "executor unreachable"))

	run, resumed, err := runs.Start("run-1", date, 3)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	// a terminal run does not resume
	require.NoError(t, runs.Finish("run-1", models.RunStatusSuccess, ""))
	_, resumed, err = runs.Start("run-1", date, 3)
	assert.ErrorIs(t, err, ErrDuplicateRun)
	assert.False(t, resumed)
}

func TestCountersAreMonotonic(t *testing.T) {
	runs := newTestRuns(t)
	_, _, err := runs.Start("run-1", time.Now().UTC(), 3)
	require.NoError(t, err)

	require.NoError(t, runs.RecordConsumption("run-1", 1))
	require.NoError(t, runs.RecordConsumption("run-1", 2))
	require.NoError(t, runs.RecordAddition("run-1", 1))

	assert.Error(t, runs.RecordConsumption("run-1", -1))
	assert.Error(t, runs.RecordAddition("run-1", -2))

	run, err := runs.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, run.ConsumedCount)
	assert.Equal(t, 1, run.AddedCount)
}

func TestFinishValidation(t *testing.T) {
	runs := newTestRuns(t)
	_, _, err := runs.Start("run-1", time.Now().UTC(), 1)
	require.NoError(t, err)

	assert.Error(t, runs.Finish("run-1", "exploded", "reason"))
	assert.Error(t, runs.Finish("run-1", models.RunStatusFailed, ""))
	assert.Error(t, runs.Finish("missing", models.RunStatusSuccess, ""))

	require.NoError(t, runs.Finish("run-1", models.RunStatusPartial, "added 2 of 3 planned"))
	run, err := runs.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPartial, run.Status)
	assert.Equal(t, "added 2 of 3 planned", run.Error)
	assert.True(t, run.Terminal())
}

func TestAbandonStale(t *testing.T) {
	db := newTestDB(t)
	runs := NewRunService(db, testLogger())

	_, _, err := runs.Start("run-old", time.Now().UTC(), 1)
	require.NoError(t, err)
	_, _, err = runs.Start("run-fresh", time.Now().UTC(), 1)
	require.NoError(t, err)

	// age the first run past the budget
	stale := time.Now().UTC().Add(-3 * time.Hour)
	require.NoError(t, db.Model(&models.Run{}).
		Where("run_id = ?", "run-old").
		UpdateColumn("updated_at", stale).Error)

	n, err := runs.AbandonStale(2 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := runs.Get("run-old")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusScheduled, old.Status)

	fresh, err := runs.Get("run-fresh")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, fresh.Status)
}
