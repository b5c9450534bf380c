package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/internal/service/deliverer"
)

func TestUpdateRunStats(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db, testLogger())
	runs := NewRunService(db, testLogger())
	now := time.Now().UTC()
	date := now.Truncate(24 * time.Hour)

	_, _, err := runs.Start("run-1", date, 3)
	require.NoError(t, err)
	require.NoError(t, runs.Finish("run-1", models.RunStatusSuccess, ""))
	_, _, err = runs.Start("run-2", date, 3)
	require.NoError(t, err)
	require.NoError(t, runs.Finish("run-2", models.RunStatusPartial, "added 2 of 3 planned"))

	seedArticle(t, db, "run-1")

	require.NoError(t, stats.UpdateRunStats(now))

	var row models.RunStats
	require.NoError(t, db.Where("date = ?", now.Format("2006-01-02")).First(&row).Error)
	assert.Equal(t, 2, row.TotalRuns)
	assert.Equal(t, 1, row.SuccessRuns)
	assert.Equal(t, 1, row.PartialRuns)
	assert.Equal(t, 0, row.FailedRuns)
	assert.Equal(t, 1, row.TotalArticles)

	// refresh is a replay, not an accumulation
	require.NoError(t, stats.UpdateRunStats(now))
	require.NoError(t, db.Where("date = ?", now.Format("2006-01-02")).First(&row).Error)
	assert.Equal(t, 2, row.TotalRuns)
}

func TestUpdatePlatformStats(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	stats := NewStatsService(db, testLogger())
	delivery := NewDeliveryService(db, testLogger(), &cfg.Retry)
	now := time.Now().UTC()

	a1 := seedArticle(t, db, "run-1")
	a2 := seedArticle(t, db, "run-2")
	_, err := delivery.Request(a1.ID, "zhihu", testPayload(a1.ID))
	require.NoError(t, err)
	_, err = delivery.Request(a2.ID, "zhihu", testPayload(a2.ID))
	require.NoError(t, err)

	res := &deliverer.Result{Platform: "zhihu", Status: models.DeliveryStatusSuccess, TargetID: "post-1"}
	require.NoError(t, delivery.RecordOutcome(a1.ID, "zhihu", res, nil))

	require.NoError(t, stats.UpdatePlatformStats(now))

	var row models.PlatformStats
	require.NoError(t, db.Where("date = ? AND platform = ?", now.Format("2006-01-02"), "zhihu").First(&row).Error)
	assert.Equal(t, 2, row.TotalJobs)
	assert.Equal(t, 1, row.SuccessJobs)
	require.NotNil(t, row.LastSuccessAt)
}

func TestCleanupOldData(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db, testLogger())

	old := time.Now().UTC().AddDate(0, 0, -120).Format("2006-01-02")
	recent := time.Now().UTC().Format("2006-01-02")
	require.NoError(t, db.Create(&models.RunStats{Date: old}).Error)
	require.NoError(t, db.Create(&models.RunStats{Date: recent}).Error)

	require.NoError(t, stats.CleanupOldData(90))

	var rows []models.RunStats
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, recent, rows[0].Date)
}
