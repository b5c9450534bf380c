package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 5335, cfg.Server.Port)

	assert.Equal(t, "0 9 * * *", cfg.Planner.Cron)
	assert.Equal(t, 3, cfg.Planner.DailyCount)
	assert.Equal(t, "zh", cfg.Planner.Lang)
	assert.Equal(t, 9, cfg.Planner.CandidateAttempts)
	assert.Equal(t, 30*24*time.Hour, cfg.Planner.KeywordCooldown)
	assert.Equal(t, 2*time.Hour, cfg.Planner.RunBudget)
	// lock TTL follows the run budget unless set explicitly
	assert.Equal(t, cfg.Planner.RunBudget, cfg.Planner.LockTTL)
	assert.False(t, cfg.Planner.EnrichEnabled)
	assert.Equal(t, 3, cfg.Planner.EnrichGroupSize)

	assert.Equal(t, 0.85, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, 14, cfg.Dedup.TitleWindowDays)
	assert.Equal(t, 3, cfg.Dedup.HammingThreshold)
	assert.Equal(t, 200, cfg.Dedup.RecentLimit)

	assert.Equal(t, time.Minute, cfg.Retry.Interval)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Retry.BackoffBase)
	assert.Equal(t, time.Hour, cfg.Retry.BackoffCap)

	assert.Equal(t, "local", cfg.Executor.Mode)
	assert.Equal(t, "jobs", cfg.Executor.WorkDir)
	assert.Equal(t, 30*time.Minute, cfg.Executor.ResultTimeout)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Planner.DailyCount = 5
	cfg.Planner.LockTTL = 10 * time.Minute
	cfg.Retry.MaxAttempts = 2
	cfg.ApplyDefaults()

	assert.Equal(t, 5, cfg.Planner.DailyCount)
	assert.Equal(t, 15, cfg.Planner.CandidateAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Planner.LockTTL)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
}
