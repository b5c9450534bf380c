package models

import (
	"time"
)

// RunStats aggregates run outcomes per day, refreshed by the stats updater.
type RunStats struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Date          string    `gorm:"size:10;uniqueIndex;not null" json:"date"`
	TotalRuns     int       `gorm:"default:0" json:"total_runs"`
	SuccessRuns   int       `gorm:"default:0" json:"success_runs"`
	PartialRuns   int       `gorm:"default:0" json:"partial_runs"`
	FailedRuns    int       `gorm:"default:0" json:"failed_runs"`
	ScheduledRuns int       `gorm:"default:0" json:"scheduled_runs"`
	TotalArticles int       `gorm:"default:0" json:"total_articles"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PlatformStats aggregates delivery outcomes per platform per day.
type PlatformStats struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Date          string     `gorm:"size:10;not null;uniqueIndex:idx_platform_stats_day" json:"date"`
	Platform      string     `gorm:"size:100;not null;uniqueIndex:idx_platform_stats_day" json:"platform"`
	TotalJobs     int        `gorm:"default:0" json:"total_jobs"`
	SuccessJobs   int        `gorm:"default:0" json:"success_jobs"`
	FailedJobs    int        `gorm:"default:0" json:"failed_jobs"`
	DeadJobs      int        `gorm:"default:0" json:"dead_jobs"`
	SkippedJobs   int        `gorm:"default:0" json:"skipped_jobs"`
	LastSuccessAt *time.Time `json:"last_success_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
