package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/autopress/autopress/internal/models"
)

// StatsService refreshes the per-day aggregates read by the dashboard
// endpoints. Aggregates are derived, never authoritative: the run and
// delivery ledgers stay the source of truth and a refresh can always be
// replayed.
type StatsService struct {
	db     *gorm.DB
	logger *zap.Logger
	ticker *time.Ticker
	stopCh chan struct{}
}

func NewStatsService(db *gorm.DB, logger *zap.Logger) *StatsService {
	return &StatsService{
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start refreshes aggregates on the given interval until Stop or context
// cancellation.
func (s *StatsService) Start(ctx context.Context, interval time.Duration) {
	s.ticker = time.NewTicker(interval)
	go func() {
		s.logger.Info("Starting stats updater", zap.Duration("interval", interval))
		for {
			select {
			case <-s.stopCh:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.Refresh(time.Now().UTC())
			}
		}
	}()
}

func (s *StatsService) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// Refresh recomputes today's aggregates from the ledgers.
func (s *StatsService) Refresh(now time.Time) {
	if err := s.UpdateRunStats(now); err != nil {
		s.logger.Error("Failed to update run stats", zap.Error(err))
	}
	if err := s.UpdatePlatformStats(now); err != nil {
		s.logger.Error("Failed to update platform stats", zap.Error(err))
	}
}

// UpdateRunStats recomputes the run aggregate row for the given day.
func (s *StatsService) UpdateRunStats(now time.Time) error {
	day := now.Format("2006-01-02")
	dayStart := now.Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	count := func(status string) int64 {
		var n int64
		q := s.db.Model(&models.Run{}).Where("run_date >= ? AND run_date < ?", dayStart, dayEnd)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		q.Count(&n)
		return n
	}

	var articles int64
	s.db.Model(&models.Article{}).Where("created_on = ?", day).Count(&articles)

	values := map[string]interface{}{
		"total_runs":     count(""),
		"success_runs":   count(models.RunStatusSuccess),
		"partial_runs":   count(models.RunStatusPartial),
		"failed_runs":    count(models.RunStatusFailed),
		"scheduled_runs": count(models.RunStatusScheduled),
		"total_articles": articles,
	}

	var stats models.RunStats
	err := s.db.Where("date = ?", day).First(&stats).Error
	if err == gorm.ErrRecordNotFound {
		stats = models.RunStats{Date: day}
		if err := s.db.Create(&stats).Error; err != nil && err != gorm.ErrDuplicatedKey {
			return fmt.Errorf("create run stats %s: %w", day, err)
		}
	} else if err != nil {
		return fmt.Errorf("lookup run stats %s: %w", day, err)
	}
	if err := s.db.Model(&models.RunStats{}).Where("date = ?", day).Updates(values).Error; err != nil {
		return fmt.Errorf("update run stats %s: %w", day, err)
	}
	return nil
}

// UpdatePlatformStats recomputes per-platform aggregates for every platform
// that has a delivery attempt recorded.
func (s *StatsService) UpdatePlatformStats(now time.Time) error {
	day := now.Format("2006-01-02")

	var platforms []string
	if err := s.db.Model(&models.PlatformLog{}).Distinct("platform").Pluck("platform", &platforms).Error; err != nil {
		return fmt.Errorf("list platforms: %w", err)
	}

	for _, platform := range platforms {
		count := func(statuses ...string) int64 {
			var n int64
			q := s.db.Model(&models.PlatformLog{}).Where("platform = ?", platform)
			if len(statuses) > 0 {
				q = q.Where("status IN ?", statuses)
			}
			q.Count(&n)
			return n
		}

		var lastSuccess *time.Time
		var latest models.PlatformLog
		err := s.db.Where("platform = ? AND status IN ?", platform,
			[]string{models.DeliveryStatusSuccess, models.DeliveryStatusPrepared}).
			Order("updated_at desc").First(&latest).Error
		if err == nil {
			t := latest.UpdatedAt
			lastSuccess = &t
		}

		values := map[string]interface{}{
			"total_jobs":      count(),
			"success_jobs":    count(models.DeliveryStatusSuccess, models.DeliveryStatusPrepared),
			"failed_jobs":     count(models.DeliveryStatusFailed),
			"dead_jobs":       count(models.DeliveryStatusDead),
			"skipped_jobs":    count(models.DeliveryStatusSkipped),
			"last_success_at": lastSuccess,
		}

		var stats models.PlatformStats
		err = s.db.Where("date = ? AND platform = ?", day, platform).First(&stats).Error
		if err == gorm.ErrRecordNotFound {
			stats = models.PlatformStats{Date: day, Platform: platform}
			if err := s.db.Create(&stats).Error; err != nil && err != gorm.ErrDuplicatedKey {
				return fmt.Errorf("create platform stats %s/%s: %w", day, platform, err)
			}
		} else if err != nil {
			return fmt.Errorf("lookup platform stats %s/%s: %w", day, platform, err)
		}
		if err := s.db.Model(&models.PlatformStats{}).
			Where("date = ? AND platform = ?", day, platform).
			Updates(values).Error; err != nil {
			return fmt.Errorf("update platform stats %s/%s: %w", day, platform, err)
		}
	}
	return nil
}

// RunStatsRange returns daily run aggregates, newest first.
func (s *StatsService) RunStatsRange(days int) ([]models.RunStats, error) {
	var stats []models.RunStats
	q := s.db.Order("date desc")
	if days > 0 {
		q = q.Limit(days)
	}
	if err := q.Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("list run stats: %w", err)
	}
	return stats, nil
}

// PlatformStatsRange returns per-platform aggregates, newest first.
func (s *StatsService) PlatformStatsRange(days int) ([]models.PlatformStats, error) {
	var stats []models.PlatformStats
	q := s.db.Order("date desc, platform asc")
	if days > 0 {
		q = q.Limit(days * 8)
	}
	if err := q.Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("list platform stats: %w", err)
	}
	return stats, nil
}

// CleanupOldData drops aggregate rows older than the retention window. Only
// derived tables are touched.
func (s *StatsService) CleanupOldData(days int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	if err := s.db.Where("date < ?", cutoff).Delete(&models.RunStats{}).Error; err != nil {
		return fmt.Errorf("cleanup run stats: %w", err)
	}
	if err := s.db.Where("date < ?", cutoff).Delete(&models.PlatformStats{}).Error; err != nil {
		return fmt.Errorf("cleanup platform stats: %w", err)
	}
	return nil
}
