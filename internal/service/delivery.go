package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/autopress/autopress/internal/config"
	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/internal/service/deliverer"
)

// DeliveryService is the per-platform delivery ledger. One platform_logs
// row exists per (article, platform); every state change goes through a
// conditional update so concurrent sweeps and new requests cannot
// double-drive the same attempt.
type DeliveryService struct {
	db     *gorm.DB
	logger *zap.Logger
	cfg    *config.RetryConfig
}

func NewDeliveryService(db *gorm.DB, logger *zap.Logger, cfg *config.RetryConfig) *DeliveryService {
	return &DeliveryService{db: db, logger: logger, cfg: cfg}
}

// Request registers a delivery attempt for (article, platform) with status
// pending. Re-requesting an attempt that already reached a terminal state
// returns the stored row untouched.
func (s *DeliveryService) Request(articleID uint, platform string, payload deliverer.Payload) (*models.PlatformLog, error) {
	var log models.PlatformLog
	err := s.db.Where("article_id = ? AND platform = ?", articleID, platform).First(&log).Error
	if err == nil {
		return &log, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup delivery %d/%s: %w", articleID, platform, err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload %d/%s: %w", articleID, platform, err)
	}
	log = models.PlatformLog{
		ArticleID: articleID,
		Platform:  platform,
		Status:    models.DeliveryStatusPending,
		Payload:   string(raw),
	}
	if err := s.db.Create(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with a concurrent request; reuse the winner's row
			if err := s.db.Where("article_id = ? AND platform = ?", articleID, platform).First(&log).Error; err != nil {
				return nil, fmt.Errorf("lookup delivery %d/%s: %w", articleID, platform, err)
			}
			return &log, nil
		}
		return nil, fmt.Errorf("create delivery %d/%s: %w", articleID, platform, err)
	}
	return &log, nil
}

// RecordOutcome applies one attempt result. Success and prepared are
// terminal; transient failures get attempt_count, last_error and an
// exponential next_retry_at, including the final allowed attempt — the
// sweep dead-letters exhausted rows when their slot comes due. Permanent
// failures go dead immediately with next_retry_at cleared.
func (s *DeliveryService) RecordOutcome(articleID uint, platform string, result *deliverer.Result, attemptErr error) error {
	var log models.PlatformLog
	if err := s.db.Where("article_id = ? AND platform = ?", articleID, platform).First(&log).Error; err != nil {
		return fmt.Errorf("record outcome %d/%s: %w", articleID, platform, err)
	}
	if models.TerminalDelivery(log.Status) {
		// terminal rows are immutable; a stale executor result is dropped
		s.logger.Debug("Ignoring outcome for terminal delivery",
			zap.Uint("article_id", articleID),
			zap.String("platform", platform),
			zap.String("status", log.Status))
		return nil
	}

	attempts := log.AttemptCount + 1
	updates := map[string]interface{}{"attempt_count": attempts}

	if attemptErr == nil && result != nil && (result.Status == models.DeliveryStatusSuccess || result.Status == models.DeliveryStatusPrepared) {
		updates["status"] = result.Status
		updates["target_id"] = result.TargetID
		updates["last_error"] = ""
		updates["next_retry_at"] = nil
		if err := s.db.Model(&log).Updates(updates).Error; err != nil {
			return fmt.Errorf("record success %d/%s: %w", articleID, platform, err)
		}
		s.markArticleDelivered(articleID)
		return nil
	}

	if attemptErr == nil {
		attemptErr = fmt.Errorf("delivery reported status %q", statusOf(result))
	}
	updates["last_error"] = attemptErr.Error()

	class := deliverer.Classify(attemptErr)
	switch {
	case !class.Retryable():
		updates["status"] = models.DeliveryStatusDead
		updates["next_retry_at"] = nil
		s.logger.Error("Delivery dead-lettered on permanent error",
			zap.Uint("article_id", articleID),
			zap.String("platform", platform),
			zap.String("class", string(class)),
			zap.Error(attemptErr))
	default:
		next := time.Now().UTC().Add(s.Backoff(attempts))
		updates["status"] = models.DeliveryStatusFailed
		updates["next_retry_at"] = next
		s.logger.Warn("Delivery failed, retry scheduled",
			zap.Uint("article_id", articleID),
			zap.String("platform", platform),
			zap.Int("attempts", attempts),
			zap.Time("next_retry_at", next),
			zap.Error(attemptErr))
	}

	if err := s.db.Model(&log).Updates(updates).Error; err != nil {
		return fmt.Errorf("record failure %d/%s: %w", articleID, platform, err)
	}
	return nil
}

// Skip terminates the attempt for dedup or administrative reasons. Distinct
// from dead: skipping is a decision, not a failure. Attempts that already
// reached a terminal state stay untouched.
func (s *DeliveryService) Skip(articleID uint, platform, reason string) error {
	res := s.db.Model(&models.PlatformLog{}).
		Where("article_id = ? AND platform = ?", articleID, platform).
		Where("status IN ?", []string{models.DeliveryStatusPending, models.DeliveryStatusQueued, models.DeliveryStatusFailed}).
		Updates(map[string]interface{}{
			"status":        models.DeliveryStatusSkipped,
			"last_error":    reason,
			"next_retry_at": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("skip delivery %d/%s: %w", articleID, platform, res.Error)
	}
	return nil
}

// Due returns failed attempts whose retry time has come, oldest first with
// article id as tie-breaker.
func (s *DeliveryService) Due(now time.Time, limit int) ([]models.PlatformLog, error) {
	var logs []models.PlatformLog
	q := s.db.
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", models.DeliveryStatusFailed, now).
		Order("next_retry_at asc, article_id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("select due deliveries: %w", err)
	}
	return logs, nil
}

// Exhaust dead-letters a failed attempt whose retry budget is spent. The
// conditional update keeps concurrent sweeps from double-reporting the row.
func (s *DeliveryService) Exhaust(logID uint) (bool, error) {
	res := s.db.Model(&models.PlatformLog{}).
		Where("id = ? AND status = ?", logID, models.DeliveryStatusFailed).
		Updates(map[string]interface{}{
			"status":        models.DeliveryStatusDead,
			"next_retry_at": nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("exhaust delivery %d: %w", logID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Claim atomically moves a due attempt from failed to queued. It returns
// false when another sweep already took the row.
func (s *DeliveryService) Claim(logID uint) (bool, error) {
	res := s.db.Model(&models.PlatformLog{}).
		Where("id = ? AND status = ?", logID, models.DeliveryStatusFailed).
		Update("status", models.DeliveryStatusQueued)
	if res.Error != nil {
		return false, fmt.Errorf("claim delivery %d: %w", logID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Open returns the non-terminal attempts for an article, used when a
// resumed run must deliver only what is still outstanding.
func (s *DeliveryService) Open(articleID uint) ([]models.PlatformLog, error) {
	var logs []models.PlatformLog
	err := s.db.
		Where("article_id = ?", articleID).
		Where("status IN ?", []string{models.DeliveryStatusPending, models.DeliveryStatusQueued, models.DeliveryStatusFailed}).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("open deliveries for article %d: %w", articleID, err)
	}
	return logs, nil
}

// OpenForRun counts the run's delivery attempts still awaiting a terminal
// state. A run with open attempts has not finished delivering.
func (s *DeliveryService) OpenForRun(runID string) (int64, error) {
	var n int64
	err := s.db.Model(&models.PlatformLog{}).
		Joins("JOIN articles ON articles.id = platform_logs.article_id").
		Where("articles.run_id = ?", runID).
		Where("platform_logs.status IN ?", []string{models.DeliveryStatusPending, models.DeliveryStatusQueued, models.DeliveryStatusFailed}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("open deliveries for run %s: %w", runID, err)
	}
	return n, nil
}

// DeadForRun enumerates dead-lettered attempts belonging to a run, for the
// partial-outcome report.
func (s *DeliveryService) DeadForRun(runID string) ([]models.PlatformLog, error) {
	var logs []models.PlatformLog
	err := s.db.
		Joins("JOIN articles ON articles.id = platform_logs.article_id").
		Where("articles.run_id = ? AND platform_logs.status = ?", runID, models.DeliveryStatusDead).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("dead deliveries for run %s: %w", runID, err)
	}
	return logs, nil
}

// ListByStatus returns attempts filtered by status, newest first.
func (s *DeliveryService) ListByStatus(status string, limit int) ([]models.PlatformLog, error) {
	var logs []models.PlatformLog
	q := s.db.Order("updated_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return logs, nil
}

// Backoff computes the delay before retry n (1-based): base × 2^(n−1),
// capped at the configured maximum.
func (s *DeliveryService) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := s.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.cfg.BackoffCap {
			return s.cfg.BackoffCap
		}
	}
	if d > s.cfg.BackoffCap {
		return s.cfg.BackoffCap
	}
	return d
}

// markArticleDelivered flips the article once every platform attempt for it
// reached success or prepared.
func (s *DeliveryService) markArticleDelivered(articleID uint) {
	var open int64
	err := s.db.Model(&models.PlatformLog{}).
		Where("article_id = ?", articleID).
		Where("status NOT IN ?", []string{models.DeliveryStatusSuccess, models.DeliveryStatusPrepared, models.DeliveryStatusSkipped}).
		Count(&open).Error
	if err != nil || open > 0 {
		return
	}
	now := time.Now().UTC()
	s.db.Model(&models.Article{}).
		Where("id = ? AND status <> ?", articleID, models.ArticleStatusDelivered).
		Updates(map[string]interface{}{"status": models.ArticleStatusDelivered, "delivered_at": now})
}

func statusOf(result *deliverer.Result) string {
	if result == nil {
		return "unknown"
	}
	return result.Status
}
