package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/autopress/autopress/internal/models"
)

// PairLedger tracks which theme combinations are consumed or soft-locked.
// The soft lock is advisory and TTL-bounded; the used_pairs unique index is
// the hard guard, enforced by the store so it holds across processes.
type PairLedger struct {
	db      *gorm.DB
	logger  *zap.Logger
	lockTTL time.Duration
}

func NewPairLedger(db *gorm.DB, logger *zap.Logger, lockTTL time.Duration) *PairLedger {
	return &PairLedger{db: db, logger: logger, lockTTL: lockTTL}
}

// Reserve soft-locks a candidate for a run. Returns ErrBusy when another
// run holds a live lock or the candidate is already consumed. Re-reserving
// with the same run id is a no-op.
func (l *PairLedger) Reserve(candidateID uint, runID string) error {
	now := time.Now().UTC()
	expiredBefore := now.Add(-l.lockTTL)
	res := l.db.Model(&models.ThemeCandidate{}).
		Where("id = ? AND used_at IS NULL", candidateID).
		Where("locked_by_run_id IS NULL OR locked_by_run_id = ? OR locked_at < ?", runID, expiredBefore).
		Updates(map[string]interface{}{
			"locked_by_run_id": runID,
			"locked_at":        now,
		})
	if res.Error != nil {
		return fmt.Errorf("reserve candidate %d: %w", candidateID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBusy
	}
	return nil
}

// Release clears all locks held by a run, used on abort.
func (l *PairLedger) Release(runID string) error {
	res := l.db.Model(&models.ThemeCandidate{}).
		Where("locked_by_run_id = ? AND used_at IS NULL", runID).
		Updates(map[string]interface{}{
			"locked_by_run_id": nil,
			"locked_at":        nil,
		})
	if res.Error != nil {
		return fmt.Errorf("release locks for run %s: %w", runID, res.Error)
	}
	if res.RowsAffected > 0 {
		l.logger.Info("Released candidate locks",
			zap.String("run_id", runID),
			zap.Int64("count", res.RowsAffected))
	}
	return nil
}

// ReclaimExpired clears locks older than the TTL so crashed runs cannot
// starve later planning cycles. Runs before each cycle.
func (l *PairLedger) ReclaimExpired() (int64, error) {
	cutoff := time.Now().UTC().Add(-l.lockTTL)
	res := l.db.Model(&models.ThemeCandidate{}).
		Where("locked_by_run_id IS NOT NULL AND used_at IS NULL AND locked_at < ?", cutoff).
		Updates(map[string]interface{}{
			"locked_by_run_id": nil,
			"locked_at":        nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reclaim expired locks: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		l.logger.Warn("Reclaimed abandoned candidate locks", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// SelectCandidates returns up to limit themes eligible for planning: active,
// not consumed, not live-locked, with no used_pairs row for the slug triple,
// and whose keyword has not been used within the cooldown window. The
// cooldown applies to keyword identity alone, layered on the hard guard.
func (l *PairLedger) SelectCandidates(limit int, lang string, cooldown time.Duration) ([]models.ThemeCandidate, error) {
	now := time.Now().UTC()
	expiredBefore := now.Add(-l.lockTTL)
	cooldownCutoff := now.Add(-cooldown)

	var candidates []models.ThemeCandidate
	err := l.db.
		Where("active = ? AND used_at IS NULL AND lang = ?", true, lang).
		Where("locked_by_run_id IS NULL OR locked_at < ?", expiredBefore).
		Where(`NOT EXISTS (
			SELECT 1 FROM used_pairs
			WHERE used_pairs.role_slug = theme_candidates.role_slug
			  AND used_pairs.work_slug = theme_candidates.work_slug
			  AND used_pairs.keyword_slug = theme_candidates.keyword_slug
			  AND used_pairs.lang = theme_candidates.lang)`).
		Where(`NOT EXISTS (
			SELECT 1 FROM used_pairs
			WHERE used_pairs.keyword_slug = theme_candidates.keyword_slug
			  AND used_pairs.lang = theme_candidates.lang
			  AND used_pairs.last_used_at > ?)`, cooldownCutoff).
		Order("id asc").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	return candidates, nil
}

// AddCandidates inserts new themes into the pool, skipping any whose keyword
// already exists for the language. Returns the number actually inserted, so
// re-running the same derivation is a no-op.
func (l *PairLedger) AddCandidates(candidates []models.ThemeCandidate) (int, error) {
	added := 0
	for i := range candidates {
		c := &candidates[i]
		var n int64
		if err := l.db.Model(&models.ThemeCandidate{}).
			Where("keyword = ? AND lang = ?", c.Keyword, c.Lang).
			Count(&n).Error; err != nil {
			return added, fmt.Errorf("check candidate keyword %q: %w", c.Keyword, err)
		}
		if n > 0 {
			continue
		}
		if err := l.db.Create(c).Error; err != nil {
			return added, fmt.Errorf("add candidate %q: %w", c.Keyword, err)
		}
		added++
	}
	return added, nil
}

// CommitUsed inserts the used_pairs row inside the caller's transaction and
// flips the candidate from locked to used. The unique index violation maps
// to ErrAlreadyUsed; this check is authoritative regardless of lock state.
func (l *PairLedger) CommitUsed(tx *gorm.DB, candidate *models.ThemeCandidate, runID string, usedOn time.Time, similarityHash string) error {
	now := time.Now().UTC()
	pair := models.UsedPair{
		RoleSlug:       candidate.RoleSlug,
		WorkSlug:       candidate.WorkSlug,
		KeywordSlug:    candidate.KeywordSlug,
		Lang:           candidate.Lang,
		RunID:          runID,
		UsedOn:         usedOn.Format("2006-01-02"),
		SimilarityHash: similarityHash,
		FirstUsedAt:    now,
		LastUsedAt:     now,
	}
	if err := tx.Create(&pair).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyUsed
		}
		return fmt.Errorf("commit used pair: %w", err)
	}

	res := tx.Model(&models.ThemeCandidate{}).
		Where("id = ?", candidate.ID).
		Updates(map[string]interface{}{
			"used_at":          now,
			"used_by_run_id":   runID,
			"locked_by_run_id": nil,
			"locked_at":        nil,
		})
	if res.Error != nil {
		return fmt.Errorf("mark candidate used: %w", res.Error)
	}
	return nil
}
