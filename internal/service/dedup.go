package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/autopress/autopress/internal/config"
	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/pkg/textnorm"
)

// Signatures carries the normalized identity of one generated article.
type Signatures struct {
	TitleSignature   string
	ContentSignature string
	Simhash          uint64
}

// DedupEngine runs the two-phase uniqueness check: pair precheck before
// generation, signature and similarity checks after. Commit is the only
// write path and is fully transactional.
type DedupEngine struct {
	db         *gorm.DB
	ledger     *PairLedger
	logger     *zap.Logger
	cfg        *config.DedupConfig
	similarity textnorm.SimilarityFunc
}

func NewDedupEngine(db *gorm.DB, ledger *PairLedger, logger *zap.Logger, cfg *config.DedupConfig) *DedupEngine {
	return &DedupEngine{
		db:         db,
		ledger:     ledger,
		logger:     logger,
		cfg:        cfg,
		similarity: textnorm.TokenOverlap,
	}
}

// SetSimilarity swaps the title similarity strategy. The default is the
// token-overlap baseline.
func (e *DedupEngine) SetSimilarity(fn textnorm.SimilarityFunc) {
	e.similarity = fn
}

// PrecheckPair is the pre-generation gate: ErrPairExhausted when the
// candidate's slug combination already has a used_pairs row.
func (e *DedupEngine) PrecheckPair(candidate *models.ThemeCandidate) error {
	var count int64
	err := e.db.Model(&models.UsedPair{}).
		Where("role_slug = ? AND work_slug = ? AND keyword_slug = ? AND lang = ?",
			candidate.RoleSlug, candidate.WorkSlug, candidate.KeywordSlug, candidate.Lang).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("precheck pair: %w", err)
	}
	if count > 0 {
		return ErrPairExhausted
	}
	return nil
}

// Validate is the post-generation gate. It computes the signatures and
// rejects exact body duplicates, near duplicates by SimHash distance, and
// titles too similar to anything in the recent window.
func (e *DedupEngine) Validate(title, body string, now time.Time) (*Signatures, error) {
	titleSig, err := textnorm.TitleSignature(title)
	if err != nil {
		return nil, fmt.Errorf("title signature: %w", err)
	}
	contentSig, err := textnorm.ContentSignature(body)
	if err != nil {
		return nil, fmt.Errorf("content signature: %w", err)
	}
	sim := textnorm.Simhash(body)

	var count int64
	if err := e.db.Model(&models.Article{}).
		Where("content_signature = ?", contentSig).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("content signature lookup: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateContent
	}

	if err := e.checkNearDuplicate(sim); err != nil {
		return nil, err
	}
	if err := e.checkTitleWindow(title, now); err != nil {
		return nil, err
	}

	return &Signatures{TitleSignature: titleSig, ContentSignature: contentSig, Simhash: sim}, nil
}

// checkNearDuplicate scans the most recent content signatures and rejects
// bodies within the configured hamming distance.
func (e *DedupEngine) checkNearDuplicate(target uint64) error {
	var rows []struct {
		ID               uint
		ContentSignature *string
	}
	err := e.db.Model(&models.Article{}).
		Select("id", "content_signature").
		Where("content_signature IS NOT NULL").
		Order("id desc").
		Limit(e.cfg.RecentLimit).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("near-duplicate scan: %w", err)
	}
	for _, row := range rows {
		if row.ContentSignature == nil {
			continue
		}
		other, ok := textnorm.SimhashFromSignature(*row.ContentSignature)
		if !ok {
			continue
		}
		if dist := textnorm.HammingDistance(target, other); dist <= e.cfg.HammingThreshold {
			e.logger.Info("Near-duplicate body rejected",
				zap.Uint("existing_article_id", row.ID),
				zap.Int("hamming_distance", dist))
			return fmt.Errorf("%w: within hamming distance %d of article %d", ErrDuplicateContent, dist, row.ID)
		}
	}
	return nil
}

func (e *DedupEngine) checkTitleWindow(title string, now time.Time) error {
	windowStart := now.AddDate(0, 0, -e.cfg.TitleWindowDays)
	var rows []struct {
		ID    uint
		Title string
	}
	err := e.db.Model(&models.Article{}).
		Select("id", "title").
		Where("created_at >= ?", windowStart).
		Order("id desc").
		Limit(e.cfg.RecentLimit).
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("title window scan: %w", err)
	}
	for _, row := range rows {
		score := e.similarity(title, row.Title)
		if score > e.cfg.SimilarityThreshold {
			e.logger.Info("Similar title rejected",
				zap.Uint("existing_article_id", row.ID),
				zap.Float64("score", score))
			return fmt.Errorf("%w: score %.2f against article %d", ErrDuplicateTitle, score, row.ID)
		}
	}
	return nil
}

// Commit persists the article together with its used_pairs row in one
// transaction. A lost race on any unique index surfaces as ErrAlreadyUsed
// or ErrDuplicateContent; either way nothing was written.
func (e *DedupEngine) Commit(runID string, candidate *models.ThemeCandidate, title, body string, sigs *Signatures, usedOn time.Time) (*models.Article, error) {
	contentSig := sigs.ContentSignature
	article := &models.Article{
		RunID:            &runID,
		Role:             candidate.Role,
		Work:             candidate.Work,
		Keyword:          candidate.Keyword,
		Title:            title,
		Body:             body,
		TitleSignature:   sigs.TitleSignature,
		ContentSignature: &contentSig,
		RoleSlug:         candidate.RoleSlug,
		WorkSlug:         candidate.WorkSlug,
		KeywordSlug:      candidate.KeywordSlug,
		Lang:             candidate.Lang,
		CreatedOn:        usedOn.Format("2006-01-02"),
		Status:           models.ArticleStatusReady,
	}

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(article).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateContent
			}
			return fmt.Errorf("create article: %w", err)
		}
		simHash := fmt.Sprintf("%016x", sigs.Simhash)
		return e.ledger.CommitUsed(tx, candidate, runID, usedOn, simHash)
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}
