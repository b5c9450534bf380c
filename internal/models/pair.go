package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/autopress/autopress/pkg/textnorm"
)

// UsedPair marks a (role, work, keyword, lang) combination as consumed. The
// composite unique index is the authoritative reuse guard: a combination,
// once used, is never selected again unless the row is removed by an
// administrative action.
type UsedPair struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RoleSlug       string    `gorm:"size:255;not null;uniqueIndex:idx_used_pairs_identity" json:"role_slug"`
	WorkSlug       string    `gorm:"size:255;not null;uniqueIndex:idx_used_pairs_identity" json:"work_slug"`
	KeywordSlug    string    `gorm:"size:255;not null;uniqueIndex:idx_used_pairs_identity" json:"keyword_slug"`
	Lang           string    `gorm:"size:8;not null;default:'zh';uniqueIndex:idx_used_pairs_identity" json:"lang"`
	RunID          string    `gorm:"size:128;index" json:"run_id"`
	UsedOn         string    `gorm:"size:10;not null;index" json:"used_on"`
	SimilarityHash string    `gorm:"size:32" json:"similarity_hash"`
	FirstUsedAt    time.Time `gorm:"not null" json:"first_used_at"`
	LastUsedAt     time.Time `gorm:"not null" json:"last_used_at"`
}

// ThemeCandidate is one selectable (role, work, keyword) theme with its
// soft-lock columns. A lock is only advisory during planning; UsedPair stays
// the hard guard at commit time.
type ThemeCandidate struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Role          string     `gorm:"size:255;not null" json:"role"`
	Work          string     `gorm:"size:255;not null" json:"work"`
	Keyword       string     `gorm:"size:255;not null;index" json:"keyword"`
	Lang          string     `gorm:"size:8;not null;default:'zh'" json:"lang"`
	RoleSlug      string     `gorm:"size:255;index" json:"role_slug"`
	WorkSlug      string     `gorm:"size:255;index" json:"work_slug"`
	KeywordSlug   string     `gorm:"size:255;index" json:"keyword_slug"`
	Active        bool       `gorm:"default:true;index" json:"active"`
	LockedByRunID *string    `gorm:"size:128;index" json:"locked_by_run_id"`
	LockedAt      *time.Time `json:"locked_at"`
	UsedAt        *time.Time `json:"used_at"`
	UsedByRunID   *string    `gorm:"size:128" json:"used_by_run_id"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave keeps the slug columns in sync with the raw theme fields so
// selection queries can join used_pairs without normalizing in SQL. Map-based
// Updates invoke the hook with a zero-value model; those carry no theme
// fields to sync, so the hook skips them.
func (c *ThemeCandidate) BeforeSave(*gorm.DB) error {
	if c.Role == "" && c.Work == "" && c.Keyword == "" {
		return nil
	}
	roleSlug, err := textnorm.Slug(c.Role)
	if err != nil {
		return err
	}
	workSlug, err := textnorm.Slug(c.Work)
	if err != nil {
		return err
	}
	keywordSlug, err := textnorm.Slug(c.Keyword)
	if err != nil {
		return err
	}
	c.RoleSlug, c.WorkSlug, c.KeywordSlug = roleSlug, workSlug, keywordSlug
	if c.Lang == "" {
		c.Lang = "zh"
	}
	return nil
}

// Locked reports whether the candidate holds a live lock at the given time,
// treating locks older than ttl as abandoned.
func (c *ThemeCandidate) Locked(now time.Time, ttl time.Duration) bool {
	if c.LockedByRunID == nil || c.LockedAt == nil {
		return false
	}
	return now.Sub(*c.LockedAt) < ttl
}
