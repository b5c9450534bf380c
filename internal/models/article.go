package models

import (
	"time"
)

// Article statuses.
const (
	ArticleStatusDraft     = "draft"
	ArticleStatusReady     = "ready"
	ArticleStatusDelivered = "delivered"
	ArticleStatusRejected  = "rejected"
)

// Article is one generated content unit tied to a (role, work, keyword)
// identity. The pair-per-day composite index allows at most one article per
// slug combination per day; ContentSignature is globally unique so the same
// normalized body can never be stored twice.
type Article struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	RunID            *string    `gorm:"size:128;index" json:"run_id"`
	Role             string     `gorm:"size:255;not null" json:"role"`
	Work             string     `gorm:"size:255;not null" json:"work"`
	Keyword          string     `gorm:"size:255;not null" json:"keyword"`
	Title            string     `gorm:"size:500;not null" json:"title"`
	Body             string     `gorm:"type:text;not null" json:"body"`
	TitleSignature   string     `gorm:"size:64;index" json:"title_signature"`
	ContentSignature *string    `gorm:"size:100;uniqueIndex" json:"content_signature"`
	RoleSlug         string     `gorm:"size:255;not null;uniqueIndex:idx_articles_pair_day" json:"role_slug"`
	WorkSlug         string     `gorm:"size:255;not null;uniqueIndex:idx_articles_pair_day" json:"work_slug"`
	KeywordSlug      string     `gorm:"size:255;not null;uniqueIndex:idx_articles_pair_day" json:"keyword_slug"`
	Lang             string     `gorm:"size:8;not null;default:'zh';uniqueIndex:idx_articles_pair_day" json:"lang"`
	CreatedOn        string     `gorm:"size:10;not null;uniqueIndex:idx_articles_pair_day" json:"created_on"`
	Status           string     `gorm:"size:50;default:'draft';index" json:"status"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	DeliveredAt      *time.Time `json:"delivered_at"`
}
