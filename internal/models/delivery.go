package models

import (
	"time"
)

// PlatformLog statuses. Failed is transient and always paired with a
// NextRetryAt; Dead, Success and Skipped are terminal.
const (
	DeliveryStatusPending  = "pending"
	DeliveryStatusPrepared = "prepared"
	DeliveryStatusQueued   = "queued"
	DeliveryStatusSuccess  = "success"
	DeliveryStatusFailed   = "failed"
	DeliveryStatusSkipped  = "skipped"
	DeliveryStatusDead     = "dead"
)

// PlatformLog tracks the single delivery attempt record for an (article,
// platform) pair. Repeated attempts mutate AttemptCount and NextRetryAt in
// place; the unique index forbids a second row.
type PlatformLog struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ArticleID    uint       `gorm:"not null;uniqueIndex:idx_platform_logs_target" json:"article_id"`
	Platform     string     `gorm:"size:100;not null;uniqueIndex:idx_platform_logs_target" json:"platform"`
	TargetID     string     `gorm:"size:255" json:"target_id"`
	Status       string     `gorm:"size:50;default:'pending';index" json:"status"`
	AttemptCount int        `gorm:"default:0" json:"attempt_count"`
	LastError    string     `gorm:"type:text" json:"last_error"`
	NextRetryAt  *time.Time `gorm:"index" json:"next_retry_at"`
	Payload      string     `gorm:"type:text" json:"payload"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Article Article `gorm:"foreignKey:ArticleID" json:"article"`
}

// TerminalDelivery reports whether the status is final for retry purposes.
func TerminalDelivery(status string) bool {
	switch status {
	case DeliveryStatusSuccess, DeliveryStatusSkipped, DeliveryStatusDead, DeliveryStatusPrepared:
		return true
	}
	return false
}
