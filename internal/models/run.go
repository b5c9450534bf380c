package models

import (
	"time"
)

// Run statuses. Scheduled is re-enterable: a parked run may be resumed by a
// later submission carrying the same RunID.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusPartial   = "partial"
	RunStatusSuccess   = "success"
	RunStatusFailed    = "failed"
	RunStatusScheduled = "scheduled"
)

// Run is one planning/execution cycle. RunID doubles as the idempotency key:
// the unique index rejects a second row for the same submission.
type Run struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RunID         string    `gorm:"uniqueIndex;not null;size:128" json:"run_id"`
	RunDate       time.Time `gorm:"not null;index" json:"run_date"`
	PlannedCount  int       `gorm:"default:0" json:"planned_count"`
	ConsumedCount int       `gorm:"default:0" json:"consumed_count"`
	AddedCount    int       `gorm:"default:0" json:"added_count"`
	EnrichedCount int       `gorm:"default:0" json:"enriched_count"`
	Status        string    `gorm:"size:50;default:'pending';index" json:"status"`
	Error         string    `gorm:"type:text" json:"error"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Terminal reports whether the run reached a final outcome. Scheduled is not
// terminal: it parks the run for resumption.
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunStatusSuccess, RunStatusPartial, RunStatusFailed:
		return true
	}
	return false
}
