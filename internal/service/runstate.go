package service

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/autopress/autopress/internal/models"
)

// RunService owns the run lifecycle: pending → running → {success, partial,
// failed, scheduled}. run_id is the idempotency key; the store's unique
// index arbitrates races between concurrent submissions.
type RunService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRunService(db *gorm.DB, logger *zap.Logger) *RunService {
	return &RunService{db: db, logger: logger}
}

// Start registers a new run or resumes a scheduled one. Submitting a run_id
// that already exists in any other state returns the stored run together
// with ErrDuplicateRun so the caller can treat the submission as a no-op.
// resumed is true when a parked run was moved back to running.
func (s *RunService) Start(runID string, runDate time.Time, planned int) (run *models.Run, resumed bool, err error) {
	if runID == "" {
		return nil, false, fmt.Errorf("start run: empty run_id")
	}

	var existing models.Run
	lookupErr := s.db.Where("run_id = ?", runID).First(&existing).Error
	switch {
	case lookupErr == nil:
		if existing.Status != models.RunStatusScheduled {
			return &existing, false, ErrDuplicateRun
		}
		res := s.db.Model(&models.Run{}).
			Where("run_id = ? AND status = ?", runID, models.RunStatusScheduled).
			Updates(map[string]interface{}{"status": models.RunStatusRunning, "error": ""})
		if res.Error != nil {
			return nil, false, fmt.Errorf("resume run %s: %w", runID, res.Error)
		}
		if res.RowsAffected == 0 {
			// lost a race with another resume attempt
			return &existing, false, ErrDuplicateRun
		}
		existing.Status = models.RunStatusRunning
		s.logger.Info("Resuming scheduled run", zap.String("run_id", runID))
		return &existing, true, nil

	case errors.Is(lookupErr, gorm.ErrRecordNotFound):
		created := &models.Run{
			RunID:        runID,
			RunDate:      runDate,
			PlannedCount: planned,
			Status:       models.RunStatusRunning,
		}
		if createErr := s.db.Create(created).Error; createErr != nil {
			if errors.Is(createErr, gorm.ErrDuplicatedKey) {
				// concurrent submission won; return its row
				if err := s.db.Where("run_id = ?", runID).First(&existing).Error; err != nil {
					return nil, false, fmt.Errorf("start run %s: %w", runID, err)
				}
				return &existing, false, ErrDuplicateRun
			}
			return nil, false, fmt.Errorf("start run %s: %w", runID, createErr)
		}
		return created, false, nil

	default:
		return nil, false, fmt.Errorf("start run %s: %w", runID, lookupErr)
	}
}

// Get returns the run by its external id.
func (s *RunService) Get(runID string) (*models.Run, error) {
	var run models.Run
	if err := s.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &run, nil
}

// RecordConsumption adds delta to the consumed counter. Counters are
// monotonic; negative deltas are rejected.
func (s *RunService) RecordConsumption(runID string, delta int) error {
	return s.bump(runID, "consumed_count", delta)
}

// RecordAddition adds delta to the added counter.
func (s *RunService) RecordAddition(runID string, delta int) error {
	return s.bump(runID, "added_count", delta)
}

// RecordEnrichment adds delta to the pool-replenishment counter.
func (s *RunService) RecordEnrichment(runID string, delta int) error {
	return s.bump(runID, "enriched_count", delta)
}

func (s *RunService) bump(runID, column string, delta int) error {
	if delta < 0 {
		return fmt.Errorf("record %s for run %s: negative delta %d", column, runID, delta)
	}
	if delta == 0 {
		return nil
	}
	res := s.db.Model(&models.Run{}).
		Where("run_id = ?", runID).
		Update(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("record %s for run %s: %w", column, runID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("record %s: run %s not found", column, runID)
	}
	return nil
}

// Finish moves the run to a terminal state or parks it as scheduled. Every
// non-success outcome must carry a human-readable reason.
func (s *RunService) Finish(runID, status, reason string) error {
	switch status {
	case models.RunStatusSuccess, models.RunStatusPartial, models.RunStatusFailed, models.RunStatusScheduled:
	default:
		return fmt.Errorf("finish run %s: invalid outcome %q", runID, status)
	}
	if status != models.RunStatusSuccess && reason == "" {
		return fmt.Errorf("finish run %s: outcome %s requires a reason", runID, status)
	}
	res := s.db.Model(&models.Run{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{"status": status, "error": reason})
	if res.Error != nil {
		return fmt.Errorf("finish run %s: %w", runID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finish: run %s not found", runID)
	}
	s.logger.Info("Run finished",
		zap.String("run_id", runID),
		zap.String("status", status),
		zap.String("reason", reason))
	return nil
}

// AbandonStale parks runs that have been running past the wall-clock budget.
// Their articles keep whatever delivery state they hold; a later submission
// with the same run_id resumes them.
func (s *RunService) AbandonStale(budget time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-budget)
	res := s.db.Model(&models.Run{}).
		Where("status = ? AND updated_at < ?", models.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status": models.RunStatusScheduled,
			"error":  "abandoned: exceeded run budget",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("abandon stale runs: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Warn("Parked stale runs", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
