package service

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/autopress/autopress/internal/config"
)

// Scheduler fires the daily planning run on a cron expression. At most one
// new run is started per trigger; the run id derives from the date, so a
// second fire on the same day is absorbed by the run ledger.
type Scheduler struct {
	cfg     *config.PlannerConfig
	logger  *zap.Logger
	planner *Planner
	runs    *RunService
	cron    *cron.Cron
}

func NewScheduler(cfg *config.PlannerConfig, logger *zap.Logger, planner *Planner, runs *RunService) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		logger:  logger,
		planner: planner,
		runs:    runs,
		cron:    cron.New(),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("Planner scheduler is disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.cfg.Cron, func() {
		s.logger.Info("Running scheduled plan")
		s.trigger(ctx)
	})
	if err != nil {
		s.logger.Error("Invalid planner cron expression",
			zap.String("cron", s.cfg.Cron),
			zap.Error(err))
		return err
	}

	s.logger.Info("Starting planner scheduler", zap.String("cron", s.cfg.Cron))
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Planner scheduler shutdown completed")
}

func (s *Scheduler) trigger(ctx context.Context) {
	if _, err := s.runs.AbandonStale(s.cfg.RunBudget); err != nil {
		s.logger.Error("Stale run sweep failed", zap.Error(err))
	}

	today := time.Now().UTC()
	start := time.Now()
	run, err := s.planner.Plan(ctx, DailyRunID(today), today.Truncate(24*time.Hour), s.cfg.DailyCount)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, ErrDuplicateRun) {
			return
		}
		s.logger.Error("Scheduled plan failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	s.logger.Info("Scheduled plan completed",
		zap.String("run_id", run.RunID),
		zap.String("status", run.Status),
		zap.Int("added", run.AddedCount),
		zap.Duration("duration", duration))
}
