package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/autopress/autopress/internal/config"
	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/internal/service/deliverer"
)

// RetryScheduler periodically re-drives failed delivery attempts whose
// retry time has come. It runs on its own trigger, decoupled from planning,
// and is safe to run concurrently with new delivery requests: the claim is
// a conditional update, so two sweeps never double-deliver an attempt.
type RetryScheduler struct {
	cfg      *config.RetryConfig
	logger   *zap.Logger
	delivery *DeliveryService
	registry *deliverer.Registry
	ticker   *time.Ticker
	stopCh   chan struct{}
}

func NewRetryScheduler(cfg *config.RetryConfig, logger *zap.Logger, delivery *DeliveryService, registry *deliverer.Registry) *RetryScheduler {
	return &RetryScheduler{
		cfg:      cfg,
		logger:   logger,
		delivery: delivery,
		registry: registry,
		stopCh:   make(chan struct{}),
	}
}

func (s *RetryScheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("Retry scheduler is disabled")
		return
	}

	s.logger.Info("Starting retry scheduler", zap.Duration("interval", s.cfg.Interval))
	s.ticker = time.NewTicker(s.cfg.Interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				if n := s.Sweep(ctx); n > 0 {
					s.logger.Info("Retry sweep completed", zap.Int("redriven", n))
				}
			case <-s.stopCh:
				s.logger.Info("Retry scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Retry scheduler context cancelled")
				return
			}
		}
	}()
}

func (s *RetryScheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// Sweep walks every due attempt: rows whose retry budget is spent get
// dead-lettered, the rest are claimed and re-driven through their platform
// deliverer. Returns the number of attempts it drove.
func (s *RetryScheduler) Sweep(ctx context.Context) int {
	due, err := s.delivery.Due(time.Now().UTC(), 0)
	if err != nil {
		s.logger.Error("Retry sweep query failed", zap.Error(err))
		return 0
	}

	redriven := 0
	for _, log := range due {
		if log.AttemptCount >= s.cfg.MaxAttempts {
			exhausted, err := s.delivery.Exhaust(log.ID)
			if err != nil {
				s.logger.Error("Dead-letter failed", zap.Uint("log_id", log.ID), zap.Error(err))
			} else if exhausted {
				s.logger.Error("Delivery dead-lettered after exhausting retries",
					zap.Uint("article_id", log.ArticleID),
					zap.String("platform", log.Platform),
					zap.Int("attempts", log.AttemptCount))
			}
			continue
		}
		claimed, err := s.delivery.Claim(log.ID)
		if err != nil {
			s.logger.Error("Retry claim failed", zap.Uint("log_id", log.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		s.redrive(ctx, log)
		redriven++
	}
	return redriven
}

func (s *RetryScheduler) redrive(ctx context.Context, log models.PlatformLog) {
	var payload deliverer.Payload
	if err := json.Unmarshal([]byte(log.Payload), &payload); err != nil {
		s.logger.Error("Retry payload unreadable, dead-lettering",
			zap.Uint("log_id", log.ID),
			zap.Error(err))
		_ = s.delivery.RecordOutcome(log.ArticleID, log.Platform, nil, deliverer.Permanent(err))
		return
	}

	d, err := s.registry.Get(log.Platform)
	if err != nil {
		_ = s.delivery.RecordOutcome(log.ArticleID, log.Platform, nil, deliverer.Permanent(err))
		return
	}

	res, err := d.Deliver(ctx, payload, s.registry.Credentials(log.Platform))
	if recordErr := s.delivery.RecordOutcome(log.ArticleID, log.Platform, res, err); recordErr != nil {
		s.logger.Error("Retry outcome not recorded",
			zap.Uint("article_id", log.ArticleID),
			zap.String("platform", log.Platform),
			zap.Error(recordErr))
	}
}
