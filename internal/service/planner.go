package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/autopress/autopress/internal/config"
	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/internal/service/deliverer"
	"github.com/autopress/autopress/internal/service/generator"
	"github.com/autopress/autopress/internal/service/handoff"
)

// Planner drives one complete content cycle: reserve candidate pairs,
// generate and validate articles, register delivery attempts, then hand the
// batch to an executor and reconcile its results. The planner owns all
// durable state; the executor sees only the signed job descriptor and a
// short-lived credential bundle.
type Planner struct {
	cfg      *config.Config
	logger   *zap.Logger
	ledger   *PairLedger
	dedup    *DedupEngine
	runs     *RunService
	delivery *DeliveryService
	gen      generator.Generator
	registry *deliverer.Registry
	packager *handoff.Packager
	executor handoff.Executor
}

func NewPlanner(
	cfg *config.Config,
	logger *zap.Logger,
	ledger *PairLedger,
	dedup *DedupEngine,
	runs *RunService,
	delivery *DeliveryService,
	gen generator.Generator,
	registry *deliverer.Registry,
	packager *handoff.Packager,
	executor handoff.Executor,
) *Planner {
	return &Planner{
		cfg:      cfg,
		logger:   logger,
		ledger:   ledger,
		dedup:    dedup,
		runs:     runs,
		delivery: delivery,
		gen:      gen,
		registry: registry,
		packager: packager,
		executor: executor,
	}
}

// DailyRunID derives the idempotency key for a scheduled daily run.
func DailyRunID(date time.Time) string {
	return "daily-" + date.Format("20060102")
}

// Plan executes one run end to end. A repeated submission for a run that
// already reached a terminal state returns the stored run with
// ErrDuplicateRun; a run parked scheduled is resumed and drives only its
// outstanding deliveries.
func (p *Planner) Plan(ctx context.Context, runID string, runDate time.Time, count int) (*models.Run, error) {
	if count <= 0 {
		count = p.cfg.Planner.DailyCount
	}

	if n, err := p.ledger.ReclaimExpired(); err != nil {
		p.logger.Warn("Lock reclaim failed", zap.Error(err))
	} else if n > 0 {
		p.logger.Info("Reclaimed expired candidate locks", zap.Int64("count", n))
	}

	run, resumed, err := p.runs.Start(runID, runDate, count)
	if err != nil {
		if errors.Is(err, ErrDuplicateRun) {
			p.logger.Info("Run already exists, nothing to do",
				zap.String("run_id", runID),
				zap.String("status", run.Status))
			return run, err
		}
		return nil, err
	}
	if resumed {
		p.logger.Info("Resuming parked run", zap.String("run_id", runID))
	} else {
		p.logger.Info("Run started",
			zap.String("run_id", runID),
			zap.Int("planned", count))
	}

	if err := p.produce(ctx, run, count); err != nil {
		p.finish(runID, models.RunStatusFailed, err.Error())
		return p.runs.Get(runID)
	}

	if err := p.dispatch(ctx, runID, runDate); err != nil {
		if errors.Is(err, handoff.ErrExecutorUnreachable) {
			// nothing is known about individual outcomes; park the run
			// and let the next submission resume the open attempts
			p.finish(runID, models.RunStatusScheduled, err.Error())
			return p.runs.Get(runID)
		}
		p.finish(runID, models.RunStatusFailed, err.Error())
		return p.runs.Get(runID)
	}

	p.enrichPool(runID)

	status, reason := p.outcome(runID)
	p.finish(runID, status, reason)
	return p.runs.Get(runID)
}

// enrichPool replenishes the candidate pool from the run's consumed themes.
// Derived keywords that already exist are skipped, so a resumed run cannot
// double-enrich.
func (p *Planner) enrichPool(runID string) {
	if !p.cfg.Planner.EnrichEnabled {
		return
	}
	var articles []models.Article
	if err := p.dedup.db.Where("run_id = ?", runID).Order("id asc").Find(&articles).Error; err != nil {
		p.logger.Warn("Enrichment source lookup failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	derived := DerivedCandidates(articles, p.cfg.Planner.EnrichGroupSize)
	if len(derived) == 0 {
		return
	}
	added, err := p.ledger.AddCandidates(derived)
	if err != nil {
		p.logger.Warn("Pool enrichment incomplete", zap.String("run_id", runID), zap.Error(err))
	}
	if added == 0 {
		return
	}
	if err := p.runs.RecordEnrichment(runID, added); err != nil {
		p.logger.Warn("Enrichment counter update failed", zap.String("run_id", runID), zap.Error(err))
	}
	p.logger.Info("Candidate pool enriched",
		zap.String("run_id", runID),
		zap.Int("added", added))
}

// produce fills the run up to its planned count, burning at most the
// configured candidate attempt budget. Duplicate and contended candidates
// are consumed but not added.
func (p *Planner) produce(ctx context.Context, run *models.Run, count int) error {
	remaining := count - run.AddedCount
	if remaining <= 0 {
		return nil
	}
	budget := p.cfg.Planner.CandidateAttempts

	candidates, err := p.ledger.SelectCandidates(budget, p.cfg.Planner.Lang, p.cfg.Planner.KeywordCooldown)
	if err != nil {
		return fmt.Errorf("select candidates: %w", err)
	}
	if len(candidates) == 0 {
		if run.AddedCount > 0 {
			return nil
		}
		return ErrPairExhausted
	}

	used := 0
	for i := range candidates {
		if remaining <= 0 || used >= budget {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		used++
		candidate := &candidates[i]
		if p.tryCandidate(ctx, run.RunID, candidate) {
			remaining--
		}
	}

	if err := p.ledger.Release(run.RunID); err != nil {
		p.logger.Warn("Releasing leftover reservations failed",
			zap.String("run_id", run.RunID),
			zap.Error(err))
	}
	return nil
}

// tryCandidate runs one candidate through reserve, generate, validate and
// commit. It reports whether an article was added; every attempt counts as
// consumption regardless of outcome.
func (p *Planner) tryCandidate(ctx context.Context, runID string, candidate *models.ThemeCandidate) bool {
	if err := p.runs.RecordConsumption(runID, 1); err != nil {
		p.logger.Warn("Consumption counter update failed", zap.String("run_id", runID), zap.Error(err))
	}

	if err := p.ledger.Reserve(candidate.ID, runID); err != nil {
		p.logger.Debug("Candidate reservation lost",
			zap.Uint("candidate_id", candidate.ID),
			zap.Error(err))
		return false
	}
	if err := p.dedup.PrecheckPair(candidate); err != nil {
		p.logger.Debug("Candidate pair already used",
			zap.Uint("candidate_id", candidate.ID),
			zap.Error(err))
		return false
	}

	title, body, err := p.gen.Generate(ctx, candidate.Role, candidate.Work, candidate.Keyword)
	if err != nil {
		p.logger.Warn("Generation failed",
			zap.Uint("candidate_id", candidate.ID),
			zap.String("role", candidate.Role),
			zap.String("keyword", candidate.Keyword),
			zap.Error(err))
		return false
	}

	now := time.Now().UTC()
	sigs, err := p.dedup.Validate(title, body, now)
	if err != nil {
		p.logger.Info("Generated content rejected by dedup",
			zap.Uint("candidate_id", candidate.ID),
			zap.String("title", title),
			zap.Error(err))
		return false
	}

	article, err := p.dedup.Commit(runID, candidate, title, body, sigs, now)
	if err != nil {
		p.logger.Info("Article commit lost to a concurrent writer",
			zap.Uint("candidate_id", candidate.ID),
			zap.Error(err))
		return false
	}
	if err := p.runs.RecordAddition(runID, 1); err != nil {
		p.logger.Warn("Addition counter update failed", zap.String("run_id", runID), zap.Error(err))
	}

	for _, platform := range p.enabledPlatforms() {
		payload := deliverer.Payload{
			ArticleID: article.ID,
			Title:     article.Title,
			Body:      article.Body,
			Role:      article.Role,
			Work:      article.Work,
			Keyword:   article.Keyword,
			Lang:      article.Lang,
		}
		if _, err := p.delivery.Request(article.ID, platform, payload); err != nil {
			p.logger.Error("Delivery request failed",
				zap.Uint("article_id", article.ID),
				zap.String("platform", platform),
				zap.Error(err))
		}
	}

	p.logger.Info("Article added",
		zap.String("run_id", runID),
		zap.Uint("article_id", article.ID),
		zap.String("title", article.Title))
	return true
}

// dispatch packs the run's outstanding work into a signed job, executes it
// and reconciles the result. Secrets are deleted on the planner side no
// matter how execution went; the executor deletes its copy independently.
func (p *Planner) dispatch(ctx context.Context, runID string, runDate time.Time) error {
	units, targets, err := p.outstanding(runID)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		p.logger.Info("No outstanding deliveries", zap.String("run_id", runID))
		return nil
	}

	desc := handoff.JobDescriptor{
		RunID:   runID,
		RunDate: runDate.Format("2006-01-02"),
		Units:   units,
		Targets: targets,
	}
	all := make(map[string]deliverer.Credentials, len(targets))
	for _, platform := range targets {
		all[platform] = p.registry.Credentials(platform)
	}
	secrets := handoff.SecretsFor(runID, targets, all, p.cfg.Executor.ResultTimeout)

	_, secretsPath, err := p.packager.Pack(desc, secrets)
	if err != nil {
		return fmt.Errorf("pack job %s: %w", runID, err)
	}
	defer func() {
		// reconciliation always sweeps the credential bundle, even when
		// the executor claims it already deleted its copy
		if err := p.packager.DeleteSecrets(runID); err != nil {
			p.logger.Error("Planner-side secret sweep failed",
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}()

	execCtx, cancel := context.WithTimeout(ctx, p.cfg.Executor.ResultTimeout)
	defer cancel()

	result, err := p.executor.Execute(execCtx, desc, secrets, secretsPath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", handoff.ErrExecutorUnreachable, err)
		}
		return err
	}
	return p.Reconcile(runID, result)
}

// Reconcile applies an executor's result descriptor to the delivery ledger.
// Outcomes for attempts that already reached a terminal state are dropped
// by the ledger, so replaying a result is harmless.
func (p *Planner) Reconcile(runID string, result *handoff.ResultDescriptor) error {
	if result == nil {
		return handoff.ErrExecutorUnreachable
	}
	if result.RunID != runID {
		return fmt.Errorf("result for run %s applied to run %s", result.RunID, runID)
	}
	for _, o := range result.Outcomes {
		var (
			res        *deliverer.Result
			attemptErr error
		)
		switch o.Status {
		case models.DeliveryStatusSuccess, models.DeliveryStatusPrepared:
			now := time.Now().UTC()
			res = &deliverer.Result{
				Platform:    o.Platform,
				Status:      o.Status,
				TargetID:    o.TargetID,
				DeliveredAt: &now,
			}
		case models.DeliveryStatusSkipped:
			if err := p.delivery.Skip(o.ArticleID, o.Platform, o.Error); err != nil {
				p.logger.Error("Skip outcome not recorded",
					zap.Uint("article_id", o.ArticleID),
					zap.String("platform", o.Platform),
					zap.Error(err))
			}
			continue
		default:
			attemptErr = classifiedOutcomeError(o)
		}
		if err := p.delivery.RecordOutcome(o.ArticleID, o.Platform, res, attemptErr); err != nil {
			p.logger.Error("Outcome not recorded",
				zap.Uint("article_id", o.ArticleID),
				zap.String("platform", o.Platform),
				zap.Error(err))
		}
	}
	return nil
}

// outstanding collects the run's non-terminal delivery attempts as job
// units. On a resumed run this naturally excludes everything that already
// succeeded, so only the open attempts are re-driven.
func (p *Planner) outstanding(runID string) ([]handoff.JobUnit, []string, error) {
	var articles []models.Article
	if err := p.dedup.db.Where("run_id = ?", runID).Order("id asc").Find(&articles).Error; err != nil {
		return nil, nil, fmt.Errorf("articles for run %s: %w", runID, err)
	}

	targetSet := make(map[string]struct{})
	var units []handoff.JobUnit
	for _, a := range articles {
		open, err := p.delivery.Open(a.ID)
		if err != nil {
			return nil, nil, err
		}
		if len(open) == 0 {
			continue
		}
		units = append(units, handoff.JobUnit{
			ArticleID: a.ID,
			Role:      a.Role,
			Work:      a.Work,
			Keyword:   a.Keyword,
			Title:     a.Title,
			Body:      a.Body,
			Lang:      a.Lang,
		})
		for _, log := range open {
			targetSet[log.Platform] = struct{}{}
		}
	}

	targets := make([]string, 0, len(targetSet))
	for platform := range targetSet {
		targets = append(targets, platform)
	}
	return units, targets, nil
}

// outcome decides the run's final status from what the ledgers recorded. A
// run is success only when every planned unit was produced and every
// delivery attempt reached a terminal state; open retries make it partial.
func (p *Planner) outcome(runID string) (string, string) {
	run, err := p.runs.Get(runID)
	if err != nil {
		return models.RunStatusFailed, fmt.Sprintf("run lookup failed: %v", err)
	}

	if run.AddedCount == 0 {
		return models.RunStatusFailed, "no articles produced: candidate pool exhausted or all duplicates"
	}

	var reasons []string
	dead, err := p.delivery.DeadForRun(runID)
	if err != nil {
		p.logger.Warn("Dead-letter lookup failed", zap.String("run_id", runID), zap.Error(err))
	}
	for _, d := range dead {
		reasons = append(reasons, fmt.Sprintf("article %d on %s dead: %s", d.ArticleID, d.Platform, d.LastError))
	}
	open, err := p.delivery.OpenForRun(runID)
	if err != nil {
		p.logger.Warn("Open delivery lookup failed", zap.String("run_id", runID), zap.Error(err))
	}
	if open > 0 {
		reasons = append(reasons, fmt.Sprintf("%d deliveries still awaiting retry", open))
	}
	if run.AddedCount < run.PlannedCount {
		reasons = append(reasons, fmt.Sprintf("added %d of %d planned", run.AddedCount, run.PlannedCount))
	}
	if len(reasons) > 0 {
		return models.RunStatusPartial, strings.Join(reasons, "; ")
	}
	return models.RunStatusSuccess, ""
}

func (p *Planner) finish(runID, status, reason string) {
	if err := p.runs.Finish(runID, status, reason); err != nil {
		p.logger.Error("Run finish failed",
			zap.String("run_id", runID),
			zap.String("status", status),
			zap.Error(err))
	}
}

func (p *Planner) enabledPlatforms() []string {
	return p.registry.Platforms()
}

func classifiedOutcomeError(o handoff.UnitOutcome) error {
	base := errors.New(o.Error)
	if o.Error == "" {
		base = fmt.Errorf("delivery reported status %q", o.Status)
	}
	switch deliverer.ErrorClass(o.Class) {
	case deliverer.ClassPermanent:
		return deliverer.Permanent(base)
	case deliverer.ClassAuth:
		return deliverer.Auth(base)
	case deliverer.ClassRateLimit:
		return deliverer.RateLimit(base)
	default:
		return deliverer.Transient(base)
	}
}
