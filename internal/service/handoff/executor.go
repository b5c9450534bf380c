package handoff

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/autopress/autopress/internal/service/deliverer"
)

// Executor consumes a job descriptor plus its runtime secrets and returns a
// result descriptor. Implementations must delete the secrets after use,
// success or failure.
type Executor interface {
	Execute(ctx context.Context, desc JobDescriptor, secrets RuntimeSecrets, secretsPath string) (*ResultDescriptor, error)
}

// LocalExecutor runs deliveries in-process: one worker per platform, since
// platforms are independent failure domains, with units for the same
// platform handled sequentially.
type LocalExecutor struct {
	registry *deliverer.Registry
	logger   *zap.Logger
}

func NewLocalExecutor(registry *deliverer.Registry, logger *zap.Logger) *LocalExecutor {
	return &LocalExecutor{registry: registry, logger: logger}
}

func (e *LocalExecutor) Execute(ctx context.Context, desc JobDescriptor, secrets RuntimeSecrets, secretsPath string) (*ResultDescriptor, error) {
	defer func() {
		if secretsPath != "" {
			// executor-side deletion; the planner deletes again on reconcile
			_ = DeleteSecretsFile(secretsPath, e.logger)
		}
	}()

	result := &ResultDescriptor{RunID: desc.RunID}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range desc.Targets {
		target := target
		g.Go(func() error {
			d, err := e.registry.Get(target)
			if err != nil {
				mu.Lock()
				for _, unit := range desc.Units {
					result.Outcomes = append(result.Outcomes, UnitOutcome{
						ArticleID: unit.ArticleID,
						Platform:  target,
						Status:    "failed",
						Error:     err.Error(),
						Class:     string(deliverer.ClassPermanent),
					})
				}
				mu.Unlock()
				return nil
			}
			creds := secrets.Credentials[target]
			if creds == nil {
				creds = e.registry.Credentials(target)
			}
			for _, unit := range desc.Units {
				outcome := e.deliverUnit(gctx, d, target, unit, creds)
				mu.Lock()
				result.Outcomes = append(result.Outcomes, outcome)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("execute job %s: %w", desc.RunID, err)
	}
	return result, nil
}

func (e *LocalExecutor) deliverUnit(ctx context.Context, d deliverer.Deliverer, platform string, unit JobUnit, creds deliverer.Credentials) UnitOutcome {
	payload := deliverer.Payload{
		ArticleID: unit.ArticleID,
		Title:     unit.Title,
		Body:      unit.Body,
		Role:      unit.Role,
		Work:      unit.Work,
		Keyword:   unit.Keyword,
		Lang:      unit.Lang,
	}
	res, err := d.Deliver(ctx, payload, creds)
	if err != nil {
		e.logger.Warn("Unit delivery failed",
			zap.Uint("article_id", unit.ArticleID),
			zap.String("platform", platform),
			zap.Error(err))
		return UnitOutcome{
			ArticleID: unit.ArticleID,
			Platform:  platform,
			Status:    "failed",
			Error:     err.Error(),
			Class:     string(deliverer.Classify(err)),
		}
	}
	return UnitOutcome{
		ArticleID: unit.ArticleID,
		Platform:  platform,
		Status:    res.Status,
		TargetID:  res.TargetID,
	}
}
