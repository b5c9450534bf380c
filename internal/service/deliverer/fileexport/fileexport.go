// Package fileexport delivers articles as local bundles ready for manual
// upload: a directory per article with the body as markdown and a metadata
// sidecar. The attempt ends in "prepared" rather than "success" because the
// final publish step happens outside the system.
package fileexport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/internal/service/deliverer"
	"github.com/autopress/autopress/pkg/textnorm"
)

type Exporter struct {
	platform string
	outDir   string
	logger   *zap.Logger
}

func New(platform, outDir string, logger *zap.Logger) *Exporter {
	return &Exporter{platform: platform, outDir: outDir, logger: logger}
}

func (e *Exporter) PlatformName() string { return e.platform }

func (e *Exporter) Deliver(ctx context.Context, payload deliverer.Payload, _ deliverer.Credentials) (*deliverer.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, deliverer.Transient(err)
	}
	slug, err := textnorm.Slug(payload.Title)
	if err != nil {
		return nil, deliverer.Permanent(fmt.Errorf("untitled payload for article %d: %w", payload.ArticleID, err))
	}

	now := time.Now().UTC()
	bundle := fmt.Sprintf("%s-%s", now.Format("2006-01-02"), slug)
	dir := filepath.Join(e.outDir, e.platform, bundle)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, deliverer.Transient(fmt.Errorf("create bundle dir: %w", err))
	}

	body := fmt.Sprintf("# %s\n\n%s\n", payload.Title, payload.Body)
	if err := os.WriteFile(filepath.Join(dir, "article.md"), []byte(body), 0o644); err != nil {
		return nil, deliverer.Transient(fmt.Errorf("write article: %w", err))
	}
	meta, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, deliverer.Permanent(fmt.Errorf("marshal metadata: %w", err))
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), meta, 0o644); err != nil {
		return nil, deliverer.Transient(fmt.Errorf("write metadata: %w", err))
	}

	e.logger.Info("Article bundle exported",
		zap.String("platform", e.platform),
		zap.Uint("article_id", payload.ArticleID),
		zap.String("dir", dir))

	return &deliverer.Result{
		Platform:    e.platform,
		Status:      models.DeliveryStatusPrepared,
		TargetID:    bundle,
		OutDir:      dir,
		DeliveredAt: &now,
	}, nil
}
