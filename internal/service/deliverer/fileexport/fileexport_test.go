package fileexport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/autopress/autopress/internal/models"
	"github.com/autopress/autopress/internal/service/deliverer"
)

func TestDeliverWritesBundle(t *testing.T) {
	dir := t.TempDir()
	exporter := New("zhihu", dir, zap.NewNop())

	payload := deliverer.Payload{
		ArticleID: 7,
		Title:     "The Shadow Worker",
		Body:      "body text",
		Role:      "role",
		Work:      "work",
		Keyword:   "keyword",
		Lang:      "zh",
	}
	res, err := exporter.Deliver(context.Background(), payload, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusPrepared, res.Status)
	assert.Contains(t, res.TargetID, "the-shadow-worker")
	require.NotNil(t, res.DeliveredAt)

	md, err := os.ReadFile(filepath.Join(res.OutDir, "article.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# The Shadow Worker")
	assert.Contains(t, string(md), "body text")

	raw, err := os.ReadFile(filepath.Join(res.OutDir, "meta.json"))
	require.NoError(t, err)
	var meta deliverer.Payload
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, uint(7), meta.ArticleID)
	assert.Equal(t, "keyword", meta.Keyword)
}

func TestDeliverRejectsUntitledPayload(t *testing.T) {
	exporter := New("zhihu", t.TempDir(), zap.NewNop())

	_, err := exporter.Deliver(context.Background(), deliverer.Payload{ArticleID: 1, Title: "！！"}, nil)
	require.Error(t, err)
	assert.Equal(t, deliverer.ClassPermanent, deliverer.Classify(err))
}

func TestDeliverRespectsCancelledContext(t *testing.T) {
	exporter := New("zhihu", t.TempDir(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exporter.Deliver(ctx, deliverer.Payload{ArticleID: 1, Title: "t"}, nil)
	require.Error(t, err)
	assert.Equal(t, deliverer.ClassTransient, deliverer.Classify(err))
}
