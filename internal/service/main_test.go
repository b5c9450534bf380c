package service

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/autopress/autopress/internal/config"
	"github.com/autopress/autopress/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// busy_timeout keeps concurrent writers waiting instead of erroring
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=10000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

func seedCandidate(t *testing.T, db *gorm.DB, role, work, keyword string) *models.ThemeCandidate {
	t.Helper()

	c := &models.ThemeCandidate{
		Role:    role,
		Work:    work,
		Keyword: keyword,
		Active:  true,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
