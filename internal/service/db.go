package service

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autopress/autopress/internal/config"
	"github.com/autopress/autopress/internal/models"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema. The unique indexes declared on the
// models are the authoritative guards for run idempotency, pair reuse and
// content uniqueness, so migration must run before any service touches the
// store.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Run{},
		&models.Article{},
		&models.UsedPair{},
		&models.ThemeCandidate{},
		&models.PlatformLog{},
		&models.RunStats{},
		&models.PlatformStats{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
