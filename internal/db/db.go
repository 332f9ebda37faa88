package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/muzz-matchmaking/internal/config"
)

// NewDB initializes the database connection using DSN from config.
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.App.ENV == "development" {
		level = logger.Info // log SQL queries
	}

	db, err := gorm.Open(mysql.Open(cfg.DB.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := Bootstrap(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Bootstrap migrates the schema and seeds the questionnaire catalog if it is
// empty. Safe to run on every boot.
func Bootstrap(db *gorm.DB) error {
	if err := Migrate(db); err != nil {
		return err
	}
	if _, err := SeedQuestions(db); err != nil {
		return err
	}
	return nil
}

// Migrate keeps the schema in sync with models. Shared by tests.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
