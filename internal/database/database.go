package database

import (
	"fitness-gateway-api/internal/models"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the SQLite database file and runs migrations.
// Using glebarez/sqlite which is a pure Go implementation (no CGO required).
// The handle is returned rather than held in package state so each test can
// run against its own database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// Auto-migrate the schema (it will create tables if they don't exist)
	err = db.AutoMigrate(
		&models.CacheSnapshot{},
		&models.CachedResource{},
		&models.PendingMutation{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}
