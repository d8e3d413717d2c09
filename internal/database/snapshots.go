package database

import (
	"errors"
	"time"

	"fitness-gateway-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshots implements cache.Snapshotter on top of the SQLite database,
// storing one row per named store.
type Snapshots struct {
	db *gorm.DB
}

// NewSnapshots wraps the database handle.
func NewSnapshots(db *gorm.DB) *Snapshots {
	return &Snapshots{db: db}
}

// Load returns the persisted blob for the store, or (nil, nil) when no
// snapshot has been written yet.
func (s *Snapshots) Load(name string) ([]byte, error) {
	var row models.CacheSnapshot
	err := s.db.First(&row, "store_name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Blob, nil
}

// Save upserts the blob for the store.
func (s *Snapshots) Save(name string, blob []byte) error {
	row := models.CacheSnapshot{StoreName: name, Blob: blob, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}).Create(&row).Error
}

// Drop removes the snapshot row if present.
func (s *Snapshots) Drop(name string) error {
	return s.db.Delete(&models.CacheSnapshot{}, "store_name = ?", name).Error
}
