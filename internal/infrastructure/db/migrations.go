package db

import (
	"github.com/cklxx/NanoBee/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.KVEntry{}); err != nil {
		return err
	}
	return createCustomIndexes(db)
}

func createCustomIndexes(db *gorm.DB) error {
	// Prefix scans by namespace only look at live rows.
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_kv_entries_namespace_live
		ON kv_entries (namespace, key)
		WHERE deleted_at IS NULL
	`).Error
}
