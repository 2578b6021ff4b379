/*
 * @module internal/store/migrate
 * @description Auto-migration and the pg_trgm extension/index setup needed
 *   by fuzzy text search.
 * @architecture Data access layer - migration management
 * @dependencies gorm.io/gorm
 */
package store

import (
	"log/slog"

	"gorm.io/gorm"
)

// AutoMigrate creates/updates the store's tables and, when running against
// Postgres, the trigram extension and indexes the fuzzy search depends on.
func AutoMigrate(db *gorm.DB) error {
	slog.Info("running store auto-migration")

	if err := db.AutoMigrate(&Product{}, &Merchant{}, &Category{}, &Interaction{}, &FeatureBlob{}); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_products_title_trgm ON products USING gin (title gin_trgm_ops)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_products_description_trgm ON products USING gin (description gin_trgm_ops)`).Error; err != nil {
		return err
	}

	return nil
}
