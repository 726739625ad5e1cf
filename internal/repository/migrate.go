package repository

import (
	ierr "github.com/splitfair/splitfair/internal/errors"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all persisted models
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&subscriptionModel{},
		&historyEntryModel{},
		&entitlementModel{},
		&planCatalogModel{},
		&anomalyModel{},
	)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Schema migration failed").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
