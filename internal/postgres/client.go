package postgres

import (
	"fmt"

	"github.com/splitfair/splitfair/internal/config"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewClient opens a gorm connection to postgres. TranslateError is
// enabled so unique-constraint violations surface as
// gorm.ErrDuplicatedKey and can be mapped onto the idempotency gate.
func NewClient(cfg *config.Configuration, log *logger.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to postgres").
			Mark(ierr.ErrDatabase)
	}

	log.Infow("connected to postgres",
		"host", cfg.Postgres.Host,
		"database", cfg.Postgres.DBName,
	)
	return db, nil
}
