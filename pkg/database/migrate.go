package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Migrate applies all pending migrations from the given directory.
func Migrate(db *sqlx.DB, migrationsDir string, logger *zap.Logger) error {
	if migrationsDir == "" {
		return nil
	}

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			if logger != nil {
				logger.Info("no new migrations to apply")
			}
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	if logger != nil {
		logger.Info("migrations applied", zap.String("dir", migrationsDir))
	}
	return nil
}
