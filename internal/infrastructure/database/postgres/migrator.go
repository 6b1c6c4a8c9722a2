package postgres

import (
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/dealdeskhq/dealdesk/internal/config"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
)

// RunMigrations applies all pending up-migrations from cfg.MigrationsPath.
// No-op when the schema is already current.
func RunMigrations(cfg config.DatabaseConfig, log logging.Logger) error {
	m, err := migrate.New("file://"+cfg.MigrationsPath, migrateDSN(cfg))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create migrate instance")
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to run migrations")
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		log.Warn("failed to read migration version", logging.Err(err))
		return nil
	}
	log.Info("database migrations completed",
		logging.Int64("version", int64(version)),
		logging.Bool("dirty", dirty),
	)
	return nil
}

// RollbackLast reverts the most recent migration.
func RollbackLast(cfg config.DatabaseConfig, log logging.Logger) error {
	m, err := migrate.New("file://"+cfg.MigrationsPath, migrateDSN(cfg))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create migrate instance")
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to rollback migration")
	}
	log.Info("rolled back one migration")
	return nil
}

// migrateDSN rewrites the pool DSN onto golang-migrate's pgx/v5 scheme.
func migrateDSN(cfg config.DatabaseConfig) string {
	return strings.Replace(cfg.DSN(), "postgres://", "pgx5://", 1)
}
