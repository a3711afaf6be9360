package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ppob-wallet-ledger/internal/config"
)

var errNoDatabaseURL = errors.New("database URL cannot be empty")

// RunMigrations brings the wallet schema up to the latest version. An empty
// MigrationsPath leaves the schema alone, which is how the settlement worker runs.
func RunMigrations(logger *slog.Logger, cfg config.PostgresConfig) error {
	if cfg.URL == "" {
		return errNoDatabaseURL
	}
	if cfg.MigrationsPath == "" {
		logger.Info("Migrations path not set, skipping schema migration")
		return nil
	}

	m, err := migrate.New(migrationSource(cfg.MigrationsPath), cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrator", "source_error", sourceErr, "database_error", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d, fix it by hand before restarting", version)
	}
	logger.Info("Database schema is up to date", "version", version)
	return nil
}

// migrationSource accepts plain directories as well as full source URLs.
func migrationSource(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}
