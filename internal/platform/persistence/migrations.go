package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // File source driver
)

// RunMigrations brings the marketplace schema to the latest version. Both the
// API and the settlement worker call it on startup; the postgres driver holds
// an advisory lock so they never apply the same step twice.
func RunMigrations(logger *slog.Logger, databaseURL, migrationsPath string) error {
	if migrationsPath == "" {
		return errors.New("migrations path cannot be empty")
	}
	if databaseURL == "" {
		return errors.New("database URL cannot be empty")
	}

	m, err := migrate.New(migrationSourceURL(migrationsPath), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: logger}

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return closeMigrate(m, fmt.Errorf("failed to read schema version: %w", err))
	}
	if dirty {
		return closeMigrate(m, fmt.Errorf("schema is dirty at version %d, repair it before starting", from))
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return closeMigrate(m, fmt.Errorf("failed to apply migrations: %w", err))
	}

	to, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return closeMigrate(m, fmt.Errorf("failed to read schema version: %w", err))
	}
	logger.Info("Schema migrated", "from_version", from, "to_version", to)

	return closeMigrate(m, nil)
}

// migrationSourceURL accepts either a bare directory or a file:// URL
func migrationSourceURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}

func closeMigrate(m *migrate.Migrate, err error) error {
	sourceErr, dbErr := m.Close()
	if err != nil {
		return err
	}
	if sourceErr != nil {
		return fmt.Errorf("migration source error: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration database error: %w", dbErr)
	}
	return nil
}

// migrateLogger routes golang-migrate's progress lines into slog at debug level
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug("migrate: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

var _ migrate.Logger = (*migrateLogger)(nil)
