package persistence

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMigrations_InputValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := RunMigrations(logger, "postgres://marketplace@localhost/marketplace", "")
	assert.EqualError(t, err, "migrations path cannot be empty")

	err = RunMigrations(logger, "", "migrations/postgres")
	assert.EqualError(t, err, "database URL cannot be empty")
}

func TestMigrationSourceURL(t *testing.T) {
	assert.Equal(t, "file://migrations/postgres", migrationSourceURL("migrations/postgres"))
	assert.Equal(t, "file:///srv/marketplace/migrations", migrationSourceURL("/srv/marketplace/migrations"))
	assert.Equal(t, "file://./migrations/postgres", migrationSourceURL("file://./migrations/postgres"))
}

func TestMigrateLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &migrateLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Printf("Start buffering %d/u %s\n", 4, "create_transactions")

	assert.False(t, l.Verbose())
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), `msg="migrate: Start buffering 4/u create_transactions"`)
}
