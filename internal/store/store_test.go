package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AdamBeresnev/yumcup/internal/db"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a file-backed SQLite database and applies migrations. A file is used
// rather than :memory: so every pooled connection sees the same data.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate&_foreign_keys=on"
	database, err := db.InitDB(context.Background(), db.Config{Driver: db.DriverSQLite, DSN: dsn})
	require.NoError(t, err, "Failed to connect to test DB")

	err = db.RunMigrations(database.DB, db.DriverSQLite)
	require.NoError(t, err, "Failed to apply migrations")

	return database
}
