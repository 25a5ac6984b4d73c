package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDBAndMigrate(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	database, err := InitDB(ctx, Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err, "Failed to open DB")
	defer database.Close()

	require.NoError(t, RunMigrations(database.DB, DriverSQLite))
	// a second run is a no-op
	require.NoError(t, RunMigrations(database.DB, DriverSQLite))

	var tables []string
	err = database.Select(&tables, "SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('places', 'games', 'matches') ORDER BY name")
	require.NoError(t, err)
	assert.Equal(t, []string{"games", "matches", "places"}, tables)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "unique.db")

	database, err := InitDB(ctx, Config{DSN: dsn})
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, RunMigrations(database.DB, DriverSQLite))

	insert := `INSERT INTO places (id, external_id, name, last_refreshed_at, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	_, err = database.Exec(insert, "a", "ext-1", "first")
	require.NoError(t, err)

	_, err = database.Exec(insert, "b", "ext-1", "second")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", err)))

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(fmt.Errorf("boom")))
}

func TestNormalizeDriver(t *testing.T) {
	assert.Equal(t, DriverPostgres, NormalizeDriver("postgres"))
	assert.Equal(t, DriverPostgres, NormalizeDriver("pgx"))
	assert.Equal(t, DriverSQLite, NormalizeDriver(""))
	assert.Equal(t, DriverSQLite, NormalizeDriver("sqlite"))
}
