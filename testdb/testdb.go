// Package testdb opens migrated in-memory SQLite databases for tests.
package testdb

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Dosada05/league-standings/db"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func MigrationsURL() string {
	_, file, _, _ := runtime.Caller(0)
	return "file://" + filepath.ToSlash(filepath.Join(filepath.Dir(file), "..", "migrations"))
}

// Open returns a fresh database with all migrations applied. It is closed with the test.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.Connect(db.DriverSQLite, "file::memory:", time.Second)
	require.NoError(t, err, "Failed to connect to in-memory DB")
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database, "", MigrationsURL()), "Failed to apply migrations")
	return database
}
