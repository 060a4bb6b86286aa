package db_test

import (
	"testing"
	"time"

	"github.com/Dosada05/league-standings/db"
	"github.com/Dosada05/league-standings/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := db.Connect("mysql", "root@/standings", time.Second)
	assert.Error(t, err)
}

func TestRunMigrations_IsRepeatable(t *testing.T) {
	database := testdb.Open(t)

	require.NoError(t, db.RunMigrations(database, "", testdb.MigrationsURL()))

	var count int
	err := database.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('standings_tables', 'applied_match_results')")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConnect_EnablesForeignKeys(t *testing.T) {
	database := testdb.Open(t)

	var enabled int
	require.NoError(t, database.Get(&enabled, "PRAGMA foreign_keys"))
	assert.Equal(t, 1, enabled)
}
