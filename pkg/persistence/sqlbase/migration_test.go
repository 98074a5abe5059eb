package sqlbase_test

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dukex/trackcollab/pkg/persistence/sqlbase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)

	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestMigrationManager_AppliesInOrder(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	// Version 2 depends on the table created by version 1.
	migrations := map[int]string{
		2: `INSERT INTO parts (name) VALUES ('drums')`,
		1: `CREATE TABLE parts (name TEXT PRIMARY KEY)`,
		3: `INSERT INTO parts (name) VALUES ('bass')`,
	}

	manager := sqlbase.NewMigrationManager(slog.Default(), db, sqlbase.SQLite, migrations)
	assert.Equal(t, 3, manager.LatestVersion())

	require.NoError(t, manager.RunMigrations(ctx))
	require.NoError(t, manager.RunMigrations(ctx), "running twice is a no-op")

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM parts").Scan(&count))
	assert.Equal(t, 2, count)

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 3, version)
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	manager := sqlbase.NewMigrationManager(slog.Default(), db, sqlbase.SQLite, map[int]string{
		1: `CREATE TABLE parts (name TEXT PRIMARY KEY)`,
		2: `INSERT INTO missing_table VALUES (1)`,
	})

	require.Error(t, manager.RunMigrations(ctx))

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version)
}
