package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempSQLitePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "mobileauth.db")
}

func TestOpen_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		dialect string
		dsn     string
	}{
		{"empty dsn", DialectSQLite, ""},
		{"whitespace dsn", DialectPostgres, "   "},
		{"unknown dialect", "mysql", "user@/db"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, err := Open(context.Background(), tc.dialect, tc.dsn)
			assert.Error(t, err)
			assert.Nil(t, db)
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(context.Background(), DialectSQLite, tempSQLitePath(t))
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DialectSQLite, db.Dialect())

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestCloseNilSafe(t *testing.T) {
	var db *DB
	assert.NoError(t, db.Close())
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	lite := &DB{dialect: DialectSQLite}
	query := "SELECT id FROM users WHERE mobile_number = ? AND created_at > ?"

	assert.Equal(t, "SELECT id FROM users WHERE mobile_number = $1 AND created_at > $2", pg.Rebind(query))
	assert.Equal(t, query, lite.Rebind(query))
}

func TestMigrate_SQLiteUpIsIdempotent(t *testing.T) {
	path := tempSQLitePath(t)

	require.NoError(t, Migrate(DialectSQLite, path, "up"))
	require.NoError(t, Migrate(DialectSQLite, path, "up"))

	db, err := Open(context.Background(), DialectSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"users", "otps"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_SQLiteDown(t *testing.T) {
	path := tempSQLitePath(t)
	require.NoError(t, Migrate(DialectSQLite, path, "up"))
	require.NoError(t, Migrate(DialectSQLite, path, "down"))

	db, err := Open(context.Background(), DialectSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'otps')").Scan(&count))
	assert.Zero(t, count)
}

func TestMigrate_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "UP", "sideways"} {
		err := Migrate(DialectSQLite, tempSQLitePath(t), direction)
		assert.Error(t, err, direction)
	}
}
