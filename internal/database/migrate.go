package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Migrate applies the embedded migrations for dialect in direction ("up" or "down").
// It opens and closes its own connection. Being already at the target version is not an error.
func Migrate(dialect, dsn, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	sqlDB, err := openSQL(dialect, dsn)
	if err != nil {
		return err
	}

	driver, err := migrationDriver(dialect, sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, "migrations/"+dialect)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dialect, driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	return nil
}

func migrationDriver(dialect string, sqlDB *sql.DB) (migratedb.Driver, error) {
	switch dialect {
	case DialectPostgres:
		return postgres.WithInstance(sqlDB, &postgres.Config{})
	case DialectSQLite:
		return sqlite.WithInstance(sqlDB, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}
}
