package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func Connect(driver, dataSource string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	// SQLite takes one writer at a time, and every connection to
	// ":memory:" would otherwise see its own empty database.
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return db, nil
}

var schemas = map[string]string{
	DriverPostgres: `
		CREATE TABLE IF NOT EXISTS tasks (
			id          SERIAL PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			completed   BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	DriverSQLite: `
		CREATE TABLE IF NOT EXISTS tasks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			completed   BOOLEAN NOT NULL DEFAULT FALSE
		)`,
}

// EnsureSchema creates the tasks table when it does not exist yet. It
// never alters an existing table.
func EnsureSchema(ctx context.Context, db *sql.DB, driver string) error {
	ddl, ok := schemas[driver]
	if !ok {
		return fmt.Errorf("unsupported driver %q", driver)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}
