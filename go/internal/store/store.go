// Package store opens the relational database that backs draft sessions, pool rows,
// the event outbox and the card catalog. Postgres is used in production and SQLite
// for local runs and tests; both share one schema and one set of queries.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/mcdev12/cubedraft/go/internal/store/migrations"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// DB is a migrated database handle that remembers its driver.
type DB struct {
	*sql.DB
	Driver string
}

// Open connects to driver/dsn, pings it and applies the embedded migrations.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var root string
	switch driver {
	case DriverPostgres:
		root = "postgres"
	case DriverSQLite:
		root = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// Every SQLite connection to :memory: is its own database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := ApplyMigrations(ctx, sqlDB, migrations.FS, root); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("driver", driver).Msg("database ready")
	return &DB{DB: sqlDB, Driver: driver}, nil
}

// OpenMemory opens a fresh in-memory SQLite database.
func OpenMemory(ctx context.Context) (*DB, error) {
	return Open(ctx, DriverSQLite, ":memory:")
}

// Postgres reports whether row locks and LISTEN/NOTIFY are available.
func (d *DB) Postgres() bool {
	return d.Driver == DriverPostgres
}

// Queries returns queries bound to the pool.
func (d *DB) Queries() *Queries {
	return New(d.DB, d.Driver)
}
