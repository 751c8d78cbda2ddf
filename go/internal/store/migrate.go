package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

const (
	migrationTable = "schema_migrations"
	upMarker       = "-- +migrate Up"
	downMarker     = "-- +migrate Down"
)

// ApplyMigrations runs every *.sql file under root that schema_migrations has not
// recorded yet, in file name order. Each file runs in its own transaction.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationFS fs.FS, root string) error {
	if db == nil {
		return errors.New("failed to apply migrations: no database handle")
	}

	files, err := fs.Glob(migrationFS, path.Join(root, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migrations in %s: %w", root, err)
	}
	slices.Sort(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`); err != nil {
		return fmt.Errorf("failed to create %s: %w", migrationTable, err)
	}

	for _, name := range files {
		if err := applyMigration(ctx, db, migrationFS, name); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, migrationFS fs.FS, name string) error {
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = $1", name).Scan(&one)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to look up migration %s: %w", name, err)
	}

	raw, err := fs.ReadFile(migrationFS, name)
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", name, err)
	}
	ddl := upSection(string(raw))
	if strings.TrimSpace(ddl) == "" {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	// Tables created before schema_migrations existed are left as they are.
	if _, err := tx.ExecContext(ctx, ddl); err != nil && !alreadyExists(err) {
		return fmt.Errorf("failed to run migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+migrationTable+" (name, applied_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
		name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", name, err)
	}
	return nil
}

// upSection keeps the statements between the Up and Down markers. Files without
// an Up marker run whole.
func upSection(migration string) string {
	_, up, found := strings.Cut(migration, upMarker)
	if !found {
		return migration
	}
	up, _, _ = strings.Cut(up, downMarker)
	return up
}

// alreadyExists matches the sqlite and postgres errors for DDL that has already
// been applied.
func alreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"already exists", "duplicate column name"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
