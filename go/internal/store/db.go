package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("row not found")

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX, driver string) *Queries {
	return &Queries{db: db, driver: driver}
}

// Queries holds the hand written statements for every table. Statements use $N
// placeholders, which both drivers accept.
type Queries struct {
	db     DBTX
	driver string
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db:     tx,
		driver: q.driver,
	}
}

// lockClause returns the row lock suffix for drivers that support it. SQLite
// serializes writers on its own.
func (q *Queries) lockClause() string {
	if q.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
