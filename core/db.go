package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type (
	DBExecutor interface {
		sqlx.ExtContext

		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}
)

var _ DB = (*sqlx.DB)(nil) // interface compliance check

// DBOrdering is one sort key of a listing, parsed from the "ordering" query param.
type DBOrdering struct {
	Field     string
	Ascending bool
}
