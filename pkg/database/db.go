package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the database handle used by all repositories. Query methods route
// through the transaction carried in ctx when one is open, so repository
// code is identical inside and outside a transaction.
type DB interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
	Unsafe() *sqlx.DB
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
	}
}

func (db *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}

func (db *DatabaseInstance) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return db.DB.GetContext(ctx, dest, query, args...)
}

func (db *DatabaseInstance) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return db.DB.SelectContext(ctx, dest, query, args...)
}

func (db *DatabaseInstance) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return db.DB.ExecContext(ctx, query, args...)
}

func (db *DatabaseInstance) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.NamedExecContext(ctx, query, arg)
	}
	return db.DB.NamedExecContext(ctx, query, arg)
}

func (db *DatabaseInstance) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.QueryxContext(ctx, query, args...)
	}
	return db.DB.QueryxContext(ctx, query, args...)
}

func (db *DatabaseInstance) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	if tx := TxFromContext(ctx); tx != nil {
		return tx.QueryRowxContext(ctx, query, args...)
	}
	return db.DB.QueryRowxContext(ctx, query, args...)
}
