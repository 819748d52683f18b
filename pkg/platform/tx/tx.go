// Package tx carries an open *sql.Tx through a context so stores called
// inside a RunInTx body join the caller's transaction.
package tx

import (
	"context"
	"database/sql"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context. A nil tx leaves ctx unchanged.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From returns the transaction bound to ctx, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := From(ctx)
	return ok
}

// Conn returns the transaction bound to ctx, falling back to db.
func Conn(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}
