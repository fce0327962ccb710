package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a running transaction. It embeds the same executor as DB, so
// repositories run unchanged inside it through the Querier interface.
// The default timeout is not reapplied per statement: ExecTx bounds the
// whole transaction instead.
type Tx struct {
	executor
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx
// ─────────────────────────────────────────────────────────────────────────────

// TxOptions configures isolation level and the read-only flag.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// ExecTx starts a transaction, runs fn, and commits when fn returns nil.
// Any error returned by fn, or a panic inside it, rolls the transaction
// back; the panic is re-raised after the rollback. Nested transactions
// are not supported.
//
//	err := d.ExecTx(ctx, func(tx *db.Tx) error {
//	    var id int64
//	    if err := tx.QueryRow(ctx, insertOrder, ...).Scan(&id); err != nil {
//	        return err
//	    }
//	    _, err := tx.Exec(ctx, insertItem, id, ...)
//	    return err
//	})
func (d *DB) ExecTx(ctx context.Context, fn func(*Tx) error, opts ...TxOptions) (err error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	var txOpts *sql.TxOptions
	if len(opts) > 0 {
		txOpts = &sql.TxOptions{Isolation: opts[0].Isolation, ReadOnly: opts[0].ReadOnly}
	}

	sqltx, err := d.sqldb.BeginTx(ctx, txOpts)
	if err != nil {
		return d.mapErr(err)
	}

	tx := &Tx{executor: d.executor}
	tx.conn = sqltx
	tx.timeout = 0

	committing := false
	defer func() {
		if p := recover(); p != nil {
			_ = sqltx.Rollback()
			panic(p)
		}
		// A failed Commit has already ended the transaction.
		if err == nil || committing {
			return
		}
		if rbErr := sqltx.Rollback(); rbErr != nil {
			err = fmt.Errorf("storefront/db: rollback failed (%v) after: %w", rbErr, err)
		}
	}()

	if err = fn(tx); err != nil {
		return d.mapErr(err)
	}

	committing = true
	return d.mapErr(sqltx.Commit())
}

// ─────────────────────────────────────────────────────────────────────────────
// Querier
// ─────────────────────────────────────────────────────────────────────────────

// Querier is the surface shared by *DB and *Tx. Repository constructors
// accept a Querier so the same code runs inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Prepare(ctx context.Context, query string) (*Stmt, error)
}

// TxQuerier is a Querier that can also open transactions. Repositories
// that must write several rows atomically depend on it.
type TxQuerier interface {
	Querier
	ExecTx(ctx context.Context, fn func(*Tx) error, opts ...TxOptions) error
}

var (
	_ Querier   = (*DB)(nil)
	_ Querier   = (*Tx)(nil)
	_ TxQuerier = (*DB)(nil)
)
