// Package db is the SQL-first storage layer used by the storefront
// repositories. It wraps database/sql with context-aware helpers, hook
// dispatch, unified driver-error mapping and transaction management.
// There is no ORM here: every statement is written by the caller.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Config holds the options for opening and tuning the connection pool.
type Config struct {
	// DSN is the driver-specific data-source name.
	DSN string

	// DriverName is "postgres", "pgx" or "sqlite3".
	DriverName string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// DefaultTimeout bounds statements whose context carries no deadline.
	// Zero leaves them unbounded.
	DefaultTimeout time.Duration

	// Hooks run around every statement. nil entries are skipped.
	Hooks []Hook
}

// DB is the pooled handle shared by every request. It is safe for
// concurrent use; the underlying *sql.DB is reachable through Raw.
type DB struct {
	executor
	sqldb      *sql.DB
	driverName string
}

// Open opens the database described by cfg and pings it once.
// Callers own the returned handle and must Close it on shutdown.
func Open(cfg Config) (*DB, error) {
	switch {
	case cfg.DSN == "":
		return nil, errors.New("storefront/db: DSN must not be empty")
	case cfg.DriverName == "":
		return nil, errors.New("storefront/db: DriverName must not be empty")
	}

	sqldb, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storefront/db: open %s: %w", cfg.DriverName, err)
	}
	d := Wrap(sqldb, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("storefront/db: ping %s: %w", cfg.DriverName, err)
	}
	return d, nil
}

// Wrap builds a DB around an already opened *sql.DB, applying the pool
// settings of cfg. DSN is ignored. Tests use it with sqlmock.
func Wrap(sqldb *sql.DB, cfg Config) *DB {
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	return &DB{
		executor: executor{
			conn:    sqldb,
			hooks:   newHookChain(cfg.Hooks),
			errMap:  DefaultErrorMapper(),
			timeout: cfg.DefaultTimeout,
		},
		sqldb:      sqldb,
		driverName: cfg.DriverName,
	}
}

// Raw returns the underlying *sql.DB. The migration runner needs it.
func (d *DB) Raw() *sql.DB { return d.sqldb }

// DriverName reports the database/sql driver this handle was opened with.
func (d *DB) DriverName() string { return d.driverName }

// SetErrorMapper replaces the default error mapper. Call it before the
// handle is shared.
func (d *DB) SetErrorMapper(m ErrorMapper) { d.errMap = m }

// Close closes all pooled connections.
func (d *DB) Close() error { return d.sqldb.Close() }

// Ping checks that the database is reachable. The health endpoint uses it.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return d.mapErr(d.sqldb.PingContext(ctx))
}

// Stats returns pool statistics.
func (d *DB) Stats() sql.DBStats { return d.sqldb.Stats() }

// conn is the statement surface shared by *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// executor runs statements against a conn. DB and Tx both embed one, so
// repositories see the same Querier methods inside and outside a
// transaction.
type executor struct {
	conn    conn
	hooks   hookChain
	errMap  ErrorMapper
	timeout time.Duration
}

// Exec runs a statement that returns no rows (INSERT, UPDATE, DELETE, DDL).
func (e executor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c := e.begin(ctx, query, args)
	res, err := e.conn.ExecContext(c.ctx, query, args...)
	return res, c.finish(err)
}

// Query runs a statement that returns rows. The caller must Close them;
// hooks observe the statement once the rows are drained or closed.
func (e executor) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	c := e.begin(ctx, query, args)
	rows, err := e.conn.QueryContext(c.ctx, query, args...)
	if err != nil {
		return nil, c.finish(err)
	}
	return &Rows{Rows: rows, call: c}, nil
}

// QueryRow runs a statement expected to return at most one row. The
// statement is only complete once Scan is called on the result.
func (e executor) QueryRow(ctx context.Context, query string, args ...any) *Row {
	c := e.begin(ctx, query, args)
	return &Row{raw: e.conn.QueryRowContext(c.ctx, query, args...), call: c}
}

// Prepare creates a prepared statement. The caller must Close it.
func (e executor) Prepare(ctx context.Context, query string) (*Stmt, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	s, err := e.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, e.mapErr(err)
	}
	return &Stmt{stmt: s, query: query, exec: e}, nil
}

// bound applies the default timeout when ctx has no deadline of its own.
func (e executor) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e executor) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return e.errMap.Map(err)
}

func (e executor) begin(ctx context.Context, query string, args []any) *call {
	ctx, cancel := e.bound(ctx)
	e.hooks.Before(ctx, query, args)
	return &call{
		ctx:    ctx,
		cancel: cancel,
		query:  query,
		args:   args,
		start:  time.Now(),
		exec:   e,
	}
}

// call tracks one statement from dispatch until its outcome is known.
type call struct {
	ctx    context.Context
	cancel context.CancelFunc
	query  string
	args   []any
	start  time.Time
	exec   executor
	done   bool
}

// finish maps err, reports the statement to the hooks and releases the
// timeout. Only the first call has any effect.
func (c *call) finish(err error) error {
	err = c.exec.mapErr(err)
	if c.done {
		return err
	}
	c.done = true
	c.exec.hooks.After(c.ctx, c.query, c.args, time.Since(c.start), err)
	c.cancel()
	return err
}

// Row is the result of QueryRow.
type Row struct {
	raw  *sql.Row
	call *call
}

// Scan copies the matched row into dest. ErrNotFound is returned when
// nothing matched.
func (r *Row) Scan(dest ...any) error {
	return r.call.finish(r.raw.Scan(dest...))
}

// Rows is the result of Query. It embeds *sql.Rows; Err and Close return
// mapped errors.
type Rows struct {
	*sql.Rows
	call *call
}

// Next advances to the next row. The statement is reported to the hooks
// as soon as the result set is exhausted.
func (r *Rows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.call.finish(r.Rows.Err())
	return false
}

// Err returns the error, if any, hit during iteration.
func (r *Rows) Err() error { return r.call.exec.mapErr(r.Rows.Err()) }

// Close releases the result set.
func (r *Rows) Close() error {
	iterErr := r.Rows.Err()
	err := r.Rows.Close()
	if iterErr == nil {
		iterErr = err
	}
	r.call.finish(iterErr)
	return r.call.exec.mapErr(err)
}

// Stmt is a prepared statement with hook dispatch and error mapping.
type Stmt struct {
	stmt  *sql.Stmt
	query string
	exec  executor
}

// Exec runs the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	c := s.exec.begin(ctx, s.query, args)
	res, err := s.stmt.ExecContext(c.ctx, args...)
	return res, c.finish(err)
}

// QueryRow runs the prepared statement expecting one row.
func (s *Stmt) QueryRow(ctx context.Context, args ...any) *Row {
	c := s.exec.begin(ctx, s.query, args)
	return &Row{raw: s.stmt.QueryRowContext(c.ctx, args...), call: c}
}

// Close releases the prepared statement.
func (s *Stmt) Close() error { return s.stmt.Close() }
