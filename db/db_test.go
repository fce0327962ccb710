// Unit tests for the storage layer. They use an in-memory SQLite database
// and sqlmock; no external services required.
package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/Skryldev/storefront/db"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(db.Config{
		DSN:          ":memory:?_foreign_keys=on",
		DriverName:   "sqlite3",
		MaxOpenConns: 1,
		Hooks: []db.Hook{
			db.NewLogHook(db.LogHookConfig{LogArgs: true}),
		},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	// Create schema
	_, err = d.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT,
			email      TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS user_addresses (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users (id),
			city    TEXT NOT NULL CHECK (city <> '')
		)`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// Open / Ping
// ─────────────────────────────────────────────────────────────────────────────

func TestOpen(t *testing.T) {
	d := newTestDB(t)
	if err := d.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := db.Open(db.Config{DSN: "", DriverName: "sqlite3"})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Exec / QueryRow
// ─────────────────────────────────────────────────────────────────────────────

func TestExec_Insert(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	res, err := d.Exec(ctx,
		`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		"Alice", "alice@test.com", now, now,
	)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	n, _ := res.RowsAffected()
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}
}

func TestQueryRow_Scan(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	_, err := d.Exec(ctx,
		`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		"Bob", "bob@test.com", now, now,
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	var name, email string
	err = d.QueryRow(ctx, `SELECT name, email FROM users WHERE email = ?`, "bob@test.com").
		Scan(&name, &email)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if name != "Bob" || email != "bob@test.com" {
		t.Fatalf("unexpected values: name=%q email=%q", name, email)
	}
}

func TestQueryRow_NotFound(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	var name string
	err := d.QueryRow(ctx, `SELECT name FROM users WHERE id = ?`, 99999).Scan(&name)
	if !db.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Query — multiple rows
// ─────────────────────────────────────────────────────────────────────────────

func TestQuery_MultipleRows(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for _, u := range []struct{ name, email string }{
		{"Alice", "alice@q.com"},
		{"Bob", "bob@q.com"},
		{"Carol", "carol@q.com"},
	} {
		_, err := d.Exec(ctx,
			`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			u.name, u.email, now, now,
		)
		if err != nil {
			t.Fatalf("insert %s: %v", u.name, err)
		}
	}

	rows, err := d.Query(ctx, `SELECT name FROM users ORDER BY name`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows.Err: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(names))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx — commit
// ─────────────────────────────────────────────────────────────────────────────

func TestExecTx_Commit(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	err := d.ExecTx(ctx, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			"Dave", "dave@tx.com", now, now,
		)
		return err
	})
	if err != nil {
		t.Fatalf("tx commit: %v", err)
	}

	var n int
	_ = d.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, "dave@tx.com").Scan(&n)
	if n != 1 {
		t.Fatalf("expected 1 committed row, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx — rollback on error
// ─────────────────────────────────────────────────────────────────────────────

func TestExecTx_RollbackOnError(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	sentinelErr := errors.New("intentional failure")

	err := d.ExecTx(ctx, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			"Eve", "eve@rollback.com", now, now,
		)
		if err != nil {
			return err
		}
		return sentinelErr // force rollback
	})
	if !errors.Is(err, sentinelErr) {
		t.Fatalf("expected sentinelErr, got %v", err)
	}

	var n int
	_ = d.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, "eve@rollback.com").Scan(&n)
	if n != 0 {
		t.Fatalf("expected 0 rows after rollback, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx — rollback on panic
// ─────────────────────────────────────────────────────────────────────────────

func TestExecTx_RollbackOnPanic(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic to propagate")
		}
	}()

	_ = d.ExecTx(ctx, func(tx *db.Tx) error {
		panic("test panic")
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Prepared statements
// ─────────────────────────────────────────────────────────────────────────────

func TestPrepare(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	stmt, err := d.Prepare(ctx,
		`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()

	for _, email := range []string{"p1@test.com", "p2@test.com", "p3@test.com"} {
		_, err := stmt.Exec(ctx, "PrepUser", email, now, now)
		if err != nil {
			t.Fatalf("exec prepared: %v", err)
		}
	}

	var n int
	_ = d.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE name = ?`, "PrepUser").Scan(&n)
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping — DuplicateKey (SQLite)
// ─────────────────────────────────────────────────────────────────────────────

func TestErrorMapper_DuplicateKey(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	insert := func() error {
		_, err := d.Exec(ctx,
			`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			"Alice", "dup@test.com", now, now,
		)
		return err
	}

	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := insert() // should trigger UNIQUE constraint
	if !db.IsDuplicateKey(err) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Hooks — verify they are called
// ─────────────────────────────────────────────────────────────────────────────

type countingHook struct {
	before int
	after  int
}

func (h *countingHook) BeforeQuery(_ context.Context, _ string, _ []any) { h.before++ }
func (h *countingHook) AfterQuery(_ context.Context, _ string, _ []any, _ time.Duration, _ error) {
	h.after++
}

func TestHooks_CalledOnExec(t *testing.T) {
	hook := &countingHook{}
	d, err := db.Open(db.Config{
		DSN:        ":memory:",
		DriverName: "sqlite3",
		Hooks:      []db.Hook{hook},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	_, _ = d.Exec(ctx, `SELECT 1`)

	if hook.before != 1 || hook.after != 1 {
		t.Fatalf("hook not called: before=%d after=%d", hook.before, hook.after)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Context timeout
// ─────────────────────────────────────────────────────────────────────────────

func TestContextCancellation(t *testing.T) {
	d := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Exec(ctx, `SELECT 1`)
	if !db.IsTimeout(err) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the context error to stay reachable, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping — ForeignKey / Check (SQLite)
// ─────────────────────────────────────────────────────────────────────────────

func TestErrorMapper_ForeignKey(t *testing.T) {
	d := newTestDB(t)
	_, err := d.Exec(context.Background(),
		`INSERT INTO user_addresses (user_id, city) VALUES (?, ?)`, 12345, "Lisbon")
	if !db.IsForeignKeyViolation(err) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestErrorMapper_RestrictedDelete(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	_, err := d.Exec(ctx, `
		CREATE TABLE carts (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users (id) ON DELETE RESTRICT
		)`)
	if err != nil {
		t.Fatalf("create carts: %v", err)
	}

	var userID int64
	err = d.QueryRow(ctx,
		`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING id`,
		"Rui", "rui@test.com", now, now,
	).Scan(&userID)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := d.Exec(ctx, `INSERT INTO carts (user_id) VALUES (?)`, userID); err != nil {
		t.Fatalf("insert cart: %v", err)
	}

	_, err = d.Exec(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if !db.IsForeignKeyViolation(err) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestErrorMapper_Check(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	var userID int64
	err := d.QueryRow(ctx,
		`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING id`,
		"Zed", "zed@test.com", now, now,
	).Scan(&userID)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}

	_, err = d.Exec(ctx, `INSERT INTO user_addresses (user_id, city) VALUES (?, ?)`, userID, "")
	if !db.IsCheckViolation(err) {
		t.Fatalf("expected ErrCheckViolation, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Error mapping — PostgreSQL drivers
// ─────────────────────────────────────────────────────────────────────────────

func TestErrorMapper_PostgresCodes(t *testing.T) {
	m := db.DefaultErrorMapper()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"pq unique", &pq.Error{Code: "23505", Constraint: "users_email_key"}, db.ErrDuplicateKey},
		{"pq fk", &pq.Error{Code: "23503"}, db.ErrForeignKeyViolation},
		{"pq not null", &pq.Error{Code: "23502"}, db.ErrCheckViolation},
		{"pgx check", &pgconn.PgError{Code: "23514"}, db.ErrCheckViolation},
		{"pgx deadlock", &pgconn.PgError{Code: "40P01"}, db.ErrDeadlock},
		{"pgx statement timeout", &pgconn.PgError{Code: "57014"}, db.ErrTimeout},
		{"pgx connection", &pgconn.PgError{Code: "08006"}, db.ErrConnectionFailed},
		{"wrapped pgx unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), db.ErrDuplicateKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := m.Map(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	var dbe *db.DBError
	if !errors.As(m.Map(&pq.Error{Code: "23505", Constraint: "users_email_key"}), &dbe) || dbe.Constraint != "users_email_key" {
		t.Fatalf("constraint name not carried: %+v", dbe)
	}

	unknown := &pgconn.PgError{Code: "42601"}
	if got := m.Map(unknown); got != unknown {
		t.Fatalf("unknown codes must pass through, got %v", got)
	}
}

func TestWrap_MapsDriverErrors(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqldb.Close()

	d := db.Wrap(sqldb, db.Config{DefaultTimeout: time.Second})

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT name FROM users").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err = d.Exec(context.Background(), `INSERT INTO users (email) VALUES ($1)`, "a@b.c")
	if !db.IsDuplicateKey(err) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	var name string
	err = d.QueryRow(context.Background(), `SELECT name FROM users WHERE id = $1`, 1).Scan(&name)
	if !db.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx — commit failure and options (sqlmock)
// ─────────────────────────────────────────────────────────────────────────────

func TestExecTx_CommitErrorIsMapped(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqldb.Close()

	d := db.Wrap(sqldb, db.Config{})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40P01"})

	err = d.ExecTx(context.Background(), func(tx *db.Tx) error {
		_, err := tx.Exec(context.Background(), `UPDATE orders SET status = $1`, "paid")
		return err
	}, db.TxOptions{Isolation: sql.LevelDefault})
	if !db.IsDeadlock(err) {
		t.Fatalf("expected ErrDeadlock, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Metrics hook
// ─────────────────────────────────────────────────────────────────────────────

type recordingCollector struct {
	ok, failed int
}

func (c *recordingCollector) RecordQuery(_ string, _ time.Duration, success bool) {
	if success {
		c.ok++
	} else {
		c.failed++
	}
}

func TestMetricsHook(t *testing.T) {
	collector := &recordingCollector{}
	d, err := db.Open(db.Config{
		DSN:        ":memory:",
		DriverName: "sqlite3",
		Hooks:      []db.Hook{db.NewMetricsHook(collector), nil},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	_, _ = d.Exec(ctx, `SELECT 1`)
	_, _ = d.Exec(ctx, `SELECT * FROM missing_table`)

	if collector.ok != 1 || collector.failed != 1 {
		t.Fatalf("unexpected observations: ok=%d failed=%d", collector.ok, collector.failed)
	}
}

type panickingHook struct{}

func (panickingHook) BeforeQuery(context.Context, string, []any) { panic("before") }
func (panickingHook) AfterQuery(context.Context, string, []any, time.Duration, error) {
	panic("after")
}

func TestHooks_PanicIsContained(t *testing.T) {
	d, err := db.Open(db.Config{DSN: ":memory:", DriverName: "sqlite3", Hooks: []db.Hook{panickingHook{}}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if _, err := d.Exec(context.Background(), `SELECT 1`); err != nil {
		t.Fatalf("exec: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Hooks: statements observed once their outcome is known
// ─────────────────────────────────────────────────────────────────────────────

type errorHook struct {
	errs []error
}

func (h *errorHook) BeforeQuery(context.Context, string, []any) {}
func (h *errorHook) AfterQuery(_ context.Context, _ string, _ []any, _ time.Duration, err error) {
	h.errs = append(h.errs, err)
}

func TestHooks_QueryRowReportsScanError(t *testing.T) {
	d := newTestDB(t)
	hook := &errorHook{}
	hooked := db.Wrap(d.Raw(), db.Config{Hooks: []db.Hook{hook}})
	ctx := context.Background()

	var id int64
	err := hooked.QueryRow(ctx,
		`INSERT INTO user_addresses (user_id, city) VALUES (?, ?) RETURNING id`, 4242, "Porto",
	).Scan(&id)
	if !db.IsForeignKeyViolation(err) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
	if len(hook.errs) != 1 || !db.IsForeignKeyViolation(hook.errs[0]) {
		t.Fatalf("hook must see the scan error, got %v", hook.errs)
	}
}

func TestHooks_RowsReportedOnce(t *testing.T) {
	d := newTestDB(t)
	hook := &errorHook{}
	hooked := db.Wrap(d.Raw(), db.Config{Hooks: []db.Hook{hook}, DefaultTimeout: time.Second})
	ctx := context.Background()

	rows, err := hooked.Query(ctx, `SELECT id FROM users`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for rows.Next() {
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = rows.Close()

	if len(hook.errs) != 1 || hook.errs[0] != nil {
		t.Fatalf("expected one successful observation, got %v", hook.errs)
	}
}

func TestExecTx_StatementsShareTransaction(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	now := time.Now()

	err := d.ExecTx(ctx, func(tx *db.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO users (name, email, created_at, updated_at) VALUES (?, ?, ?, ?) RETURNING id`,
			"Tia", "tia@tx.com", now, now,
		).Scan(&id)
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(ctx, `INSERT INTO user_addresses (user_id, city) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, city := range []string{"Lisbon", "Braga"} {
			if _, err := stmt.Exec(ctx, id, city); err != nil {
				return err
			}
		}

		rows, err := tx.Query(ctx, `SELECT city FROM user_addresses WHERE user_id = ?`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		n := 0
		for rows.Next() {
			n++
		}
		if n != 2 {
			return fmt.Errorf("expected 2 addresses inside the transaction, got %d", n)
		}
		return rows.Err()
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}
