package db

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	// pgx registers itself with database/sql as "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	// lib/pq registers itself as "postgres".
	_ "github.com/lib/pq"
	// go-sqlite3 registers itself as "sqlite3".
	_ "github.com/mattn/go-sqlite3"
)

// Driver describes one supported database/sql driver: its registered name,
// how structured connection options become a DSN, and which golang-migrate
// database driver applies its schema.
type Driver interface {
	// Name returns the database/sql driver name, e.g. "pgx", "sqlite3".
	Name() string

	// DSN converts structured options into the driver's DSN format.
	DSN(opts DriverOptions) (string, error)

	// MigrateDriver names the golang-migrate database driver for this engine.
	MigrateDriver() string

	// ErrorMapper returns a mapper tuned to this driver's error types.
	ErrorMapper() ErrorMapper
}

// DriverOptions carries connection parameters in a driver-agnostic form.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-full", ...
	// Extra holds driver-specific key/value parameters.
	Extra map[string]string
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver adds a Driver to the registry. It panics when the name is
// already taken.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[d.Name()]; ok {
		panic(fmt.Sprintf("storefront/db: driver %q already registered", d.Name()))
	}
	drivers[d.Name()] = d
}

// LookupDriver returns the registered Driver by name.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("storefront/db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver opens a DB through a registered Driver. When cfg.DSN is
// empty the DSN is built from opts.
//
//	d, err := db.OpenWithDriver("pgx", db.DriverOptions{
//	    Host: "localhost", Port: 5432,
//	    User: "app", Password: "secret", Database: "storefront",
//	}, db.Config{MaxOpenConns: 25})
func OpenWithDriver(driverName string, opts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}

	if cfg.DSN == "" {
		dsn, err := drv.DSN(opts)
		if err != nil {
			return nil, fmt.Errorf("storefront/db: DSN construction failed: %w", err)
		}
		cfg.DSN = dsn
	}
	cfg.DriverName = drv.Name()

	d, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	d.SetErrorMapper(ChainMapper(drv.ErrorMapper(), DefaultErrorMapper()))
	return d, nil
}

// ── PostgreSQL (lib/pq) ──────────────────────────────────────────────────────

// PostgresDriver is the lib/pq adapter.
type PostgresDriver struct{}

func (PostgresDriver) Name() string             { return "postgres" }
func (PostgresDriver) MigrateDriver() string    { return "postgres" }
func (PostgresDriver) ErrorMapper() ErrorMapper { return DefaultErrorMapper() }
func (PostgresDriver) DSN(o DriverOptions) (string, error) {
	return postgresURL(o)
}

// ── PostgreSQL (pgx) ─────────────────────────────────────────────────────────

// PgxDriver is the jackc/pgx stdlib adapter. It accepts the same URL form.
type PgxDriver struct{}

func (PgxDriver) Name() string             { return "pgx" }
func (PgxDriver) MigrateDriver() string    { return "postgres" }
func (PgxDriver) ErrorMapper() ErrorMapper { return DefaultErrorMapper() }
func (PgxDriver) DSN(o DriverOptions) (string, error) {
	return postgresURL(o)
}

func postgresURL(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("postgres driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	for k, v := range o.Extra {
		q.Set(k, v)
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     o.Host + ":" + strconv.Itoa(port),
		Path:     "/" + o.Database,
		RawQuery: q.Encode(),
	}
	if o.User != "" {
		u.User = url.UserPassword(o.User, o.Password)
	}
	return u.String(), nil
}

// ── SQLite ───────────────────────────────────────────────────────────────────

// SQLiteDriver is the mattn/go-sqlite3 adapter. Foreign keys are switched
// on for every connection because the schema relies on them.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string             { return "sqlite3" }
func (SQLiteDriver) MigrateDriver() string    { return "sqlite3" }
func (SQLiteDriver) ErrorMapper() ErrorMapper { return DefaultErrorMapper() }
func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3 driver: Database (file path) is required")
	}
	params := map[string]string{"_foreign_keys": "on"}
	for k, v := range o.Extra {
		params[k] = v
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return o.Database + "?" + strings.Join(pairs, "&"), nil
}

func init() {
	RegisterDriver(PostgresDriver{})
	RegisterDriver(PgxDriver{})
	RegisterDriver(SQLiteDriver{})
}
