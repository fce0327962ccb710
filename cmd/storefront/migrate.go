package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/Skryldev/storefront/config"
	"github.com/Skryldev/storefront/db"
	"github.com/Skryldev/storefront/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var assumeYes bool
	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop all tables (dev only)",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, _ []string, m *migrate.Migrate) error {
			if !assumeYes {
				fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: drop will destroy all tables. Type 'yes' to confirm:")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "aborted")
					return nil
				}
			}
			if err := m.Drop(); err != nil {
				return fmt.Errorf("drop failed: %w", err)
			}
			slog.Info("migrations: all tables dropped")
			return nil
		}),
	}
	drop.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(_ *cobra.Command, _ []string, m *migrate.Migrate) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("up failed: %w", err)
				}
				slog.Info("migrations: up completed")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down [N]",
			Short: "Roll back N migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(func(_ *cobra.Command, args []string, m *migrate.Migrate) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("down: invalid steps argument %q", args[0])
					}
					steps = n
				}
				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("down failed: %w", err)
				}
				slog.Info("migrations: down completed", "steps", steps)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, _ []string, m *migrate.Migrate) error {
				v, dirty, err := m.Version()
				if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
					return fmt.Errorf("version failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d  dirty: %v\n", v, dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force <V>",
			Short: "Set the schema version, clearing a dirty state",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(_ *cobra.Command, args []string, m *migrate.Migrate) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("force: invalid version %q", args[0])
				}
				if err := m.Force(v); err != nil {
					return fmt.Errorf("force failed: %w", err)
				}
				slog.Info("migrations: forced", "version", v)
				return nil
			}),
		},
		drop,
	)
	return cmd
}

// withMigrator opens a dedicated connection, builds the migrator for the
// configured driver and closes both once fn returns.
func withMigrator(fn func(*cobra.Command, []string, *migrate.Migrate) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		dbCfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		newLogger(slog.LevelInfo)

		conn, dialect, err := openMigrationDB(dbCfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		m, err := migrations.New(conn.Raw(), dialect)
		if err != nil {
			return err
		}
		defer m.Close()
		m.Log = migrateLogger{}

		return fn(cmd, args, m)
	}
}

// openMigrationDB opens a single-connection handle for golang-migrate. The
// postgres migrate driver pins a connection for its advisory lock, so it
// must not share the serving pool.
func openMigrationDB(d *config.Database) (*db.DB, string, error) {
	drv, err := db.LookupDriver(d.Driver)
	if err != nil {
		return nil, "", err
	}
	poolCfg := d.PoolConfig()
	poolCfg.MaxOpenConns = 1
	poolCfg.MaxIdleConns = 1
	poolCfg.DefaultTimeout = 0

	conn, err := db.OpenWithDriver(d.Driver, d.DriverOptions(), poolCfg)
	if err != nil {
		return nil, "", fmt.Errorf("open database for migrations: %w", err)
	}
	return conn, drv.MigrateDriver(), nil
}

// migrateOnStartup brings the schema up to date before serving. SQLite
// migrates through the serving handle so in-memory databases keep their
// schema.
func migrateOnStartup(store *db.DB, d *config.Database) error {
	drv, err := db.LookupDriver(d.Driver)
	if err != nil {
		return err
	}
	if drv.MigrateDriver() == "sqlite3" {
		return migrations.Up(store.Raw(), "sqlite3")
	}

	conn, dialect, err := openMigrationDB(d)
	if err != nil {
		return err
	}
	defer conn.Close()

	m, err := migrations.New(conn.Raw(), dialect)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
func (migrateLogger) Verbose() bool { return false }
