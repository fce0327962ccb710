// Command storefront runs the storefront HTTP API and manages its schema.
//
//	storefront serve                # start the API server
//	storefront migrate up           # apply pending migrations
//	storefront migrate down [N]     # roll back N migrations (default 1)
//	storefront migrate version      # print the schema version
//	storefront migrate force <V>    # set the version, clearing a dirty state
//	storefront migrate drop         # drop every table (dev only)
//
// Settings come from the environment and an optional .env file; see
// package config for the variable names.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront commerce API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
