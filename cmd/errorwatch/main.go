// Package main is the errorwatch operator CLI: envelope tooling and record administration.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kiranshivaraju/errorwatch/internal/config"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "errorwatch",
		Short: "errorwatch operator tooling",
		Long: `errorwatch - operator tooling for the error ingestion service.

Commands:
  envelope       - Encode or decode log batch envelopes
  keys           - Issue and list API keys
  features       - Map root features to source repositories
  admins         - Register administrator terminals
  subscriptions  - Store push subscriptions for terminals

Storage commands read STORAGE_BACKEND and DATABASE_URL from the environment.

Examples:
  errorwatch envelope encode payloads.json
  errorwatch keys create --name ci --scopes ingest
  errorwatch features set --root-feature billing --url https://github.com/acme/billing`,
		SilenceUsage: true,
	}

	root.AddCommand(newEnvelopeCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newFeaturesCmd())
	root.AddCommand(newAdminsCmd())
	root.AddCommand(newSubscriptionsCmd())
	return root
}

// openBackend connects to the configured storage. Tests replace it.
var openBackend = func(ctx context.Context) (store.Backend, func(), error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Backend == "memory" {
		return nil, nil, fmt.Errorf("STORAGE_BACKEND=memory is process-local; point the CLI at postgres")
	}

	pool, err := store.Connect(ctx, *cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return store.NewPostgresBackend(pool), pool.Close, nil
}

// withBackend runs fn against an open backend and closes it afterwards.
func withBackend(ctx context.Context, fn func(store.Backend) error) error {
	backend, closeFn, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(backend)
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
