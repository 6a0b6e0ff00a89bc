package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/passly/internal/postgres"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending schema migrations to the PostgreSQL database.`,
		RunE:  runMigrate,
	}
	cmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if cfg.Store.PostgresDSN == "" {
		return oops.Code("CONFIG_INVALID").Errorf("store.postgres_dsn is required")
	}

	ctx := cmd.Context()
	logger.InfoContext(ctx, "running migrations")
	if err := postgres.MigrateDSN(ctx, cfg.Store.PostgresDSN); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
