package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/passly/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the passly CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passly",
		Short: "passly - account authentication tooling",
		Long: `passly runs the operational side of the passly authentication engine:
schema migrations, the expired one-time code sweeper, and password tooling.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "", "log format (json or text)")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewGenpassCmd())
	cmd.AddCommand(NewHashCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// setup loads the layered configuration for cmd and builds its logger.
func setup(cmd *cobra.Command) (*cliConfig, *slog.Logger, error) {
	cfg, err := loadConfig(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.Setup(logging.Options{
		Service: "passly",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, oops.Code("CONFIG_INVALID").With("section", "log").Wrap(err)
	}
	return cfg, logger, nil
}
