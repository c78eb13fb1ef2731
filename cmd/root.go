package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/config"
)

var (
	configPath string
	verbose    bool
	version    = "dev"

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ekaya-mapper",
	Short: "Map the columns of a source table onto a target property catalog",
	Long: `ekaya-mapper assigns each column of an uploaded source table to a property
of the target catalog, using a knowledge base of known header spellings and a
generative suggestion provider, and exports the result for the loader.

The mapping is kept in a YAML state file between invocations, so a typical
session is:

  ekaya-mapper suggest --source bom.csv
  ekaya-mapper select --source bom.csv "Qty Req" Quantity
  ekaya-mapper export --source bom.csv --upload`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath, version)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Env, verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command. Failures are reported with their label and
// exit with status 1.
func Execute(v string) {
	version = v
	rootCmd.Version = v
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", apperrors.FailureLabel(err), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger logs to stderr so command output on stdout stays clean.
func newLogger(env string, verbose bool) (*zap.Logger, error) {
	var logConfig zap.Config
	if env == "local" || env == "dev" {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		logConfig = zap.NewProductionConfig()
	}
	if verbose {
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return logConfig.Build()
}
