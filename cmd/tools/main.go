package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lychee-technology/formtab"
)

// cliState is what the root command loads before any subcommand runs.
type cliState struct {
	configFile string
	logLevel   string
	config     *formtab.Config
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	state := &cliState{}
	root := &cobra.Command{
		Use:           "formtab-tools",
		Short:         "Operator tooling for formtab schemas and searches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(state.configFile)
			if err != nil {
				return err
			}
			if state.logLevel != "" {
				cfg.Logging.Level = state.logLevel
			}
			if err := setupLogger(cfg.Logging); err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}
			state.config = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}
	root.PersistentFlags().StringVar(&state.configFile, "config", "", "config file (default ./formtab.yaml)")
	root.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newInitDBCmd(state),
		newCompileCmd(state),
		newDescribeCmd(state),
		newValidateCmd(state),
		newSearchCmd(state),
		newHealthCmd(state),
	)
	return root
}

func setupLogger(cfg formtab.LoggingConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}
