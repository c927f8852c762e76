// Command settleup serves the shared-expense settlement ledger.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/settleup/internal/config"
	"github.com/mmynk/settleup/pkg/logging"
)

const appName = "settleup"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	// load reads configuration and installs the logger. A --log-level
	// flag overrides the configured level.
	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))
		return cfg, nil
	}

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Shared-expense settlement ledger",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(load), migrateCmd(load), auditCmd(load), tokenCmd(load))
	return cmd
}
